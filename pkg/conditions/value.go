package conditions

import (
	"fmt"
	"strconv"
	"time"
)

// ValueKind tags the variant held by a FieldValue.
type ValueKind int

const (
	KindEmpty ValueKind = iota
	KindText
	KindNumber
	KindBool
	KindDate
	KindList
)

// FieldValue is a tagged variant over the field types the engine compares.
// Keeping the variants explicit makes operator evaluation exhaustive instead
// of stringly-typed.
type FieldValue struct {
	Kind   ValueKind
	Text   string
	Number float64
	Bool   bool
	Date   time.Time
	List   []string
}

func TextValue(s string) FieldValue    { return FieldValue{Kind: KindText, Text: s} }
func NumberValue(f float64) FieldValue { return FieldValue{Kind: KindNumber, Number: f} }
func BoolValue(b bool) FieldValue      { return FieldValue{Kind: KindBool, Bool: b} }
func DateValue(t time.Time) FieldValue { return FieldValue{Kind: KindDate, Date: t} }
func ListValue(l []string) FieldValue  { return FieldValue{Kind: KindList, List: l} }
func EmptyValue() FieldValue           { return FieldValue{Kind: KindEmpty} }

// FromAny classifies a loosely-typed value (JSON decoding, trigger data,
// task field maps) into a FieldValue.
func FromAny(v any) FieldValue {
	switch val := v.(type) {
	case nil:
		return EmptyValue()
	case string:
		if val == "" {
			return EmptyValue()
		}

		return TextValue(val)
	case bool:
		return BoolValue(val)
	case int:
		return NumberValue(float64(val))
	case int32:
		return NumberValue(float64(val))
	case int64:
		return NumberValue(float64(val))
	case float32:
		return NumberValue(float64(val))
	case float64:
		return NumberValue(val)
	case time.Time:
		return DateValue(val)
	case *time.Time:
		if val == nil {
			return EmptyValue()
		}

		return DateValue(*val)
	case []string:
		if len(val) == 0 {
			return EmptyValue()
		}

		return ListValue(val)
	case []any:
		if len(val) == 0 {
			return EmptyValue()
		}

		list := make([]string, 0, len(val))
		for _, item := range val {
			list = append(list, stringify(item))
		}

		return ListValue(list)
	default:
		return TextValue(stringify(val))
	}
}

// IsEmpty reports whether the value counts as absent for the
// is_empty/is_not_empty operators.
func (v FieldValue) IsEmpty() bool {
	switch v.Kind {
	case KindEmpty:
		return true
	case KindText:
		return v.Text == ""
	case KindList:
		return len(v.List) == 0
	case KindNumber, KindBool, KindDate:
		return false
	default:
		return true
	}
}

// Equal reports whether two values compare equal under the engine's
// coercion rules (numeric when both sides are numeric, textual otherwise).
func (v FieldValue) Equal(other FieldValue) bool {
	return valuesEqual(v, other)
}

// asNumber coerces the value into a float64 for ordering comparisons.
func (v FieldValue) asNumber() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Number, true
	case KindText:
		f, err := strconv.ParseFloat(v.Text, 64)
		if err != nil {
			return 0, false
		}

		return f, true
	case KindDate:
		return float64(v.Date.Unix()), true
	case KindEmpty, KindBool, KindList:
		return 0, false
	default:
		return 0, false
	}
}

// asText renders the value as a comparable string.
func (v FieldValue) asText() string {
	switch v.Kind {
	case KindText:
		return v.Text
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindDate:
		return v.Date.UTC().Format(time.RFC3339)
	case KindEmpty:
		return ""
	case KindList:
		return fmt.Sprintf("%v", v.List)
	default:
		return ""
	}
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}

	return fmt.Sprintf("%v", v)
}
