// Package conditions evaluates field conditions for workflow transitions and
// automation rules. Plain field/operator/value checks are evaluated over a
// tagged variant type; free-form expressions are compiled with expr and
// cached.
package conditions

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Operator identifies one comparison a condition may apply.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpIsEmpty     Operator = "is_empty"
	OpIsNotEmpty  Operator = "is_not_empty"

	// OpExpression evaluates Condition.Value as a boolean expr program
	// against the whole field map instead of a single field.
	OpExpression Operator = "expression"
)

// Logic combines the outcomes of a condition list.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// Condition is one (field, operator, value) check.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator" validate:"required"`
	Value    any      `json:"value,omitempty"`
}

var (
	ErrUnknownOperator = errors.New("unknown condition operator")
	ErrUnknownLogic    = errors.New("unknown condition logic")
)

// Evaluator evaluates condition lists. It is safe for concurrent use; the
// expression program cache is shared across goroutines.
type Evaluator struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

func NewEvaluator() *Evaluator {
	return &Evaluator{
		programs: make(map[string]*vm.Program),
	}
}

// EvaluateAll combines the conditions with the given logic. An empty
// condition list always matches.
func (e *Evaluator) EvaluateAll(conds []Condition, logic Logic, fields map[string]any) (bool, error) {
	if len(conds) == 0 {
		return true, nil
	}

	switch logic {
	case LogicAnd, "":
		for _, cond := range conds {
			ok, err := e.Evaluate(cond, fields)
			if err != nil {
				return false, err
			}

			if !ok {
				return false, nil
			}
		}

		return true, nil
	case LogicOr:
		for _, cond := range conds {
			ok, err := e.Evaluate(cond, fields)
			if err != nil {
				return false, err
			}

			if ok {
				return true, nil
			}
		}

		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownLogic, logic)
	}
}

// Evaluate applies a single condition against the field map.
func (e *Evaluator) Evaluate(cond Condition, fields map[string]any) (bool, error) {
	if cond.Operator == OpExpression {
		source, ok := cond.Value.(string)
		if !ok {
			return false, fmt.Errorf("expression condition value must be a string, got %T", cond.Value)
		}

		return e.evaluateExpression(source, fields)
	}

	field := FromAny(fields[cond.Field])
	want := FromAny(cond.Value)

	return evaluateOperator(cond.Operator, field, want)
}

func (e *Evaluator) evaluateExpression(source string, fields map[string]any) (bool, error) {
	e.mu.RLock()
	program, ok := e.programs[source]
	e.mu.RUnlock()

	if !ok {
		e.mu.Lock()
		if program, ok = e.programs[source]; !ok {
			var err error

			program, err = expr.Compile(source, expr.AllowUndefinedVariables(), expr.AsBool())
			if err != nil {
				e.mu.Unlock()

				return false, fmt.Errorf("failed to compile condition expression %q: %w", source, err)
			}

			e.programs[source] = program
		}
		e.mu.Unlock()
	}

	result, err := expr.Run(program, fields)
	if err != nil {
		return false, fmt.Errorf("failed to run condition expression %q: %w", source, err)
	}

	boolResult, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("condition expression %q did not evaluate to a boolean, got %T", source, result)
	}

	return boolResult, nil
}

// evaluateOperator is exhaustive over the supported operators.
func evaluateOperator(op Operator, field, want FieldValue) (bool, error) {
	switch op {
	case OpEquals:
		return valuesEqual(field, want), nil
	case OpNotEquals:
		return !valuesEqual(field, want), nil
	case OpGreaterThan:
		left, leftOK := field.asNumber()
		right, rightOK := want.asNumber()

		return leftOK && rightOK && left > right, nil
	case OpLessThan:
		left, leftOK := field.asNumber()
		right, rightOK := want.asNumber()

		return leftOK && rightOK && left < right, nil
	case OpContains:
		return contains(field, want), nil
	case OpNotContains:
		return !contains(field, want), nil
	case OpIn:
		return oneOf(field, want), nil
	case OpNotIn:
		return !oneOf(field, want), nil
	case OpIsEmpty:
		return field.IsEmpty(), nil
	case OpIsNotEmpty:
		return !field.IsEmpty(), nil
	case OpExpression:
		// Handled by Evaluate before operator dispatch.
		return false, fmt.Errorf("%w: expression operator requires field map", ErrUnknownOperator)
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, op)
	}
}

func valuesEqual(field, want FieldValue) bool {
	if field.Kind == KindNumber || want.Kind == KindNumber {
		left, leftOK := field.asNumber()
		right, rightOK := want.asNumber()

		if leftOK && rightOK {
			return left == right
		}
	}

	if field.Kind == KindDate && want.Kind == KindDate {
		return field.Date.Equal(want.Date)
	}

	if field.Kind == KindBool && want.Kind == KindBool {
		return field.Bool == want.Bool
	}

	return field.asText() == want.asText()
}

// contains matches list membership for list fields and substring match for
// text fields.
func contains(field, want FieldValue) bool {
	if field.Kind == KindList {
		needle := want.asText()
		for _, item := range field.List {
			if item == needle {
				return true
			}
		}

		return false
	}

	return strings.Contains(field.asText(), want.asText())
}

// oneOf reports whether the field value is a member of the wanted list.
func oneOf(field, want FieldValue) bool {
	if want.Kind != KindList {
		return valuesEqual(field, want)
	}

	needle := field.asText()
	for _, item := range want.List {
		if item == needle {
			return true
		}
	}

	return false
}
