// Package template renders {variable} placeholders in recurring-task
// templates and action parameters.
package template

import (
	"fmt"
	"regexp"
	"time"
)

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_.]+)\}`)

// Render substitutes {name} placeholders with values from vars. Unknown
// placeholders are left untouched so typos stay visible in the output.
func Render(input string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]

		if value, ok := vars[name]; ok {
			return value
		}

		return match
	})
}

// OccurrenceVars returns the built-in variables available to recurring-task
// templates for one occurrence, merged with the user-supplied set. User
// variables win on conflicting names.
func OccurrenceVars(occurrence time.Time, userVars map[string]string) map[string]string {
	vars := map[string]string{
		"date":       occurrence.Format("2006-01-02"),
		"time":       occurrence.Format("15:04"),
		"year":       occurrence.Format("2006"),
		"month":      occurrence.Format("January"),
		"month_num":  occurrence.Format("01"),
		"day":        occurrence.Format("02"),
		"weekday":    occurrence.Weekday().String(),
		"week":       fmt.Sprintf("%d", isoWeek(occurrence)),
	}

	for k, v := range userVars {
		vars[k] = v
	}

	return vars
}

func isoWeek(t time.Time) int {
	_, week := t.ISOWeek()

	return week
}

// StringVars flattens a loosely-typed data map into template variables.
// Non-string values are formatted with %v; nested maps and lists are
// skipped.
func StringVars(data map[string]any) map[string]string {
	vars := make(map[string]string, len(data))

	for k, v := range data {
		switch v.(type) {
		case map[string]any, []any:
			continue
		case nil:
			continue
		}

		vars[k] = fmt.Sprintf("%v", v)
	}

	return vars
}
