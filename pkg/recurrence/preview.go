package recurrence

import (
	"time"

	"github.com/planfold/planfold/pkg/models"
)

// PreviewItem is one occurrence in a preview window. Excluded occurrences
// are reported, not silently dropped.
type PreviewItem struct {
	Date     time.Time `json:"date"`
	Excluded bool      `json:"excluded"`
}

// Preview generates up to count occurrences starting at the given instant
// (inclusive of an occurrence falling exactly on it). Excluded dates count
// toward the window and toward count-based end conditions.
func Preview(pattern models.RecurrencePattern, start time.Time, count int) ([]PreviewItem, error) {
	if err := pattern.Validate(); err != nil {
		return nil, err
	}

	items := make([]PreviewItem, 0, count)
	cursor := start.Add(-time.Second)
	produced := 0

	for len(items) < count {
		next, err := NextOccurrence(pattern, cursor, produced)
		if err != nil {
			return nil, err
		}

		if next == nil {
			break
		}

		items = append(items, PreviewItem{
			Date:     *next,
			Excluded: pattern.IsExcluded(*next),
		})

		cursor = *next
		produced++
	}

	return items, nil
}
