// Package recurrence computes occurrence dates for recurrence patterns.
// All functions are pure: they derive the next occurrence from the pattern
// and a reference instant, never from stored state.
package recurrence

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/planfold/planfold/pkg/models"
)

// MaxLookaheadYears bounds how far past the reference instant the
// calculator will search before concluding the pattern produces nothing.
// This guarantees termination for patterns that can never match again
// (e.g. Feb 30, or a weekday set emptied by exclusions).
const MaxLookaheadYears = 5

// NextOccurrence returns the first occurrence strictly after the given
// instant, or nil when the pattern's end condition is reached (or nothing
// matches within the lookahead bound). produced is the number of
// occurrences already generated, used for count-based end conditions.
//
// Excluded dates are not skipped here; callers decide whether an excluded
// occurrence is suppressed (materializer) or reported (preview).
func NextOccurrence(pattern models.RecurrencePattern, after time.Time, produced int) (*time.Time, error) {
	if err := pattern.Validate(); err != nil {
		return nil, err
	}

	if pattern.End == models.EndAfterCount && produced >= pattern.MaxOccurrences {
		return nil, nil
	}

	loc, err := pattern.Location()
	if err != nil {
		return nil, err
	}

	after = after.In(loc)
	horizon := after.AddDate(MaxLookaheadYears, 0, 0)

	var next *time.Time

	switch pattern.Frequency {
	case models.FrequencyDaily:
		next = nextDaily(pattern, after, horizon, loc)
	case models.FrequencyWeekly:
		next = nextWeekly(pattern, after, horizon, loc)
	case models.FrequencyMonthly:
		next = nextMonthly(pattern, after, horizon, loc)
	case models.FrequencyYearly:
		next = nextYearly(pattern, after, horizon, loc)
	case models.FrequencyCustom:
		next = nextCron(pattern, after, horizon)
	}

	if next == nil {
		return nil, nil
	}

	if pattern.End == models.EndAtDate && pattern.EndDate != nil {
		ey, em, ed := pattern.EndDate.In(loc).Date()
		endOfDay := time.Date(ey, em, ed, 23, 59, 59, 0, loc)

		if next.After(endOfDay) {
			return nil, nil
		}
	}

	return next, nil
}

func nextDaily(p models.RecurrencePattern, after, horizon time.Time, loc *time.Location) *time.Time {
	start := dateOnly(p.StartDate.In(loc), loc)
	cursor := dateOnly(after, loc)

	if cursor.Before(start) {
		cursor = start
	}

	for !cursor.After(horizon) {
		days := civilDays(cursor) - civilDays(start)

		matches := days >= 0 && days%p.Interval == 0
		if matches && p.BusinessDaysOnly {
			wd := cursor.Weekday()
			matches = wd != time.Saturday && wd != time.Sunday
		}

		if matches {
			candidate := withPreferredTime(cursor, p, loc)
			if candidate.After(after) {
				return &candidate
			}
		}

		cursor = cursor.AddDate(0, 0, 1)
	}

	return nil
}

func nextWeekly(p models.RecurrencePattern, after, horizon time.Time, loc *time.Location) *time.Time {
	start := dateOnly(p.StartDate.In(loc), loc)
	anchor := startOfWeek(start)
	cursor := dateOnly(after, loc)

	if cursor.Before(start) {
		cursor = start
	}

	for !cursor.After(horizon) {
		weeks := (civilDays(cursor) - civilDays(anchor)) / 7

		if weeks >= 0 && weeks%p.Interval == 0 && weekdayIn(p.WeekDays, cursor.Weekday()) {
			candidate := withPreferredTime(cursor, p, loc)
			if candidate.After(after) {
				return &candidate
			}
		}

		cursor = cursor.AddDate(0, 0, 1)
	}

	return nil
}

func nextMonthly(p models.RecurrencePattern, after, horizon time.Time, loc *time.Location) *time.Time {
	start := p.StartDate.In(loc)
	startIndex := int(start.Year())*12 + int(start.Month()) - 1

	cursorYear, cursorMonth, _ := after.Date()
	if after.Before(start) {
		cursorYear, cursorMonth = start.Year(), start.Month()
	}

	for {
		monthStart := time.Date(cursorYear, cursorMonth, 1, 0, 0, 0, 0, loc)
		if monthStart.After(horizon) {
			return nil
		}

		monthIndex := cursorYear*12 + int(cursorMonth) - 1
		monthsSince := monthIndex - startIndex

		if monthsSince >= 0 && monthsSince%p.Interval == 0 {
			if day, ok := monthlyDay(p, cursorYear, cursorMonth, loc); ok {
				candidate := withPreferredTime(day, p, loc)
				if candidate.After(after) && !candidate.Before(dateOnly(start, loc)) {
					return &candidate
				}
			}
		}

		cursorMonth++
		if cursorMonth > time.December {
			cursorMonth = time.January
			cursorYear++
		}
	}
}

// monthlyDay resolves the pattern's day within one month: a fixed
// day-of-month (skipping months too short for it), or the Nth weekday
// (MonthWeek -1 means the last such weekday).
func monthlyDay(p models.RecurrencePattern, year int, month time.Month, loc *time.Location) (time.Time, bool) {
	daysInMonth := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()

	if p.MonthDay >= 1 {
		if p.MonthDay > daysInMonth {
			return time.Time{}, false
		}

		return time.Date(year, month, p.MonthDay, 0, 0, 0, 0, loc), true
	}

	if p.MonthWeekday == nil {
		return time.Time{}, false
	}

	if p.MonthWeek == -1 {
		for day := daysInMonth; day >= 1; day-- {
			candidate := time.Date(year, month, day, 0, 0, 0, 0, loc)
			if candidate.Weekday() == *p.MonthWeekday {
				return candidate, true
			}
		}

		return time.Time{}, false
	}

	seen := 0
	for day := 1; day <= daysInMonth; day++ {
		candidate := time.Date(year, month, day, 0, 0, 0, 0, loc)
		if candidate.Weekday() == *p.MonthWeekday {
			seen++
			if seen == p.MonthWeek {
				return candidate, true
			}
		}
	}

	return time.Time{}, false
}

func nextYearly(p models.RecurrencePattern, after, horizon time.Time, loc *time.Location) *time.Time {
	start := p.StartDate.In(loc)

	year := after.Year()
	if after.Before(start) {
		year = start.Year()
	}

	for ; year <= horizon.Year(); year++ {
		yearsSince := year - start.Year()
		if yearsSince < 0 || yearsSince%p.Interval != 0 {
			continue
		}

		// Skip years where the date does not exist (Feb 29 off leap years).
		daysInMonth := time.Date(year, p.YearlyMonth+1, 0, 0, 0, 0, 0, loc).Day()
		if p.YearlyDay > daysInMonth {
			continue
		}

		day := time.Date(year, p.YearlyMonth, p.YearlyDay, 0, 0, 0, 0, loc)
		candidate := withPreferredTime(day, p, loc)

		if candidate.After(after) && !candidate.Before(dateOnly(start, loc)) {
			return &candidate
		}
	}

	return nil
}

func nextCron(p models.RecurrencePattern, after, horizon time.Time) *time.Time {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	schedule, err := parser.Parse(p.CronExpression)
	if err != nil {
		// Validate has already rejected malformed expressions.
		return nil
	}

	next := schedule.Next(after)
	if next.IsZero() || next.After(horizon) {
		return nil
	}

	return &next
}

func withPreferredTime(day time.Time, p models.RecurrencePattern, loc *time.Location) time.Time {
	year, month, d := day.Date()

	return time.Date(year, month, d, p.PreferredHour, p.PreferredMinute, 0, 0, loc)
}

func dateOnly(t time.Time, loc *time.Location) time.Time {
	year, month, day := t.In(loc).Date()

	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

// civilDays counts whole days since the Unix epoch for a calendar date,
// independent of timezone offsets and DST transitions.
func civilDays(t time.Time) int {
	year, month, day := t.Date()

	return int(time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// startOfWeek returns the Monday on or before the given date.
func startOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7

	return t.AddDate(0, 0, -offset)
}

func weekdayIn(days []time.Weekday, wd time.Weekday) bool {
	for _, d := range days {
		if d == wd {
			return true
		}
	}

	return false
}
