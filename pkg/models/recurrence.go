package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Frequency names the base cadence of a recurrence pattern.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
	FrequencyCustom  Frequency = "custom"
)

// EndCondition decides when a pattern stops producing occurrences.
type EndCondition string

const (
	EndNever      EndCondition = "never"
	EndAtDate     EndCondition = "date"
	EndAfterCount EndCondition = "count"
)

const (
	MinInterval = 1
	MaxInterval = 100
)

var (
	ErrInvalidFrequency     = errors.New("invalid recurrence frequency")
	ErrIntervalOutOfRange   = errors.New("recurrence interval out of range")
	ErrMissingWeekDays      = errors.New("weekly pattern requires week days")
	ErrMissingMonthRule     = errors.New("monthly pattern requires month_day or month_week+month_weekday")
	ErrMissingYearlyRule    = errors.New("yearly pattern requires yearly_month and yearly_day")
	ErrMissingCron          = errors.New("custom pattern requires a cron expression")
	ErrInvalidCron          = errors.New("invalid cron expression")
	ErrMissingEndDate       = errors.New("date end condition requires end_date")
	ErrMissingMaxCount      = errors.New("count end condition requires max_occurrences")
	ErrMissingStartDate     = errors.New("recurrence pattern requires start_date")
	ErrInvalidTimezone      = errors.New("invalid timezone")
	ErrInvalidPreferredTime = errors.New("preferred time must be within 00:00-23:59")
)

// RecurrencePattern describes when occurrences of a recurring task fall.
// All date math is done in the pattern's timezone; results are returned in
// that location with the preferred time applied.
type RecurrencePattern struct {
	Frequency Frequency `json:"frequency" validate:"required"`
	Interval  int       `json:"interval"  validate:"min=1,max=100"`

	// StartDate anchors interval arithmetic (every Nth day/week/month/year
	// counted from this date).
	StartDate time.Time `json:"start_date"`

	// Weekly.
	WeekDays []time.Weekday `json:"week_days,omitempty"`

	// Monthly: either a fixed day of month, or the Nth weekday of the month
	// (MonthWeek 1..4, or -1 for the last).
	MonthDay     int           `json:"month_day,omitempty"`
	MonthWeek    int           `json:"month_week,omitempty"`
	MonthWeekday *time.Weekday `json:"month_weekday,omitempty"`

	// Yearly.
	YearlyMonth time.Month `json:"yearly_month,omitempty"`
	YearlyDay   int        `json:"yearly_day,omitempty"`

	// Custom.
	CronExpression string `json:"cron_expression,omitempty"`

	// Daily option: skip Saturdays and Sundays.
	BusinessDaysOnly bool `json:"business_days_only,omitempty"`

	End            EndCondition `json:"end_condition"`
	EndDate        *time.Time   `json:"end_date,omitempty"`
	MaxOccurrences int          `json:"max_occurrences,omitempty"`

	// ExcludedDates are calendar dates (time component ignored) that never
	// produce an instance.
	ExcludedDates []time.Time `json:"excluded_dates,omitempty"`

	PreferredHour   int    `json:"preferred_hour,omitempty"`
	PreferredMinute int    `json:"preferred_minute,omitempty"`
	Timezone        string `json:"timezone,omitempty"`
}

// Location resolves the pattern's timezone, defaulting to UTC.
func (p *RecurrencePattern) Location() (*time.Location, error) {
	if p.Timezone == "" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, p.Timezone)
	}

	return loc, nil
}

// Validate checks the pattern is well-formed for its frequency.
func (p *RecurrencePattern) Validate() error {
	if p.Interval < MinInterval || p.Interval > MaxInterval {
		return fmt.Errorf("%w: %d", ErrIntervalOutOfRange, p.Interval)
	}

	if p.StartDate.IsZero() {
		return ErrMissingStartDate
	}

	if p.PreferredHour < 0 || p.PreferredHour > 23 || p.PreferredMinute < 0 || p.PreferredMinute > 59 {
		return ErrInvalidPreferredTime
	}

	if _, err := p.Location(); err != nil {
		return err
	}

	switch p.Frequency {
	case FrequencyDaily:
		// No extra fields required.
	case FrequencyWeekly:
		if len(p.WeekDays) == 0 {
			return ErrMissingWeekDays
		}
	case FrequencyMonthly:
		hasFixedDay := p.MonthDay >= 1 && p.MonthDay <= 31
		hasNthWeekday := p.MonthWeekday != nil && (p.MonthWeek == -1 || (p.MonthWeek >= 1 && p.MonthWeek <= 5))

		if !hasFixedDay && !hasNthWeekday {
			return ErrMissingMonthRule
		}
	case FrequencyYearly:
		if p.YearlyMonth < time.January || p.YearlyMonth > time.December || p.YearlyDay < 1 || p.YearlyDay > 31 {
			return ErrMissingYearlyRule
		}
	case FrequencyCustom:
		if p.CronExpression == "" {
			return ErrMissingCron
		}

		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(p.CronExpression); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCron, err)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFrequency, p.Frequency)
	}

	switch p.End {
	case EndNever, "":
		// Unbounded.
	case EndAtDate:
		if p.EndDate == nil {
			return ErrMissingEndDate
		}
	case EndAfterCount:
		if p.MaxOccurrences < 1 {
			return ErrMissingMaxCount
		}
	default:
		return fmt.Errorf("invalid end condition %q", p.End)
	}

	return nil
}

// IsExcluded reports whether the calendar date of t is excluded.
func (p *RecurrencePattern) IsExcluded(t time.Time) bool {
	year, month, day := t.Date()

	for _, excluded := range p.ExcludedDates {
		ey, em, ed := excluded.Date()
		if year == ey && month == em && day == ed {
			return true
		}
	}

	return false
}

// TaskTemplate is the prototype a recurring task stamps instances from.
// Title and description support {variable} substitution.
type TaskTemplate struct {
	Title       string            `json:"title" validate:"required"`
	Description string            `json:"description,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	AssigneeID  string            `json:"assignee_id,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
}

// RecurringTask binds a pattern to a template and tracks materialization
// bookkeeping. Created instances are independent tasks that outlive the
// generator.
type RecurringTask struct {
	ID        string            `json:"id"`
	ProjectID string            `json:"project_id" validate:"required"`
	Pattern   RecurrencePattern `json:"pattern"`
	Template  TaskTemplate      `json:"template"`

	// NextOccurrence is the next due date not yet materialized. Nil means
	// the pattern is exhausted.
	NextOccurrence   *time.Time `json:"next_occurrence,omitempty"`
	CreatedInstances int        `json:"created_instances"`

	// AutoCreateDaysAhead is the materializer lookahead window in days.
	AutoCreateDaysAhead int    `json:"auto_create_days_ahead"`
	IsActive            bool   `json:"is_active"`
	LastError           string `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *RecurringTask) Validate() error {
	if r.ProjectID == "" {
		return errors.New("recurring task requires a project id")
	}

	if r.Template.Title == "" {
		return errors.New("recurring task template requires a title")
	}

	return r.Pattern.Validate()
}
