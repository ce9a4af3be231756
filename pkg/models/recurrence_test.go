package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecurrencePattern_Validate(t *testing.T) {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	wednesday := time.Wednesday

	testCases := []struct {
		name    string
		pattern RecurrencePattern
		wantErr error
	}{
		{
			name:    "daily",
			pattern: RecurrencePattern{Frequency: FrequencyDaily, Interval: 1, StartDate: start},
		},
		{
			name: "weekly with days",
			pattern: RecurrencePattern{
				Frequency: FrequencyWeekly, Interval: 2, StartDate: start,
				WeekDays: []time.Weekday{time.Monday, time.Wednesday},
			},
		},
		{
			name: "weekly missing days",
			pattern: RecurrencePattern{
				Frequency: FrequencyWeekly, Interval: 1, StartDate: start,
			},
			wantErr: ErrMissingWeekDays,
		},
		{
			name: "monthly fixed day",
			pattern: RecurrencePattern{
				Frequency: FrequencyMonthly, Interval: 1, StartDate: start, MonthDay: 15,
			},
		},
		{
			name: "monthly nth weekday",
			pattern: RecurrencePattern{
				Frequency: FrequencyMonthly, Interval: 1, StartDate: start,
				MonthWeek: 2, MonthWeekday: &wednesday,
			},
		},
		{
			name: "monthly last weekday",
			pattern: RecurrencePattern{
				Frequency: FrequencyMonthly, Interval: 1, StartDate: start,
				MonthWeek: -1, MonthWeekday: &wednesday,
			},
		},
		{
			name: "monthly missing rule",
			pattern: RecurrencePattern{
				Frequency: FrequencyMonthly, Interval: 1, StartDate: start,
			},
			wantErr: ErrMissingMonthRule,
		},
		{
			name: "yearly",
			pattern: RecurrencePattern{
				Frequency: FrequencyYearly, Interval: 1, StartDate: start,
				YearlyMonth: time.March, YearlyDay: 14,
			},
		},
		{
			name: "yearly missing rule",
			pattern: RecurrencePattern{
				Frequency: FrequencyYearly, Interval: 1, StartDate: start,
			},
			wantErr: ErrMissingYearlyRule,
		},
		{
			name: "custom cron",
			pattern: RecurrencePattern{
				Frequency: FrequencyCustom, Interval: 1, StartDate: start,
				CronExpression: "0 9 * * 1-5",
			},
		},
		{
			name: "custom invalid cron",
			pattern: RecurrencePattern{
				Frequency: FrequencyCustom, Interval: 1, StartDate: start,
				CronExpression: "not a cron",
			},
			wantErr: ErrInvalidCron,
		},
		{
			name: "custom missing cron",
			pattern: RecurrencePattern{
				Frequency: FrequencyCustom, Interval: 1, StartDate: start,
			},
			wantErr: ErrMissingCron,
		},
		{
			name:    "interval too small",
			pattern: RecurrencePattern{Frequency: FrequencyDaily, Interval: 0, StartDate: start},
			wantErr: ErrIntervalOutOfRange,
		},
		{
			name:    "interval too large",
			pattern: RecurrencePattern{Frequency: FrequencyDaily, Interval: 101, StartDate: start},
			wantErr: ErrIntervalOutOfRange,
		},
		{
			name:    "missing start date",
			pattern: RecurrencePattern{Frequency: FrequencyDaily, Interval: 1},
			wantErr: ErrMissingStartDate,
		},
		{
			name: "date end without end date",
			pattern: RecurrencePattern{
				Frequency: FrequencyDaily, Interval: 1, StartDate: start, End: EndAtDate,
			},
			wantErr: ErrMissingEndDate,
		},
		{
			name: "count end without max",
			pattern: RecurrencePattern{
				Frequency: FrequencyDaily, Interval: 1, StartDate: start, End: EndAfterCount,
			},
			wantErr: ErrMissingMaxCount,
		},
		{
			name: "invalid timezone",
			pattern: RecurrencePattern{
				Frequency: FrequencyDaily, Interval: 1, StartDate: start,
				Timezone: "Mars/Olympus",
			},
			wantErr: ErrInvalidTimezone,
		},
		{
			name: "preferred time out of range",
			pattern: RecurrencePattern{
				Frequency: FrequencyDaily, Interval: 1, StartDate: start,
				PreferredHour: 24,
			},
			wantErr: ErrInvalidPreferredTime,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.pattern.Validate()

			if tc.wantErr == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestRecurrencePattern_IsExcluded(t *testing.T) {
	pattern := RecurrencePattern{
		ExcludedDates: []time.Time{
			time.Date(2026, 12, 25, 0, 0, 0, 0, time.UTC),
		},
	}

	// Time of day does not matter, only the calendar date.
	assert.True(t, pattern.IsExcluded(time.Date(2026, 12, 25, 9, 30, 0, 0, time.UTC)))
	assert.False(t, pattern.IsExcluded(time.Date(2026, 12, 26, 0, 0, 0, 0, time.UTC)))
}

func TestRecurringTask_Validate(t *testing.T) {
	task := RecurringTask{
		ProjectID: "p1",
		Pattern: RecurrencePattern{
			Frequency: FrequencyDaily, Interval: 1,
			StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		Template: TaskTemplate{Title: "Standup notes"},
	}
	require.NoError(t, task.Validate())

	noProject := task
	noProject.ProjectID = ""
	require.Error(t, noProject.Validate())

	noTitle := task
	noTitle.Template.Title = ""
	require.Error(t, noTitle.Validate())
}
