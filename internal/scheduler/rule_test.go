package scheduler_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/urtica-dioica/tito-sub002/internal/config"
	"github.com/urtica-dioica/tito-sub002/internal/scheduler"
)

func TestRuleCronSpec(t *testing.T) {
	daily := scheduler.Daily(config.DaySlot{Hour: 2, Minute: 0})
	assert.Equal(t, "0 2 * * *", daily.CronSpec())
	assert.Equal(t, "daily at 02:00", daily.String())

	weekly := scheduler.Weekly(time.Sunday, config.DaySlot{Hour: 3, Minute: 30})
	assert.Equal(t, "30 3 * * 0", weekly.CronSpec())
	assert.Equal(t, "weekly on Sunday at 03:30", weekly.String())
}

func TestNextOccurrence(t *testing.T) {
	// Wednesday, 2026-08-26.
	wednesdayNoon := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		rule scheduler.Rule
		now  time.Time
		want time.Time
	}{
		{
			name: "daily_slot_still_ahead_today",
			rule: scheduler.Daily(config.DaySlot{Hour: 14, Minute: 30}),
			now:  wednesdayNoon,
			want: time.Date(2026, 8, 26, 14, 30, 0, 0, time.UTC),
		},
		{
			name: "daily_slot_already_passed_today",
			rule: scheduler.Daily(config.DaySlot{Hour: 2, Minute: 0}),
			now:  wednesdayNoon,
			want: time.Date(2026, 8, 27, 2, 0, 0, 0, time.UTC),
		},
		{
			name: "daily_firing_exactly_at_slot_schedules_tomorrow",
			rule: scheduler.Daily(config.DaySlot{Hour: 12, Minute: 0}),
			now:  wednesdayNoon,
			want: time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "weekly_slot_later_this_week",
			rule: scheduler.Weekly(time.Friday, config.DaySlot{Hour: 9, Minute: 15}),
			now:  wednesdayNoon,
			want: time.Date(2026, 8, 28, 9, 15, 0, 0, time.UTC),
		},
		{
			name: "weekly_slot_earlier_this_week_wraps",
			rule: scheduler.Weekly(time.Monday, config.DaySlot{Hour: 9, Minute: 0}),
			now:  wednesdayNoon,
			want: time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "weekly_same_day_slot_passed_wraps_a_week",
			rule: scheduler.Weekly(time.Wednesday, config.DaySlot{Hour: 8, Minute: 0}),
			now:  wednesdayNoon,
			want: time.Date(2026, 9, 2, 8, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rule.NextOccurrence(tt.now))
		})
	}
}

func TestNextOccurrenceIsStrictlyInTheFuture(t *testing.T) {
	rule := scheduler.Daily(config.DaySlot{Hour: 0, Minute: 0})
	now := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)

	next := rule.NextOccurrence(now)
	assert.True(t, next.After(now))
}
