// Package scheduler runs the platform's recurring maintenance jobs. Jobs
// are registered with a recurrence rule (daily or weekly at a wall-clock
// slot); the scheduler computes and tracks each job's next occurrence
// explicitly, so the admin API can always answer "when does this run next"
// without inspecting timer internals.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/urtica-dioica/tito-sub002/internal/config"
)

// Rule is a recurrence rule: daily or weekly at a wall-clock slot in the
// server's location.
type Rule struct {
	// Weekday restricts the rule to one day of the week; nil means daily.
	Weekday *time.Weekday
	// Slot is the wall-clock time the rule fires at.
	Slot config.DaySlot
}

// Daily returns a rule firing every day at the given slot.
func Daily(slot config.DaySlot) Rule {
	return Rule{Slot: slot}
}

// Weekly returns a rule firing once a week at the given slot.
func Weekly(weekday time.Weekday, slot config.DaySlot) Rule {
	return Rule{Weekday: &weekday, Slot: slot}
}

// CronSpec renders the rule as a standard five-field cron expression.
func (r Rule) CronSpec() string {
	if r.Weekday != nil {
		return fmt.Sprintf("%d %d * * %d", r.Slot.Minute, r.Slot.Hour, int(*r.Weekday))
	}
	return fmt.Sprintf("%d %d * * *", r.Slot.Minute, r.Slot.Hour)
}

// String renders the rule for status reports and logs.
func (r Rule) String() string {
	if r.Weekday != nil {
		return fmt.Sprintf("weekly on %s at %s", r.Weekday, r.Slot)
	}
	return "daily at " + r.Slot.String()
}

// NextOccurrence computes the first firing time strictly after now. It is
// a pure function of the rule and the passed clock so the schedule math is
// testable without waiting for timers: a run that fires exactly at its
// slot reschedules to the following day (or week), never to itself.
func (r Rule) NextOccurrence(now time.Time) time.Time {
	schedule, err := cron.ParseStandard(r.CronSpec())
	if err != nil {
		// Rules are built from validated config slots, so the spec is
		// always parseable; a zero time flags the impossible case.
		return time.Time{}
	}
	return schedule.Next(now)
}
