package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DaySlot is a wall-clock time-of-day in the server's location.
type DaySlot struct {
	Hour   int
	Minute int
}

// String renders the slot as zero-padded "HH:MM".
func (s DaySlot) String() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

// ParseDailySlot parses a "HH:MM" wall-clock slot.
func ParseDailySlot(value string) (DaySlot, error) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 {
		return DaySlot{}, fmt.Errorf("slot %q must be in HH:MM form", value)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return DaySlot{}, fmt.Errorf("slot %q has an invalid hour", value)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return DaySlot{}, fmt.Errorf("slot %q has an invalid minute", value)
	}

	return DaySlot{Hour: hour, Minute: minute}, nil
}

// weekdays maps accepted weekday names to time.Weekday values.
var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeeklySlot parses a "Weekday HH:MM" wall-clock slot
// (e.g. "Sunday 03:30").
func ParseWeeklySlot(value string) (time.Weekday, DaySlot, error) {
	fields := strings.Fields(strings.TrimSpace(value))
	if len(fields) != 2 {
		return 0, DaySlot{}, fmt.Errorf("slot %q must be in \"Weekday HH:MM\" form", value)
	}

	weekday, ok := weekdays[strings.ToLower(fields[0])]
	if !ok {
		return 0, DaySlot{}, fmt.Errorf("slot %q has an unknown weekday", value)
	}

	slot, err := ParseDailySlot(fields[1])
	if err != nil {
		return 0, DaySlot{}, err
	}

	return weekday, slot, nil
}
