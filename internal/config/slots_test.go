package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urtica-dioica/tito-sub002/internal/config"
)

func TestParseDailySlot(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    config.DaySlot
		wantErr bool
	}{
		{"plain", "02:00", config.DaySlot{Hour: 2}, false},
		{"with_minutes", "23:59", config.DaySlot{Hour: 23, Minute: 59}, false},
		{"midnight", "00:00", config.DaySlot{}, false},
		{"surrounding_whitespace", "  14:30 ", config.DaySlot{Hour: 14, Minute: 30}, false},
		{"hour_out_of_range", "24:00", config.DaySlot{}, true},
		{"minute_out_of_range", "12:60", config.DaySlot{}, true},
		{"no_colon", "1200", config.DaySlot{}, true},
		{"garbage", "noon", config.DaySlot{}, true},
		{"empty", "", config.DaySlot{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slot, err := config.ParseDailySlot(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, slot)
		})
	}
}

func TestParseWeeklySlot(t *testing.T) {
	weekday, slot, err := config.ParseWeeklySlot("Sunday 03:30")
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, weekday)
	assert.Equal(t, config.DaySlot{Hour: 3, Minute: 30}, slot)

	// Weekday names are case-insensitive.
	weekday, _, err = config.ParseWeeklySlot("friday 18:00")
	require.NoError(t, err)
	assert.Equal(t, time.Friday, weekday)

	for _, bad := range []string{"Sunday", "Sunday 25:00", "Someday 03:30", "", "Sunday  "} {
		_, _, err = config.ParseWeeklySlot(bad)
		assert.Error(t, err, "expected %q to fail", bad)
	}
}

func TestDaySlotString(t *testing.T) {
	assert.Equal(t, "02:00", config.DaySlot{Hour: 2}.String())
	assert.Equal(t, "23:05", config.DaySlot{Hour: 23, Minute: 5}.String())
}
