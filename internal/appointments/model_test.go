package appointments

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wolfman30/salon-scheduler/internal/calendar"
)

func TestRecurrenceRuleValidate(t *testing.T) {
	tests := []struct {
		name string
		rule RecurrenceRule
		ok   bool
	}{
		{"weekly", RecurrenceRule{Frequency: FrequencyWeekly, Occurrences: 4}, true},
		{"monthly max", RecurrenceRule{Frequency: FrequencyMonthly, Occurrences: MaxOccurrences}, true},
		{"unknown frequency", RecurrenceRule{Frequency: "fortnightly", Occurrences: 4}, false},
		{"single occurrence", RecurrenceRule{Frequency: FrequencyWeekly, Occurrences: 1}, false},
		{"too many", RecurrenceRule{Frequency: FrequencyWeekly, Occurrences: MaxOccurrences + 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidRecurrenceRule)
		})
	}
}

func TestCadenceDays(t *testing.T) {
	assert.Equal(t, 7, FrequencyWeekly.CadenceDays())
	assert.Equal(t, 14, FrequencyEvery2Weeks.CadenceDays())
	assert.Equal(t, 28, FrequencyEvery4Weeks.CadenceDays())
	assert.Equal(t, 42, FrequencyEvery6Weeks.CadenceDays())
	assert.Equal(t, 56, FrequencyEvery8Weeks.CadenceDays())
	assert.Equal(t, 0, FrequencyMonthly.CadenceDays())
	assert.True(t, FrequencyMonthly.Valid())
}

func TestValidateTimes(t *testing.T) {
	assert.NoError(t, ValidateTimes(calendar.NewClock(9, 0), calendar.NewClock(10, 0)))
	assert.NoError(t, ValidateTimes(calendar.NewClock(23, 0), calendar.Clock(calendar.MinutesPerDay)))
	assert.ErrorIs(t, ValidateTimes(calendar.NewClock(10, 0), calendar.NewClock(10, 0)), ErrInvalidTimeRange)
	assert.ErrorIs(t, ValidateTimes(calendar.NewClock(23, 0), calendar.Clock(calendar.MinutesPerDay+30)), ErrInvalidTimeRange)
}

func TestConflictErrorMatchesSentinel(t *testing.T) {
	with := Appointment{ClientName: "Dana", ServiceName: "Balayage", Date: calendar.NewDate(2025, time.March, 10), Start: calendar.NewClock(9, 0), End: calendar.NewClock(11, 0)}
	err := NewConflictError(with)
	assert.ErrorIs(t, err, ErrSchedulingConflict)
	assert.Contains(t, err.Error(), "Dana (Balayage, 2025-03-10 09:00-11:00)")

	var ce *ConflictError
	assert.True(t, errors.As(err, &ce))
	assert.False(t, IsRetryable(err))
	assert.True(t, IsRetryable(WrapStorage("op", errors.New("down"))))
}
