package scheduling

import (
	"github.com/wolfman30/salon-scheduler/internal/appointments"
	"github.com/wolfman30/salon-scheduler/internal/calendar"
)

// OccurrenceDate returns the i-th date after anchor for the cadence. Monthly
// cadences count calendar months from the anchor and clamp to the month's
// last day, so a Jan 31 anchor lands on Feb 28/29 and then Mar 31.
func OccurrenceDate(anchor calendar.Date, freq appointments.Frequency, i int) calendar.Date {
	if freq == appointments.FrequencyMonthly {
		return anchor.AddMonthsClamped(i)
	}
	return anchor.AddDays(freq.CadenceDays() * i)
}

// OccurrenceDates lists the generated dates for indices 1..Occurrences-1.
func OccurrenceDates(anchor calendar.Date, rule appointments.RecurrenceRule) []calendar.Date {
	if rule.Occurrences < 2 {
		return nil
	}
	out := make([]calendar.Date, 0, rule.Occurrences-1)
	for i := 1; i < rule.Occurrences; i++ {
		out = append(out, OccurrenceDate(anchor, rule.Frequency, i))
	}
	return out
}
