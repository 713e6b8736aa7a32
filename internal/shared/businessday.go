package shared

import "time"

// DefaultBusinessDayCutoffHour is the hour at which a new business day
// starts. Activity before the cutoff belongs to the previous day's drawer.
const DefaultBusinessDayCutoffHour = 4

// BusinessDay resolves the accounting date for an instant. The day rolls
// over at an early-morning cutoff rather than midnight, so a sale at 1 AM
// still lands on the prior day's register.
func BusinessDay(t time.Time, cutoffHour int) time.Time {
	// Zero is a valid cutoff: the day rolls over exactly at midnight.
	if cutoffHour < 0 || cutoffHour > 12 {
		cutoffHour = DefaultBusinessDayCutoffHour
	}
	if t.Hour() < cutoffHour {
		t = t.AddDate(0, 0, -1)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameBusinessDay reports whether two instants share an accounting date.
func SameBusinessDay(a, b time.Time, cutoffHour int) bool {
	return BusinessDay(a, cutoffHour).Equal(BusinessDay(b, cutoffHour))
}
