package notifications

import "time"

// holidayWindow bounds both the holiday lookup and the number of days a deadline may move.
const holidayWindow = 14

// NthWeekdayOfMonth returns the nth occurrence of weekday in the month, at midnight UTC.
func NthWeekdayOfMonth(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(weekday) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+7*(n-1))
}

func dateKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

// ShiftToNextWorkday moves date forward past weekends and the given holidays. It gives up
// after holidayWindow steps and returns wherever it stopped.
func ShiftToNextWorkday(date time.Time, holidays []time.Time) time.Time {
	off := make(map[string]struct{}, len(holidays))
	for _, h := range holidays {
		off[dateKey(h)] = struct{}{}
	}
	for i := 0; i < holidayWindow; i++ {
		_, holiday := off[dateKey(date)]
		if date.Weekday() != time.Saturday && date.Weekday() != time.Sunday && !holiday {
			break
		}
		date = date.AddDate(0, 0, 1)
	}
	return date
}

func sameDay(a, b time.Time) bool {
	return dateKey(a) == dateKey(b.In(a.Location()))
}
