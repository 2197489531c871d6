package query

import (
	"time"

	"tapntrack/internal/model"
)

// WeekRange returns the Monday..Sunday dates of the week containing now.
func WeekRange(now time.Time) (start, end string) {
	first := WeekStart(now)
	return first.Format(model.DateLayout), first.AddDate(0, 0, 6).Format(model.DateLayout)
}

// WeekStart is midnight on the Monday of now's week, in now's location.
func WeekStart(now time.Time) time.Time {
	offset := (int(now.Weekday()) + 6) % 7
	y, m, d := now.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, now.Location())
}

// MonthRange returns the first and last dates of now's month.
func MonthRange(now time.Time) (start, end string) {
	y, m, _ := now.Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
	last := first.AddDate(0, 1, -1)
	return first.Format(model.DateLayout), last.Format(model.DateLayout)
}
