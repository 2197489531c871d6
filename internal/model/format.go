package model

import "time"

const (
	// DateLayout is the yyyy-MM-dd partition key format.
	DateLayout = "2006-01-02"

	timeLayout        = "03:04 PM"
	displayDateLayout = "Jan 02, 2006"
)

// DateOf returns the local calendar date of an epoch-ms instant.
func DateOf(epochMs int64) string {
	return time.UnixMilli(epochMs).In(time.Local).Format(DateLayout)
}

// Today returns the local calendar date.
func Today() string {
	return time.Now().Format(DateLayout)
}

// FormatTime renders an epoch-ms instant as "hh:mm AM/PM" local time.
func FormatTime(epochMs int64) string {
	return time.UnixMilli(epochMs).In(time.Local).Format(timeLayout)
}

// FormatDate renders a yyyy-MM-dd date as "Mon dd, yyyy". Unparseable input
// is returned unchanged.
func FormatDate(iso string) string {
	d, err := time.Parse(DateLayout, iso)
	if err != nil {
		return iso
	}
	return d.Format(displayDateLayout)
}

// NowMillis is the current time in epoch milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
