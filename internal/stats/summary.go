// Package stats computes attendance aggregates from track history.
package stats

import (
	"cmp"
	"slices"
	"time"

	"tapntrack/internal/model"
)

// Summary is a user's attendance aggregate.
type Summary struct {
	UserID          string  `json:"userId"`
	TotalAttendance int     `json:"totalAttendance"`
	AttendanceRate  float64 `json:"attendanceRate"`
	LastSeen        int64   `json:"lastSeen"`
}

// Summarize aggregates the tracks belonging to userID. A user without
// tracks has a rate of exactly 0.
func Summarize(userID string, tracks []model.Track) Summary {
	s := Summary{UserID: userID}
	attended := 0
	for _, t := range tracks {
		if t.UserID != userID {
			continue
		}
		s.TotalAttendance++
		if t.Status.Attended() {
			attended++
		}
		if t.TimeIn > s.LastSeen {
			s.LastSeen = t.TimeIn
		}
	}
	if s.TotalAttendance > 0 {
		s.AttendanceRate = float64(attended) / float64(s.TotalAttendance) * 100.0
	}
	return s
}

// DayCounts is the attendance picture for a single date.
type DayCounts struct {
	Date          string `json:"date"`
	Present       int    `json:"present"`
	Late          int    `json:"late"`
	Absent        int    `json:"absent"`
	TotalStudents int    `json:"totalStudents"`
}

// Today counts statuses among tracks dated today and the distinct students
// seen, keyed by RFID tag or by name when the tag is empty.
func Today(tracks []model.Track, today string) DayCounts {
	d := DayCounts{Date: today}
	seen := make(map[string]struct{})
	for _, t := range tracks {
		if t.Date != today {
			continue
		}
		key := t.RFIDTag
		if key == "" {
			key = t.StudentName
		}
		seen[key] = struct{}{}
		switch t.Status {
		case model.StatusPresent:
			d.Present++
		case model.StatusLate:
			d.Late++
		case model.StatusAbsent:
			d.Absent++
		}
	}
	d.TotalStudents = len(seen)
	return d
}

// StatusCounts summarises a log view.
type StatusCounts struct {
	Present int `json:"present"`
	Late    int `json:"late"`
	Absent  int `json:"absent"`
	HalfDay int `json:"halfDay"`
}

// Counts tallies statuses over tracks.
func Counts(tracks []model.Track) StatusCounts {
	var c StatusCounts
	for _, t := range tracks {
		switch t.Status {
		case model.StatusPresent:
			c.Present++
		case model.StatusLate:
			c.Late++
		case model.StatusAbsent:
			c.Absent++
		case model.StatusHalfDay:
			c.HalfDay++
		}
	}
	return c
}

// Quick holds the dashboard headline numbers.
type Quick struct {
	ActiveStudents int `json:"activeStudents"`
	ActiveTeachers int `json:"activeTeachers"`
	LogsThisWeek   int `json:"logsThisWeek"`
}

// QuickStats counts active students and teachers, and tracks tapped in
// since weekStart.
func QuickStats(users []model.User, tracks []model.Track, weekStart time.Time) Quick {
	var q Quick
	for _, u := range users {
		if !u.IsActive {
			continue
		}
		switch u.Role {
		case model.RoleStudent:
			q.ActiveStudents++
		case model.RoleTeacher:
			q.ActiveTeachers++
		}
	}
	since := weekStart.UnixMilli()
	for _, t := range tracks {
		if t.TimeIn >= since {
			q.LogsThisWeek++
		}
	}
	return q
}

// Recent returns up to n tracks, latest timeIn first.
func Recent(tracks []model.Track, n int) []model.Track {
	out := slices.Clone(tracks)
	slices.SortStableFunc(out, func(a, b model.Track) int { return cmp.Compare(b.TimeIn, a.TimeIn) })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
