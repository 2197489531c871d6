// Package query derives filtered, searched and sorted views over full
// in-memory collection snapshots. Every function here is pure: inputs are
// never mutated and equal keys keep their snapshot order.
package query

import (
	"cmp"
	"slices"
	"strings"

	"tapntrack/internal/access"
	"tapntrack/internal/model"
)

// LogSort selects the ordering of a log view.
type LogSort string

const (
	SortTimeInDesc      LogSort = "timeIn_desc"
	SortTimeInAsc       LogSort = "timeIn_asc"
	SortStudentNameAsc  LogSort = "studentName_asc"
	SortStudentNameDesc LogSort = "studentName_desc"
	SortStatus          LogSort = "status"
	SortTimeOutDesc     LogSort = "timeOut_desc"
)

// ParseLogSort accepts the canonical names plus the short legacy ones.
// Anything else falls back to newest first.
func ParseLogSort(s string) LogSort {
	switch LogSort(s) {
	case SortTimeInDesc, SortTimeInAsc, SortStudentNameAsc, SortStudentNameDesc, SortStatus, SortTimeOutDesc:
		return LogSort(s)
	}
	switch s {
	case "studentName":
		return SortStudentNameAsc
	case "timeOut":
		return SortTimeOutDesc
	}
	return SortTimeInDesc
}

// LogFilter holds the log view parameters. Zero values disable a filter.
type LogFilter struct {
	Search    string
	Status    model.Status
	TeacherID string
	Date      string
	StartDate string
	EndDate   string
	SortBy    LogSort
}

// Logs applies, in order: date, date range, search, status, teacher, the
// caller's visibility scope, then the sort.
func Logs(all []model.Track, f LogFilter, caller access.Caller) []model.Track {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	scope := access.TrackScope(caller)

	out := make([]model.Track, 0, len(all))
	for _, t := range all {
		if f.Date != "" && t.Date != f.Date {
			continue
		}
		if f.StartDate != "" && t.Date < f.StartDate {
			continue
		}
		if f.EndDate != "" && t.Date > f.EndDate {
			continue
		}
		if search != "" && !matchesTrack(t, search) {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.TeacherID != "" && t.TeacherID != f.TeacherID {
			continue
		}
		if !scope(t) {
			continue
		}
		out = append(out, t)
	}

	slices.SortStableFunc(out, logComparator(ParseLogSort(string(f.SortBy))))
	return out
}

func matchesTrack(t model.Track, needle string) bool {
	return strings.Contains(strings.ToLower(t.StudentName), needle) ||
		strings.Contains(strings.ToLower(t.RFIDTag), needle) ||
		strings.Contains(strings.ToLower(t.Location), needle)
}

func logComparator(s LogSort) func(a, b model.Track) int {
	switch s {
	case SortTimeInAsc:
		return func(a, b model.Track) int { return cmp.Compare(a.TimeIn, b.TimeIn) }
	case SortStudentNameAsc:
		return func(a, b model.Track) int { return strings.Compare(a.StudentName, b.StudentName) }
	case SortStudentNameDesc:
		return func(a, b model.Track) int { return strings.Compare(b.StudentName, a.StudentName) }
	case SortStatus:
		return func(a, b model.Track) int { return strings.Compare(string(a.Status), string(b.Status)) }
	case SortTimeOutDesc:
		return func(a, b model.Track) int { return cmp.Compare(timeOutOrZero(b), timeOutOrZero(a)) }
	default:
		return func(a, b model.Track) int { return cmp.Compare(b.TimeIn, a.TimeIn) }
	}
}

func timeOutOrZero(t model.Track) int64 {
	if t.TimeOut == nil {
		return 0
	}
	return *t.TimeOut
}
