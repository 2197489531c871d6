package model

import (
	"errors"
	"time"
)

// Status is the attendance outcome recorded on a track.
type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusLate    Status = "LATE"
	StatusAbsent  Status = "ABSENT"
	StatusHalfDay Status = "HALF_DAY"
)

// ParseStatus maps s onto a known status.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPresent, StatusLate, StatusAbsent, StatusHalfDay:
		return st, true
	}
	return "", false
}

// Attended reports whether the status counts towards the attendance rate.
func (s Status) Attended() bool {
	return s == StatusPresent || s == StatusLate
}

// ErrInvalidTimes is returned when a track would end before it started.
var ErrInvalidTimes = errors.New("time out precedes time in")

// Track is one tap-in/tap-out record in the tracks collection.
type Track struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	StudentName string `json:"studentName"`
	RFIDTag     string `json:"rfidTag"`
	TimeIn      int64  `json:"timeIn"`
	TimeOut     *int64 `json:"timeOut"`
	Date        string `json:"date"`
	Status      Status `json:"status"`
	TeacherID   string `json:"teacherId"`
	Location    string `json:"location"`
	Remarks     string `json:"remarks"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// TrackFromDocument decodes a stored track, accepting the legacy
// studentId/timestamp shape. It never fails.
func TrackFromDocument(doc Document) Track {
	status, ok := ParseStatus(doc.String("status", ""))
	if !ok {
		status = StatusPresent
	}

	userID := doc.String("userId", "")
	if userID == "" {
		userID = doc.String("studentId", "")
	}

	timeIn := doc.Int64("timeIn", 0)
	if !doc.Has("timeIn") {
		timeIn = doc.Int64("timestamp", 0)
	}

	date := doc.String("date", "")
	if date == "" {
		if timeIn > 0 {
			date = DateOf(timeIn)
		} else {
			date = Today()
		}
	}

	return Track{
		ID:          doc.String("id", ""),
		UserID:      userID,
		StudentName: doc.String("studentName", ""),
		RFIDTag:     doc.String("rfidTag", ""),
		TimeIn:      timeIn,
		TimeOut:     doc.OptionalInt64("timeOut"),
		Date:        date,
		Status:      status,
		TeacherID:   doc.String("teacherId", ""),
		Location:    doc.String("location", ""),
		Remarks:     doc.String("remarks", ""),
		CreatedAt:   doc.Int64("createdAt", 0),
		UpdatedAt:   doc.Int64("updatedAt", 0),
	}
}

// Document encodes t in its canonical stored shape.
func (t Track) Document() Document {
	var timeOut any
	if t.TimeOut != nil {
		timeOut = *t.TimeOut
	}
	return Document{
		"id":          t.ID,
		"userId":      t.UserID,
		"studentName": t.StudentName,
		"rfidTag":     t.RFIDTag,
		"timeIn":      t.TimeIn,
		"timeOut":     timeOut,
		"date":        t.Date,
		"status":      string(t.Status),
		"teacherId":   t.TeacherID,
		"location":    t.Location,
		"remarks":     t.Remarks,
		"createdAt":   t.CreatedAt,
		"updatedAt":   t.UpdatedAt,
	}
}

// Validate checks the write-time invariants.
func (t Track) Validate() error {
	if t.TimeIn <= 0 {
		return Invalid("timeIn", "is required")
	}
	if t.TimeOut != nil && *t.TimeOut < t.TimeIn {
		return ErrInvalidTimes
	}
	return nil
}

// Normalize derives the date partition from TimeIn. Every write path calls
// it so a caller-supplied date is never trusted.
func (t *Track) Normalize() {
	if t.TimeIn > 0 {
		t.Date = DateOf(t.TimeIn)
	}
}

// InProgress reports whether the student has not tapped out yet.
func (t Track) InProgress() bool { return t.TimeOut == nil }

// Duration is timeOut - timeIn; ok is false while in progress.
func (t Track) Duration() (time.Duration, bool) {
	if t.TimeOut == nil {
		return 0, false
	}
	return time.Duration(*t.TimeOut-t.TimeIn) * time.Millisecond, true
}
