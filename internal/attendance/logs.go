package attendance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tapntrack/internal/access"
	"tapntrack/internal/bulk"
	"tapntrack/internal/metrics"
	"tapntrack/internal/model"
	"tapntrack/internal/query"
	"tapntrack/internal/stats"
)

// Named log ranges accepted by ResolveRange.
const (
	RangeToday = "today"
	RangeWeek  = "week"
	RangeMonth = "month"
)

// ResolveRange fills the date filters of f for a named range relative to
// now. Unknown names leave f unchanged.
func ResolveRange(f query.LogFilter, name string, now time.Time) query.LogFilter {
	switch name {
	case RangeToday:
		f.Date, f.StartDate, f.EndDate = model.DateOf(now.UnixMilli()), "", ""
	case RangeWeek:
		f.Date = ""
		f.StartDate, f.EndDate = query.WeekRange(now)
	case RangeMonth:
		f.Date = ""
		f.StartDate, f.EndDate = query.MonthRange(now)
	}
	return f
}

// Now returns the service clock.
func (s *Service) Now() time.Time { return s.now() }

func observe(view string, start time.Time) {
	metrics.ViewDuration.WithLabelValues(view).Observe(time.Since(start).Seconds())
}

// ListLogs loads every track and derives the caller's view.
func (s *Service) ListLogs(ctx context.Context, caller access.Caller, f query.LogFilter) ([]model.Track, error) {
	defer observe("logs", time.Now())
	all, err := s.repo.ListTracks(ctx)
	if err != nil {
		return nil, err
	}
	return query.Logs(all, f, caller), nil
}

// LogSummary is the header of the logs screen.
type LogSummary struct {
	Total int `json:"total"`
	stats.StatusCounts
}

// SummarizeLogs counts statuses over the caller's filtered view.
func (s *Service) SummarizeLogs(ctx context.Context, caller access.Caller, f query.LogFilter) (LogSummary, error) {
	view, err := s.ListLogs(ctx, caller, f)
	if err != nil {
		return LogSummary{}, err
	}
	return LogSummary{Total: len(view), StatusCounts: stats.Counts(view)}, nil
}

// GetLog returns one track the caller may see.
func (s *Service) GetLog(ctx context.Context, caller access.Caller, id string) (model.Track, error) {
	t, err := s.repo.GetTrack(ctx, id)
	if err != nil {
		return model.Track{}, err
	}
	if !access.CanViewTrack(caller, t) {
		return model.Track{}, access.ErrForbidden
	}
	return t, nil
}

// LogPatch lists the editable track fields; nil leaves a field alone.
type LogPatch struct {
	TimeIn   *int64        `json:"timeIn"`
	TimeOut  *int64        `json:"timeOut"`
	Status   *model.Status `json:"status"`
	Location *string       `json:"location"`
	Remarks  *string       `json:"remarks"`
}

// UpdateLog applies p to a track. The date follows the new timeIn and
// timeOut may not precede it.
func (s *Service) UpdateLog(ctx context.Context, caller access.Caller, id string, p LogPatch) (model.Track, error) {
	t, err := s.repo.GetTrack(ctx, id)
	if err != nil {
		return model.Track{}, err
	}
	if !access.CanManageTrack(caller, t) {
		return model.Track{}, access.ErrForbidden
	}

	if p.TimeIn != nil {
		t.TimeIn = *p.TimeIn
	}
	if p.TimeOut != nil {
		out := *p.TimeOut
		t.TimeOut = &out
	}
	if p.Status != nil {
		st, ok := model.ParseStatus(string(*p.Status))
		if !ok {
			return model.Track{}, model.Invalid("status", "unknown status %q", *p.Status)
		}
		t.Status = st
	}
	if p.Location != nil {
		t.Location = *p.Location
	}
	if p.Remarks != nil {
		t.Remarks = *p.Remarks
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return model.Track{}, err
	}
	t.UpdatedAt = s.now().UnixMilli()

	doc := t.Document()
	fields := model.Document{
		"timeIn":    doc["timeIn"],
		"timeOut":   doc["timeOut"],
		"date":      doc["date"],
		"status":    doc["status"],
		"location":  doc["location"],
		"remarks":   doc["remarks"],
		"updatedAt": doc["updatedAt"],
	}
	if err := s.repo.UpdateTrack(ctx, id, fields); err != nil {
		return model.Track{}, err
	}
	s.publishRefresh(ctx, t.UserID)
	return t, nil
}

// DeleteLog removes one track.
func (s *Service) DeleteLog(ctx context.Context, caller access.Caller, id string) error {
	t, err := s.GetLog(ctx, caller, id)
	if err != nil {
		return err
	}
	if !access.CanManageTrack(caller, t) {
		return access.ErrForbidden
	}
	if err := s.repo.DeleteTrack(ctx, id); err != nil {
		return err
	}
	s.publishRefresh(ctx, t.UserID)
	return nil
}

// BulkResult is a bulk report plus the reloaded view when every item
// succeeded.
type BulkResult[T any] struct {
	bulk.Report
	View []T `json:"view,omitempty"`
}

// BulkDeleteLogs removes every listed track independently. The caller's
// view f is reloaded only when all deletions succeed.
func (s *Service) BulkDeleteLogs(ctx context.Context, caller access.Caller, ids []string, f query.LogFilter) BulkResult[model.Track] {
	var mu sync.Mutex
	affected := map[string]struct{}{}

	op := func(ctx context.Context, id string) error {
		t, err := s.repo.GetTrack(ctx, id)
		if err != nil {
			return err
		}
		if !access.CanManageTrack(caller, t) {
			return fmt.Errorf("track %s: %w", id, access.ErrForbidden)
		}
		if err := s.repo.DeleteTrack(ctx, id); err != nil {
			return err
		}
		mu.Lock()
		affected[t.UserID] = struct{}{}
		mu.Unlock()
		return nil
	}

	var res BulkResult[model.Track]
	res.Report = s.bulk.Run(ctx, "delete_logs", ids, op, func(ctx context.Context) {
		view, err := s.ListLogs(ctx, caller, f)
		if err != nil {
			return
		}
		res.View = view
	})
	for uid := range affected {
		s.publishRefresh(ctx, uid)
	}
	return res
}
