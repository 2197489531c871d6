// Package attendance serves the log, roster and tap use cases over the
// record store. Every call works on a fresh snapshot and scopes results to
// the calling user.
package attendance

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"tapntrack/internal/bulk"
	"tapntrack/internal/metrics"
	"tapntrack/internal/model"
	"tapntrack/internal/queue"
	"tapntrack/internal/stats"
)

var (
	// ErrUnknownTag is returned when no user carries the tapped card.
	ErrUnknownTag = errors.New("unknown rfid tag")
	// ErrInactive is returned when a deactivated user taps or signs in.
	ErrInactive = errors.New("account is inactive")
	// ErrInvalidTimes is returned when a track would end before it started.
	ErrInvalidTimes = model.ErrInvalidTimes
)

// Publisher is the part of a queue the service writes to.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Options tune a Service. Zero values get defaults.
type Options struct {
	// DedupWindow swallows repeated taps of the same card.
	DedupWindow time.Duration
	// LateAfter is the local "15:04" time after which a tap-in is LATE.
	LateAfter string
	Queue     Publisher
	Bulk      *bulk.Coordinator
	// RateWriteTimeout bounds the attendance rate write-back done by the
	// user detail view.
	RateWriteTimeout time.Duration
	Now              func() time.Time
}

// Service coordinates attendance reads, edits and taps.
type Service struct {
	repo        *Repository
	dedupWindow time.Duration
	lateAfter   time.Duration
	queue       Publisher
	bulk        *bulk.Coordinator
	stats       *stats.Engine
	now         func() time.Time
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository, opts Options) *Service {
	s := &Service{
		repo:        repo,
		dedupWindow: opts.DedupWindow,
		queue:       opts.Queue,
		bulk:        opts.Bulk,
		stats:       stats.NewEngine(repo, repo, opts.RateWriteTimeout),
		now:         opts.Now,
	}
	if s.dedupWindow <= 0 {
		s.dedupWindow = time.Minute
	}
	if s.bulk == nil {
		s.bulk = bulk.New(0, 0)
	}
	if s.now == nil {
		s.now = time.Now
	}
	late, err := time.Parse("15:04", opts.LateAfter)
	if err != nil {
		late, _ = time.Parse("15:04", "08:00")
	}
	s.lateAfter = time.Duration(late.Hour())*time.Hour + time.Duration(late.Minute())*time.Minute
	return s
}

// Repository returns the service's repository.
func (s *Service) Repository() *Repository { return s.repo }

// RegisterDevice validates and persists device metadata.
func (s *Service) RegisterDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return model.Invalid("deviceId", "is required")
	}
	return s.repo.UpsertDevice(ctx, deviceID)
}

// TapAction says what a tap did.
type TapAction string

const (
	TapIn        TapAction = "in"
	TapOut       TapAction = "out"
	TapDuplicate TapAction = "duplicate"
)

// TapResult is the track a tap created or closed.
type TapResult struct {
	Action TapAction   `json:"action"`
	Track  model.Track `json:"track"`
}

// Tap records a card read. The first tap of the day opens a track, the
// next closes it, and a tap within the dedup window of the previous one
// is ignored.
func (s *Service) Tap(ctx context.Context, tag, location string) (TapResult, error) {
	user, err := s.repo.UserByTag(ctx, tag)
	if err != nil {
		metrics.TapsTotal.WithLabelValues("rejected").Inc()
		return TapResult{}, err
	}
	if !user.IsActive {
		metrics.TapsTotal.WithLabelValues("rejected").Inc()
		return TapResult{}, ErrInactive
	}

	now := s.now()
	tracks, err := s.repo.TracksByUser(ctx, user.UID)
	if err != nil {
		return TapResult{}, err
	}
	latest, ok := latestOn(tracks, model.DateOf(now.UnixMilli()))

	since := now.Sub(lastEvent(latest))
	switch {
	case ok && since >= 0 && since < s.dedupWindow:
		metrics.TapsTotal.WithLabelValues(string(TapDuplicate)).Inc()
		return TapResult{Action: TapDuplicate, Track: latest}, nil
	case ok && latest.InProgress():
		out := now.UnixMilli()
		latest.TimeOut = &out
		latest.UpdatedAt = out
		if err := latest.Validate(); err != nil {
			metrics.TapsTotal.WithLabelValues("rejected").Inc()
			return TapResult{}, err
		}
		if err := s.repo.UpdateTrack(ctx, latest.ID, model.Document{"timeOut": out, "updatedAt": out}); err != nil {
			return TapResult{}, err
		}
		metrics.TapsTotal.WithLabelValues(string(TapOut)).Inc()
		s.publishRefresh(ctx, user.UID)
		return TapResult{Action: TapOut, Track: latest}, nil
	}

	t := model.Track{
		ID:          uuid.NewString(),
		UserID:      user.UID,
		StudentName: user.Name,
		RFIDTag:     user.RFIDTag,
		TimeIn:      now.UnixMilli(),
		Status:      s.statusAt(now),
		TeacherID:   user.TeacherOf(),
		Location:    location,
		CreatedAt:   now.UnixMilli(),
		UpdatedAt:   now.UnixMilli(),
	}
	t.Normalize()
	if err := s.repo.SaveTrack(ctx, t); err != nil {
		return TapResult{}, err
	}
	metrics.TapsTotal.WithLabelValues(string(TapIn)).Inc()
	s.publishRefresh(ctx, user.UID)
	return TapResult{Action: TapIn, Track: t}, nil
}

func (s *Service) statusAt(now time.Time) model.Status {
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	if now.Sub(midnight) > s.lateAfter {
		return model.StatusLate
	}
	return model.StatusPresent
}

func latestOn(tracks []model.Track, date string) (model.Track, bool) {
	var best model.Track
	found := false
	for _, t := range tracks {
		if t.Date != date {
			continue
		}
		if !found || t.TimeIn > best.TimeIn {
			best, found = t, true
		}
	}
	return best, found
}

func lastEvent(t model.Track) time.Time {
	ms := t.TimeIn
	if t.TimeOut != nil {
		ms = *t.TimeOut
	}
	return time.UnixMilli(ms)
}

// publishRefresh asks the worker to recompute uid's attendance rate. A
// failed publish leaves the cached rate stale until the next one.
func (s *Service) publishRefresh(ctx context.Context, uid string) {
	if s.queue == nil || uid == "" {
		return
	}
	if err := s.queue.Publish(ctx, queue.NewStatsRefresh(uid)); err != nil {
		log.Printf("queue publish stats refresh for %s failed: %v", uid, err)
	}
}
