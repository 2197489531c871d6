package stats

import (
	"context"
	"log"
	"time"

	"tapntrack/internal/metrics"
	"tapntrack/internal/model"
)

// TrackFinder loads a user's track history.
type TrackFinder interface {
	TracksByUser(ctx context.Context, userID string) ([]model.Track, error)
}

// RateWriter caches a computed attendance rate on the user record.
type RateWriter interface {
	SetAttendanceRate(ctx context.Context, userID string, rate float64) error
}

// Engine computes per-user statistics and refreshes the cached rate.
type Engine struct {
	tracks       TrackFinder
	rates        RateWriter
	writeTimeout time.Duration
}

// NewEngine builds an engine. writeTimeout bounds the cache write-back.
func NewEngine(tracks TrackFinder, rates RateWriter, writeTimeout time.Duration) *Engine {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Engine{tracks: tracks, rates: rates, writeTimeout: writeTimeout}
}

// CalculateStatistics summarises userID's tracks. When the user has any
// tracks the rate is written back to the user record; that write is a
// cache refresh and its failure is logged, not returned.
func (e *Engine) CalculateStatistics(ctx context.Context, userID string) (Summary, error) {
	tracks, err := e.tracks.TracksByUser(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	s := Summarize(userID, tracks)
	e.Refresh(ctx, s)
	return s, nil
}

// Refresh writes an already computed summary's rate back to the user
// record. Summaries with no tracks are left alone.
func (e *Engine) Refresh(ctx context.Context, s Summary) {
	if s.TotalAttendance == 0 {
		return
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.writeTimeout)
	defer cancel()
	if err := e.rates.SetAttendanceRate(wctx, s.UserID, s.AttendanceRate); err != nil {
		log.Printf("attendance rate refresh for %s failed: %v", s.UserID, err)
		metrics.RateRefreshTotal.WithLabelValues("error").Inc()
		return
	}
	metrics.RateRefreshTotal.WithLabelValues("ok").Inc()
}
