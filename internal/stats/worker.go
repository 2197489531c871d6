package stats

import (
	"context"
	"log"

	"tapntrack/internal/queue"
)

// Consumer is the receiving side of a queue.
type Consumer interface {
	Consume(ctx context.Context) (<-chan queue.Message, error)
}

// Work recomputes statistics for every stats refresh message on q until
// ctx is cancelled or q stops delivering.
func (e *Engine) Work(ctx context.Context, q Consumer) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range messages {
		e.handle(ctx, msg)
	}
	return nil
}

func (e *Engine) handle(ctx context.Context, msg queue.Message) {
	if msg.Type != queue.TypeStatsRefresh {
		log.Printf("worker: skipping message type %q", msg.Type)
		return
	}
	var body queue.StatsRefresh
	if err := msg.Decode(&body); err != nil || body.UserID == "" {
		log.Printf("worker: bad stats refresh payload %q: %v", msg.Body, err)
		return
	}
	s, err := e.CalculateStatistics(ctx, body.UserID)
	if err != nil {
		log.Printf("worker: stats for %s failed: %v", body.UserID, err)
		return
	}
	log.Printf("worker: %s has %d records, rate %.1f%%", s.UserID, s.TotalAttendance, s.AttendanceRate)
}
