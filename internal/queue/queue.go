// Package queue carries background work from the API to the worker.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"tapntrack/internal/metrics"
)

// TypeStatsRefresh asks the worker to recompute a user's attendance rate.
const TypeStatsRefresh = "stats.refresh"

// Message represents work to be processed.
type Message struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body,omitempty"`
}

// StatsRefresh is the body of a TypeStatsRefresh message.
type StatsRefresh struct {
	UserID string `json:"userId"`
}

// NewStatsRefresh builds a refresh message for userID.
func NewStatsRefresh(userID string) Message {
	body, _ := json.Marshal(StatsRefresh{UserID: userID})
	return Message{Type: TypeStatsRefresh, Body: body}
}

// Decode unmarshals the message body into v.
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Body, v); err != nil {
		return fmt.Errorf("decode %s body: %w", m.Type, err)
	}
	return nil
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context) (<-chan Message, error)
}

// InMemory is a minimal channel-backed queue for dev/testing.
type InMemory struct {
	ch chan Message
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Message, size)}
}

// ErrFull is returned when an in-memory queue has no room left.
var ErrFull = errors.New("queue: buffer full")

// Publish enqueues a message without waiting. A full buffer drops the
// message and returns ErrFull.
func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.ch <- msg:
		metrics.QueueMessagesTotal.WithLabelValues("published", msg.Type).Inc()
		return nil
	default:
		metrics.QueueMessagesTotal.WithLabelValues("dropped", msg.Type).Inc()
		return ErrFull
	}
}

// Consume returns a channel for workers.
func (q *InMemory) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-q.ch:
				metrics.QueueMessagesTotal.WithLabelValues("consumed", msg.Type).Inc()
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue implements a simple Redis list-backed queue.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "tapntrack:queue"
	}
	return &RedisQueue{client: client, key: key}
}

// Publish enqueues a message.
func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, raw).Err(); err != nil {
		return err
	}
	metrics.QueueMessagesTotal.WithLabelValues("published", msg.Type).Inc()
	return nil
}

// Consume streams messages using BRPOP.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !errors.Is(err, redis.Nil) {
					log.Printf("queue: brpop %s: %v", q.key, err)
					time.Sleep(time.Second)
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			var msg Message
			if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
				log.Printf("queue: dropping malformed message: %v", err)
				continue
			}
			metrics.QueueMessagesTotal.WithLabelValues("consumed", msg.Type).Inc()
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
