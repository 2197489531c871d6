// Package bulk fans a mutation out over many record ids and joins the
// per-item results. Items are independent: a failure never blocks or
// rolls back the others.
package bulk

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tapntrack/internal/metrics"
)

// Mutation applies one change to the record identified by id. A mutation
// still running at the item deadline is abandoned and reported as timed
// out; it should honour ctx so it stops soon after.
type Mutation func(ctx context.Context, id string) error

// Outcome is the resolved state of one item.
type Outcome string

const (
	Succeeded Outcome = "succeeded"
	Failed    Outcome = "failed"
	TimedOut  Outcome = "timed_out"
)

// ItemResult records what happened to one id.
type ItemResult struct {
	ID        string  `json:"id"`
	Outcome   Outcome `json:"outcome"`
	Error     string  `json:"error,omitempty"`
	Retryable bool    `json:"retryable"`

	err error
}

// Err returns the underlying error, nil on success.
func (r ItemResult) Err() error { return r.err }

// Report is the joined result of a bulk run, in the order ids were given.
type Report struct {
	Action    string       `json:"action"`
	Items     []ItemResult `json:"items"`
	Refreshed bool         `json:"refreshed"`
}

// Total is the number of items issued.
func (r Report) Total() int { return len(r.Items) }

// SucceededCount counts items that succeeded.
func (r Report) SucceededCount() int {
	n := 0
	for _, it := range r.Items {
		if it.Outcome == Succeeded {
			n++
		}
	}
	return n
}

// AllSucceeded reports whether every item succeeded. An empty run has
// nothing to report and is not considered a success.
func (r Report) AllSucceeded() bool {
	return len(r.Items) > 0 && r.SucceededCount() == len(r.Items)
}

// Failures returns the items that did not succeed.
func (r Report) Failures() []ItemResult {
	var out []ItemResult
	for _, it := range r.Items {
		if it.Outcome != Succeeded {
			out = append(out, it)
		}
	}
	return out
}

// RetryIDs lists ids whose failure is worth retrying.
func (r Report) RetryIDs() []string {
	var out []string
	for _, it := range r.Items {
		if it.Retryable {
			out = append(out, it.ID)
		}
	}
	return out
}

// Coordinator runs bulk mutations with bounded parallelism and a
// per-item timeout.
type Coordinator struct {
	Parallelism int
	ItemTimeout time.Duration
	// OnFailure is called as each item fails. Calls are serialized. New
	// sets it to LogFailure.
	OnFailure func(action string, r ItemResult)

	mu sync.Mutex
}

// New returns a coordinator. Non-positive values fall back to 8 workers
// and a 5s item timeout.
func New(parallelism int, itemTimeout time.Duration) *Coordinator {
	if parallelism <= 0 {
		parallelism = 8
	}
	if itemTimeout <= 0 {
		itemTimeout = 5 * time.Second
	}
	return &Coordinator{Parallelism: parallelism, ItemTimeout: itemTimeout, OnFailure: LogFailure}
}

// LogFailure writes one failed item to the standard logger.
func LogFailure(action string, r ItemResult) {
	log.Printf("bulk %s: %s %s: %v", action, r.ID, r.Outcome, r.err)
}

// Run issues op once per id and waits for all of them to resolve. refresh
// is called once afterwards, only when every item succeeded.
func (c *Coordinator) Run(ctx context.Context, action string, ids []string, op Mutation, refresh func(context.Context)) Report {
	rep := Report{Action: action, Items: make([]ItemResult, len(ids))}
	if len(ids) == 0 {
		return rep
	}

	var g errgroup.Group
	g.SetLimit(c.Parallelism)
	for i, id := range ids {
		g.Go(func() error {
			rep.Items[i] = c.runOne(ctx, action, id, op)
			return nil
		})
	}
	_ = g.Wait()

	if rep.AllSucceeded() && refresh != nil {
		refresh(ctx)
		rep.Refreshed = true
	}
	return rep
}

func (c *Coordinator) runOne(ctx context.Context, action, id string, op Mutation) ItemResult {
	ictx, cancel := context.WithTimeout(ctx, c.ItemTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- op(ictx, id) }()

	var err error
	select {
	case err = <-done:
	case <-ictx.Done():
		err = ictx.Err()
	}

	res := ItemResult{ID: id, Outcome: Succeeded}
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		res.Outcome, res.Retryable = TimedOut, true
	default:
		res.Outcome = Failed
	}
	if err != nil {
		res.err = err
		res.Error = err.Error()
		c.reportFailure(action, res)
	}
	metrics.BulkItemsTotal.WithLabelValues(action, string(res.Outcome)).Inc()
	return res
}

func (c *Coordinator) reportFailure(action string, res ItemResult) {
	if c.OnFailure == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.OnFailure(action, res)
}
