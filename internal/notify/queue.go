// Package notify delivers alarm lifecycle events to outbound endpoints.
// Delivery is best effort: a bounded queue, a bounded number of attempts and
// at most one request in flight.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/CarlEnstrom/Goodmornin/internal/model"
)

const (
	DefaultCapacity = 12
	DefaultTimeout  = 5 * time.Second
	MaxAttempts     = 3
)

// backoff is keyed by the number of failed attempts so far. The last entry
// is never used because a job is dropped at MaxAttempts.
var backoff = [...]time.Duration{time.Second, 3 * time.Second, 9 * time.Second}

// Poster performs one delivery and returns the response status.
type Poster interface {
	Post(ctx context.Context, url string, headers map[string]string, body []byte) (int, error)
}

type Job struct {
	ID          string
	URL         string
	Body        []byte
	Attempt     int
	NextAttempt time.Time
	AlarmID     uint32
	Event       model.Event
}

// Result describes the most recent delivery attempt.
type Result struct {
	HTTPStatus int    `json:"http_status"`
	Error      string `json:"error"`
	TsUnix     int64  `json:"ts_unix"`
}

type Options struct {
	Capacity int
	Timeout  time.Duration
	Now      func() time.Time
}

type attempt struct {
	id      string
	started time.Time
	done    chan Result
}

// Queue is driven by Step from a single goroutine. LastResult may be read
// from anywhere.
type Queue struct {
	poster Poster
	logger *zap.Logger
	opts   Options

	jobs     []Job
	inflight *attempt
	wg       sync.WaitGroup

	mu   sync.Mutex
	last Result
}

func NewQueue(poster Poster, logger *zap.Logger, opts Options) *Queue {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Queue{
		poster: poster,
		logger: logger,
		opts:   opts,
		jobs:   make([]Job, 0, opts.Capacity),
	}
}

// Enqueue serializes p and queues it for url. It returns false when the
// job was dropped because the queue is full or url is empty.
func (q *Queue) Enqueue(url string, p model.Payload) bool {
	if url == "" || len(q.jobs) >= q.opts.Capacity {
		return false
	}
	body, err := json.Marshal(p)
	if err != nil {
		q.logger.Error("Failed to encode notification", zap.Error(err))
		return false
	}
	q.jobs = append(q.jobs, Job{
		ID:          uuid.NewString(),
		URL:         url,
		Body:        body,
		NextAttempt: q.opts.Now(),
		AlarmID:     p.AlarmID,
		Event:       p.Event,
	})
	return true
}

func (q *Queue) Len() int { return len(q.jobs) }

// Pending returns a copy of the queued jobs in delivery order.
func (q *Queue) Pending() []Job {
	out := make([]Job, len(q.jobs))
	copy(out, q.jobs)
	return out
}

func (q *Queue) LastResult() Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.last
}

// Step reaps a finished attempt, then starts the next due job if nothing is
// in flight. It never waits on the network.
func (q *Queue) Step(ctx context.Context) {
	if q.inflight != nil {
		select {
		case res := <-q.inflight.done:
			q.reap(res)
		default:
			return
		}
	}

	now := q.opts.Now()
	for i := range q.jobs {
		if now.Before(q.jobs[i].NextAttempt) {
			continue
		}
		q.start(ctx, q.jobs[i], now)
		return
	}
}

func (q *Queue) start(ctx context.Context, j Job, now time.Time) {
	a := &attempt{id: j.ID, started: now, done: make(chan Result, 1)}
	q.inflight = a

	headers := map[string]string{
		"Content-Type":  "application/json",
		"X-Delivery-ID": j.ID,
	}
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, q.opts.Timeout)
		defer cancel()

		status, err := q.poster.Post(ctx, j.URL, headers, j.Body)
		res := Result{HTTPStatus: status, TsUnix: q.opts.Now().Unix()}
		switch {
		case err != nil:
			res.HTTPStatus = -1
			res.Error = "post_failed"
		case status < 200 || status >= 300:
			res.Error = fmt.Sprintf("http_%d", status)
		}
		a.done <- res
	}()
}

func (q *Queue) reap(res Result) {
	a := q.inflight
	q.inflight = nil

	q.mu.Lock()
	q.last = res
	q.mu.Unlock()

	i := q.find(a.id)
	if i < 0 {
		return
	}
	j := &q.jobs[i]
	if res.Error == "" {
		q.logger.Debug("Notification delivered",
			zap.String("delivery_id", j.ID),
			zap.String("event", string(j.Event)),
			zap.Int("status", res.HTTPStatus),
		)
		q.remove(i)
		return
	}

	j.Attempt++
	q.logger.Warn("Notification delivery failed",
		zap.String("delivery_id", j.ID),
		zap.Uint32("alarm_id", j.AlarmID),
		zap.String("event", string(j.Event)),
		zap.Int("attempt", j.Attempt),
		zap.String("error", res.Error),
	)
	if j.Attempt >= MaxAttempts {
		q.remove(i)
		return
	}
	j.NextAttempt = a.started.Add(backoff[j.Attempt-1])
}

func (q *Queue) find(id string) int {
	for i := range q.jobs {
		if q.jobs[i].ID == id {
			return i
		}
	}
	return -1
}

func (q *Queue) remove(i int) {
	q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
}

// WaitIdle blocks until the in-flight attempt, if any, has finished. The
// result is still only applied by the next Step.
func (q *Queue) WaitIdle() { q.wg.Wait() }
