// Package worker runs the cooperative device loop. Everything that touches
// the alarm engine happens on the loop goroutine; other goroutines submit
// closures through Do.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/CarlEnstrom/Goodmornin/internal/alarm"
)

const DefaultInterval = 10 * time.Millisecond

var ErrStopped = errors.New("worker stopped")

type Poller interface{ Tick() }

type Refiller interface{ Refill() }

type Stepper interface{ Step(ctx context.Context) }

type Worker struct {
	engine   *alarm.Engine
	button   Poller
	player   Refiller
	queue    Stepper
	interval time.Duration
	logger   *zap.Logger

	cmds chan func(context.Context)
	done chan struct{}
}

func New(engine *alarm.Engine, button Poller, player Refiller, queue Stepper, interval time.Duration, logger *zap.Logger) *Worker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Worker{
		engine:   engine,
		button:   button,
		player:   player,
		queue:    queue,
		interval: interval,
		logger:   logger,
		cmds:     make(chan func(context.Context)),
		done:     make(chan struct{}),
	}
}

// Step runs one loop iteration: input, schedule, audio refill, outbound
// delivery.
func (w *Worker) Step(ctx context.Context) {
	if w.button != nil {
		w.button.Tick()
	}
	w.engine.Tick(ctx)
	if w.player != nil {
		w.player.Refill()
	}
	if w.queue != nil {
		w.queue.Step(ctx)
	}
}

// Do runs fn on the loop goroutine and waits for it to finish.
func (w *Worker) Do(ctx context.Context, fn func(ctx context.Context, e *alarm.Engine)) error {
	finished := make(chan struct{})
	cmd := func(loopCtx context.Context) {
		defer close(finished)
		fn(loopCtx, w.engine)
	}

	select {
	case w.cmds <- cmd:
	case <-w.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// Start blocks until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Worker started", zap.Duration("interval", w.interval))
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker stopped")
			return
		case cmd := <-w.cmds:
			cmd(ctx)
		case <-ticker.C:
			w.Step(ctx)
		}
	}
}
