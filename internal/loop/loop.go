// Package loop runs every group mutation on a single goroutine.
package loop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStopped is returned when work is submitted after the loop exited.
var ErrStopped = errors.New("loop stopped")

// Loop executes posted functions one at a time, in order, on the goroutine
// running Run.
type Loop struct {
	tasks  chan func()
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// New creates a loop with the given queue size.
func New(queue int, logger *slog.Logger) *Loop {
	if queue <= 0 {
		queue = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		tasks:  make(chan func(), queue),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Run processes tasks until ctx is cancelled. Blocks.
func (l *Loop) Run(ctx context.Context) {
	defer l.once.Do(func() { close(l.done) })

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.tasks:
			l.run(fn)
		}
	}
}

func (l *Loop) run(fn func()) {
	// Recover from panics to prevent crashing the daemon
	defer func() {
		if err := recover(); err != nil {
			l.logger.Error("loop task panic recovered", "error", err)
		}
	}()
	fn()
}

// Post queues fn. It returns false when the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Call runs fn on the loop and waits for its result. Must not be called from
// the loop goroutine itself.
func (l *Loop) Call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	if !l.Post(func() { result <- fn() }) {
		return ErrStopped
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}

// Every posts fn every interval until the returned stop function is called.
// Once stop returns on the loop goroutine, fn never runs again, even if a
// tick was already queued.
func (l *Loop) Every(interval time.Duration, fn func()) (stop func()) {
	var stopped atomic.Bool
	quit := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-l.done:
				return
			case <-ticker.C:
				l.Post(func() {
					if !stopped.Load() {
						fn()
					}
				})
			}
		}
	}()

	return func() {
		stopped.Store(true)
		once.Do(func() { close(quit) })
	}
}

// After posts fn once after d unless cancelled first.
func (l *Loop) After(d time.Duration, fn func()) (cancel func()) {
	var cancelled atomic.Bool
	timer := time.AfterFunc(d, func() {
		l.Post(func() {
			if !cancelled.Load() {
				fn()
			}
		})
	})
	return func() {
		cancelled.Store(true)
		timer.Stop()
	}
}
