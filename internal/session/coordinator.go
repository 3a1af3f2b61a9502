package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Coordinator owns the session's background goroutines. Tasks share one
// cancellable context; CancelAll plus a bounded Wait gives teardown a
// hard upper bound even when a task misbehaves.
type Coordinator struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *slog.Logger
}

func NewCoordinator(parent context.Context, log *slog.Logger) *Coordinator {
	ctx, cancel := context.WithCancel(parent)
	return &Coordinator{ctx: ctx, cancel: cancel, log: log}
}

// Go starts a named background task. A panicking task is logged and
// contained; it never takes the session down.
func (c *Coordinator) Go(name string, fn func(ctx context.Context)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				c.log.Error("background task panicked", "task", name, "panic", r)
			}
		}()
		fn(c.ctx)
	}()
}

// Context exposes the shared task context for deadline composition.
func (c *Coordinator) Context() context.Context { return c.ctx }

// CancelAll signals every task to stop. Idempotent.
func (c *Coordinator) CancelAll() { c.cancel() }

// Wait blocks until all tasks exit or the timeout passes. Returns false
// on timeout; callers proceed with teardown regardless.
func (c *Coordinator) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		c.log.Warn("background tasks did not stop in time", "timeout", timeout)
		return false
	}
}
