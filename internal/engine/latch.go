package engine

import (
	"context"
	"sync"
)

// latch holds the two one-shot signals of a task: started and ended. Each
// signal is a channel closed exactly once, so a waiter that arrives after the
// transition returns immediately instead of missing a notification.
type latch struct {
	startOnce sync.Once
	endOnce   sync.Once
	started   chan struct{}
	ended     chan struct{}
}

func newLatch() latch {
	return latch{
		started: make(chan struct{}),
		ended:   make(chan struct{}),
	}
}

func (l *latch) signalStarted() {
	l.startOnce.Do(func() { close(l.started) })
}

// signalEnded also releases start waiters: a task withdrawn before it ran is
// past the point of starting.
func (l *latch) signalEnded() {
	l.signalStarted()
	l.endOnce.Do(func() { close(l.ended) })
}

func (l *latch) waitStarted(ctx context.Context) error {
	select {
	case <-l.started:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *latch) waitEnded(ctx context.Context) error {
	select {
	case <-l.ended:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *latch) isEnded() bool {
	select {
	case <-l.ended:
		return true
	default:
		return false
	}
}
