package agent

import (
	"context"
	"sync"
)

// Task is a background work unit with a cancellation token
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Go runs fn in a new goroutine. fn must return once ctx is cancelled.
func Go(parent context.Context, fn func(ctx context.Context) error) *Task {
	ctx, cancel := context.WithCancel(parent)
	t := &Task{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(t.done)
		err := fn(ctx)
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
	}()
	return t
}

// Done is closed when the task function has returned
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Running reports whether the task function is still executing
func (t *Task) Running() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Err returns the task result once it has finished
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Cancel signals the task and waits for it to drain. It returns ctx.Err()
// if ctx expires first; the task keeps its cancellation signal either way.
func (t *Task) Cancel(ctx context.Context) error {
	t.cancel()
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
