package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// errCallPanicked wraps the value recovered from a panicking shared call.
var errCallPanicked = errors.New("coalesced call panicked")

// call is one in-flight execution shared by every caller of the same key.
type call[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// requestCoalescer collapses concurrent requests for one key into a single
// execution of fn. Waiters give up after timeout or when their own context
// ends; the shared execution keeps running for the others.
type requestCoalescer[T any] struct {
	mu       sync.Mutex
	inFlight map[string]*call[T]
	timeout  time.Duration
}

func newRequestCoalescer[T any](timeout time.Duration) *requestCoalescer[T] {
	return &requestCoalescer[T]{
		inFlight: make(map[string]*call[T]),
		timeout:  timeout,
	}
}

// Do returns the result of the in-flight call for key, starting one if none
// exists. shared is true when the caller joined an existing call.
func (rc *requestCoalescer[T]) Do(ctx context.Context, key string, fn func(ctx context.Context) (T, error)) (result T, shared bool, err error) {
	rc.mu.Lock()
	c, shared := rc.inFlight[key]
	if !shared {
		c = &call[T]{done: make(chan struct{})}
		rc.inFlight[key] = c
		// Detached from the first caller so its cancellation does not fail the others.
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rc.timeout)
		go func() {
			defer cancel()
			defer func() {
				// No handler's recover middleware sees this goroutine.
				if r := recover(); r != nil {
					var zero T
					c.result, c.err = zero, fmt.Errorf("%w: %v", errCallPanicked, r)
				}
				rc.mu.Lock()
				delete(rc.inFlight, key)
				rc.mu.Unlock()
				close(c.done)
			}()
			c.result, c.err = fn(runCtx)
		}()
	}
	rc.mu.Unlock()

	timer := time.NewTimer(rc.timeout)
	defer timer.Stop()
	select {
	case <-c.done:
		return c.result, shared, c.err
	case <-ctx.Done():
		var zero T
		return zero, shared, ctx.Err()
	case <-timer.C:
		var zero T
		return zero, shared, context.DeadlineExceeded
	}
}
