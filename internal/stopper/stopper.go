// Package stopper implements the single global stop flag described in
// the concurrency model: a cooperative-shutdown context that every
// worker loop can observe at its next yield point. There is no forcible
// goroutine kill; Stop waits (up to a timeout) for everything spawned
// with Go to return.
package stopper

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// A Context layers cooperative shutdown on top of a context.Context.
// Stopping() fires first, giving workers a chance to drain; Done() (the
// embedded context) is canceled some time later, as a backstop for
// workers that ignore Stopping().
type Context struct {
	context.Context

	cancel context.CancelFunc

	mu struct {
		sync.Mutex
		stopping chan struct{}
		stopped  bool
		firstErr error
	}

	wg sync.WaitGroup
}

// WithContext constructs a new stopper.Context as a child of parent.
func WithContext(parent context.Context) *Context {
	inner, cancel := context.WithCancel(parent)
	c := &Context{Context: inner, cancel: cancel}
	c.mu.stopping = make(chan struct{})
	return c
}

// Stopping returns a channel that is closed once Stop has been called.
// Workers should select on this alongside Done() and their own
// blocking operations.
func (c *Context) Stopping() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mu.stopping
}

// Go runs fn in a new goroutine tracked by this Context. If fn returns
// a non-nil error, it is recorded as the Context's first error; the
// caller may retrieve it via FirstErr. The return value
// mirrors errgroup's Go for callers that want to check it, but most
// callers in this codebase fire-and-forget, relying on Stopping()
// having been observed by fn.
func (c *Context) Go(fn func() error) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := fn(); err != nil {
			c.mu.Lock()
			if c.mu.firstErr == nil {
				c.mu.firstErr = err
			}
			c.mu.Unlock()
		}
	}()
	return nil
}

// Stop signals Stopping(), waits up to timeout for all goroutines
// started with Go to return, and then hard-cancels the underlying
// context regardless of whether they finished. It is safe to call
// more than once; only the first call has an effect.
func (c *Context) Stop(timeout time.Duration) {
	c.mu.Lock()
	if c.mu.stopped {
		c.mu.Unlock()
		return
	}
	c.mu.stopped = true
	close(c.mu.stopping)
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
	}
	c.cancel()
}

// FirstErr returns the first non-nil error returned by any goroutine
// started with Go, or nil if none failed.
func (c *Context) FirstErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mu.firstErr
}

// ErrStopping is returned by operations that discover the stop flag has
// been raised while they were waiting.
var ErrStopping = errors.New("stopper: shutting down")
