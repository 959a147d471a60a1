package keylock

import (
	"context"
	"strings"
	"sync"
	"time"
)

// DefaultTimeout bounds how long Acquire waits when Options.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// Options configures a Registry.
type Options struct {
	// Name labels metrics ("vote", "session").
	Name string
	// Timeout bounds every wait. Zero means DefaultTimeout.
	Timeout time.Duration
	// Metrics is optional.
	Metrics *Metrics
}

// Registry hands out exclusive holds on string keys.
// The zero value is not usable; use New.
type Registry struct {
	name    string
	timeout time.Duration
	metrics *Metrics

	mu   sync.Mutex
	held map[string]chan struct{}
}

// New returns an empty registry.
func New(opts Options) *Registry {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = "default"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{
		name:    name,
		timeout: timeout,
		metrics: opts.Metrics,
		held:    make(map[string]chan struct{}),
	}
}

// Timeout returns the configured wait bound.
func (r *Registry) Timeout() time.Duration { return r.timeout }

// Acquire blocks until key is free, then marks it held and returns its release func.
// Release is idempotent; only the first call frees the key.
//
// It returns *TimeoutError (errors.Is ErrTimeout) when the wait bound elapses, or
// ctx.Err() when ctx ends first.
func (r *Registry) Acquire(ctx context.Context, key string) (func(), error) {
	start := time.Now()
	var timer *time.Timer

	for {
		r.mu.Lock()
		wait, busy := r.held[key]
		if !busy {
			done := make(chan struct{})
			r.held[key] = done
			n := len(r.held)
			r.mu.Unlock()

			if timer != nil {
				timer.Stop()
			}
			r.metrics.observeWait(r.name, time.Since(start))
			r.metrics.setHeld(r.name, n)
			return r.releaser(key, done), nil
		}
		r.mu.Unlock()

		if timer == nil {
			timer = time.NewTimer(r.timeout)
		}

		select {
		case <-wait:
			// Freed; race the other waiters for it.
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
			waited := time.Since(start)
			r.metrics.timeout(r.name)
			r.metrics.observeWait(r.name, waited)
			return nil, &TimeoutError{Key: key, Waited: waited}
		}
	}
}

func (r *Registry) releaser(key string, done chan struct{}) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			// Only drop the entry this hold created.
			if r.held[key] == done {
				delete(r.held, key)
			}
			n := len(r.held)
			r.mu.Unlock()

			close(done)
			r.metrics.setHeld(r.name, n)
		})
	}
}

// Do runs fn while holding key. The key is released on every exit path, panics included.
func (r *Registry) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	release, err := r.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// Held reports whether key is currently held.
func (r *Registry) Held(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.held[key]
	return ok
}

// Len returns the number of held keys.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.held)
}
