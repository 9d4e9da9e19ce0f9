// Package idle keeps one single-shot countdown per note key.
package idle

import (
	"log/slog"
	"sync"
	"time"

	"github.com/starford/notelock/internal/clock"
)

type entry struct {
	timer    *clock.Timer
	duration time.Duration
	deadline time.Time
	onExpire func()
}

// Registry owns the idle countdowns. Starting a timer for a key replaces
// any existing one, so at most one expiry per key is ever outstanding.
//
// Expiry callbacks are handed to the dispatcher rather than run on the
// clock's goroutine. When the dispatcher serializes them with the code
// calling Stop and Restart (the orchestrator loop does), a cancelled or
// replaced timer can never run its callback: the firing path checks that
// its entry is still the registered one.
type Registry struct {
	clock    clock.Clock
	dispatch func(func())
	logger   *slog.Logger

	mu     sync.Mutex
	timers map[string]*entry
}

// Option configures a Registry.
type Option func(*Registry)

// WithDispatch routes expiry callbacks through fn. The default runs them
// inline on the clock's goroutine.
func WithDispatch(fn func(func())) Option {
	return func(r *Registry) {
		r.dispatch = fn
	}
}

// WithLogger sets the logger used for timer lifecycle debug output.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// New creates an empty registry driven by c.
func New(c clock.Clock, opts ...Option) *Registry {
	r := &Registry{
		clock:    c,
		dispatch: func(f func()) { f() },
		logger:   slog.Default(),
		timers:   make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start cancels any timer for key and arms a new one that calls onExpire
// after d. A non-positive d means the countdown is disabled: the old timer
// is cancelled and nothing is armed.
func (r *Registry) Start(key string, d time.Duration, onExpire func()) {
	r.mu.Lock()
	r.stopLocked(key)
	if d <= 0 {
		r.mu.Unlock()
		return
	}
	r.armLocked(key, &entry{duration: d, onExpire: onExpire})
	r.mu.Unlock()

	r.logger.Debug("idle: timer started",
		slog.String("key", key),
		slog.Duration("duration", d))
}

// Restart re-arms the timer for key with its original duration and
// callback. It reports false, and schedules nothing, if no timer is armed.
func (r *Registry) Restart(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.timers[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	r.armLocked(key, &entry{duration: e.duration, onExpire: e.onExpire})
	return true
}

// Stop cancels the timer for key. It reports whether one was armed.
func (r *Registry) Stop(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	stopped := r.stopLocked(key)
	if stopped {
		r.logger.Debug("idle: timer stopped", slog.String("key", key))
	}
	return stopped
}

// ClearAll cancels every timer.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, e := range r.timers {
		e.timer.Stop()
		delete(r.timers, key)
	}
}

// Armed reports whether a timer is pending for key.
func (r *Registry) Armed(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[key]
	return ok
}

// Deadline returns when the timer for key will fire.
func (r *Registry) Deadline(key string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.timers[key]
	if !ok {
		return time.Time{}, false
	}
	return e.deadline, true
}

func (r *Registry) stopLocked(key string) bool {
	e, ok := r.timers[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(r.timers, key)
	return true
}

// armLocked registers e under key. d must be positive so the clock never
// calls back while r.mu is held.
func (r *Registry) armLocked(key string, e *entry) {
	e.deadline = r.clock.Now().Add(e.duration)
	r.timers[key] = e
	e.timer = r.clock.AfterFunc(e.duration, func() {
		r.dispatch(func() { r.fire(key, e) })
	})
}

func (r *Registry) fire(key string, e *entry) {
	r.mu.Lock()
	if r.timers[key] != e {
		r.mu.Unlock()
		return
	}
	delete(r.timers, key)
	r.mu.Unlock()

	r.logger.Debug("idle: timer expired", slog.String("key", key))
	e.onExpire()
}
