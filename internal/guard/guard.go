// Package guard runs the session-access state machine for protected notes.
//
// Concurrency model: a single goroutine owns the orchestration state (the
// previously active note, the just-granted set, the pending password
// challenge and the policy). Public methods post typed events to it and
// wait for the reply. Marker reads and writes and password checks run in
// helper goroutines and post their result back as another event; the loop
// re-checks its state before acting on them.
package guard

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/starford/notelock/internal/access"
	"github.com/starford/notelock/internal/apperr"
	"github.com/starford/notelock/internal/clock"
	"github.com/starford/notelock/internal/idle"
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("guard: closed")

// Guard decides on every open, close, idle tick and policy change whether
// a protected note stays unlocked.
type Guard struct {
	oracle   Oracle
	verifier Verifier
	host     Host
	tracker  *access.Tracker
	timers   *idle.Registry
	clock    clock.Clock
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	events  chan event
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool

	// loop-owned
	policy       Policy
	previous     string
	justGranted  map[string]struct{}
	openSeq      uint64
	challenge    string
	challengeSeq uint64
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock sets the time source for idle timers and the sweeper.
func WithClock(c clock.Clock) Option {
	return func(g *Guard) { g.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// WithPolicy sets the initial policy.
func WithPolicy(p Policy) Option {
	return func(g *Guard) { g.policy = p }
}

// New creates a Guard and starts its loop.
func New(oracle Oracle, verifier Verifier, host Host, opts ...Option) *Guard {
	g := &Guard{
		oracle:      oracle,
		verifier:    verifier,
		host:        host,
		tracker:     access.NewTracker(),
		clock:       clock.Real(),
		logger:      slog.Default(),
		events:      make(chan event, 64),
		stopCh:      make(chan struct{}),
		stopped:     make(chan struct{}),
		justGranted: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.ctx, g.cancel = context.WithCancel(context.Background())
	g.timers = idle.New(g.clock, idle.WithDispatch(g.dispatchTimer), idle.WithLogger(g.logger))

	go g.run()
	return g
}

func (g *Guard) run() {
	defer close(g.stopped)
	for {
		select {
		case <-g.stopCh:
			return
		case ev := <-g.events:
			g.handle(ev)
		}
	}
}

// Close stops the loop and forgets every unlock and timer.
func (g *Guard) Close() {
	if g.closed.CompareAndSwap(false, true) {
		close(g.stopCh)
	}
	<-g.stopped
	g.cancel()
	g.timers.ClearAll()
	g.tracker.ClearAll()
}

// Open signals that key is now the active note ("" for none). The views
// have already changed, so the signal is delivered even when ctx is done;
// ctx only bounds the wait for the outcome.
func (g *Guard) Open(ctx context.Context, key string) (Outcome, error) {
	reply := make(chan result, 1)
	if err := g.send(context.WithoutCancel(ctx), openEvent{key: key, reply: reply}); err != nil {
		return OutcomeNone, err
	}
	res, err := g.await(ctx, reply)
	return res.outcome, err
}

// Answer submits a password for the pending challenge on key.
func (g *Guard) Answer(ctx context.Context, key, candidate string) (Outcome, error) {
	return g.call(ctx, func(r chan result) event { return answerEvent{key: key, candidate: candidate, reply: r} })
}

// Cancel dismisses the pending challenge on key.
func (g *Guard) Cancel(ctx context.Context, key string) (Outcome, error) {
	return g.call(ctx, func(r chan result) event { return cancelEvent{key: key, reply: r} })
}

// Sweep revokes temporary access to notes no longer shown in any view. It
// reports how many notes were relocked.
func (g *Guard) Sweep(ctx context.Context) (int, error) {
	res, err := g.query(ctx, func(r chan result) event { return sweepEvent{reply: r} })
	return res.n, err
}

// RunSweeper calls Sweep every interval until ctx is done.
func (g *Guard) RunSweeper(ctx context.Context, interval time.Duration) error {
	t := g.clock.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-g.stopped:
			return nil
		case <-t.C:
			if n, err := g.Sweep(ctx); err != nil {
				if errors.Is(err, ErrClosed) {
					return nil
				}
			} else if n > 0 {
				g.logger.Debug("guard: sweep relocked notes", slog.Int("count", n))
			}
		}
	}
}

// Activity resets the idle countdown of the active note. It reports
// whether a countdown was running.
func (g *Guard) Activity(ctx context.Context) (bool, error) {
	res, err := g.query(ctx, func(r chan result) event { return activityEvent{reply: r} })
	return res.ok, err
}

// SetPolicy replaces the policy.
func (g *Guard) SetPolicy(ctx context.Context, p Policy) error {
	_, err := g.query(ctx, func(r chan result) event { return policyEvent{policy: p, reply: r} })
	return err
}

// Policy returns the current policy.
func (g *Guard) Policy(ctx context.Context) (Policy, error) {
	res, err := g.query(ctx, func(r chan result) event { return policyEvent{get: true, reply: r} })
	return res.policy, err
}

// Protect adds the marker to key and relocks it everywhere.
func (g *Guard) Protect(ctx context.Context, key string) error {
	_, err := g.query(ctx, func(r chan result) event { return protectEvent{key: key, reply: r} })
	return err
}

// Unprotect checks candidate and removes the marker from key for good.
func (g *Guard) Unprotect(ctx context.Context, key, candidate string) error {
	_, err := g.query(ctx, func(r chan result) event { return unprotectEvent{key: key, candidate: candidate, reply: r} })
	return err
}

// Status is a point-in-time view of one note's lock state.
type Status struct {
	Path      string     `json:"path"`
	Protected bool       `json:"protected"`
	Verified  bool       `json:"verified"`
	Temporary bool       `json:"temporary"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Status reads the lock state of key without going through the loop.
func (g *Guard) Status(key string) Status {
	s := Status{
		Path:      key,
		Protected: g.oracle.IsProtectedCached(key),
		Verified:  g.tracker.IsAccessedThisSession(key),
		Temporary: g.tracker.IsTemporaryAccess(key),
	}
	if d, ok := g.timers.Deadline(key); ok {
		s.ExpiresAt = &d
	}
	return s
}

// IsAccessedThisSession reports whether key was unlocked and not revoked.
func (g *Guard) IsAccessedThisSession(key string) bool {
	return g.tracker.IsAccessedThisSession(key)
}

// Unlocked lists notes currently in their temporary-access window.
func (g *Guard) Unlocked() []string {
	return g.tracker.ListTemporaryAccess()
}

func (g *Guard) call(ctx context.Context, mk func(chan result) event) (Outcome, error) {
	res, err := g.query(ctx, mk)
	if err != nil {
		return res.outcome, err
	}
	return res.outcome, res.err
}

func (g *Guard) query(ctx context.Context, mk func(chan result) event) (result, error) {
	reply := make(chan result, 1)
	if err := g.send(ctx, mk(reply)); err != nil {
		return result{}, err
	}
	return g.await(ctx, reply)
}

func (g *Guard) send(ctx context.Context, ev event) error {
	if g.closed.Load() {
		return ErrClosed
	}
	select {
	case g.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-g.stopped:
		return ErrClosed
	}
}

func (g *Guard) await(ctx context.Context, reply <-chan result) (result, error) {
	select {
	case res := <-reply:
		return res, res.err
	case <-ctx.Done():
		return result{}, ctx.Err()
	case <-g.stopped:
		return result{}, ErrClosed
	}
}

// post delivers a helper goroutine's result to the loop.
func (g *Guard) post(ev event) {
	select {
	case g.events <- ev:
	case <-g.stopped:
	}
}

// dispatchTimer hands an idle expiry to the loop so it is serialized with
// the Stop and Restart calls made by transitions.
func (g *Guard) dispatchTimer(fn func()) {
	g.post(timerEvent{fn: fn})
}

func respond(reply chan<- result, res result) {
	if reply != nil {
		reply <- res
	}
}

func (g *Guard) handle(ev event) {
	switch ev := ev.(type) {
	case openEvent:
		g.handleOpen(ev.key, ev.reply)
	case openResolved:
		g.handleOpenResolved(ev)
	case answerEvent:
		g.handleAnswer(ev)
	case answerResolved:
		g.handleAnswerResolved(ev)
	case cancelEvent:
		g.handleCancel(ev)
	case timerEvent:
		ev.fn()
	case sweepEvent:
		respond(ev.reply, result{n: g.sweep()})
	case activityEvent:
		respond(ev.reply, result{ok: g.previous != "" && g.timers.Restart(g.previous)})
	case policyEvent:
		g.handlePolicy(ev)
	case protectEvent:
		g.handleProtect(ev)
	case unprotectEvent:
		g.handleUnprotect(ev)
	case markResolved:
		g.handleMarkResolved(ev)
	}
}

// handleOpen runs the leaving transition for the previous note, then
// starts the protection lookup for the note now in front. reply may be nil
// for opens the guard triggers itself after closing a view.
//
// The host's active note wins over the signalled one: signals from
// concurrent callers can arrive out of order, and the views are what the
// user actually sees.
func (g *Guard) handleOpen(signalled string, reply chan<- result) {
	key := g.host.Active()
	if key != signalled {
		g.logger.Debug("guard: open signal behind the views",
			slog.String("signalled", signalled),
			slog.String("active", key))
	}
	g.leave(key)

	g.previous = key
	g.openSeq++
	if key == "" {
		respond(reply, result{outcome: OutcomeNone})
		return
	}

	seq := g.openSeq
	go func() {
		protected, err := g.oracle.IsProtected(g.ctx, key)
		g.post(openResolved{key: key, seq: seq, protected: protected, err: err, reply: reply})
	}()
}

// leave decides what happens to the previous note when next becomes
// active. It must finish before any work on next starts.
func (g *Guard) leave(next string) {
	prev := g.previous
	if prev == "" {
		return
	}
	_, wasJustGranted := g.justGranted[prev]
	delete(g.justGranted, prev)

	same := next == prev
	if g.challenge == prev && !same {
		g.challenge = ""
	}
	if !g.tracker.IsTemporaryAccess(prev) {
		return
	}

	g.timers.Stop(prev)
	closing := next == "" || !slices.Contains(g.host.OpenKeys(), prev)
	if (closing && !same) || (g.policy.AutoEncryptOnClose && !same && !wasJustGranted) {
		g.tracker.ClearAccess(prev)
		g.logger.Info("guard: relocked on leave",
			slog.String("path", prev),
			slog.Bool("closing", closing))
		g.host.Notify(Notice{Kind: NoticeRelocked, Key: prev})
	}
}

func (g *Guard) handleOpenResolved(ev openResolved) {
	if ev.seq != g.openSeq || g.previous != ev.key {
		respond(ev.reply, result{outcome: OutcomeSuperseded})
		return
	}
	if ev.err != nil {
		g.logger.Warn("guard: protection lookup failed",
			slog.String("path", ev.key),
			slog.String("error", ev.err.Error()))
		respond(ev.reply, result{err: ev.err})
		return
	}
	if !ev.protected {
		respond(ev.reply, result{outcome: OutcomeUnprotected})
		return
	}

	if g.tracker.IsAccessedThisSession(ev.key) {
		g.justGranted[ev.key] = struct{}{}
		if g.tracker.IsTemporaryAccess(ev.key) {
			g.armIdle(ev.key)
		}
		respond(ev.reply, result{outcome: OutcomeUnlocked})
		return
	}

	if !g.verifier.Configured() {
		g.host.Notify(Notice{Kind: NoticeNoPassword, Key: ev.key})
		g.closeActive(ev.key)
		respond(ev.reply, result{outcome: OutcomeDenied})
		return
	}

	if g.challenge != ev.key {
		g.challenge = ev.key
		g.challengeSeq++
	}
	g.host.RequestPassword(ev.key)
	respond(ev.reply, result{outcome: OutcomeChallenge})
}

func (g *Guard) handleAnswer(ev answerEvent) {
	if g.challenge != ev.key {
		respond(ev.reply, result{err: apperr.ErrNoChallenge})
		return
	}
	if !g.verifier.Configured() {
		g.challenge = ""
		g.host.Notify(Notice{Kind: NoticeNoPassword, Key: ev.key})
		g.closeActive(ev.key)
		respond(ev.reply, result{outcome: OutcomeDenied, err: apperr.ErrNoPassword})
		return
	}

	seq := g.challengeSeq
	go func() {
		ok := g.verifier.Verify(ev.candidate)
		g.post(answerResolved{key: ev.key, seq: seq, ok: ok, reply: ev.reply})
	}()
}

func (g *Guard) handleAnswerResolved(ev answerResolved) {
	if g.challenge != ev.key || g.challengeSeq != ev.seq || g.previous != ev.key {
		respond(ev.reply, result{outcome: OutcomeSuperseded, err: apperr.ErrStaleChallenge})
		return
	}
	g.challenge = ""

	if !ev.ok {
		g.logger.Info("guard: wrong password", slog.String("path", ev.key))
		g.host.Notify(Notice{Kind: NoticeWrongPassword, Key: ev.key})
		g.closeActive(ev.key)
		respond(ev.reply, result{outcome: OutcomeRejected, err: apperr.ErrWrongPassword})
		return
	}

	g.tracker.MarkTemporaryAccess(ev.key)
	g.armIdle(ev.key)
	g.logger.Info("guard: unlocked", slog.String("path", ev.key))
	g.host.Reopen(ev.key)
	respond(ev.reply, result{outcome: OutcomeGranted})
}

func (g *Guard) handleCancel(ev cancelEvent) {
	if g.challenge != ev.key {
		respond(ev.reply, result{err: apperr.ErrNoChallenge})
		return
	}
	g.challenge = ""
	g.closeActive(ev.key)
	respond(ev.reply, result{outcome: OutcomeCancelled})
}

// armIdle starts the countdown for key unless idle expiry is disabled.
func (g *Guard) armIdle(key string) {
	if g.policy.IdleTimeout <= 0 {
		return
	}
	g.timers.Start(key, g.policy.IdleTimeout, func() { g.expire(key) })
}

// expire runs on the loop when key's countdown elapses.
func (g *Guard) expire(key string) {
	g.tracker.ClearAccess(key)
	delete(g.justGranted, key)
	g.logger.Info("guard: idle timeout", slog.String("path", key))
	g.host.Notify(Notice{Kind: NoticeExpired, Key: key})
	if g.previous == key {
		g.closeActive(key)
	}
}

// closeActive asks the host to close the active view of key. When that
// brings another note to the front it is opened like any other.
func (g *Guard) closeActive(key string) {
	if active, changed := g.host.CloseActive(key); changed {
		g.handleOpen(active, nil)
	}
}

// sweep relocks temporarily unlocked notes that no view shows. Closing a
// background view produces no open signal, so this is the only place
// those are caught.
func (g *Guard) sweep() int {
	unlocked := g.tracker.ListTemporaryAccess()
	if len(unlocked) == 0 {
		return 0
	}
	open := g.host.OpenKeys()
	n := 0
	for _, key := range unlocked {
		if slices.Contains(open, key) {
			continue
		}
		g.timers.Stop(key)
		g.tracker.ClearAccess(key)
		delete(g.justGranted, key)
		g.logger.Info("guard: relocked closed note", slog.String("path", key))
		g.host.Notify(Notice{Kind: NoticeRelocked, Key: key})
		n++
	}
	return n
}

func (g *Guard) handlePolicy(ev policyEvent) {
	if ev.get {
		respond(ev.reply, result{policy: g.policy})
		return
	}
	old := g.policy
	g.policy = ev.policy
	g.logger.Info("guard: policy updated",
		slog.Duration("idle_timeout", ev.policy.IdleTimeout),
		slog.Bool("auto_encrypt_on_close", ev.policy.AutoEncryptOnClose))

	switch {
	case ev.policy.IdleTimeout <= 0:
		g.timers.ClearAll()
	case ev.policy.IdleTimeout != old.IdleTimeout:
		if g.previous != "" && g.tracker.IsTemporaryAccess(g.previous) {
			g.armIdle(g.previous)
		}
	}
	respond(ev.reply, result{policy: g.policy})
}

func (g *Guard) handleProtect(ev protectEvent) {
	if !g.verifier.Configured() {
		respond(ev.reply, result{err: apperr.ErrNoPassword})
		return
	}
	go func() {
		err := g.oracle.MarkProtected(g.ctx, ev.key)
		g.post(markResolved{key: ev.key, protect: true, err: err, reply: ev.reply})
	}()
}

func (g *Guard) handleUnprotect(ev unprotectEvent) {
	if !g.verifier.Configured() {
		respond(ev.reply, result{err: apperr.ErrNoPassword})
		return
	}
	go func() {
		var err error
		if !g.verifier.Verify(ev.candidate) {
			err = apperr.ErrWrongPassword
		} else {
			err = g.oracle.RemoveProtection(g.ctx, ev.key)
		}
		g.post(markResolved{key: ev.key, protect: false, err: err, reply: ev.reply})
	}()
}

func (g *Guard) handleMarkResolved(ev markResolved) {
	if ev.err != nil {
		respond(ev.reply, result{err: ev.err})
		return
	}

	g.timers.Stop(ev.key)
	g.tracker.ClearAccess(ev.key)
	delete(g.justGranted, ev.key)

	if ev.protect {
		g.logger.Info("guard: note protected", slog.String("path", ev.key))
		g.host.Notify(Notice{Kind: NoticeProtected, Key: ev.key})
		if active, changed := g.host.CloseKey(ev.key); changed {
			g.handleOpen(active, nil)
		}
	} else {
		g.logger.Info("guard: note unprotected", slog.String("path", ev.key))
		g.host.Notify(Notice{Kind: NoticeUnprotected, Key: ev.key})
		if g.challenge == ev.key {
			g.challenge = ""
		}
		if g.previous == ev.key {
			g.host.Reopen(ev.key)
		}
	}
	respond(ev.reply, result{})
}
