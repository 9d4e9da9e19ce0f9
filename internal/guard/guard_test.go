package guard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/starford/notelock/internal/apperr"
	"github.com/starford/notelock/internal/clock"
	"github.com/starford/notelock/internal/workspace"
)

const idleTimeout = 5 * time.Minute

var epoch = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

// --- fakes ---

type fakeOracle struct {
	mu        sync.Mutex
	protected map[string]bool
	lookupErr error
	markErr   error
	gate      map[string]chan struct{}
	entered   chan string
}

func newFakeOracle(protected ...string) *fakeOracle {
	o := &fakeOracle{protected: make(map[string]bool), gate: make(map[string]chan struct{})}
	for _, p := range protected {
		o.protected[p] = true
	}
	return o
}

func (o *fakeOracle) IsProtected(_ context.Context, key string) (bool, error) {
	o.mu.Lock()
	gate := o.gate[key]
	o.mu.Unlock()
	if gate != nil {
		o.entered <- key
		<-gate
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lookupErr != nil {
		return false, o.lookupErr
	}
	return o.protected[key], nil
}

func (o *fakeOracle) IsProtectedCached(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.protected[key]
}

func (o *fakeOracle) MarkProtected(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.markErr != nil {
		return o.markErr
	}
	o.protected[key] = true
	return nil
}

func (o *fakeOracle) RemoveProtection(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.markErr != nil {
		return o.markErr
	}
	delete(o.protected, key)
	return nil
}

// hold makes lookups of key block until release is closed. entered
// receives the key once a lookup is blocked.
func (o *fakeOracle) hold(key string) (entered <-chan string, release chan struct{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	release = make(chan struct{})
	o.gate[key] = release
	o.entered = make(chan string, 1)
	return o.entered, release
}

type fakeVerifier struct {
	password string
	entered  chan struct{}
	release  chan struct{}
}

func (v *fakeVerifier) Configured() bool { return v.password != "" }

func (v *fakeVerifier) Verify(candidate string) bool {
	if v.entered != nil {
		v.entered <- struct{}{}
		<-v.release
	}
	return v.Configured() && candidate == v.password
}

// recordingHost drives a real workspace and records what the guard asked
// of it.
type recordingHost struct {
	ws *workspace.Workspace

	mu       sync.Mutex
	prompts  []string
	reopened []string
	closed   []string
	notices  []Notice
}

func (h *recordingHost) Active() string { return h.ws.ActivePath() }

func (h *recordingHost) OpenKeys() []string { return h.ws.OpenKeys() }

func (h *recordingHost) CloseActive(key string) (string, bool) {
	_, ch := h.ws.CloseActive(key)
	if ch.Changed {
		h.mu.Lock()
		h.closed = append(h.closed, key)
		h.mu.Unlock()
	}
	return ch.Active, ch.Changed
}

func (h *recordingHost) CloseKey(key string) (string, bool) {
	ids, ch := h.ws.CloseKey(key)
	if len(ids) > 0 {
		h.mu.Lock()
		h.closed = append(h.closed, key)
		h.mu.Unlock()
	}
	return ch.Active, ch.Changed
}

func (h *recordingHost) Reopen(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reopened = append(h.reopened, key)
}

func (h *recordingHost) RequestPassword(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prompts = append(h.prompts, key)
}

func (h *recordingHost) Notify(n Notice) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notices = append(h.notices, n)
}

func (h *recordingHost) promptCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.prompts)
}

func (h *recordingHost) wasClosed(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Contains(h.closed, key)
}

func (h *recordingHost) noticed(kind NoticeKind, key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Contains(h.notices, Notice{Kind: kind, Key: key})
}

// --- fixture ---

type fixture struct {
	g      *Guard
	clk    *clock.FakeClock
	oracle *fakeOracle
	ver    *fakeVerifier
	host   *recordingHost
	ws     *workspace.Workspace
}

func newFixture(t *testing.T, policy Policy, password string, protected ...string) *fixture {
	t.Helper()
	ws := workspace.New()
	f := &fixture{
		clk:    clock.Fake(epoch),
		oracle: newFakeOracle(protected...),
		ver:    &fakeVerifier{password: password},
		host:   &recordingHost{ws: ws},
		ws:     ws,
	}
	f.g = New(f.oracle, f.ver, f.host,
		WithClock(f.clk),
		WithPolicy(policy),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(f.g.Close)
	return f
}

func defaultPolicy() Policy {
	return Policy{IdleTimeout: idleTimeout}
}

// openView opens path in a new view and signals the guard.
func (f *fixture) openView(t *testing.T, path string) (workspace.View, Outcome) {
	t.Helper()
	v, ch := f.ws.Open(path)
	out, err := f.g.Open(context.Background(), ch.Active)
	if err != nil {
		t.Fatalf("Open(%s): %v", path, err)
	}
	return v, out
}

// navigate points view id at path and signals the guard.
func (f *fixture) navigate(t *testing.T, id, path string) Outcome {
	t.Helper()
	_, ch, err := f.ws.Navigate(id, path)
	if err != nil {
		t.Fatal(err)
	}
	out, err := f.g.Open(context.Background(), ch.Active)
	if err != nil {
		t.Fatalf("Open(%s): %v", path, err)
	}
	return out
}

func (f *fixture) unlock(t *testing.T, path string) workspace.View {
	t.Helper()
	v, out := f.openView(t, path)
	if out != OutcomeChallenge {
		t.Fatalf("open %s: outcome = %v, want challenge", path, out)
	}
	out, err := f.g.Answer(context.Background(), path, f.ver.password)
	if err != nil || out != OutcomeGranted {
		t.Fatalf("answer %s: %v, %v", path, out, err)
	}
	return v
}

// flush waits until every event queued so far has been handled.
func (f *fixture) flush(t *testing.T) {
	t.Helper()
	if _, err := f.g.Policy(context.Background()); err != nil {
		t.Fatal(err)
	}
}

// --- scenarios ---

func TestOpenUnprotectedNoChallenge(t *testing.T) {
	f := newFixture(t, defaultPolicy(), "hunter2")
	_, out := f.openView(t, "a.md")
	if out != OutcomeUnprotected {
		t.Errorf("outcome = %v, want unprotected", out)
	}
	if f.host.promptCount() != 0 {
		t.Error("no password prompt expected for an unprotected note")
	}
}

func TestOpenProtectedGrantArmsTimer(t *testing.T) {
	f := newFixture(t, defaultPolicy(), "hunter2", "a.md")
	_, out := f.openView(t, "a.md")
	if out != OutcomeChallenge {
		t.Fatalf("outcome = %v, want challenge", out)
	}
	if f.host.promptCount() != 1 {
		t.Fatalf("prompts = %d, want 1", f.host.promptCount())
	}

	out, err := f.g.Answer(context.Background(), "a.md", "hunter2")
	if err != nil || out != OutcomeGranted {
		t.Fatalf("Answer = %v, %v", out, err)
	}
	st := f.g.Status("a.md")
	if !st.Temporary || !st.Verified || !st.Protected {
		t.Errorf("status = %+v", st)
	}
	if st.ExpiresAt == nil || !st.ExpiresAt.Equal(epoch.Add(idleTimeout)) {
		t.Errorf("expires at = %v, want %v", st.ExpiresAt, epoch.Add(idleTimeout))
	}
	if !slices.Contains(f.host.reopened, "a.md") {
		t.Error("granted note should be reopened")
	}
}

func TestReopenSameNoteKeepsAccess(t *testing.T) {
	f := newFixture(t, defaultPolicy(), "hunter2", "a.md")
	v := f.unlock(t, "a.md")

	f.clk.Advance(2 * time.Minute)
	if out := f.navigate(t, v.ID, "a.md"); out != OutcomeUnlocked {
		t.Fatalf("outcome = %v, want unlocked", out)
	}
	if f.host.promptCount() != 1 {
		t.Errorf("prompts = %d, want no new prompt", f.host.promptCount())
	}
	st := f.g.Status("a.md")
	if !st.Temporary {
		t.Fatal("access revoked on same-note reopen")
	}
	if want := epoch.Add(2*time.Minute + idleTimeout); st.ExpiresAt == nil || !st.ExpiresAt.Equal(want) {
		t.Errorf("expires at = %v, want re-armed %v", st.ExpiresAt, want)
	}
}

func TestLeaveStillOpenElsewhereStopsTimer(t *testing.T) {
	f := newFixture(t, defaultPolicy(), "hunter2", "a.md")
	f.unlock(t, "a.md")

	if _, out := f.openView(t, "b.md"); out != OutcomeUnprotected {
		t.Fatalf("outcome = %v", out)
	}
	st := f.g.Status("a.md")
	if !st.Temporary {
		t.Error("a.md is still open in another view and must stay unlocked")
	}
	if st.ExpiresAt != nil {
		t.Error("a.md timer should be stopped after leaving it")
	}

	f.clk.Advance(2 * idleTimeout)
	f.flush(t)
	if !f.g.Status("a.md").Temporary {
		t.Error("a stopped timer must not expire")
	}
}

func TestIdleExpiryClosesActiveNote(t *testing.T) {
	f := newFixture(t, defaultPolicy(), "hunter2", "a.md")
	f.unlock(t, "a.md")

	f.clk.Advance(idleTimeout - time.Second)
	f.flush(t)
	if !f.g.Status("a.md").Temporary {
		t.Fatal("expired too early")
	}

	f.clk.Advance(time.Second)
	f.flush(t)
	if f.g.Status("a.md").Temporary {
		t.Error("access should be revoked after idle timeout")
	}
	if !f.host.wasClosed("a.md") {
		t.Error("active view should be closed on expiry")
	}
	if !f.host.noticed(NoticeExpired, "a.md") {
		t.Error("expected expiry notice")
	}
	if f.ws.IsOpen("a.md") {
		t.Error("workspace still shows a.md")
	}
}

func TestSweepRelocksClosedBackgroundView(t *testing.T) {
	f := newFixture(t, defaultPolicy(), "hunter2", "c.md")
	c := f.unlock(t, "c.md")
	f.openView(t, "d.md")

	if !f.g.Status("c.md").Temporary {
		t.Fatal("c.md should still be unlocked while open in the background")
	}

	// Closing a background view sends no open signal.
	if ch, _ := f.ws.Close(c.ID); ch.Changed {
		t.Fatal("closing a background view must not move the active note")
	}
	n, err := f.g.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("sweep relocked %d notes, want 1", n)
	}
	st := f.g.Status("c.md")
	if st.Temporary || st.Verified || st.ExpiresAt != nil {
		t.Errorf("status after sweep = %+v", st)
	}
}

func TestSweepKeepsOpenNotes(t *testing.T) {
	f := newFixture(t, defaultPolicy(), "hunter2", "a.md")
	f.unlock(t, "a.md")
	n, _ := f.g.Sweep(context.Background())
	if n != 0 || !f.g.Status("a.md").Temporary {
		t.Errorf("sweep revoked an open note (n=%d)", n)
	}
}

// --- leaving transition ---

func TestNavigateAwayFromOnlyViewRevokes(t *testing.T) {
	f := newFixture(t, defaultPolicy(), "hunter2", "a.md")
	v := f.unlock(t, "a.md")

	f.navigate(t, v.ID, "b.md")
	st := f.g.Status("a.md")
	if st.Temporary || st.ExpiresAt != nil {
		t.Errorf("status = %+v, want revoked", st)
	}
	if !f.host.noticed(NoticeRelocked, "a.md") {
		t.Error("expected relock notice")
	}
}

func TestCloseLastViewRevokes(t *testing.T) {
	f := newFixture(t, defaultPolicy(), "hunter2", "a.md")
	v := f.unlock(t, "a.md")

	ch, err := f.ws.Close(v.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.g.Open(context.Background(), ch.Active); err != nil {
		t.Fatal(err)
	}
	if f.g.Status("a.md").Temporary {
		t.Error("closing the only view should revoke access")
	}
}

func TestAutoEncryptOnCloseRevokesEvenIfOpen(t *testing.T) {
	f := newFixture(t, Policy{IdleTimeout: idleTimeout, AutoEncryptOnClose: true}, "hunter2", "a.md")
	f.unlock(t, "a.md")
	f.openView(t, "b.md")

	if f.g.Status("a.md").Temporary {
		t.Error("auto-encrypt should revoke a.md on leave")
	}
}

func TestAutoEncryptSparesJustGranted(t *testing.T) {
	f := newFixture(t, Policy{IdleTimeout: idleTimeout, AutoEncryptOnClose: true}, "hunter2", "a.md")
	v := f.unlock(t, "a.md")

	// Re-entering an accessed note marks it just granted.
	if out := f.navigate(t, v.ID, "a.md"); out != OutcomeUnlocked {
		t.Fatalf("outcome = %v", out)
	}
	f.openView(t, "b.md")
	if !f.g.Status("a.md").Temporary {
		t.Error("just-granted note must survive the next leave")
	}
}

func TestActivityRestartsTimer(t *testing.T) {
	f := newFixture(t, defaultPolicy(), "hunter2", "a.md")
	f.unlock(t, "a.md")

	f.clk.Advance(idleTimeout - time.Minute)
	ok, err := f.g.Activity(context.Background())
	if err != nil || !ok {
		t.Fatalf("Activity = %v, %v", ok, err)
	}
	f.clk.Advance(2 * time.Minute)
	f.flush(t)
	if !f.g.Status("a.md").Temporary {
		t.Fatal("activity should have postponed expiry")
	}
	f.clk.Advance(idleTimeout)
	f.flush(t)
	if f.g.Status("a.md").Temporary {
		t.Error("expected expiry a full timeout after the activity")
	}
}

func TestActivityWithoutTimerIsNoop(t *testing.T) {
	f := newFixture(t, defaultPolicy(), "hunter2")
	f.openView(t, "a.md")
	ok, err := f.g.Activity(context.Background())
	if err != nil || ok {
		t.Errorf("Activity = %v, %v, want false", ok, err)
	}
	if f.clk.PendingCount() != 0 {
		t.Error("activity must not arm a timer")
	}
}

// --- password challenge ---

func TestWrongPasswordClosesView(t *testing.T) {
	f := newFixture(t, defaultPolicy(), "hunter2", "a.md")
	f.openView(t, "a.md")

	out, err := f.g.Answer(context.Background(), "a.md", "wrong")
	if !errors.Is(err, apperr.ErrWrongPassword) || out != OutcomeRejected {
		t.Fatalf("Answer = %v, %v", out, err)
	}
	if f.g.Status("a.md").Verified {
		t.Error("wrong password must not grant access")
	}
	if !f.host.wasClosed("a.md") || !f.host.noticed(NoticeWrongPassword, "a.md") {
		t.Error("expected close and notice after wrong password")
	}

	// Each attempt is independent; the prompt was consumed.
	if _, err := f.g.Answer(context.Background(), "a.md", "hunter2"); !errors.Is(err, apperr.ErrNoChallenge) {
		t.Errorf("second answer err = %v, want ErrNoChallenge", err)
	}
}

func TestNoPasswordConfiguredDenies(t *testing.T) {
	f := newFixture(t, defaultPolicy(), "", "a.md")
	_, out := f.openView(t, "a.md")
	if out != OutcomeDenied {
		t.Errorf("outcome = %v, want denied", out)
	}
	if f.host.promptCount() != 0 {
		t.Error("must not prompt without a configured password")
	}
	if !f.host.wasClosed("a.md") || !f.host.noticed(NoticeNoPassword, "a.md") {
		t.Error("expected close and notice")
	}
}

func TestCancelChallenge(t *testing.T) {
	f := newFixture(t, defaultPolicy(), "hunter2", "a.md")
	f.openView(t, "a.md")

	out, err := f.g.Cancel(context.Background(), "a.md")
	if err != nil || out != OutcomeCancelled {
		t.Fatalf("Cancel = %v, %v", out, err)
	}
	if !f.host.wasClosed("a.md") {
		t.Error("cancel should close the view")
	}
	if f.g.Status("a.md").Verified {
		t.Error("cancel must not change access")
	}
	if _, err := f.g.Cancel(context.Background(), "a.md"); !errors.Is(err, apperr.ErrNoChallenge) {
		t.Errorf("err = %v, want ErrNoChallenge", err)
	}
}

func TestAnswerWithoutChallenge(t *testing.T) {
	f := newFixture(t, defaultPolicy(), "hunter2", "a.md")
	if _, err := f.g.Answer(context.Background(), "a.md", "hunter2"); !errors.Is(err, apperr.ErrNoChallenge) {
		t.Errorf("err = %v, want ErrNoChallenge", err)
	}
}

func TestAnswerAfterNavigatingAwayIsStale(t *testing.T) {
	f := newFixture(t, defaultPolicy(), "hunter2", "a.md")
	f.ver.entered = make(chan struct{})
	f.ver.release = make(chan struct{})
	f.openView(t, "a.md")

	type answer struct {
		out Outcome
		err error
	}
	done := make(chan answer, 1)
	go func() {
		out, err := f.g.Answer(context.Background(), "a.md", "hunter2")
		done <- answer{out, err}
	}()
	<-f.ver.entered

	f.openView(t, "b.md")
	close(f.ver.release)

	got := <-done
	if !errors.Is(got.err, apperr.ErrStaleChallenge) {
		t.Fatalf("err = %v, want ErrStaleChallenge", got.err)
	}
	if f.g.Status("a.md").Verified {
		t.Error("a stale answer must not grant access")
	}
}

func TestOpenSupersededWhileLookingUp(t *testing.T) {
	f := newFixture(t, defaultPolicy(), "hunter2", "a.md")
	entered, release := f.oracle.hold("a.md")

	_, ch := f.ws.Open("a.md")
	done := make(chan Outcome, 1)
	go func() {
		out, _ := f.g.Open(context.Background(), ch.Active)
		done <- out
	}()

	<-entered
	f.openView(t, "b.md")
	close(release)

	if out := <-done; out != OutcomeSuperseded {
		t.Errorf("outcome = %v, want superseded", out)
	}
	if f.host.promptCount() != 0 {
		t.Error("a superseded open must not prompt")
	}
}

func TestOracleErrorPropagates(t *testing.T) {
	f := newFixture(t, defaultPolicy(), "hunter2", "a.md")
	boom := errors.New("disk gone")
	f.oracle.lookupErr = boom

	f.ws.Open("a.md")
	_, err := f.g.Open(context.Background(), "a.md")
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
	if f.host.promptCount() != 0 || f.g.Status("a.md").Verified {
		t.Error("a failed lookup must leave the note locked without prompting")
	}
}

func TestOutOfOrderOpenSignalsFollowViews(t *testing.T) {
	f := newFixture(t, defaultPolicy(), "hunter2", "b.md")
	vb := f.unlock(t, "b.md")

	// a.md comes to the front, then b.md again, but the two signals
	// reach the guard in the opposite order.
	f.ws.Open("a.md")
	if _, _, err := f.ws.Activate(vb.ID); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"b.md", "a.md"} {
		if _, err := f.g.Open(context.Background(), key); err != nil {
			t.Fatalf("Open(%s): %v", key, err)
		}
	}

	if got := f.ws.ActivePath(); got != "b.md" {
		t.Fatalf("active = %q, want b.md", got)
	}
	st := f.g.Status("b.md")
	if !st.Temporary || st.ExpiresAt == nil {
		t.Fatalf("front note must keep a running countdown, got %+v", st)
	}

	f.clk.Advance(idleTimeout)
	f.flush(t)
	if f.g.Status("b.md").Temporary {
		t.Error("front note never idled out")
	}
}

func TestOpenDeliveredDespiteCancelledContext(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t, defaultPolicy(), "hunter2", "a.md")
		v := f.unlock(t, "a.md")
		if _, _, err := f.ws.Navigate(v.ID, "b.md"); err != nil {
			t.Fatal(err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, _ = f.g.Open(ctx, "b.md")
		f.flush(t)

		if f.g.Status("a.md").Temporary {
			t.Fatalf("run %d: a.md left unlocked after its only view moved on", i)
		}
		if !f.host.noticed(NoticeRelocked, "a.md") {
			t.Fatalf("run %d: expected relock notice", i)
		}
	}
}

// --- policy ---

func TestDisablingIdleStopsTimers(t *testing.T) {
	f := newFixture(t, defaultPolicy(), "hunter2", "a.md")
	f.unlock(t, "a.md")

	if err := f.g.SetPolicy(context.Background(), Policy{}); err != nil {
		t.Fatal(err)
	}
	if f.g.Status("a.md").ExpiresAt != nil {
		t.Error("timer should be stopped when idle is disabled")
	}
	f.clk.Advance(time.Hour)
	f.flush(t)
	if !f.g.Status("a.md").Temporary {
		t.Error("note should stay unlocked with idle disabled")
	}

	if err := f.g.SetPolicy(context.Background(), Policy{IdleTimeout: time.Minute}); err != nil {
		t.Fatal(err)
	}
	st := f.g.Status("a.md")
	if st.ExpiresAt == nil || !st.ExpiresAt.Equal(f.clk.Now().Add(time.Minute)) {
		t.Errorf("active note should be re-armed, expires at %v", st.ExpiresAt)
	}
	p, _ := f.g.Policy(context.Background())
	if p.IdleTimeout != time.Minute {
		t.Errorf("policy = %+v", p)
	}
}

func TestGrantWithIdleDisabledArmsNothing(t *testing.T) {
	f := newFixture(t, Policy{}, "hunter2", "a.md")
	f.unlock(t, "a.md")
	if f.clk.PendingCount() != 0 {
		t.Error("no timer expected with idle disabled")
	}
	if !f.g.Status("a.md").Temporary {
		t.Error("note should be unlocked")
	}
}

// --- protect / unprotect ---

func TestProtectRevokesAndClosesViews(t *testing.T) {
	f := newFixture(t, defaultPolicy(), "hunter2")
	f.openView(t, "a.md")
	f.openView(t, "b.md")

	if err := f.g.Protect(context.Background(), "a.md"); err != nil {
		t.Fatal(err)
	}
	if !f.oracle.IsProtectedCached("a.md") {
		t.Error("marker not written")
	}
	if f.ws.IsOpen("a.md") {
		t.Error("views of a protected note should be closed")
	}
	if f.ws.ActivePath() != "b.md" {
		t.Errorf("active = %q, want b.md", f.ws.ActivePath())
	}
}

func TestProtectUnlockedNoteRelocks(t *testing.T) {
	f := newFixture(t, defaultPolicy(), "hunter2", "a.md")
	f.unlock(t, "a.md")

	if err := f.g.Protect(context.Background(), "a.md"); err != nil {
		t.Fatal(err)
	}
	st := f.g.Status("a.md")
	if st.Verified || st.ExpiresAt != nil {
		t.Errorf("status = %+v, want relocked", st)
	}
}

func TestProtectRequiresPassword(t *testing.T) {
	f := newFixture(t, defaultPolicy(), "")
	if err := f.g.Protect(context.Background(), "a.md"); !errors.Is(err, apperr.ErrNoPassword) {
		t.Errorf("err = %v, want ErrNoPassword", err)
	}
	if f.oracle.IsProtectedCached("a.md") {
		t.Error("marker must not be written")
	}
}

func TestProtectWriteFailureLeavesState(t *testing.T) {
	f := newFixture(t, defaultPolicy(), "hunter2", "a.md")
	f.unlock(t, "a.md")
	f.oracle.markErr = errors.New("read-only vault")

	if err := f.g.Protect(context.Background(), "a.md"); err == nil {
		t.Fatal("expected error")
	}
	if !f.g.Status("a.md").Temporary {
		t.Error("failed marker write must not change access")
	}
}

func TestUnprotect(t *testing.T) {
	f := newFixture(t, defaultPolicy(), "hunter2", "a.md")
	f.unlock(t, "a.md")

	if err := f.g.Unprotect(context.Background(), "a.md", "nope"); !errors.Is(err, apperr.ErrWrongPassword) {
		t.Fatalf("err = %v, want ErrWrongPassword", err)
	}
	if !f.oracle.IsProtectedCached("a.md") || !f.g.Status("a.md").Temporary {
		t.Fatal("wrong password must leave marker and access unchanged")
	}

	if err := f.g.Unprotect(context.Background(), "a.md", "hunter2"); err != nil {
		t.Fatal(err)
	}
	st := f.g.Status("a.md")
	if st.Protected || st.Temporary || st.ExpiresAt != nil {
		t.Errorf("status = %+v, want plain note", st)
	}

	if out := f.navigate(t, f.ws.Views()[0].ID, "a.md"); out != OutcomeUnprotected {
		t.Errorf("outcome = %v, want unprotected", out)
	}
}

func TestUnprotectPendingChallengeReopens(t *testing.T) {
	f := newFixture(t, defaultPolicy(), "hunter2", "a.md")
	f.openView(t, "a.md")

	if err := f.g.Unprotect(context.Background(), "a.md", "hunter2"); err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(f.host.reopened, "a.md") {
		t.Error("active note should be reopened once readable")
	}
	if _, err := f.g.Answer(context.Background(), "a.md", "hunter2"); !errors.Is(err, apperr.ErrNoChallenge) {
		t.Errorf("challenge should be dropped, err = %v", err)
	}
}

// --- lifecycle ---

func TestCloseForgetsEverything(t *testing.T) {
	f := newFixture(t, defaultPolicy(), "hunter2", "a.md")
	f.unlock(t, "a.md")

	f.g.Close()
	if len(f.g.Unlocked()) != 0 {
		t.Error("tracker not cleared on close")
	}
	if f.clk.PendingCount() != 0 {
		t.Error("timers not cleared on close")
	}
	if _, err := f.g.Open(context.Background(), "a.md"); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestRunSweeper(t *testing.T) {
	f := newFixture(t, defaultPolicy(), "hunter2", "c.md")
	c := f.unlock(t, "c.md")
	f.openView(t, "d.md")
	f.ws.Close(c.ID)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.g.RunSweeper(ctx, time.Second) }()

	deadline := time.Now().Add(2 * time.Second)
	for f.g.Status("c.md").Temporary && time.Now().Before(deadline) {
		f.clk.Advance(time.Second)
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if f.g.Status("c.md").Temporary {
		t.Error("sweeper did not relock the closed note")
	}
}
