package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cloudxfer/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- helpers ---------------------------------------------------------------

func reply(success bool, msg string) transport.Result {
	return transport.Result{Response: transport.Response{
		StatusCode: 200,
		Body:       transport.Body{"success": success, "msg": msg},
	}}
}

func serverError() transport.Result {
	return transport.Result{Response: transport.Response{StatusCode: 500, Body: transport.Body{}}}
}

// scripted replays replies in order, repeating the last one forever.
type scripted struct {
	mu      sync.Mutex
	replies []transport.Result
	codes   []string
}

func (s *scripted) ResolveCode(_ context.Context, code string) transport.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.codes)
	s.codes = append(s.codes, code)
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	return s.replies[i]
}

func (s *scripted) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codes)
}

type recorder struct {
	ch chan Event
}

func newRecorder() *recorder { return &recorder{ch: make(chan Event, 256)} }

func (r *recorder) notify(ev Event) { r.ch <- ev }

// waitFor drains events until one of kind arrives, returning the events
// skipped on the way.
func (r *recorder) waitFor(t *testing.T, kind EventKind) (Event, []Event) {
	t.Helper()
	var seen []Event
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-r.ch:
			if ev.Kind == kind {
				return ev, seen
			}
			seen = append(seen, ev)
		case <-deadline:
			t.Fatalf("timed out waiting for event %d; saw %+v", kind, seen)
		}
	}
}

func (r *recorder) drain() []Event {
	var out []Event
	for {
		select {
		case ev := <-r.ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func fastOptions(rec *recorder) Options {
	return Options{
		Interval:    5 * time.Millisecond,
		IdleRecheck: 2 * time.Millisecond,
		Notify:      rec.notify,
	}
}

type memSaver struct {
	saved []string
	err   error
}

func (s *memSaver) SaveCode(code string) error {
	s.saved = append(s.saved, code)
	return s.err
}

func kinds(evs []Event) []EventKind {
	out := make([]EventKind, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Kind)
	}
	return out
}

// ---- ValidCode -------------------------------------------------------------

func TestValidCode(t *testing.T) {
	for code, want := range map[string]bool{
		"123456":  true,
		"000000":  true,
		"12345":   false,
		"1234567": false,
		"12a456":  false,
		"+12345":  false,
		"１２３４５６": false,
		"":        false,
	} {
		assert.Equal(t, want, ValidCode(code), code)
	}
}

// ---- Submit ----------------------------------------------------------------

func TestSubmitRejectsMalformedCode(t *testing.T) {
	m := New(&scripted{replies: []transport.Result{reply(true, "")}}, Options{})
	started, err := m.Submit(context.Background(), "12a456")
	assert.False(t, started)
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.False(t, m.Active())
}

func TestSubmitUnlocksOnSuccess(t *testing.T) {
	rec := newRecorder()
	m := New(&scripted{replies: []transport.Result{reply(true, "")}}, fastOptions(rec))

	started, err := m.Submit(context.Background(), " 123456 ")
	require.NoError(t, err)
	assert.True(t, started)

	ev, skipped := rec.waitFor(t, EventUnlocked)
	assert.Equal(t, "123456", ev.Code)
	assert.Equal(t, []EventKind{EventPolling}, kinds(skipped))

	state, code := m.State()
	assert.Equal(t, Unlocked, state)
	assert.Equal(t, "123456", code)
	assert.True(t, m.Unlocked())

	m.Reset()
	m.Wait()
}

func TestSubmitIsNoOpWhileLoopRuns(t *testing.T) {
	rec := newRecorder()
	m := New(&scripted{replies: []transport.Result{reply(true, "")}}, fastOptions(rec))

	started, err := m.Submit(context.Background(), "123456")
	require.NoError(t, err)
	require.True(t, started)
	rec.waitFor(t, EventUnlocked)

	started, err = m.Submit(context.Background(), "654321")
	require.NoError(t, err)
	assert.False(t, started)
	_, code := m.State()
	assert.Equal(t, "123456", code)

	m.Reset()
	m.Wait()
}

func TestRejectedCodeReturnsToLocked(t *testing.T) {
	rec := newRecorder()
	res := &scripted{replies: []transport.Result{reply(false, "code expired")}}
	m := New(res, fastOptions(rec))

	_, err := m.Submit(context.Background(), "123456")
	require.NoError(t, err)

	ev, _ := rec.waitFor(t, EventRejected)
	assert.Equal(t, "code expired", ev.Message)
	m.Wait()

	state, code := m.State()
	assert.Equal(t, Locked, state)
	assert.Empty(t, code)
	assert.False(t, m.Active())
	assert.Equal(t, 1, res.calls())

	started, err := m.Submit(context.Background(), "123456")
	require.NoError(t, err)
	assert.True(t, started, "a stopped loop must not block the next submit")
	m.Reset()
	m.Wait()
}

// ---- server errors ---------------------------------------------------------

func TestServerErrorAbortsByDefault(t *testing.T) {
	rec := newRecorder()
	res := &scripted{replies: []transport.Result{serverError(), reply(true, "")}}
	m := New(res, fastOptions(rec))

	_, err := m.Submit(context.Background(), "123456")
	require.NoError(t, err)

	ev, _ := rec.waitFor(t, EventServerError)
	assert.Equal(t, 500, ev.Status)
	m.Wait()

	state, _ := m.State()
	assert.Equal(t, Locked, state)
	assert.Equal(t, 1, res.calls())
}

func TestServerErrorRetryPolicyKeepsPolling(t *testing.T) {
	rec := newRecorder()
	opts := fastOptions(rec)
	opts.Policy = RetryOnServerError
	res := &scripted{replies: []transport.Result{serverError(), serverError(), reply(true, "")}}
	m := New(res, opts)

	_, err := m.Submit(context.Background(), "123456")
	require.NoError(t, err)

	_, skipped := rec.waitFor(t, EventUnlocked)
	assert.Equal(t, []EventKind{EventPolling, EventServerError, EventServerError}, kinds(skipped))

	m.Reset()
	m.Wait()
}

func TestServerErrorWhileUnlockedStaysUnlocked(t *testing.T) {
	rec := newRecorder()
	res := &scripted{replies: []transport.Result{reply(true, ""), serverError(), reply(true, "")}}
	m := New(res, fastOptions(rec))

	_, err := m.Submit(context.Background(), "123456")
	require.NoError(t, err)
	rec.waitFor(t, EventUnlocked)
	rec.waitFor(t, EventServerError)

	require.Eventually(t, func() bool { return res.calls() >= 4 }, 2*time.Second, time.Millisecond)
	assert.True(t, m.Unlocked())

	m.Reset()
	m.Wait()
}

func TestRevokedAfterUnlock(t *testing.T) {
	rec := newRecorder()
	res := &scripted{replies: []transport.Result{reply(true, ""), reply(true, ""), reply(false, "gone")}}
	m := New(res, fastOptions(rec))

	_, err := m.Submit(context.Background(), "123456")
	require.NoError(t, err)

	ev, skipped := rec.waitFor(t, EventRevoked)
	assert.Equal(t, "gone", ev.Message)
	assert.Contains(t, kinds(skipped), EventUnlocked)
	m.Wait()

	state, code := m.State()
	assert.Equal(t, Locked, state)
	assert.Empty(t, code)
}

// ---- reset / close ---------------------------------------------------------

func TestResetClearsCode(t *testing.T) {
	rec := newRecorder()
	m := New(&scripted{replies: []transport.Result{reply(true, "")}}, fastOptions(rec))

	_, err := m.Submit(context.Background(), "123456")
	require.NoError(t, err)
	rec.waitFor(t, EventUnlocked)

	m.Reset()
	m.Wait()
	rec.waitFor(t, EventReset)

	state, code := m.State()
	assert.Equal(t, Locked, state)
	assert.Empty(t, code)
	assert.False(t, m.Active())
}

// blocking holds every resolution until release is closed.
type blocking struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blocking) ResolveCode(ctx context.Context, _ string) transport.Result {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return reply(true, "")
}

func TestResetDuringInFlightResolveDropsLateResult(t *testing.T) {
	rec := newRecorder()
	res := &blocking{entered: make(chan struct{}), release: make(chan struct{})}
	m := New(res, fastOptions(rec))

	_, err := m.Submit(context.Background(), "123456")
	require.NoError(t, err)
	<-res.entered

	m.Reset()
	close(res.release)
	m.Wait()

	state, _ := m.State()
	assert.Equal(t, Locked, state)
	for _, ev := range rec.drain() {
		assert.NotEqual(t, EventUnlocked, ev.Kind)
		assert.NotEqual(t, EventStopped, ev.Kind, "a superseded loop must stay silent")
	}
}

func TestCloseWhileUnlockedPersistsCode(t *testing.T) {
	rec := newRecorder()
	opts := fastOptions(rec)
	opts.Interval = time.Hour
	m := New(&scripted{replies: []transport.Result{reply(true, "")}}, opts)

	_, err := m.Submit(context.Background(), "123456")
	require.NoError(t, err)
	rec.waitFor(t, EventUnlocked)

	saver := &memSaver{}
	start := time.Now()
	require.NoError(t, m.Close(saver))
	m.Wait()

	assert.Less(t, time.Since(start), time.Second, "the interval wait must be interruptible")
	assert.Equal(t, []string{"123456"}, saver.saved)
	assert.False(t, m.Active())
}

func TestCloseWhileLockedPersistsEmpty(t *testing.T) {
	saver := &memSaver{}
	m := New(&scripted{replies: []transport.Result{reply(true, "")}}, Options{})
	require.NoError(t, m.Close(saver))
	assert.Equal(t, []string{""}, saver.saved)
}

func TestCloseWhilePollingPersistsEmpty(t *testing.T) {
	res := &blocking{entered: make(chan struct{}), release: make(chan struct{})}
	m := New(res, fastOptions(newRecorder()))

	_, err := m.Submit(context.Background(), "123456")
	require.NoError(t, err)
	<-res.entered

	saver := &memSaver{}
	require.NoError(t, m.Close(saver))
	close(res.release)
	m.Wait()

	assert.Equal(t, []string{""}, saver.saved)
}

func TestCloseWrapsSaverError(t *testing.T) {
	boom := errors.New("disk full")
	m := New(&scripted{replies: []transport.Result{reply(true, "")}}, Options{})
	err := m.Close(&memSaver{err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestParentCancelStopsLoop(t *testing.T) {
	rec := newRecorder()
	opts := fastOptions(rec)
	opts.Interval = time.Hour
	m := New(&scripted{replies: []transport.Result{reply(true, "")}}, opts)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := m.Submit(ctx, "123456")
	require.NoError(t, err)
	rec.waitFor(t, EventUnlocked)

	cancel()
	rec.waitFor(t, EventStopped)
	m.Wait()
	assert.False(t, m.Active())
}

// ---- idle back-off ----------------------------------------------------------

func TestIdleBackOffLogsTransitionsOnce(t *testing.T) {
	rec := newRecorder()
	var checks atomic.Int32
	opts := fastOptions(rec)
	opts.IdleThreshold = time.Minute
	opts.Idle = func() (time.Duration, bool) {
		if checks.Add(1) <= 5 {
			return 2 * time.Minute, true
		}
		return 0, true
	}
	res := &scripted{replies: []transport.Result{reply(true, "")}}
	m := New(res, opts)

	_, err := m.Submit(context.Background(), "123456")
	require.NoError(t, err)

	_, skipped := rec.waitFor(t, EventUnlocked)
	assert.Equal(t, []EventKind{EventPolling, EventIdle, EventActive}, kinds(skipped))
	assert.GreaterOrEqual(t, checks.Load(), int32(6))

	m.Reset()
	m.Wait()
}

func TestIdleHoldsOffNetworkCalls(t *testing.T) {
	rec := newRecorder()
	opts := fastOptions(rec)
	opts.Idle = func() (time.Duration, bool) { return time.Hour, true }
	res := &scripted{replies: []transport.Result{reply(true, "")}}
	m := New(res, opts)

	_, err := m.Submit(context.Background(), "123456")
	require.NoError(t, err)
	rec.waitFor(t, EventIdle)
	time.Sleep(20 * time.Millisecond)

	assert.Zero(t, res.calls())
	m.Reset()
	m.Wait()
	for _, ev := range rec.drain() {
		assert.NotEqual(t, EventIdle, ev.Kind, "idle must be reported once")
	}
}

// ---- Verify ----------------------------------------------------------------

func TestVerify(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, Verify(ctx, &scripted{replies: []transport.Result{reply(true, "")}}, "123456"))
	assert.ErrorIs(t, Verify(ctx, &scripted{replies: []transport.Result{reply(false, "no")}}, "123456"), ErrCodeRejected)
	assert.ErrorIs(t, Verify(ctx, &scripted{replies: []transport.Result{serverError()}}, "123456"), ErrServerUnavailable)
	assert.ErrorIs(t, Verify(ctx, &scripted{replies: []transport.Result{reply(true, "")}}, "12"), ErrInvalidCode)
}
