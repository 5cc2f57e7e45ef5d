// Package session owns the locked/unlocked state of a session code and the
// background loop that keeps re-resolving it against the server.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cloudxfer/internal/transport"

	"github.com/sirupsen/logrus"
)

// CodeLength is the number of digits in a session code.
const CodeLength = 6

// Defaults for Options.
const (
	DefaultInterval      = time.Minute
	DefaultIdleThreshold = time.Minute
	DefaultIdleRecheck   = time.Second
)

var (
	// ErrInvalidCode is returned for anything but six ASCII digits.
	ErrInvalidCode = errors.New("session code must be 6 digits")
	// ErrCodeRejected means the server answered but refused the code.
	ErrCodeRejected = errors.New("session code rejected")
	// ErrServerUnavailable means no usable answer came back.
	ErrServerUnavailable = errors.New("server failure or wrong server address")
)

// State of a session.
type State int

const (
	Locked State = iota
	Polling
	Unlocked
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case Polling:
		return "polling"
	case Unlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// EventKind identifies a session event.
type EventKind int

const (
	EventPolling     EventKind = iota + 1 // loop started for a code
	EventUnlocked                         // first successful resolution
	EventRejected                         // code refused before unlocking
	EventRevoked                          // code refused after unlocking
	EventServerError                      // non-200 or transport failure
	EventIdle                             // polling paused, user idle
	EventActive                           // polling resumed
	EventReset                            // explicit reset
	EventStopped                          // loop exited
)

// Event reports a state change or notable tick of the poll loop.
type Event struct {
	Kind    EventKind
	Code    string
	Message string
	Status  int
}

// Resolver checks a code against the server.
type Resolver interface {
	ResolveCode(ctx context.Context, code string) transport.Result
}

// CodeSaver persists the session code on close.
type CodeSaver interface {
	SaveCode(code string) error
}

// ServerErrorPolicy decides what a non-200 reply does before the first
// successful resolution.
type ServerErrorPolicy int

const (
	// AbortOnServerError stops the loop and returns to Locked.
	AbortOnServerError ServerErrorPolicy = iota
	// RetryOnServerError keeps polling.
	RetryOnServerError
)

// IdleFunc returns how long the user has been idle. ok is false when the
// platform cannot tell.
type IdleFunc func() (idle time.Duration, ok bool)

// NoIdle never reports idleness.
func NoIdle() (time.Duration, bool) { return 0, false }

// Options configure a Machine.
type Options struct {
	Interval      time.Duration
	IdleThreshold time.Duration
	IdleRecheck   time.Duration
	Idle          IdleFunc
	Policy        ServerErrorPolicy
	Notify        func(Event)
}

// Machine is the session state machine. Only one poll loop runs at a time.
type Machine struct {
	resolver Resolver
	opts     Options
	log      *logrus.Entry

	mu     sync.Mutex
	state  State
	code   string
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
	idle   bool
}

// New returns a locked machine resolving codes with r.
func New(r Resolver, opts Options) *Machine {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.IdleThreshold <= 0 {
		opts.IdleThreshold = DefaultIdleThreshold
	}
	if opts.IdleRecheck <= 0 {
		opts.IdleRecheck = DefaultIdleRecheck
	}
	if opts.Idle == nil {
		opts.Idle = NoIdle
	}
	return &Machine{
		resolver: r,
		opts:     opts,
		log:      logrus.WithField("component", "session"),
	}
}

// ValidCode reports whether code is exactly six ASCII digits.
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// State returns the current state and code.
func (m *Machine) State() (State, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.code
}

// Unlocked reports whether upload and download are currently allowed.
func (m *Machine) Unlocked() bool {
	s, _ := m.State()
	return s == Unlocked
}

// Active reports whether a poll loop is running.
func (m *Machine) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// Submit starts polling code. It is a no-op (started is false) while a poll
// loop is already running, whatever code it was started with.
func (m *Machine) Submit(ctx context.Context, code string) (started bool, err error) {
	code = strings.TrimSpace(code)
	if !ValidCode(code) {
		return false, ErrInvalidCode
	}

	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		m.log.WithField("code", code).Debug("Poll loop already running, ignoring submit")
		return false, nil
	}
	m.gen++
	gen := m.gen
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.state = Polling
	m.code = code
	m.cancel = cancel
	m.done = done
	m.idle = false
	m.mu.Unlock()

	m.emit(Event{Kind: EventPolling, Code: code})
	go m.run(loopCtx, gen, code, done)
	return true, nil
}

// Reset stops any loop and returns to Locked, clearing the code.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.stopLocked()
	m.mu.Unlock()
	m.emit(Event{Kind: EventReset})
}

// Close stops the loop and persists the code if the session was unlocked,
// or an empty code otherwise.
func (m *Machine) Close(saver CodeSaver) error {
	m.mu.Lock()
	code := ""
	if m.state == Unlocked {
		code = m.code
	}
	m.stopLocked()
	m.mu.Unlock()

	if saver == nil {
		return nil
	}
	if err := saver.SaveCode(code); err != nil {
		return fmt.Errorf("persist session code: %w", err)
	}
	return nil
}

// Wait blocks until the most recently started loop has exited.
func (m *Machine) Wait() {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}

// stopLocked invalidates the running loop. m.mu must be held.
func (m *Machine) stopLocked() {
	m.gen++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.state = Locked
	m.code = ""
	m.idle = false
}

func (m *Machine) run(ctx context.Context, gen uint64, code string, done chan struct{}) {
	defer close(done)
	defer m.finish(gen, code)

	for {
		if !m.awaitActive(ctx, gen) {
			return
		}
		res := m.resolver.ResolveCode(ctx, code)
		if ctx.Err() != nil {
			return
		}
		if !m.apply(gen, code, res) {
			return
		}
		if !sleep(ctx, m.opts.Interval) {
			return
		}
	}
}

func (m *Machine) finish(gen uint64, code string) {
	m.mu.Lock()
	current := m.gen == gen
	if current {
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		if m.state == Polling {
			m.state = Locked
			m.code = ""
		}
	}
	m.mu.Unlock()
	if current {
		m.emit(Event{Kind: EventStopped, Code: code})
	}
}

// apply interprets one resolution. It returns false when the loop must stop.
func (m *Machine) apply(gen uint64, code string, res transport.Result) bool {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return false
	}

	var ev *Event
	keep := true
	switch {
	case !res.OK():
		ev = &Event{Kind: EventServerError, Code: code, Status: res.StatusCode, Message: failureText(res)}
		if m.state == Polling && m.opts.Policy == AbortOnServerError {
			m.state = Locked
			m.code = ""
			keep = false
		}
	case res.Body.Success():
		if m.state == Polling {
			m.state = Unlocked
			ev = &Event{Kind: EventUnlocked, Code: code}
		}
	default:
		kind := EventRevoked
		if m.state == Polling {
			kind = EventRejected
		}
		ev = &Event{Kind: kind, Code: code, Message: res.Body.Message()}
		m.state = Locked
		m.code = ""
		keep = false
	}
	m.mu.Unlock()

	if ev != nil {
		m.emit(*ev)
	}
	return keep
}

// awaitActive holds off the next tick while the user is idle. It returns
// false when cancelled.
func (m *Machine) awaitActive(ctx context.Context, gen uint64) bool {
	for {
		idle, ok := m.opts.Idle()
		if !ok || idle <= m.opts.IdleThreshold {
			m.setIdle(gen, false)
			return true
		}
		m.setIdle(gen, true)
		if !sleep(ctx, m.opts.IdleRecheck) {
			return false
		}
	}
}

func (m *Machine) setIdle(gen uint64, idle bool) {
	m.mu.Lock()
	if m.gen != gen || m.idle == idle {
		m.mu.Unlock()
		return
	}
	m.idle = idle
	code := m.code
	m.mu.Unlock()

	kind := EventActive
	if idle {
		kind = EventIdle
	}
	m.emit(Event{Kind: kind, Code: code})
}

func (m *Machine) emit(ev Event) {
	m.log.WithFields(logrus.Fields{
		"event":  ev.Kind,
		"code":   ev.Code,
		"status": ev.Status,
		"msg":    ev.Message,
	}).Debug("Session event")
	if m.opts.Notify != nil {
		m.opts.Notify(ev)
	}
}

func failureText(res transport.Result) string {
	if res.Err != nil {
		return res.Err.Error()
	}
	return fmt.Sprintf("status %d", res.StatusCode)
}

// sleep waits for d or until ctx is done, reporting which happened first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Verify resolves code once, for callers that need a yes/no answer rather
// than a live session.
func Verify(ctx context.Context, r Resolver, code string) error {
	if !ValidCode(code) {
		return ErrInvalidCode
	}
	res := r.ResolveCode(ctx, code)
	if !res.OK() {
		return fmt.Errorf("%w: %s", ErrServerUnavailable, failureText(res))
	}
	if !res.Body.Success() {
		return fmt.Errorf("%w: %s", ErrCodeRejected, res.Body.Message())
	}
	return nil
}
