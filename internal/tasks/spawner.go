// Package tasks runs background work with a bound on how many jobs execute
// at once.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// DefaultWorkers is used when New is given a non-positive limit.
const DefaultWorkers = 4

var (
	ErrClosed          = errors.New("spawner is shut down")
	ErrShutdownTimeout = errors.New("tasks still running after shutdown timeout")
)

// Func is a unit of work. It must return promptly once ctx is done.
type Func func(ctx context.Context) error

// Handle tracks one spawned task.
type Handle struct {
	ID   string
	Name string

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Done is closed when the task has finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the task finishes and returns its error.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Cancel asks the task to stop. It does not wait.
func (h *Handle) Cancel() { h.cancel() }

// Spawner starts tasks, at most a fixed number running at once. Tasks over
// the limit wait for a slot and can be cancelled while waiting.
type Spawner struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	log    *logrus.Entry
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	running map[string]*Handle
}

// New returns a spawner that runs at most workers tasks concurrently.
func New(workers int) *Spawner {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Spawner{
		sem:     semaphore.NewWeighted(int64(workers)),
		ctx:     ctx,
		cancel:  cancel,
		log:     logrus.WithField("component", "tasks"),
		running: make(map[string]*Handle),
	}
}

// Go starts fn in the background. After Shutdown the returned handle is
// already done with ErrClosed.
func (s *Spawner) Go(name string, fn Func) *Handle {
	ctx, cancel := context.WithCancel(s.ctx)
	h := &Handle{
		ID:     uuid.NewString(),
		Name:   name,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		h.err = ErrClosed
		close(h.done)
		return h
	}
	s.running[h.ID] = h
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(ctx, h, fn)
	return h
}

func (s *Spawner) run(ctx context.Context, h *Handle, fn Func) {
	log := s.log.WithFields(logrus.Fields{"task": h.Name, "id": h.ID})
	defer func() {
		h.cancel()
		s.mu.Lock()
		delete(s.running, h.ID)
		s.mu.Unlock()
		close(h.done)
		s.wg.Done()
	}()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		h.err = err
		log.Debug("Cancelled before start")
		return
	}
	defer s.sem.Release(1)

	start := time.Now()
	log.Debug("Task started")
	h.err = fn(ctx)
	entry := log.WithField("elapsed", time.Since(start))
	if h.err != nil {
		entry.WithError(h.err).Debug("Task failed")
	} else {
		entry.Debug("Task finished")
	}
}

// Running returns the number of tasks started and not yet finished,
// including those waiting for a slot.
func (s *Spawner) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Shutdown cancels every task and waits up to timeout for them to return.
// Further calls to Go fail with ErrClosed.
func (s *Spawner) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-finished:
		return nil
	case <-t.C:
	}

	s.mu.Lock()
	names := make([]string, 0, len(s.running))
	for _, h := range s.running {
		names = append(names, h.Name)
	}
	s.mu.Unlock()
	sort.Strings(names)
	return fmt.Errorf("%w: %v", ErrShutdownTimeout, names)
}
