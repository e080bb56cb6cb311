package detection

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// TaskState is the debounce state of a thread identity.
type TaskState int

const (
	StateUnscheduled TaskState = iota
	StateScheduled
	StateAnalyzed
)

func (s TaskState) String() string {
	switch s {
	case StateScheduled:
		return "scheduled"
	case StateAnalyzed:
		return "analyzed"
	default:
		return "unscheduled"
	}
}

// Claimer arbitrates debounce ownership of a thread across processes.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type task struct {
	state      TaskState
	timer      *time.Timer
	fire       func(context.Context)
	analyzedAt time.Time
}

// Scheduler defers one analysis per thread identity by a fixed quiet period.
// Tasks are never cancelled; the fire function re-validates at run time.
type Scheduler struct {
	delay     time.Duration
	retention time.Duration
	claimer   Claimer

	mu     sync.Mutex
	tasks  map[string]*task
	closed bool
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler. Analyzed identities are remembered for
// retention so duplicate root events do not trigger a second analysis.
func NewScheduler(delay, retention time.Duration, claimer Claimer) *Scheduler {
	return &Scheduler{
		delay:     delay,
		retention: retention,
		claimer:   claimer,
		tasks:     make(map[string]*task),
	}
}

// Schedule arranges for fire to run once after the quiet period. It returns
// immediately, and reports false if a task for id already exists, another
// replica claimed it, or the scheduler is shutting down.
func (s *Scheduler) Schedule(ctx context.Context, id ThreadIdentity, fire func(context.Context)) bool {
	key := id.Key()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if _, exists := s.tasks[key]; exists {
		s.mu.Unlock()
		return false
	}
	t := &task{state: StateScheduled, fire: fire}
	s.tasks[key] = t
	s.wg.Add(1)
	s.mu.Unlock()

	if s.claimer != nil {
		ok, err := s.claimer.Claim(ctx, "incidentwatch:debounce:"+key, s.delay+s.retention)
		if err != nil {
			slog.Warn("debounce claim failed, scheduling locally",
				"channel", id.ChannelID, "thread_ts", id.ThreadTS, "error", err)
		} else if !ok {
			s.mu.Lock()
			t.state = StateAnalyzed
			t.analyzedAt = time.Now()
			s.mu.Unlock()
			s.wg.Done()
			slog.Debug("debounce claimed by another replica", "channel", id.ChannelID, "thread_ts", id.ThreadTS)
			return false
		}
	}

	s.mu.Lock()
	t.timer = time.AfterFunc(s.delay, func() { s.run(key, t) })
	s.mu.Unlock()
	return true
}

func (s *Scheduler) run(key string, t *task) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduled analysis panicked", "thread", key, "panic", r, "stack", string(debug.Stack()))
		}
		s.mu.Lock()
		t.state = StateAnalyzed
		t.analyzedAt = time.Now()
		s.mu.Unlock()
	}()
	t.fire(context.Background())
}

// State returns the current debounce state of id.
func (s *Scheduler) State(id ThreadIdentity) TaskState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id.Key()]; ok {
		return t.state
	}
	return StateUnscheduled
}

// Pending returns the number of scheduled tasks that have not finished.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if t.state == StateScheduled {
			n++
		}
	}
	return n
}

// Sweep forgets analyzed identities older than the retention window and
// returns how many were removed.
func (s *Scheduler) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, t := range s.tasks {
		if t.state == StateAnalyzed && now.Sub(t.analyzedAt) >= s.retention {
			delete(s.tasks, key)
			removed++
		}
	}
	return removed
}

// Wait blocks until every scheduled task has run.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Shutdown stops accepting new tasks, runs pending ones without waiting for
// their quiet period, and waits for them until ctx is done.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for key, t := range s.tasks {
		if t.state == StateScheduled && t.timer != nil && t.timer.Stop() {
			go s.run(key, t)
		}
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
