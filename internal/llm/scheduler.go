package llm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"hivemind/internal/logging"
)

// =============================================================================
// CALL SCHEDULER - SHARED API SLOT POOL
// =============================================================================
//
// Every specialist in the process shares one pool of API call slots. Many
// specialists may be evaluating or negotiating at once, but only maxSlots
// model calls run concurrently; the rest queue. Specialists release their
// slot after each call and re-acquire for the next, so a long negotiation
// cannot starve the pool.

// CallerPhase reports where a caller is in the call lifecycle.
type CallerPhase int

const (
	// PhaseIdle - registered, not calling
	PhaseIdle CallerPhase = iota
	// PhaseWaiting - queued for a slot
	PhaseWaiting
	// PhaseCalling - actively holding a slot
	PhaseCalling
)

func (p CallerPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseWaiting:
		return "waiting"
	case PhaseCalling:
		return "calling"
	default:
		return fmt.Sprintf("unknown(%d)", p)
	}
}

// CallerState tracks one caller's usage of the pool.
type CallerState struct {
	Name      string
	Phase     CallerPhase
	CallCount int
	TotalWait time.Duration
	LastCall  time.Time
}

type waitEntry struct {
	name      string
	waitStart time.Time
}

// Scheduler manages API call slots shared by all specialists.
type Scheduler struct {
	maxSlots int
	slots    chan struct{}

	mu      sync.RWMutex
	callers map[string]*CallerState
	waiting []*waitEntry

	totalCalls  int64
	totalWaitNs int64
	numWaiting  int32
	numCalling  int32

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a scheduler with the given slot count.
func NewScheduler(maxConcurrent int) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Scheduler{
		maxSlots: maxConcurrent,
		slots:    make(chan struct{}, maxConcurrent),
		callers:  make(map[string]*CallerState),
		stopCh:   make(chan struct{}),
	}
}

// Register creates state tracking for a caller.
func (s *Scheduler) Register(name string) *CallerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.callers[name]; ok {
		return state
	}
	state := &CallerState{Name: name, Phase: PhaseIdle}
	s.callers[name] = state
	logging.LLM("scheduler: registered caller %s", name)
	return state
}

// Unregister removes state tracking for a caller.
func (s *Scheduler) Unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.callers[name]; ok {
		delete(s.callers, name)
		logging.LLM("scheduler: unregistered caller %s (calls=%d, total_wait=%v)",
			name, state.CallCount, state.TotalWait)
	}
}

// Acquire blocks until a call slot is available, the context ends, or the
// scheduler stops.
func (s *Scheduler) Acquire(ctx context.Context, name string) error {
	s.mu.Lock()
	state, ok := s.callers[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("caller %s not registered with scheduler", name)
	}
	state.Phase = PhaseWaiting
	waitStart := time.Now()
	s.waiting = append(s.waiting, &waitEntry{name: name, waitStart: waitStart})
	s.mu.Unlock()

	atomic.AddInt32(&s.numWaiting, 1)
	defer atomic.AddInt32(&s.numWaiting, -1)

	if len(s.slots) >= s.maxSlots {
		logging.Get(logging.CategoryLLM).Debug("scheduler: %s waiting for slot (active=%d/%d, waiting=%d)",
			name, len(s.slots), s.maxSlots, atomic.LoadInt32(&s.numWaiting))
	}

	select {
	case s.slots <- struct{}{}:
		waited := time.Since(waitStart)

		s.mu.Lock()
		state.Phase = PhaseCalling
		state.TotalWait += waited
		state.LastCall = time.Now()
		s.dequeue(name)
		s.mu.Unlock()

		atomic.AddInt64(&s.totalWaitNs, int64(waited))
		atomic.AddInt32(&s.numCalling, 1)

		if waited > 100*time.Millisecond {
			logging.LLM("scheduler: %s acquired slot after %v", name, waited)
		}
		return nil

	case <-ctx.Done():
		s.mu.Lock()
		state.Phase = PhaseIdle
		s.dequeue(name)
		s.mu.Unlock()

		logging.Get(logging.CategoryLLM).Warn("scheduler: %s cancelled while waiting for slot (waited %v)",
			name, time.Since(waitStart))
		return ctx.Err()

	case <-s.stopCh:
		s.mu.Lock()
		s.dequeue(name)
		s.mu.Unlock()
		return fmt.Errorf("scheduler stopped")
	}
}

// dequeue removes a caller from the wait queue. Callers hold s.mu.
func (s *Scheduler) dequeue(name string) {
	for i, e := range s.waiting {
		if e.name == name {
			s.waiting = append(s.waiting[:i], s.waiting[i+1:]...)
			return
		}
	}
}

// Release returns the slot after a call completes.
func (s *Scheduler) Release(name string) {
	select {
	case <-s.slots:
	default:
		logging.Get(logging.CategoryLLM).Error("scheduler: %s released slot it didn't hold", name)
		return
	}

	atomic.AddInt32(&s.numCalling, -1)
	atomic.AddInt64(&s.totalCalls, 1)

	s.mu.Lock()
	if state, ok := s.callers[name]; ok {
		state.Phase = PhaseIdle
		state.CallCount++
	}
	s.mu.Unlock()
}

// Metrics returns a snapshot of scheduler state.
func (s *Scheduler) Metrics() SchedulerMetrics {
	s.mu.RLock()
	registered := len(s.callers)
	queued := len(s.waiting)
	phases := make(map[CallerPhase]int)
	for _, state := range s.callers {
		phases[state.Phase]++
	}
	s.mu.RUnlock()

	return SchedulerMetrics{
		MaxSlots:          s.maxSlots,
		ActiveSlots:       int(atomic.LoadInt32(&s.numCalling)),
		WaitingForSlot:    int(atomic.LoadInt32(&s.numWaiting)),
		TotalCalls:        atomic.LoadInt64(&s.totalCalls),
		TotalWaitTimeNs:   atomic.LoadInt64(&s.totalWaitNs),
		RegisteredCallers: registered,
		QueuedCallers:     queued,
		PhaseDistribution: phases,
	}
}

// SchedulerMetrics provides observability into pool state.
type SchedulerMetrics struct {
	MaxSlots          int
	ActiveSlots       int
	WaitingForSlot    int
	TotalCalls        int64
	TotalWaitTimeNs   int64
	RegisteredCallers int
	QueuedCallers     int
	PhaseDistribution map[CallerPhase]int
}

// String returns a human-readable summary.
func (m SchedulerMetrics) String() string {
	avgWait := time.Duration(0)
	if m.TotalCalls > 0 {
		avgWait = time.Duration(m.TotalWaitTimeNs / m.TotalCalls)
	}
	return fmt.Sprintf("slots=%d/%d, waiting=%d, calls=%d, avg_wait=%v, callers=%d",
		m.ActiveSlots, m.MaxSlots, m.WaitingForSlot, m.TotalCalls, avgWait, m.RegisteredCallers)
}

// Stop shuts down the scheduler. Waiters are released with an error.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// -----------------------------------------------------------------------------
// Scheduled Client Wrapper
// -----------------------------------------------------------------------------

// Scheduled wraps a Client with slot acquisition and release. It implements
// Client so it can be injected wherever a bare client is expected.
type Scheduled struct {
	Scheduler *Scheduler
	Caller    string
	Client    Client
}

// Compile-time assertion that Scheduled implements Client
var _ Client = (*Scheduled)(nil)

// NewScheduled wraps a client for one named caller, registering the caller
// with the scheduler if needed.
func NewScheduled(s *Scheduler, caller string, client Client) *Scheduled {
	s.Register(caller)
	return &Scheduled{Scheduler: s, Caller: caller, Client: client}
}

// Complete makes a scheduled call with a single prompt.
func (c *Scheduled) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.Scheduler.Acquire(ctx, c.Caller); err != nil {
		return "", fmt.Errorf("failed to acquire call slot: %w", err)
	}
	defer c.Scheduler.Release(c.Caller)

	return c.Client.Complete(ctx, prompt)
}

// CompleteWithSystem makes a scheduled call with a system prompt.
func (c *Scheduled) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := c.Scheduler.Acquire(ctx, c.Caller); err != nil {
		return "", fmt.Errorf("failed to acquire call slot: %w", err)
	}
	defer c.Scheduler.Release(c.Caller)

	return c.Client.CompleteWithSystem(ctx, systemPrompt, userPrompt)
}

// CompleteWithRetry makes a scheduled call with retries. The slot is
// released between attempts so other callers are not blocked by backoff.
func (c *Scheduled) CompleteWithRetry(ctx context.Context, systemPrompt, userPrompt string, maxRetries int) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.Scheduler.Acquire(ctx, c.Caller); err != nil {
			return "", fmt.Errorf("failed to acquire call slot (attempt %d): %w", attempt+1, err)
		}

		result, err := c.Client.CompleteWithSystem(ctx, systemPrompt, userPrompt)
		c.Scheduler.Release(c.Caller)

		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt < maxRetries {
			backoff := time.Duration(1<<attempt) * 100 * time.Millisecond
			if backoff > 5*time.Second {
				backoff = 5 * time.Second
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
				logging.Get(logging.CategoryLLM).Debug("scheduler: %s retrying after error (attempt %d/%d): %v",
					c.Caller, attempt+1, maxRetries, err)
			}
		}
	}

	return "", fmt.Errorf("all %d attempts failed, last error: %w", maxRetries+1, lastErr)
}
