// Package scheduler owns the background task scheduling policy: submission,
// the polling tick, admission under a concurrency cap, the retry/backoff
// state machine, and crash recovery of interrupted work.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"agentflow/internal/domain"
	"agentflow/internal/registry"
	"agentflow/internal/store"
)

const (
	DefaultTickInterval  = 250 * time.Millisecond
	DefaultMaxConcurrent = 4
	DefaultFetchBatch    = 50
	DefaultBackoffUnit   = 5 * time.Second
	DefaultPriority      = 5
)

type Config struct {
	TickInterval    time.Duration
	MaxConcurrent   int
	FetchBatch      int           // max pending records read per tick
	BackoffUnit     time.Duration // retry delay = retryCount * BackoffUnit
	DefaultPriority int
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.FetchBatch <= 0 {
		c.FetchBatch = DefaultFetchBatch
	}
	if c.BackoffUnit <= 0 {
		c.BackoffUnit = DefaultBackoffUnit
	}
	if c.DefaultPriority <= 0 {
		c.DefaultPriority = DefaultPriority
	}
	return c
}

// Scheduler is constructed once at startup and passed by handle to callers.
// It is the sole mutator of a record while the record is in flight.
type Scheduler struct {
	cfg   Config
	store store.Store
	reg   *registry.Registry
	log   zerolog.Logger

	now func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}

	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	started  atomic.Bool
}

func New(cfg Config, st store.Store, reg *registry.Registry, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cfg:      cfg.withDefaults(),
		store:    st,
		reg:      reg,
		log:      log,
		now:      time.Now,
		inFlight: make(map[string]struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Options tunes a single submission. Zero values fall back to the type's
// defaults (MaxRetries) or the configured defaults (Priority).
type Options struct {
	Priority     int
	ScheduledFor *time.Time
	MaxRetries   *int
	AgentID      string
}

// Submit persists a new pending record and returns its id. It never triggers
// immediate execution; the record waits for the next tick.
func (s *Scheduler) Submit(ctx context.Context, typeName string, payload json.RawMessage, opts Options) (string, error) {
	desc, err := s.reg.Lookup(typeName)
	if err != nil {
		return "", err
	}

	maxRetries := desc.MaxRetries
	if opts.MaxRetries != nil && *opts.MaxRetries >= 0 {
		maxRetries = *opts.MaxRetries
	}
	priority := opts.Priority
	if priority == 0 {
		priority = s.cfg.DefaultPriority
	}

	t := domain.Task{
		ID:           "tsk_" + uuid.NewString(),
		Type:         typeName,
		Priority:     priority,
		Status:       domain.StatusPending,
		Payload:      payload,
		AgentID:      opts.AgentID,
		MaxRetries:   maxRetries,
		CreatedAt:    s.now(),
		ScheduledFor: opts.ScheduledFor,
	}
	if err := s.store.Save(ctx, t); err != nil {
		s.log.Error().Err(err).Str("type", typeName).Msg("persist submitted task")
		return "", fmt.Errorf("save task: %w", err)
	}
	s.log.Info().Str("task_id", t.ID).Str("type", typeName).Int("priority", priority).Msg("task submitted")
	return t.ID, nil
}

// Start requeues work interrupted by a previous process and launches the
// tick loop. Store trouble during recovery is logged, not fatal.
func (s *Scheduler) Start(ctx context.Context) {
	if n, err := s.recoverInterrupted(ctx); err != nil {
		s.log.Error().Err(err).Msg("recover interrupted tasks")
	} else if n > 0 {
		s.log.Info().Int("recovered", n).Msg("requeued interrupted tasks")
	}
	s.started.Store(true)
	go s.run(ctx)
}

// Stop halts the tick loop and waits for in-flight executions, bounded by
// ctx. In-flight work abandoned at deadline is picked up by crash recovery
// on the next start.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.started.Load() {
		select {
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	t := time.NewTicker(s.cfg.TickInterval)
	defer t.Stop()
	s.log.Info().
		Dur("tick", s.cfg.TickInterval).
		Int("max_concurrent", s.cfg.MaxConcurrent).
		Msg("scheduler started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case now := <-t.C:
			s.tick(ctx, now)
		}
	}
}

// tick pulls a bounded batch of pending records, filters to those eligible
// now, orders them (priority DESC, created_at ASC), and admits into free
// slots. It never waits on task completion.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	if s.freeSlots() == 0 {
		return
	}
	batch, err := s.store.Query(ctx, store.Filter{Status: domain.StatusPending, Limit: s.cfg.FetchBatch})
	if err != nil {
		s.log.Error().Err(err).Msg("query pending tasks")
		return
	}

	eligible := batch[:0]
	for _, t := range batch {
		if t.ScheduledFor != nil && now.Before(*t.ScheduledFor) {
			continue
		}
		eligible = append(eligible, t)
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].Priority != eligible[j].Priority {
			return eligible[i].Priority > eligible[j].Priority
		}
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})

	for _, t := range eligible {
		ok, full := s.admit(t.ID)
		if full {
			return
		}
		if !ok {
			// Already in flight: the store's pending row lags the
			// running transition. Never admit twice.
			continue
		}
		s.wg.Add(1)
		go s.execute(ctx, t)
	}
}

// admit reserves a concurrency slot for id. The second result reports that
// the cap is reached; the first that id now holds a slot.
func (s *Scheduler) admit(id string) (ok, full bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.inFlight) >= s.cfg.MaxConcurrent {
		return false, true
	}
	if _, dup := s.inFlight[id]; dup {
		return false, false
	}
	s.inFlight[id] = struct{}{}
	return true, false
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
}

func (s *Scheduler) freeSlots() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.MaxConcurrent - len(s.inFlight)
}

// recoverInterrupted forces records left in running state by a prior process
// back to pending, immediately eligible. Handlers must tolerate
// re-execution; this is an at-least-once model.
func (s *Scheduler) recoverInterrupted(ctx context.Context) (int, error) {
	stale, err := s.store.Query(ctx, store.Filter{Status: domain.StatusRunning})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range stale {
		t.Status = domain.StatusPending
		t.ScheduledFor = nil
		if err := s.store.Save(ctx, t); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// GetStatus returns the record for id, or store.ErrNotFound.
func (s *Scheduler) GetStatus(ctx context.Context, id string) (domain.Task, error) {
	return s.store.Get(ctx, id)
}

// ListByType returns up to limit records of the given type.
func (s *Scheduler) ListByType(ctx context.Context, typeName string, limit int) ([]domain.Task, error) {
	return s.store.Query(ctx, store.Filter{Type: typeName, Limit: limit})
}

// GetStats returns record counts per status from the store.
func (s *Scheduler) GetStats(ctx context.Context) (map[domain.Status]int, error) {
	return s.store.CountByStatus(ctx)
}

// InFlight returns the number of executions currently holding a slot.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}
