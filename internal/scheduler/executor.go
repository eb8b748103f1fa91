package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"agentflow/internal/domain"
	"agentflow/internal/registry"
)

// execute runs one admitted record to a terminal or re-queued state. Handler
// failures never escape: they are folded into the retry state machine. The
// concurrency slot is released on every path.
func (s *Scheduler) execute(ctx context.Context, t domain.Task) {
	defer s.wg.Done()
	defer s.release(t.ID)

	desc, err := s.reg.Lookup(t.Type)
	if err != nil {
		// Operator/config error, not a task failure. Abandon without
		// mutating the record so it can be inspected and re-registered.
		s.log.Error().Str("task_id", t.ID).Str("type", t.Type).Msg("no handler registered, abandoning task")
		return
	}

	started := s.now()
	t.Status = domain.StatusRunning
	t.StartedAt = &started
	if err := s.store.Save(ctx, t); err != nil {
		s.log.Error().Err(err).Str("task_id", t.ID).Msg("persist running transition")
		return
	}

	result, herr := s.invoke(ctx, desc, t.Payload)
	if herr != nil {
		s.settleFailure(ctx, t, herr)
		return
	}

	completed := s.now()
	t.Status = domain.StatusCompleted
	t.CompletedAt = &completed
	t.Result = result
	if err := s.store.Save(ctx, t); err != nil {
		s.log.Error().Err(err).Str("task_id", t.ID).Msg("persist completed transition")
		return
	}
	s.log.Info().
		Str("task_id", t.ID).
		Str("type", t.Type).
		Dur("took", completed.Sub(started)).
		Int("retries", t.RetryCount).
		Msg("task completed")
}

// invoke runs the handler under the type's optional deadline. A panic is
// reported as a handler failure so it feeds the retry policy like any other.
func (s *Scheduler) invoke(ctx context.Context, desc registry.Descriptor, payload json.RawMessage) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	if desc.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, desc.Timeout)
		defer cancel()
	}
	return desc.Handler.Handle(ctx, payload)
}

// settleFailure re-queues with linear backoff while the retry budget lasts,
// otherwise marks the record terminally failed.
func (s *Scheduler) settleFailure(ctx context.Context, t domain.Task, herr error) {
	t.LastError = herr.Error()
	if t.RetryCount < t.MaxRetries {
		t.RetryCount++
		t.Status = domain.StatusPending
		next := s.now().Add(time.Duration(t.RetryCount) * s.cfg.BackoffUnit)
		t.ScheduledFor = &next
		s.log.Warn().
			Err(herr).
			Str("task_id", t.ID).
			Str("type", t.Type).
			Int("retry", t.RetryCount).
			Int("max_retries", t.MaxRetries).
			Time("next_attempt", next).
			Msg("task failed, retrying")
	} else {
		completed := s.now()
		t.Status = domain.StatusFailed
		t.CompletedAt = &completed
		s.log.Error().
			Err(herr).
			Str("task_id", t.ID).
			Str("type", t.Type).
			Int("retries", t.RetryCount).
			Msg("task failed permanently")
	}
	if err := s.store.Save(ctx, t); err != nil {
		s.log.Error().Err(err).Str("task_id", t.ID).Msg("persist failure transition")
	}
}
