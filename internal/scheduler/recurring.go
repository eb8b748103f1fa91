package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// RecurringEntry re-submits a task at a fixed interval. Intervals are plain
// durations; there is deliberately no cron/calendar syntax here.
type RecurringEntry struct {
	Type     string
	Every    time.Duration
	Payload  json.RawMessage
	Priority int
	AgentID  string
}

// Recurring drives periodic submissions, e.g. price monitoring sweeps.
type Recurring struct {
	sched *Scheduler
	cron  *cron.Cron
	log   zerolog.Logger
}

func NewRecurring(s *Scheduler, log zerolog.Logger) *Recurring {
	return &Recurring{sched: s, cron: cron.New(), log: log}
}

// Add registers an entry. The type must already be registered; intervals
// below one second are rejected (the constant-delay schedule rounds up).
func (r *Recurring) Add(e RecurringEntry) error {
	if e.Every < time.Second {
		return fmt.Errorf("recurring %q: interval %s too short (minimum 1s)", e.Type, e.Every)
	}
	if _, err := r.sched.reg.Lookup(e.Type); err != nil {
		return err
	}
	entry := e
	r.cron.Schedule(cron.Every(entry.Every), cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		id, err := r.sched.Submit(ctx, entry.Type, entry.Payload, Options{
			Priority: entry.Priority,
			AgentID:  entry.AgentID,
		})
		if err != nil {
			r.log.Error().Err(err).Str("type", entry.Type).Msg("recurring submit failed")
			return
		}
		r.log.Debug().Str("task_id", id).Str("type", entry.Type).Msg("recurring task enqueued")
	}))
	return nil
}

func (r *Recurring) Start() { r.cron.Start() }

// Stop halts scheduling and waits for any submission in progress.
func (r *Recurring) Stop() {
	<-r.cron.Stop().Done()
}
