// Package goal runs autonomous goals: a described objective broken into
// ordered steps, executed sequentially with a per-step progress note.
package goal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type Runner struct{}

type Goal struct {
	Description string   `json:"description"`
	Steps       []string `json:"steps"`
	StepDelay   int      `json:"step_delay_ms"` // pause between steps
}

type Report struct {
	Description    string    `json:"description"`
	StepsCompleted int       `json:"steps_completed"`
	Notes          []string  `json:"notes"`
	FinishedAt     time.Time `json:"finished_at"`
}

func (Runner) Handle(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var g Goal
	if err := json.Unmarshal(payload, &g); err != nil {
		return nil, fmt.Errorf("invalid goal payload: %w", err)
	}
	if g.Description == "" {
		return nil, fmt.Errorf("description is required")
	}
	if len(g.Steps) == 0 {
		g.Steps = []string{g.Description}
	}

	rep := Report{Description: g.Description}
	for _, step := range g.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if g.StepDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(g.StepDelay) * time.Millisecond):
			}
		}
		rep.Notes = append(rep.Notes, "completed: "+step)
		rep.StepsCompleted++
	}
	rep.FinishedAt = time.Now().UTC()
	return json.Marshal(rep)
}
