// Package store persists task records and answers the status-filtered,
// limit-bounded queries the scheduler polls with.
package store

import (
	"context"
	"errors"

	"agentflow/internal/domain"
)

var ErrNotFound = errors.New("task not found")

// Filter narrows a Query. Zero values mean "any".
type Filter struct {
	Status domain.Status
	Type   string
	Limit  int // <= 0 means unbounded
}

// Store is the durable task store. Save upserts by id. Query returns
// matching records ordered by priority DESC, created_at ASC so admission
// order matches durable order.
type Store interface {
	Save(ctx context.Context, t domain.Task) error
	Get(ctx context.Context, id string) (domain.Task, error)
	Query(ctx context.Context, f Filter) ([]domain.Task, error)
	CountByStatus(ctx context.Context) (map[domain.Status]int, error)
}
