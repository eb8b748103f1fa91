package store

import (
	"context"
	"sort"
	"sync"

	"agentflow/internal/domain"
)

// Memory is a mutex-guarded map store. It backs tests and embedded callers
// that don't want a database on disk, and can inject save/query failures.
type Memory struct {
	mu       sync.RWMutex
	tasks    map[string]domain.Task
	saveErr  error
	queryErr error
}

func NewMemory() *Memory {
	return &Memory{tasks: make(map[string]domain.Task)}
}

// FailSave makes every subsequent Save return err until called with nil.
func (m *Memory) FailSave(err error) {
	m.mu.Lock()
	m.saveErr = err
	m.mu.Unlock()
}

// FailQuery makes every subsequent Query return err until called with nil.
func (m *Memory) FailQuery(err error) {
	m.mu.Lock()
	m.queryErr = err
	m.mu.Unlock()
}

func (m *Memory) Save(ctx context.Context, t domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.tasks[t.ID] = t
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) Query(ctx context.Context, f Filter) ([]domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.queryErr != nil {
		return nil, m.queryErr
	}

	var tasks []domain.Task
	for _, t := range m.tasks {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority > tasks[j].Priority
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	if f.Limit > 0 && len(tasks) > f.Limit {
		tasks = tasks[:f.Limit]
	}
	return tasks, nil
}

func (m *Memory) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[domain.Status]int)
	for _, t := range m.tasks {
		counts[t.Status]++
	}
	return counts, nil
}
