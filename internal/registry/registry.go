package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"agentflow/internal/domain"
)

var ErrUnknownTaskType = errors.New("unknown task type")

// Handler performs the work behind a task type. A nil error means success;
// the returned document (may be nil) is persisted as the task's result.
type Handler interface {
	Handle(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

func (f HandlerFunc) Handle(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	return f(ctx, payload)
}

// Descriptor binds a task type name to its handler and defaults.
type Descriptor struct {
	Name              string
	Handler           Handler
	MaxRetries        int
	EstimatedDuration time.Duration // informational only
	Timeout           time.Duration // per-execution deadline; 0 = none
	Resources         domain.ResourceHints
}

// Registry maps task type names to descriptors. All registration happens
// during startup wiring; after that the registry is read-only, which makes
// concurrent Lookup calls from scheduler ticks safe without locking.
type Registry struct {
	types map[string]Descriptor
}

func New() *Registry {
	return &Registry{types: make(map[string]Descriptor)}
}

func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return errors.New("task type name is required")
	}
	if d.Handler == nil {
		return fmt.Errorf("task type %q: handler is required", d.Name)
	}
	if _, exists := r.types[d.Name]; exists {
		return fmt.Errorf("task type %q already registered", d.Name)
	}
	if d.MaxRetries < 0 {
		d.MaxRetries = 0
	}
	r.types[d.Name] = d
	return nil
}

func (r *Registry) Lookup(name string) (Descriptor, error) {
	d, ok := r.types[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownTaskType, name)
	}
	return d, nil
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
