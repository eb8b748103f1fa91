package domain

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a task record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is the persisted unit of schedulable work.
type Task struct {
	ID           string
	Type         string
	Priority     int // higher runs first
	Status       Status
	Payload      json.RawMessage
	Result       json.RawMessage
	AgentID      string
	RetryCount   int
	MaxRetries   int
	LastError    string
	CreatedAt    time.Time
	ScheduledFor *time.Time // nil = eligible immediately
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// ResourceLevel is an observability hint; nothing enforces it.
type ResourceLevel string

const (
	ResourceLow    ResourceLevel = "low"
	ResourceMedium ResourceLevel = "medium"
	ResourceHigh   ResourceLevel = "high"
)

type ResourceHints struct {
	CPU     ResourceLevel
	Memory  ResourceLevel
	Network ResourceLevel
}
