package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"agentflow/internal/domain"
	"agentflow/internal/registry"
	"agentflow/internal/scheduler"
	"agentflow/internal/store"
)

type Server struct {
	r       *chi.Mux
	sched   *scheduler.Scheduler
	limiter *rate.Limiter
}

// NewServer exposes the scheduler's submission and query surface over HTTP.
// Submissions are throttled by the given rate; reads are not.
func NewServer(sched *scheduler.Scheduler, submitPerSec float64, submitBurst int) http.Handler {
	if submitPerSec <= 0 {
		submitPerSec = 50
	}
	if submitBurst <= 0 {
		submitBurst = 100
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, sched: sched, limiter: rate.NewLimiter(rate.Limit(submitPerSec), submitBurst)}

	r.Get("/health", s.health)
	r.Post("/api/tasks", s.submitTask)
	r.Get("/api/tasks/{id}", s.getTask)
	r.Get("/api/tasks", s.listTasks)
	r.Get("/api/stats", s.stats)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type submitReq struct {
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Priority     int             `json:"priority"`
	MaxRetries   *int            `json:"max_retries"`
	ScheduledFor *time.Time      `json:"scheduled_for"`
	AgentID      string          `json:"agent_id"`
}

type submitResp struct {
	ID string `json:"id"`
}

func (s *Server) submitTask(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		http.Error(w, "submission rate exceeded", http.StatusTooManyRequests)
		return
	}
	var req submitReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if req.Type == "" {
		http.Error(w, "type is required", 400)
		return
	}
	id, err := s.sched.Submit(r.Context(), req.Type, req.Payload, scheduler.Options{
		Priority:     req.Priority,
		MaxRetries:   req.MaxRetries,
		ScheduledFor: req.ScheduledFor,
		AgentID:      req.AgentID,
	})
	if err != nil {
		if errors.Is(err, registry.ErrUnknownTaskType) {
			http.Error(w, err.Error(), 400)
			return
		}
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResp{ID: id})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := s.sched.GetStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "not found", 404)
			return
		}
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, 200, taskView(t))
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	typeName := r.URL.Query().Get("type")
	if typeName == "" {
		http.Error(w, "type is required", 400)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	tasks, err := s.sched.ListByType(r.Context(), typeName, limit)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	views := make([]map[string]any, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, taskView(t))
	}
	writeJSON(w, 200, views)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.sched.GetStats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, 200, map[string]any{
		"counts":    counts,
		"in_flight": s.sched.InFlight(),
	})
}

func taskView(t domain.Task) map[string]any {
	v := map[string]any{
		"id":          t.ID,
		"type":        t.Type,
		"status":      string(t.Status),
		"priority":    t.Priority,
		"retry_count": t.RetryCount,
		"max_retries": t.MaxRetries,
		"created_at":  t.CreatedAt.Format(time.RFC3339),
	}
	if t.AgentID != "" {
		v["agent_id"] = t.AgentID
	}
	if t.LastError != "" {
		v["last_error"] = t.LastError
	}
	if len(t.Result) > 0 {
		v["result"] = json.RawMessage(t.Result)
	}
	if t.ScheduledFor != nil {
		v["scheduled_for"] = t.ScheduledFor.Format(time.RFC3339)
	}
	if t.StartedAt != nil {
		v["started_at"] = t.StartedAt.Format(time.RFC3339)
	}
	if t.CompletedAt != nil {
		v["completed_at"] = t.CompletedAt.Format(time.RFC3339)
	}
	return v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
