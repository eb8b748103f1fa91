package store

import (
	"context"
	"database/sql"
	"strings"

	"agentflow/internal/domain"
)

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  priority INTEGER NOT NULL DEFAULT 5,
  status TEXT NOT NULL CHECK(status IN ('pending','running','completed','failed')) DEFAULT 'pending',
  payload BLOB,
  result BLOB,
  agent_id TEXT NOT NULL DEFAULT '',
  retry_count INTEGER NOT NULL DEFAULT 0,
  max_retries INTEGER NOT NULL DEFAULT 3,
  last_error TEXT NOT NULL DEFAULT '',
  created_at DATETIME NOT NULL,
  scheduled_for DATETIME,
  started_at DATETIME,
  completed_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_tasks_ready ON tasks(status, priority DESC, created_at ASC);
CREATE INDEX IF NOT EXISTS idx_tasks_type ON tasks(type, created_at ASC);
`
	_, err := db.Exec(schema)
	return err
}

type sqliteStore struct{ db *sql.DB }

func NewSQLite(db *sql.DB) Store { return &sqliteStore{db: db} }

const taskColumns = `id,type,priority,status,payload,result,agent_id,retry_count,max_retries,last_error,created_at,scheduled_for,started_at,completed_at`

func (s *sqliteStore) Save(ctx context.Context, t domain.Task) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO tasks (`+taskColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  type=excluded.type, priority=excluded.priority, status=excluded.status,
  payload=excluded.payload, result=excluded.result, agent_id=excluded.agent_id,
  retry_count=excluded.retry_count, max_retries=excluded.max_retries,
  last_error=excluded.last_error, scheduled_for=excluded.scheduled_for,
  started_at=excluded.started_at, completed_at=excluded.completed_at
`, t.ID, t.Type, t.Priority, string(t.Status), []byte(t.Payload), []byte(t.Result),
		t.AgentID, t.RetryCount, t.MaxRetries, t.LastError,
		t.CreatedAt, t.ScheduledFor, t.StartedAt, t.CompletedAt)
	return err
}

func (s *sqliteStore) Get(ctx context.Context, id string) (domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return domain.Task{}, ErrNotFound
	}
	return t, err
}

func (s *sqliteStore) Query(ctx context.Context, f Filter) ([]domain.Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks`
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, f.Type)
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY priority DESC, created_at ASC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *sqliteStore) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.Status(status)] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (domain.Task, error) {
	var (
		t               domain.Task
		status          string
		payload, result []byte
		scheduledFor    sql.NullTime
		startedAt       sql.NullTime
		completedAt     sql.NullTime
	)
	err := row.Scan(&t.ID, &t.Type, &t.Priority, &status, &payload, &result,
		&t.AgentID, &t.RetryCount, &t.MaxRetries, &t.LastError,
		&t.CreatedAt, &scheduledFor, &startedAt, &completedAt)
	if err != nil {
		return domain.Task{}, err
	}
	t.Status = domain.Status(status)
	t.Payload = payload
	t.Result = result
	if scheduledFor.Valid {
		v := scheduledFor.Time
		t.ScheduledFor = &v
	}
	if startedAt.Valid {
		v := startedAt.Time
		t.StartedAt = &v
	}
	if completedAt.Valid {
		v := completedAt.Time
		t.CompletedAt = &v
	}
	return t, nil
}
