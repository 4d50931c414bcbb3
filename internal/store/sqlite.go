package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is an on-disk single-process Storage backend: the in-memory
// backend's semantics, persisted across restarts, for deployments that
// want durability without standing up Postgres. Grounded on the teacher's
// internal/db/sqlite.go (same driver, same WAL/busy-timeout DSN suffix,
// same single-writer MaxOpenConns(1) pool sizing).
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (and creates if absent) a SQLite database at path.
func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		path = "bindu.db"
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite only supports one writer

	s := &SQLite{db: db}
	if err := s.bootstrap(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) bootstrap() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS contexts (
			context_id TEXT PRIMARY KEY,
			context_data TEXT NOT NULL DEFAULT '{}',
			message_history TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			context_id TEXT NOT NULL,
			state TEXT NOT NULL,
			state_timestamp TEXT NOT NULL,
			history TEXT NOT NULL DEFAULT '[]',
			artifacts TEXT NOT NULL DEFAULT '[]',
			metadata TEXT NOT NULL DEFAULT '{}',
			kind TEXT NOT NULL DEFAULT 'task',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS tasks_context_id_idx ON tasks (context_id)`,
		`CREATE INDEX IF NOT EXISTS tasks_state_idx ON tasks (state)`,
		`CREATE INDEX IF NOT EXISTS tasks_updated_at_idx ON tasks (updated_at DESC)`,
		`CREATE TABLE IF NOT EXISTS task_feedback (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS task_feedback_task_id_idx ON task_feedback (task_id)`,
		`CREATE TABLE IF NOT EXISTS webhook_configs (
			task_id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			bearer_token TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: sqlite bootstrap: %w", err)
		}
	}
	return nil
}

func (s *SQLite) SubmitTask(ctx context.Context, contextID string, message Message) (*Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	nowStr := now.Format(time.RFC3339Nano)

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM contexts WHERE context_id=?)`, contextID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("store: check context: %w", err)
	}
	if !exists {
		if _, err := tx.ExecContext(ctx, `INSERT INTO contexts (context_id, context_data, message_history, created_at, updated_at) VALUES (?, '{}', '[]', ?, ?)`, contextID, nowStr, nowStr); err != nil {
			return nil, fmt.Errorf("store: create context: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `UPDATE contexts SET updated_at=? WHERE context_id=?`, nowStr, contextID); err != nil {
			return nil, fmt.Errorf("store: touch context: %w", err)
		}
	}

	taskID := newID()
	if message.MessageID == "" {
		message.MessageID = newID()
	}
	message.TaskID = taskID
	message.ContextID = contextID

	historyJSON, err := json.Marshal([]Message{message})
	if err != nil {
		return nil, fmt.Errorf("store: marshal history: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO tasks (id, context_id, state, state_timestamp, history, artifacts, metadata, kind, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, '[]', '{}', ?, ?, ?)`,
		taskID, contextID, string(TaskSubmitted), nowStr, string(historyJSON), string(KindTask), nowStr, nowStr); err != nil {
		return nil, fmt.Errorf("store: insert task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}
	return s.LoadTask(ctx, taskID, 0)
}

func (s *SQLite) UpdateTask(ctx context.Context, taskID string, update TaskUpdate) (*Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	var state, historyJSON, artifactsJSON, metadataJSON string
	row := tx.QueryRowContext(ctx, `SELECT state, history, artifacts, metadata FROM tasks WHERE id=?`, taskID)
	if err := row.Scan(&state, &historyJSON, &artifactsJSON, &metadataJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("store: load task for update: %w", err)
	}

	cur := TaskState(state)
	if IsTerminal(cur) && !update.FeedbackOnly {
		return nil, ErrTerminalTaskImmutable
	}

	newState := cur
	stateChanged := false
	if update.NewState != nil && *update.NewState != cur {
		if !CanTransition(cur, *update.NewState) {
			return nil, ErrInvalidTransition
		}
		newState = *update.NewState
		stateChanged = true
	}

	var history []Message
	json.Unmarshal([]byte(historyJSON), &history)
	history = append(history, update.NewMessages...)

	var artifacts []Artifact
	json.Unmarshal([]byte(artifactsJSON), &artifacts)
	artifacts = append(artifacts, update.NewArtifacts...)

	metadata := map[string]any{}
	if metadataJSON != "" {
		json.Unmarshal([]byte(metadataJSON), &metadata)
	}
	for k, v := range update.MetadataMerge {
		metadata[k] = v
	}

	newHistoryJSON, _ := json.Marshal(history)
	newArtifactsJSON, _ := json.Marshal(artifacts)
	newMetadataJSON, _ := json.Marshal(metadata)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	if stateChanged {
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET state=?, state_timestamp=?, history=?, artifacts=?, metadata=?, updated_at=? WHERE id=?`,
			string(newState), now, string(newHistoryJSON), string(newArtifactsJSON), string(newMetadataJSON), now, taskID); err != nil {
			return nil, fmt.Errorf("store: update task: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET history=?, artifacts=?, metadata=?, updated_at=? WHERE id=?`,
			string(newHistoryJSON), string(newArtifactsJSON), string(newMetadataJSON), now, taskID); err != nil {
			return nil, fmt.Errorf("store: update task: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}
	return s.LoadTask(ctx, taskID, 0)
}

func scanTask(row interface {
	Scan(dest ...any) error
}) (*Task, error) {
	var t Task
	var state, kind, stateTS, createdAt, updatedAt, historyJSON, artifactsJSON, metadataJSON string
	if err := row.Scan(&t.ID, &t.ContextID, &state, &stateTS, &historyJSON, &artifactsJSON, &metadataJSON, &kind, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.State = TaskState(state)
	t.Kind = TaskKind(kind)
	t.StateTimestamp, _ = time.Parse(time.RFC3339Nano, stateTS)
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	json.Unmarshal([]byte(historyJSON), &t.History)
	json.Unmarshal([]byte(artifactsJSON), &t.Artifacts)
	if metadataJSON != "" {
		json.Unmarshal([]byte(metadataJSON), &t.Metadata)
	}
	return &t, nil
}

func (s *SQLite) LoadTask(ctx context.Context, taskID string, historyLength int) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, context_id, state, state_timestamp, history, artifacts, metadata, kind, created_at, updated_at FROM tasks WHERE id=?`, taskID)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: load task: %w", err)
	}
	if historyLength > 0 && len(t.History) > historyLength {
		t.History = t.History[len(t.History)-historyLength:]
	}
	return t, nil
}

func (s *SQLite) ListTasks(ctx context.Context, filter ListFilter) ([]*Task, error) {
	query := `SELECT id, context_id, state, state_timestamp, history, artifacts, metadata, kind, created_at, updated_at FROM tasks WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += " AND state=?"
		args = append(args, string(filter.Status))
	}
	if filter.ContextID != "" {
		query += " AND context_id=?"
		args = append(args, filter.ContextID)
	}
	query += " ORDER BY updated_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLite) CountTasks(ctx context.Context, status TaskState) (int, error) {
	var count int
	var err error
	if status == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE state=?`, string(status)).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("store: count tasks: %w", err)
	}
	return count, nil
}

func (s *SQLite) GetContext(ctx context.Context, contextID string) (*Context, error) {
	var c Context
	var dataJSON, historyJSON, createdAt, updatedAt string
	row := s.db.QueryRowContext(ctx, `SELECT context_id, context_data, message_history, created_at, updated_at FROM contexts WHERE context_id=?`, contextID)
	if err := row.Scan(&c.ContextID, &dataJSON, &historyJSON, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get context: %w", err)
	}
	if dataJSON != "" {
		json.Unmarshal([]byte(dataJSON), &c.ContextData)
	}
	json.Unmarshal([]byte(historyJSON), &c.MessageHistory)
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &c, nil
}

func (s *SQLite) ListContexts(ctx context.Context) ([]*Context, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT context_id, context_data, message_history, created_at, updated_at FROM contexts ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list contexts: %w", err)
	}
	defer rows.Close()

	var out []*Context
	for rows.Next() {
		var c Context
		var dataJSON, historyJSON, createdAt, updatedAt string
		if err := rows.Scan(&c.ContextID, &dataJSON, &historyJSON, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("store: scan context: %w", err)
		}
		if dataJSON != "" {
			json.Unmarshal([]byte(dataJSON), &c.ContextData)
		}
		json.Unmarshal([]byte(historyJSON), &c.MessageHistory)
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *SQLite) ClearContext(ctx context.Context, contextID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_feedback WHERE task_id IN (SELECT id FROM tasks WHERE context_id=?)`, contextID); err != nil {
		return fmt.Errorf("store: cascade delete feedback: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM webhook_configs WHERE task_id IN (SELECT id FROM tasks WHERE context_id=?)`, contextID); err != nil {
		return fmt.Errorf("store: cascade delete webhooks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE context_id=?`, contextID); err != nil {
		return fmt.Errorf("store: cascade delete tasks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM contexts WHERE context_id=?`, contextID); err != nil {
		return fmt.Errorf("store: delete context: %w", err)
	}
	return tx.Commit()
}

func (s *SQLite) SaveFeedback(ctx context.Context, taskID string, payload map[string]any) (*Feedback, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("store: marshal feedback: %w", err)
	}
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO task_feedback (task_id, payload, created_at) VALUES (?, ?, ?)`, taskID, string(payloadJSON), now.Format(time.RFC3339Nano)); err != nil {
		return nil, fmt.Errorf("store: insert feedback: %w", err)
	}
	return &Feedback{TaskID: taskID, Payload: payload, CreatedAt: now}, nil
}

func (s *SQLite) GetFeedback(ctx context.Context, taskID string) ([]*Feedback, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload, created_at FROM task_feedback WHERE task_id=? ORDER BY created_at ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("store: get feedback: %w", err)
	}
	defer rows.Close()

	var out []*Feedback
	for rows.Next() {
		var payloadJSON, createdAt string
		fb := &Feedback{TaskID: taskID}
		if err := rows.Scan(&payloadJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan feedback: %w", err)
		}
		json.Unmarshal([]byte(payloadJSON), &fb.Payload)
		fb.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, fb)
	}
	return out, rows.Err()
}

func (s *SQLite) SaveWebhook(ctx context.Context, taskID string, cfg WebhookConfig) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO webhook_configs (task_id, url, bearer_token) VALUES (?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET url=excluded.url, bearer_token=excluded.bearer_token`, taskID, cfg.URL, cfg.BearerToken)
	if err != nil {
		return fmt.Errorf("store: save webhook: %w", err)
	}
	return nil
}

func (s *SQLite) LoadWebhook(ctx context.Context, taskID string) (*WebhookConfig, error) {
	var cfg WebhookConfig
	err := s.db.QueryRowContext(ctx, `SELECT url, bearer_token FROM webhook_configs WHERE task_id=?`, taskID).Scan(&cfg.URL, &cfg.BearerToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: load webhook: %w", err)
	}
	return &cfg, nil
}

func (s *SQLite) DeleteWebhook(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM webhook_configs WHERE task_id=?`, taskID)
	if err != nil {
		return fmt.Errorf("store: delete webhook: %w", err)
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLite) Close() error { return s.db.Close() }

var _ Storage = (*SQLite)(nil)
