package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"bindu/internal/logger"
)

// PoolConfig mirrors the bounded connection pool knobs in §4.1.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	OpTimeout       time.Duration
}

// RetryConfig governs the exponential-backoff connection-acquisition retry
// at startup (§4.1, §9 "tolerate dependency warmup").
type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
}

// Postgres is the multi-tenant Storage backend: one schema per DID,
// containing a full copy of the table set, grounded on the teacher's
// internal/db/postgres.go connection-pool sizing and retry-on-connect
// loop (same github.com/lib/pq driver carried forward).
type Postgres struct {
	db     *sql.DB
	schema string
	pool   PoolConfig
}

// NewPostgres opens a connection pool to dsn, retrying with exponential
// backoff per retry, then bootstraps the schema derived from did (empty
// did maps to the "public" schema, disabling tenant isolation).
func NewPostgres(ctx context.Context, dsn string, did string, pool PoolConfig, retry RetryConfig) (*Postgres, error) {
	log := logger.WithComponent("store.postgres")

	if pool.MaxOpenConns <= 0 {
		pool.MaxOpenConns = 25
	}
	if pool.MaxIdleConns <= 0 {
		pool.MaxIdleConns = 10
	}
	if pool.ConnMaxLifetime <= 0 {
		pool.ConnMaxLifetime = 15 * time.Minute
	}
	if pool.ConnMaxIdleTime <= 0 {
		pool.ConnMaxIdleTime = 5 * time.Minute
	}
	if pool.OpTimeout <= 0 {
		pool.OpTimeout = 5 * time.Second
	}
	if retry.Attempts <= 0 {
		retry.Attempts = 5
	}
	if retry.BaseDelay <= 0 {
		retry.BaseDelay = 500 * time.Millisecond
	}

	schema := "public"
	if did != "" {
		schema = DeriveSchemaName(did)
	}

	var db *sql.DB
	var err error
	delay := retry.BaseDelay
	for attempt := 1; attempt <= retry.Attempts; attempt++ {
		db, err = sql.Open("postgres", dsn)
		if err == nil {
			db.SetMaxOpenConns(pool.MaxOpenConns)
			db.SetMaxIdleConns(pool.MaxIdleConns)
			db.SetConnMaxLifetime(pool.ConnMaxLifetime)
			db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

			pingCtx, cancel := context.WithTimeout(ctx, pool.OpTimeout)
			err = db.PingContext(pingCtx)
			cancel()
			if err == nil {
				break
			}
			db.Close()
		}

		if attempt == retry.Attempts {
			return nil, fmt.Errorf("store: connect to postgres after %d attempts: %w", retry.Attempts, err)
		}
		log.Warn("postgres connection attempt failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		time.Sleep(delay)
		delay *= 2
	}

	p := &Postgres{db: db, schema: sanitizeIdentifier(schema), pool: pool}
	if err := p.bootstrap(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// bootstrap is reentrant: sanitize the DID (done by the caller into
// p.schema) → CREATE SCHEMA IF NOT EXISTS in its own transaction → create
// tables idempotently in a second transaction, matching §4.1's deadlock-
// avoidance requirement.
func (p *Postgres) bootstrap(ctx context.Context) error {
	schemaTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin schema tx: %w", err)
	}
	if _, err := schemaTx.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %q`, p.schema)); err != nil {
		schemaTx.Rollback()
		return fmt.Errorf("store: create schema: %w", err)
	}
	if err := schemaTx.Commit(); err != nil {
		return fmt.Errorf("store: commit schema tx: %w", err)
	}

	tableTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin table tx: %w", err)
	}
	defer tableTx.Rollback()

	for _, stmt := range p.ddl() {
		if _, err := tableTx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: bootstrap ddl: %w", err)
		}
	}
	return tableTx.Commit()
}

func (p *Postgres) q(name string) string {
	return fmt.Sprintf("%q.%q", p.schema, name)
}

func (p *Postgres) ddl() []string {
	tasks := p.q("tasks")
	contexts := p.q("contexts")
	feedback := p.q("task_feedback")
	webhooks := p.q("webhook_configs")

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			context_id TEXT PRIMARY KEY,
			context_data JSONB NOT NULL DEFAULT '{}',
			message_history JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`, contexts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			context_id TEXT NOT NULL,
			state TEXT NOT NULL,
			state_timestamp TIMESTAMPTZ NOT NULL,
			history JSONB NOT NULL DEFAULT '[]',
			artifacts JSONB NOT NULL DEFAULT '[]',
			metadata JSONB NOT NULL DEFAULT '{}',
			kind TEXT NOT NULL DEFAULT 'task',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`, tasks),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS tasks_context_id_idx ON %s (context_id)`, tasks),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS tasks_state_idx ON %s (state)`, tasks),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS tasks_created_at_idx ON %s (created_at DESC)`, tasks),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS tasks_updated_at_idx ON %s (updated_at DESC)`, tasks),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS tasks_history_gin_idx ON %s USING GIN (history)`, tasks),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS tasks_metadata_gin_idx ON %s USING GIN (metadata)`, tasks),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS tasks_artifacts_gin_idx ON %s USING GIN (artifacts)`, tasks),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			task_id TEXT NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`, feedback),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS task_feedback_task_id_idx ON %s (task_id)`, feedback),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			task_id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			bearer_token TEXT NOT NULL DEFAULT ''
		)`, webhooks),
	}
}

func (p *Postgres) SubmitTask(ctx context.Context, contextID string, message Message) (*Task, error) {
	ctx, cancel := context.WithTimeout(ctx, p.pool.OpTimeout)
	defer cancel()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	var exists bool
	if err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE context_id=$1)`, p.q("contexts")), contextID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("store: check context: %w", err)
	}
	if !exists {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (context_id, context_data, message_history, created_at, updated_at) VALUES ($1,'{}','[]',$2,$2)`, p.q("contexts")), contextID, now); err != nil {
			return nil, fmt.Errorf("store: create context: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET updated_at=$1 WHERE context_id=$2`, p.q("contexts")), now, contextID); err != nil {
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

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s
		(id, context_id, state, state_timestamp, history, artifacts, metadata, kind, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,'[]','{}',$6,$7,$7)`, p.q("tasks")),
		taskID, contextID, string(TaskSubmitted), now, historyJSON, string(KindTask), now); err != nil {
		return nil, fmt.Errorf("store: insert task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}

	return p.LoadTask(ctx, taskID, 0)
}

func (p *Postgres) UpdateTask(ctx context.Context, taskID string, update TaskUpdate) (*Task, error) {
	ctx, cancel := context.WithTimeout(ctx, p.pool.OpTimeout)
	defer cancel()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	var state string
	var historyJSON, artifactsJSON, metadataJSON []byte
	row := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT state, history, artifacts, metadata FROM %s WHERE id=$1 FOR UPDATE`, p.q("tasks")), taskID)
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
	if err := json.Unmarshal(historyJSON, &history); err != nil {
		return nil, fmt.Errorf("store: unmarshal history: %w", err)
	}
	history = append(history, update.NewMessages...)

	var artifacts []Artifact
	if err := json.Unmarshal(artifactsJSON, &artifacts); err != nil {
		return nil, fmt.Errorf("store: unmarshal artifacts: %w", err)
	}
	artifacts = append(artifacts, update.NewArtifacts...)

	metadata := map[string]any{}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			return nil, fmt.Errorf("store: unmarshal metadata: %w", err)
		}
	}
	for k, v := range update.MetadataMerge {
		metadata[k] = v
	}

	newHistoryJSON, _ := json.Marshal(history)
	newArtifactsJSON, _ := json.Marshal(artifacts)
	newMetadataJSON, _ := json.Marshal(metadata)

	now := time.Now().UTC()
	if stateChanged {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET state=$1, state_timestamp=$2, history=$3, artifacts=$4, metadata=$5, updated_at=$2 WHERE id=$6`, p.q("tasks")),
			string(newState), now, newHistoryJSON, newArtifactsJSON, newMetadataJSON, taskID); err != nil {
			return nil, fmt.Errorf("store: update task: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET history=$1, artifacts=$2, metadata=$3, updated_at=$4 WHERE id=$5`, p.q("tasks")),
			newHistoryJSON, newArtifactsJSON, newMetadataJSON, now, taskID); err != nil {
			return nil, fmt.Errorf("store: update task: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}

	return p.LoadTask(ctx, taskID, 0)
}

func (p *Postgres) LoadTask(ctx context.Context, taskID string, historyLength int) (*Task, error) {
	ctx, cancel := context.WithTimeout(ctx, p.pool.OpTimeout)
	defer cancel()

	var t Task
	var state, kind string
	var historyJSON, artifactsJSON, metadataJSON []byte
	row := p.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT id, context_id, state, state_timestamp, history, artifacts, metadata, kind, created_at, updated_at FROM %s WHERE id=$1`, p.q("tasks")), taskID)
	if err := row.Scan(&t.ID, &t.ContextID, &state, &t.StateTimestamp, &historyJSON, &artifactsJSON, &metadataJSON, &kind, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: load task: %w", err)
	}
	t.State = TaskState(state)
	t.Kind = TaskKind(kind)
	if err := json.Unmarshal(historyJSON, &t.History); err != nil {
		return nil, fmt.Errorf("store: unmarshal history: %w", err)
	}
	if err := json.Unmarshal(artifactsJSON, &t.Artifacts); err != nil {
		return nil, fmt.Errorf("store: unmarshal artifacts: %w", err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &t.Metadata); err != nil {
			return nil, fmt.Errorf("store: unmarshal metadata: %w", err)
		}
	}

	if historyLength > 0 && len(t.History) > historyLength {
		t.History = t.History[len(t.History)-historyLength:]
	}
	return &t, nil
}

func (p *Postgres) ListTasks(ctx context.Context, filter ListFilter) ([]*Task, error) {
	ctx, cancel := context.WithTimeout(ctx, p.pool.OpTimeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT id, context_id, state, state_timestamp, history, artifacts, metadata, kind, created_at, updated_at FROM %s WHERE 1=1`, p.q("tasks"))
	var args []any
	idx := 1
	if filter.Status != "" {
		query += fmt.Sprintf(" AND state=$%d", idx)
		args = append(args, string(filter.Status))
		idx++
	}
	if filter.ContextID != "" {
		query += fmt.Sprintf(" AND context_id=$%d", idx)
		args = append(args, filter.ContextID)
		idx++
	}
	query += " ORDER BY updated_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT $%d", idx)
	args = append(args, limit)
	idx++
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", idx)
		args = append(args, filter.Offset)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		var t Task
		var state, kind string
		var historyJSON, artifactsJSON, metadataJSON []byte
		if err := rows.Scan(&t.ID, &t.ContextID, &state, &t.StateTimestamp, &historyJSON, &artifactsJSON, &metadataJSON, &kind, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan task: %w", err)
		}
		t.State = TaskState(state)
		t.Kind = TaskKind(kind)
		json.Unmarshal(historyJSON, &t.History)
		json.Unmarshal(artifactsJSON, &t.Artifacts)
		if len(metadataJSON) > 0 {
			json.Unmarshal(metadataJSON, &t.Metadata)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (p *Postgres) CountTasks(ctx context.Context, status TaskState) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.pool.OpTimeout)
	defer cancel()

	var count int
	var err error
	if status == "" {
		err = p.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, p.q("tasks"))).Scan(&count)
	} else {
		err = p.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE state=$1`, p.q("tasks")), string(status)).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("store: count tasks: %w", err)
	}
	return count, nil
}

func (p *Postgres) GetContext(ctx context.Context, contextID string) (*Context, error) {
	ctx, cancel := context.WithTimeout(ctx, p.pool.OpTimeout)
	defer cancel()

	var c Context
	var dataJSON, historyJSON []byte
	row := p.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT context_id, context_data, message_history, created_at, updated_at FROM %s WHERE context_id=$1`, p.q("contexts")), contextID)
	if err := row.Scan(&c.ContextID, &dataJSON, &historyJSON, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get context: %w", err)
	}
	if len(dataJSON) > 0 {
		json.Unmarshal(dataJSON, &c.ContextData)
	}
	json.Unmarshal(historyJSON, &c.MessageHistory)
	return &c, nil
}

func (p *Postgres) ListContexts(ctx context.Context) ([]*Context, error) {
	ctx, cancel := context.WithTimeout(ctx, p.pool.OpTimeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`SELECT context_id, context_data, message_history, created_at, updated_at FROM %s ORDER BY created_at DESC`, p.q("contexts")))
	if err != nil {
		return nil, fmt.Errorf("store: list contexts: %w", err)
	}
	defer rows.Close()

	var out []*Context
	for rows.Next() {
		var c Context
		var dataJSON, historyJSON []byte
		if err := rows.Scan(&c.ContextID, &dataJSON, &historyJSON, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan context: %w", err)
		}
		if len(dataJSON) > 0 {
			json.Unmarshal(dataJSON, &c.ContextData)
		}
		json.Unmarshal(historyJSON, &c.MessageHistory)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (p *Postgres) ClearContext(ctx context.Context, contextID string) error {
	ctx, cancel := context.WithTimeout(ctx, p.pool.OpTimeout)
	defer cancel()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE task_id IN (SELECT id FROM %s WHERE context_id=$1)`, p.q("task_feedback"), p.q("tasks")), contextID); err != nil {
		return fmt.Errorf("store: cascade delete feedback: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE task_id IN (SELECT id FROM %s WHERE context_id=$1)`, p.q("webhook_configs"), p.q("tasks")), contextID); err != nil {
		return fmt.Errorf("store: cascade delete webhooks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE context_id=$1`, p.q("tasks")), contextID); err != nil {
		return fmt.Errorf("store: cascade delete tasks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE context_id=$1`, p.q("contexts")), contextID); err != nil {
		return fmt.Errorf("store: delete context: %w", err)
	}

	return tx.Commit()
}

func (p *Postgres) SaveFeedback(ctx context.Context, taskID string, payload map[string]any) (*Feedback, error) {
	ctx, cancel := context.WithTimeout(ctx, p.pool.OpTimeout)
	defer cancel()

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("store: marshal feedback: %w", err)
	}
	now := time.Now().UTC()
	if _, err := p.db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (task_id, payload, created_at) VALUES ($1,$2,$3)`, p.q("task_feedback")), taskID, payloadJSON, now); err != nil {
		return nil, fmt.Errorf("store: insert feedback: %w", err)
	}
	return &Feedback{TaskID: taskID, Payload: payload, CreatedAt: now}, nil
}

func (p *Postgres) GetFeedback(ctx context.Context, taskID string) ([]*Feedback, error) {
	ctx, cancel := context.WithTimeout(ctx, p.pool.OpTimeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`SELECT payload, created_at FROM %s WHERE task_id=$1 ORDER BY created_at ASC`, p.q("task_feedback")), taskID)
	if err != nil {
		return nil, fmt.Errorf("store: get feedback: %w", err)
	}
	defer rows.Close()

	var out []*Feedback
	for rows.Next() {
		var payloadJSON []byte
		fb := &Feedback{TaskID: taskID}
		if err := rows.Scan(&payloadJSON, &fb.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan feedback: %w", err)
		}
		json.Unmarshal(payloadJSON, &fb.Payload)
		out = append(out, fb)
	}
	return out, rows.Err()
}

func (p *Postgres) SaveWebhook(ctx context.Context, taskID string, cfg WebhookConfig) error {
	ctx, cancel := context.WithTimeout(ctx, p.pool.OpTimeout)
	defer cancel()

	_, err := p.db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (task_id, url, bearer_token) VALUES ($1,$2,$3)
		ON CONFLICT (task_id) DO UPDATE SET url=$2, bearer_token=$3`, p.q("webhook_configs")), taskID, cfg.URL, cfg.BearerToken)
	if err != nil {
		return fmt.Errorf("store: save webhook: %w", err)
	}
	return nil
}

func (p *Postgres) LoadWebhook(ctx context.Context, taskID string) (*WebhookConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, p.pool.OpTimeout)
	defer cancel()

	var cfg WebhookConfig
	err := p.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT url, bearer_token FROM %s WHERE task_id=$1`, p.q("webhook_configs")), taskID).Scan(&cfg.URL, &cfg.BearerToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: load webhook: %w", err)
	}
	return &cfg, nil
}

func (p *Postgres) DeleteWebhook(ctx context.Context, taskID string) error {
	ctx, cancel := context.WithTimeout(ctx, p.pool.OpTimeout)
	defer cancel()

	_, err := p.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE task_id=$1`, p.q("webhook_configs")), taskID)
	if err != nil {
		return fmt.Errorf("store: delete webhook: %w", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.pool.OpTimeout)
	defer cancel()
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

var _ Storage = (*Postgres)(nil)
