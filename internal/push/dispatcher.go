// Package push delivers fire-and-forget webhook notifications on task
// terminal-state transitions (spec §4.5), grounded on the teacher's
// internal/provider/client.go retrying HTTP client: the same
// exponential-backoff-with-jitterless-delay loop, narrowed to a single
// POST per delivery attempt. With BINDU_PUSH_ENABLED=false the Task
// Manager refuses webhook registration, so Notify finds no webhook and
// delivers nothing; no task waits on delivery either way.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"bindu/internal/logger"
	"bindu/internal/messaging/kafka"
	"bindu/internal/metrics"
	"bindu/internal/store"
)

// Config bounds webhook delivery. Grounded on provider.RetryConfig's
// shape, narrowed to the fields push delivery needs.
type Config struct {
	MaxRetries int
	Timeout    time.Duration
	BaseDelay  time.Duration
}

// Payload is the JSON body delivered to a registered webhook.
type Payload struct {
	TaskID    string         `json:"task_id"`
	ContextID string         `json:"context_id"`
	State     string         `json:"state"`
	UpdatedAt time.Time      `json:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Dispatcher delivers Payload to a Task's registered webhook (if any),
// retrying on network errors and 5xx responses, giving up permanently on
// 4xx (spec §4.5). It optionally republishes each delivery to Kafka for
// external aggregation/audit: the pending callback before the first HTTP
// attempt and the final outcome after the last.
type Dispatcher struct {
	storage  store.Storage
	client   *http.Client
	cfg      Config
	producer *kafka.Producer
	metrics  *metrics.Collector
	log      *slog.Logger
}

// New constructs a Dispatcher. producer and collector may be nil.
func New(storage store.Storage, cfg Config, producer *kafka.Producer, collector *metrics.Collector) *Dispatcher {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 200 * time.Millisecond
	}
	return &Dispatcher{
		storage:  storage,
		client:   &http.Client{Timeout: cfg.Timeout},
		cfg:      cfg,
		producer: producer,
		metrics:  collector,
		log:      logger.WithComponent("push"),
	}
}

// Notify looks up task's registered webhook and delivers it in a
// detached goroutine; it never blocks the caller (the worker pool).
func (d *Dispatcher) Notify(task *store.Task) {
	go d.deliver(context.Background(), task)
}

func (d *Dispatcher) deliver(ctx context.Context, task *store.Task) {
	webhook, err := d.storage.LoadWebhook(ctx, task.ID)
	if err != nil {
		d.log.Error("failed to load webhook config", "task_id", task.ID, "error", err)
		return
	}
	if webhook == nil {
		return
	}

	payload := Payload{
		TaskID:    task.ID,
		ContextID: task.ContextID,
		State:     string(task.State),
		UpdatedAt: task.UpdatedAt,
		Metadata:  task.Metadata,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		d.log.Error("failed to marshal push payload", "task_id", task.ID, "error", err)
		return
	}

	d.queueCallback(ctx, task.ID, webhook.URL, body)

	delivered := d.sendWithRetry(ctx, webhook.URL, webhook.BearerToken, body)

	if d.metrics != nil {
		d.metrics.RecordPushAttempt(delivered)
	}
	d.republish(ctx, task, delivered)
}

// sendWithRetry POSTs body, retrying on network errors and 5xx with
// exponential backoff up to cfg.MaxRetries. A 4xx response is a
// permanent failure: no retry (spec §4.5).
func (d *Dispatcher) sendWithRetry(ctx context.Context, url, bearer string, body []byte) bool {
	delay := d.cfg.BaseDelay
	var lastErr error

	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(delay):
			}
			delay *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			d.log.Error("malformed webhook url, giving up", "url", url, "error", err)
			return false
		}
		req.Header.Set("Content-Type", "application/json")
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}

		resp, err := d.client.Do(req)
		if err != nil {
			lastErr = err
			d.log.Warn("webhook delivery attempt failed", "attempt", attempt+1, "url", url, "error", err)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return true
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			d.log.Warn("webhook delivery rejected permanently", "url", url, "status", resp.StatusCode)
			return false
		}
		lastErr = fmt.Errorf("webhook responded %d", resp.StatusCode)
		d.log.Warn("webhook delivery attempt failed", "attempt", attempt+1, "url", url, "status", resp.StatusCode)
	}

	d.log.Error("webhook delivery exhausted retries", "url", url, "error", lastErr)
	return false
}

// queueCallback optionally mirrors the pending delivery itself (not just
// its outcome) to Kafka, so an external aggregator can track in-flight
// webhook deliveries separately from the republished terminal outcome
// in republish. A no-op when no producer is configured.
func (d *Dispatcher) queueCallback(ctx context.Context, taskID, webhookURL string, payload json.RawMessage) {
	if d.producer == nil {
		return
	}
	callback := kafka.WebhookCallback{
		CallbackID: uuid.NewString(),
		TaskID:     taskID,
		WebhookURL: webhookURL,
		Payload:    payload,
		MaxRetries: d.cfg.MaxRetries,
		CreatedAt:  time.Now(),
	}
	if err := d.producer.SendWebhookCallback(ctx, callback); err != nil {
		d.log.Warn("failed to queue webhook callback to kafka", "task_id", taskID, "error", err)
	}
}

// republish optionally mirrors the delivery outcome to Kafka for
// external aggregation; a no-op when no producer is configured.
func (d *Dispatcher) republish(ctx context.Context, task *store.Task, delivered bool) {
	if d.producer == nil {
		return
	}
	status := "delivered"
	if !delivered {
		status = "failed"
	}
	event := kafka.TaskEvent{
		EventID:   task.ID + ":" + status,
		TaskID:    task.ID,
		ContextID: task.ContextID,
		EventType: status,
		State:     string(task.State),
		Timestamp: task.UpdatedAt,
	}
	if err := d.producer.SendTaskEvent(ctx, event); err != nil {
		d.log.Warn("failed to republish push outcome to kafka", "task_id", task.ID, "error", err)
	}
}

var _ interface{ Notify(*store.Task) } = (*Dispatcher)(nil)
