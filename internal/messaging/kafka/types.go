// Package kafka provides optional Kafka-backed eventing for task lifecycle
// changes and webhook delivery. A deployment that doesn't set
// BINDU_KAFKA_BROKERS never constructs a Producer and none of this
// package is exercised.
package kafka

import (
	"encoding/json"
	"time"
)

// TaskEvent represents a task lifecycle transition.
type TaskEvent struct {
	EventID   string          `json:"event_id"`
	TaskID    string          `json:"task_id"`
	ContextID string          `json:"context_id"`
	EventType string          `json:"event_type"` // push delivery outcome: delivered, failed (see push.Dispatcher)
	State     string          `json:"state"`
	DID       string          `json:"did"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// WebhookCallback represents a pending push notification delivery.
type WebhookCallback struct {
	CallbackID string          `json:"callback_id"`
	TaskID     string          `json:"task_id"`
	WebhookURL string          `json:"webhook_url"`
	Payload    json.RawMessage `json:"payload"`
	RetryCount int             `json:"retry_count"`
	MaxRetries int             `json:"max_retries"`
	CreatedAt  time.Time       `json:"created_at"`
}

// AgentDiscoveryEvent represents a change to a deployment's published
// Agent Card (new skill added, version bump, card republished).
type AgentDiscoveryEvent struct {
	EventID   string    `json:"event_id"`
	DID       string    `json:"did"`
	Action    string    `json:"action"` // registered, deregistered, updated
	AgentCard []byte    `json:"agent_card"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskMetrics represents per-task timing metrics published for external
// aggregation.
type TaskMetrics struct {
	Timestamp     time.Time `json:"timestamp"`
	TaskID        string    `json:"task_id"`
	QueueWaitMs   int64     `json:"queue_wait_ms"`
	ExecutionMs   int64     `json:"execution_ms"`
	RetryCount    int       `json:"retry_count"`
	FinalState    string    `json:"final_state"`
}
