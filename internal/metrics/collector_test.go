package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	if c == nil {
		t.Fatal("NewCollector() returned nil")
	}
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c := NewCollector()

	c.RecordHTTPRequest(100*time.Millisecond, 200)
	c.RecordHTTPRequest(200*time.Millisecond, 500)

	output := c.PrometheusFormat()

	if !strings.Contains(output, "bindu_http_requests_total 2") {
		t.Error("Expected request count of 2")
	}
	if !strings.Contains(output, "bindu_http_request_errors_total 1") {
		t.Error("Expected error count of 1")
	}
}

func TestCollector_RecordStorageOp(t *testing.T) {
	c := NewCollector()

	c.RecordStorageOp(50*time.Millisecond, nil)
	c.RecordStorageOp(100*time.Millisecond, nil)
	c.RecordStorageOp(150*time.Millisecond, nil)

	output := c.PrometheusFormat()

	if !strings.Contains(output, "bindu_storage_ops_total 3") {
		t.Error("Expected storage op count of 3")
	}
}

func TestCollector_RecordRPCMethod(t *testing.T) {
	c := NewCollector()

	c.RecordRPCMethod("message/send", nil)
	c.RecordRPCMethod("message/send", nil)
	c.RecordRPCMethod("tasks/get", nil)

	output := c.PrometheusFormat()

	if !strings.Contains(output, `bindu_rpc_method_calls_total{method="message/send"} 2`) {
		t.Error("Expected 2 message/send calls")
	}
	if !strings.Contains(output, `bindu_rpc_method_calls_total{method="tasks/get"} 1`) {
		t.Error("Expected 1 tasks/get call")
	}
}

func TestCollector_SchedulerAndWorkerMetrics(t *testing.T) {
	c := NewCollector()

	c.RecordEnqueue(1)
	c.RecordEnqueue(2)
	c.RecordDequeue(1)
	c.WorkerStarted()
	c.RecordTaskOutcome("completed")

	output := c.PrometheusFormat()

	if !strings.Contains(output, "bindu_scheduler_enqueued_total 2") {
		t.Error("Expected 2 enqueues")
	}
	if !strings.Contains(output, "bindu_scheduler_dequeued_total 1") {
		t.Error("Expected 1 dequeue")
	}
	if !strings.Contains(output, "bindu_scheduler_queue_depth 1.00") {
		t.Error("Expected queue depth gauge to reflect the last recorded depth")
	}
	if !strings.Contains(output, "bindu_worker_active_tasks 1.00") {
		t.Error("Expected 1 active worker")
	}
	if !strings.Contains(output, "bindu_tasks_completed_total 1") {
		t.Error("Expected 1 completed task")
	}
}

func TestCollector_RecordPushAttempt(t *testing.T) {
	c := NewCollector()

	c.RecordPushAttempt(true)
	c.RecordPushAttempt(false)

	output := c.PrometheusFormat()

	if !strings.Contains(output, "bindu_push_attempts_total 2") {
		t.Error("Expected 2 push attempts")
	}
	if !strings.Contains(output, "bindu_push_delivered_total 1") {
		t.Error("Expected 1 delivered push")
	}
	if !strings.Contains(output, "bindu_push_failed_total 1") {
		t.Error("Expected 1 failed push")
	}
}

func TestCollector_PrometheusFormat(t *testing.T) {
	c := NewCollector()

	c.RecordHTTPRequest(100*time.Millisecond, 200)
	c.RecordStorageOp(50*time.Millisecond, nil)
	c.RecordTaskOutcome("completed")

	output := c.PrometheusFormat()

	expectedMetrics := []string{
		"bindu_http_requests_total",
		"bindu_storage_ops_total",
		"bindu_tasks_completed_total",
		"bindu_uptime_seconds",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(output, metric) {
			t.Errorf("Expected output to contain %s", metric)
		}
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()

	c.RecordHTTPRequest(100*time.Millisecond, 200)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	handler := c.Handler()
	handler(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	contentType := rr.Header().Get("Content-Type")
	if !strings.Contains(contentType, "text/plain") {
		t.Errorf("Expected text/plain content type, got %s", contentType)
	}

	if !strings.Contains(rr.Body.String(), "bindu_http_requests_total") {
		t.Error("Expected metrics in response")
	}
}
