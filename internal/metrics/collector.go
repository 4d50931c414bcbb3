// Package metrics provides Prometheus-compatible metrics collection for Bindu.
package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Collector collects and exposes Prometheus-compatible metrics for the
// storage, scheduler, worker pool, and push dispatcher components.
type Collector struct {
	requestCount    int64
	requestErrors   int64
	requestDuration int64 // total milliseconds

	storageOpCount    int64
	storageOpErrors   int64
	storageOpDuration int64

	schedulerEnqueued int64
	schedulerDequeued int64
	schedulerDepth    int64

	workerActive    int64
	tasksStarted    int64
	tasksCompleted  int64
	tasksFailed     int64
	tasksCanceled   int64
	tasksRetried    int64

	pushAttempts  int64
	pushDelivered int64
	pushFailed    int64

	methodCalls sync.Map // map[string]*methodMetrics

	startTime time.Time
}

// methodMetrics holds per-JSON-RPC-method call counters.
type methodMetrics struct {
	Calls  int64
	Errors int64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// RecordHTTPRequest records an inbound HTTP request.
func (c *Collector) RecordHTTPRequest(duration time.Duration, statusCode int) {
	atomic.AddInt64(&c.requestCount, 1)
	atomic.AddInt64(&c.requestDuration, duration.Milliseconds())
	if statusCode >= 400 {
		atomic.AddInt64(&c.requestErrors, 1)
	}
}

// RecordRPCMethod records a JSON-RPC method invocation.
func (c *Collector) RecordRPCMethod(method string, err error) {
	m, _ := c.methodCalls.LoadOrStore(method, &methodMetrics{})
	mm := m.(*methodMetrics)
	atomic.AddInt64(&mm.Calls, 1)
	if err != nil {
		atomic.AddInt64(&mm.Errors, 1)
	}
}

// RecordStorageOp records a call into the Storage backend.
func (c *Collector) RecordStorageOp(duration time.Duration, err error) {
	atomic.AddInt64(&c.storageOpCount, 1)
	atomic.AddInt64(&c.storageOpDuration, duration.Milliseconds())
	if err != nil {
		atomic.AddInt64(&c.storageOpErrors, 1)
	}
}

// RecordEnqueue records a task handed to the scheduler and the resulting
// approximate queue depth.
func (c *Collector) RecordEnqueue(depth int64) {
	atomic.AddInt64(&c.schedulerEnqueued, 1)
	atomic.StoreInt64(&c.schedulerDepth, depth)
}

// RecordDequeue records a task pulled off the scheduler by a worker.
func (c *Collector) RecordDequeue(depth int64) {
	atomic.AddInt64(&c.schedulerDequeued, 1)
	atomic.StoreInt64(&c.schedulerDepth, depth)
}

// WorkerStarted/WorkerFinished track how many worker goroutines currently
// hold a task.
func (c *Collector) WorkerStarted() { atomic.AddInt64(&c.workerActive, 1) }
func (c *Collector) WorkerFinished() { atomic.AddInt64(&c.workerActive, -1) }

// RecordTaskOutcome records the terminal (or retry) classification a worker
// reached for a task's handler invocation.
func (c *Collector) RecordTaskOutcome(outcome string) {
	atomic.AddInt64(&c.tasksStarted, 1)
	switch outcome {
	case "completed":
		atomic.AddInt64(&c.tasksCompleted, 1)
	case "failed":
		atomic.AddInt64(&c.tasksFailed, 1)
	case "canceled":
		atomic.AddInt64(&c.tasksCanceled, 1)
	case "retried":
		atomic.AddInt64(&c.tasksRetried, 1)
	}
}

// RecordPushAttempt records a webhook delivery attempt and its outcome.
func (c *Collector) RecordPushAttempt(delivered bool) {
	atomic.AddInt64(&c.pushAttempts, 1)
	if delivered {
		atomic.AddInt64(&c.pushDelivered, 1)
	} else {
		atomic.AddInt64(&c.pushFailed, 1)
	}
}

// PrometheusFormat returns metrics in Prometheus exposition format.
func (c *Collector) PrometheusFormat() string {
	var out string

	out += c.formatCounter("bindu_http_requests_total", "", atomic.LoadInt64(&c.requestCount))
	out += c.formatCounter("bindu_http_request_errors_total", "", atomic.LoadInt64(&c.requestErrors))
	if n := atomic.LoadInt64(&c.requestCount); n > 0 {
		avg := float64(atomic.LoadInt64(&c.requestDuration)) / float64(n)
		out += c.formatGauge("bindu_http_request_duration_avg_ms", "", avg)
	}

	c.methodCalls.Range(func(key, value any) bool {
		method := key.(string)
		mm := value.(*methodMetrics)
		out += c.formatCounter("bindu_rpc_method_calls_total", fmt.Sprintf(`method="%s"`, method), atomic.LoadInt64(&mm.Calls))
		out += c.formatCounter("bindu_rpc_method_errors_total", fmt.Sprintf(`method="%s"`, method), atomic.LoadInt64(&mm.Errors))
		return true
	})

	out += c.formatCounter("bindu_storage_ops_total", "", atomic.LoadInt64(&c.storageOpCount))
	out += c.formatCounter("bindu_storage_op_errors_total", "", atomic.LoadInt64(&c.storageOpErrors))
	if n := atomic.LoadInt64(&c.storageOpCount); n > 0 {
		avg := float64(atomic.LoadInt64(&c.storageOpDuration)) / float64(n)
		out += c.formatGauge("bindu_storage_op_duration_avg_ms", "", avg)
	}

	out += c.formatCounter("bindu_scheduler_enqueued_total", "", atomic.LoadInt64(&c.schedulerEnqueued))
	out += c.formatCounter("bindu_scheduler_dequeued_total", "", atomic.LoadInt64(&c.schedulerDequeued))
	out += c.formatGauge("bindu_scheduler_queue_depth", "", float64(atomic.LoadInt64(&c.schedulerDepth)))

	out += c.formatGauge("bindu_worker_active_tasks", "", float64(atomic.LoadInt64(&c.workerActive)))
	out += c.formatCounter("bindu_tasks_started_total", "", atomic.LoadInt64(&c.tasksStarted))
	out += c.formatCounter("bindu_tasks_completed_total", "", atomic.LoadInt64(&c.tasksCompleted))
	out += c.formatCounter("bindu_tasks_failed_total", "", atomic.LoadInt64(&c.tasksFailed))
	out += c.formatCounter("bindu_tasks_canceled_total", "", atomic.LoadInt64(&c.tasksCanceled))
	out += c.formatCounter("bindu_tasks_retried_total", "", atomic.LoadInt64(&c.tasksRetried))

	out += c.formatCounter("bindu_push_attempts_total", "", atomic.LoadInt64(&c.pushAttempts))
	out += c.formatCounter("bindu_push_delivered_total", "", atomic.LoadInt64(&c.pushDelivered))
	out += c.formatCounter("bindu_push_failed_total", "", atomic.LoadInt64(&c.pushFailed))

	out += c.formatGauge("bindu_uptime_seconds", "", time.Since(c.startTime).Seconds())

	return out
}

func (c *Collector) formatCounter(name, labels string, value int64) string {
	if labels != "" {
		return fmt.Sprintf("%s{%s} %d\n", name, labels, value)
	}
	return fmt.Sprintf("%s %d\n", name, value)
}

func (c *Collector) formatGauge(name, labels string, value float64) string {
	if labels != "" {
		return fmt.Sprintf("%s{%s} %.2f\n", name, labels, value)
	}
	return fmt.Sprintf("%s %.2f\n", name, value)
}

// Handler returns an HTTP handler serving the /metrics endpoint.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(c.PrometheusFormat()))
	}
}
