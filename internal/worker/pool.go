package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"bindu/internal/logger"
	"bindu/internal/metrics"
	"bindu/internal/observability"
	"bindu/internal/scheduler"
	"bindu/internal/store"
)

// Notifier is the Push/Webhook dispatcher's boundary as seen by the
// worker pool: fire-and-forget, never blocks the worker (spec §4.5).
type Notifier interface {
	Notify(task *store.Task)
}

// MetricsPublisher optionally receives per-task timing metrics once a task
// reaches its outcome: time spent enqueued, time spent executing, how many
// times the handler was retried, and the final state. A nil publisher (the
// default, when no deployment has wired one in) is a no-op — the worker
// loop itself never imports a specific publishing backend, so composing a
// Kafka-backed one (or any other) is the composition root's job, not
// this package's.
type MetricsPublisher interface {
	PublishTaskMetrics(ctx context.Context, taskID string, queueWaitMs, executionMs int64, retryCount int, finalState string)
}

// Config bounds retries and polling for a Pool.
type Config struct {
	WorkerCount int
	PollTimeout time.Duration
	RetryMax    int
}

// Pool is a fixed set of worker loops draining the Scheduler, invoking
// Handler, and writing results back to Storage (spec §4.3).
type Pool struct {
	storage    store.Storage
	sched      scheduler.Scheduler
	handler    Handler
	cfg        Config
	notify     Notifier
	metrics    *metrics.Collector
	metricsPub MetricsPublisher
	log        *slog.Logger

	cancels sync.Map // task_id -> context.CancelFunc
	wg      sync.WaitGroup
}

// SetMetricsPublisher wires an optional MetricsPublisher in after
// construction, since the composition root may decide whether one exists
// (e.g. a configured Kafka broker list) after the Pool itself is built.
func (p *Pool) SetMetricsPublisher(pub MetricsPublisher) {
	p.metricsPub = pub
}

// NewPool constructs a worker pool. notify and metrics may be nil.
func NewPool(storage store.Storage, sched scheduler.Scheduler, handler Handler, cfg Config, notify Notifier, collector *metrics.Collector) *Pool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 2 * time.Second
	}
	return &Pool{
		storage: storage,
		sched:   sched,
		handler: handler,
		cfg:     cfg,
		notify:  notify,
		metrics: collector,
		log:     logger.WithComponent("worker"),
	}
}

// Start launches cfg.WorkerCount loops. It returns immediately; call Wait
// to block until every loop exits (after ctx is canceled and the
// scheduler is closed).
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.WorkerCount; i++ {
		p.wg.Add(1)
		go p.loop(ctx, i)
	}
}

// Wait blocks until every worker loop has returned.
func (p *Pool) Wait() { p.wg.Wait() }

// Cancel signals the in-flight worker owning taskID, if any. It does not
// itself write canceled to Storage — the Task Manager does that
// synchronously before calling Cancel (spec §5).
func (p *Pool) Cancel(taskID string) {
	if v, ok := p.cancels.Load(taskID); ok {
		v.(context.CancelFunc)()
	}
}

func (p *Pool) loop(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		taskID, ok, err := p.sched.Dequeue(ctx, p.cfg.PollTimeout)
		if err != nil {
			return // context canceled
		}
		if !ok {
			continue
		}
		if depth, derr := p.sched.Depth(ctx); derr == nil && p.metrics != nil {
			p.metrics.RecordDequeue(depth)
		}
		p.process(ctx, taskID)
	}
}

// process implements the per-task pipeline: load-or-drop, transition,
// invoke, classify, retry, terminal dispatch (spec §4.3 steps 1-6).
func (p *Pool) process(ctx context.Context, taskID string) {
	task, err := p.storage.LoadTask(ctx, taskID, 0)
	if err != nil {
		p.log.Error("failed to load task", "task_id", taskID, "error", err)
		return
	}
	if task == nil {
		p.log.Info("dropping dequeued task: no longer exists", "task_id", taskID)
		return
	}
	if store.IsTerminal(task.State) {
		p.log.Info("dropping dequeued task: already terminal", "task_id", taskID, "state", task.State)
		return
	}
	if task.State == store.TaskWorking {
		p.log.Info("dropping dequeued task: already working", "task_id", taskID)
		return
	}

	enqueuedAt := task.UpdatedAt

	working := store.TaskWorking
	task, err = p.storage.UpdateTask(ctx, taskID, store.TaskUpdate{NewState: &working})
	if err != nil {
		// Illegal transition (e.g. the task was canceled after it was
		// loaded): the task is dropped rather than invoked, per spec §9.
		p.log.Info("dropping dequeued task: could not claim", "task_id", taskID, "error", err)
		return
	}
	queueWaitMs := time.Since(enqueuedAt).Milliseconds()
	if queueWaitMs < 0 {
		queueWaitMs = 0
	}

	if p.metrics != nil {
		p.metrics.WorkerStarted()
		defer p.metrics.WorkerFinished()
	}

	taskCtx, cancel := context.WithCancel(ctx)
	p.cancels.Store(taskID, cancel)
	defer func() {
		p.cancels.Delete(taskID)
		cancel()
	}()

	spanCtx, span := observability.StartTaskSpan(taskCtx, taskID, task.ContextID, string(task.State))
	defer span.End()

	execStart := time.Now()
	history := ProjectHistory(task.History)
	outcome, attempts := p.invokeWithRetry(spanCtx, history)
	executionMs := time.Since(execStart).Milliseconds()

	finalState := p.applyOutcome(ctx, taskCtx, taskID, outcome)
	observability.RecordOutcome(span, string(finalState), outcome.Err)

	if p.metricsPub != nil && finalState != "" {
		p.metricsPub.PublishTaskMetrics(ctx, taskID, queueWaitMs, executionMs, attempts-1, string(finalState))
	}
}

// invokeWithRetry calls Handler, retrying transient errors up to
// cfg.RetryMax times, and reports how many attempts it took. Nothing is
// written to Storage between attempts, so a retry can never duplicate a
// partial prior attempt's output in history — the dedup spec §9 mandates
// falls out of writing only the final outcome.
func (p *Pool) invokeWithRetry(ctx context.Context, history []HistoryEntry) (Outcome, int) {
	var outcome Outcome
	for attempt := 0; attempt <= p.cfg.RetryMax; attempt++ {
		result, err := p.invoke(ctx, history)
		outcome = Classify(ctx, result, err)
		if outcome.Err == nil || !IsRetryable(outcome.Err) || attempt == p.cfg.RetryMax {
			return outcome, attempt + 1
		}
		if p.metrics != nil {
			p.metrics.RecordTaskOutcome("retried")
		}
		p.log.Warn("handler invocation failed, retrying", "attempt", attempt+1, "error", outcome.Err)
	}
	return outcome, p.cfg.RetryMax + 1
}

// invoke runs the handler, converting a panic into a failed outcome
// rather than crashing the worker loop.
func (p *Pool) invoke(ctx context.Context, history []HistoryEntry) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &handlerPanic{value: r}
		}
	}()
	return p.handler(ctx, history)
}

type handlerPanic struct{ value any }

func (h *handlerPanic) Error() string {
	return "worker: handler panicked"
}

func (p *Pool) applyOutcome(ctx, taskCtx context.Context, taskID string, outcome Outcome) store.TaskState {
	// A cancel that landed after the handler already produced a result is
	// discarded: re-check Storage state before writing anything further.
	current, err := p.storage.LoadTask(ctx, taskID, 0)
	if err != nil {
		p.log.Error("failed to reload task before applying outcome", "task_id", taskID, "error", err)
		return ""
	}
	if current == nil || store.IsTerminal(current.State) {
		// Already canceled (or otherwise finalized) while the handler ran;
		// any handler output is discarded per spec §5.
		return ""
	}

	var update store.TaskUpdate
	var finalState store.TaskState
	var metricsOutcome string

	switch {
	case outcome.Cancelled:
		finalState = store.TaskCanceled
		metricsOutcome = "canceled"
		update = store.TaskUpdate{NewState: &finalState}

	case outcome.Directive != nil:
		finalState = outcome.Directive.State
		msg := store.Message{
			MessageID: uuid.NewString(),
			TaskID:    taskID,
			ContextID: current.ContextID,
			Role:      store.RoleAssistant,
			Content:   []store.Part{{Type: "text", Text: outcome.Directive.Prompt}},
		}
		update = store.TaskUpdate{NewState: &finalState, NewMessages: []store.Message{msg}}

	case outcome.Plain != nil:
		finalState = store.TaskCompleted
		metricsOutcome = "completed"
		msg := store.Message{
			MessageID: uuid.NewString(),
			TaskID:    taskID,
			ContextID: current.ContextID,
			Role:      store.RoleAssistant,
			Content:   []store.Part{{Type: "text", Text: outcome.Plain.Text}},
		}
		update = store.TaskUpdate{NewState: &finalState, NewMessages: []store.Message{msg}}

	default: // outcome.Err != nil
		finalState = store.TaskFailed
		metricsOutcome = "failed"
		update = store.TaskUpdate{
			NewState:      &finalState,
			MetadataMerge: map[string]any{"_error": outcome.Err.Error()},
		}
	}

	updated, err := p.storage.UpdateTask(ctx, taskID, update)
	if err != nil {
		p.log.Error("failed to write task outcome", "task_id", taskID, "error", err)
		return ""
	}

	if metricsOutcome != "" && p.metrics != nil {
		p.metrics.RecordTaskOutcome(metricsOutcome)
	}

	if store.IsTerminal(updated.State) && p.notify != nil {
		p.notify.Notify(updated)
	}

	return updated.State
}
