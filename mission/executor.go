package mission

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/semaphore"

	"flotilla/retry"
	"flotilla/store"
	"flotilla/streamers"
	"flotilla/tools"
)

// Executor runs a plan's tasks in dependency order with bounded
// concurrency. A failed task never blocks independent branches; its
// dependents are skipped without ever being attempted.
type Executor struct {
	tasks       store.TaskStore
	emitter     *EventEmitter
	invoker     *tools.Invoker
	streamer    streamers.MissionHandler
	policy      retry.Policy
	concurrency int64
	logger      hclog.Logger
}

// ExecutorOption is a functional option for configuring the Executor.
type ExecutorOption func(*Executor)

// WithConcurrency caps how many tasks may run at once.
func WithConcurrency(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.concurrency = int64(n)
		}
	}
}

// WithTaskRetryPolicy sets the retry policy applied to each task.
func WithTaskRetryPolicy(policy retry.Policy) ExecutorOption {
	return func(e *Executor) {
		e.policy = policy
	}
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(logger hclog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor creates a task executor.
func NewExecutor(tasks store.TaskStore, emitter *EventEmitter, invoker *tools.Invoker, streamer streamers.MissionHandler, opts ...ExecutorOption) *Executor {
	if streamer == nil {
		streamer = streamers.Noop{}
	}
	e := &Executor{
		tasks:       tasks,
		emitter:     emitter,
		invoker:     invoker,
		streamer:    streamer,
		policy:      retry.DefaultPolicy(),
		concurrency: 4,
		logger:      hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecutionReport summarizes one execution pass over a plan.
type ExecutionReport struct {
	Succeeded []string
	Failed    map[string]string
	Skipped   []string
	TotalCost float64
}

// AllSucceeded reports whether every task reached SUCCESS.
func (r *ExecutionReport) AllSucceeded() bool {
	return len(r.Failed) == 0 && len(r.Skipped) == 0
}

// FailureSummary renders the failed tasks as a single human-readable
// line, suitable for feeding back into replanning.
func (r *ExecutionReport) FailureSummary() string {
	if len(r.Failed) == 0 {
		return ""
	}
	keys := make([]string, 0, len(r.Failed))
	for key := range r.Failed {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	summary := ""
	for i, key := range keys {
		if i > 0 {
			summary += "; "
		}
		summary += fmt.Sprintf("task '%s' failed: %s", key, r.Failed[key])
	}
	return summary
}

type taskOutcome struct {
	key    string
	status string
	errMsg string
	cost   float64
}

// Execute runs all tasks of a plan. The graph is validated before any
// task starts; a cycle or dangling dependency aborts the whole run.
// Context cancellation stops launching new tasks and returns ctx.Err().
func (e *Executor) Execute(ctx context.Context, missionID string, records []*store.TaskRecord) (*ExecutionReport, error) {
	graph, err := NewGraphFromRecords(records)
	if err != nil {
		return nil, err
	}
	if err := graph.Validate(); err != nil {
		return nil, err
	}

	byKey := make(map[string]*store.TaskRecord, len(records))
	for _, rec := range records {
		byKey[rec.TaskKey] = rec
	}

	sem := semaphore.NewWeighted(e.concurrency)
	report := &ExecutionReport{Failed: make(map[string]string)}

	// Terminal statuses observed so far, updated only by this loop.
	finished := make(map[string]string, len(records))
	inFlight := make(map[string]bool)
	outcomes := make(chan taskOutcome, len(records))

	var wg sync.WaitGroup
	defer wg.Wait()

	for len(finished) < len(records) {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		launched := 0
		for _, key := range graph.TopoSort() {
			if _, done := finished[key]; done || inFlight[key] {
				continue
			}

			depsReady := true
			depFailed := ""
			for _, dep := range graph.Deps(key) {
				status, done := finished[dep]
				if !done {
					depsReady = false
					break
				}
				if status != TaskSuccess {
					depFailed = dep
				}
			}
			if !depsReady {
				continue
			}

			rec := byKey[key]

			if depFailed != "" {
				// An upstream failure or skip poisons this task. It is
				// never attempted.
				reason := fmt.Sprintf("dependency '%s' did not succeed", depFailed)
				rec.Status = TaskSkipped
				if err := e.tasks.UpdateTask(rec); err != nil {
					e.logger.Error("failed to persist skipped task", "task", key, "error", err)
				}
				e.emitter.Emit(missionID, rec.ID, EventTaskSkipped, "", reason)
				e.streamer.TaskSkipped(key, reason)
				finished[key] = TaskSkipped
				report.Skipped = append(report.Skipped, key)
				launched++
				continue
			}

			inFlight[key] = true
			launched++
			wg.Add(1)
			go func(rec *store.TaskRecord) {
				defer wg.Done()

				if err := sem.Acquire(ctx, 1); err != nil {
					outcomes <- taskOutcome{key: rec.TaskKey, status: TaskFailed, errMsg: err.Error()}
					return
				}
				defer sem.Release(1)

				outcomes <- e.runTask(ctx, missionID, rec)
			}(rec)
		}

		if launched == 0 {
			select {
			case outcome := <-outcomes:
				delete(inFlight, outcome.key)
				finished[outcome.key] = outcome.status
				e.recordOutcome(report, outcome)
			case <-ctx.Done():
				return report, ctx.Err()
			}
			continue
		}

		// Drain any outcomes that arrived while launching.
		for drained := true; drained; {
			select {
			case outcome := <-outcomes:
				delete(inFlight, outcome.key)
				finished[outcome.key] = outcome.status
				e.recordOutcome(report, outcome)
			default:
				drained = false
			}
		}
	}

	sort.Strings(report.Succeeded)
	sort.Strings(report.Skipped)
	return report, nil
}

func (e *Executor) recordOutcome(report *ExecutionReport, outcome taskOutcome) {
	report.TotalCost += outcome.cost
	switch outcome.status {
	case TaskSuccess:
		report.Succeeded = append(report.Succeeded, outcome.key)
	case TaskFailed:
		report.Failed[outcome.key] = outcome.errMsg
	}
}

// runTask attempts a single task up to the retry ceiling. Every status
// transition is persisted and emitted before the next attempt starts.
func (e *Executor) runTask(ctx context.Context, missionID string, rec *store.TaskRecord) taskOutcome {
	now := time.Now()
	rec.Status = TaskRunning
	rec.StartedAt = &now
	if err := e.tasks.UpdateTask(rec); err != nil {
		e.logger.Error("failed to persist task start", "task", rec.TaskKey, "error", err)
	}
	e.emitter.Emit(missionID, rec.ID, EventTaskStarted, "", "")
	e.streamer.TaskStarted(rec.TaskKey)

	var args map[string]any
	if rec.ToolArgsJSON != "" {
		if err := json.Unmarshal([]byte(rec.ToolArgsJSON), &args); err != nil {
			return e.finishTask(missionID, rec, TaskFailed, "", 0, fmt.Sprintf("invalid tool args: %v", err))
		}
	}

	var lastErr string
	var cost float64
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		rec.AttemptCount = attempt

		result, err := e.invokeTask(ctx, rec, args)
		if err == nil && result.Success {
			cost += result.Cost
			return e.finishTask(missionID, rec, TaskSuccess, result.Output, cost, "")
		}

		if err != nil {
			lastErr = err.Error()
		} else {
			lastErr = result.Err
			cost += result.Cost
		}

		if ctx.Err() != nil {
			return e.finishTask(missionID, rec, TaskFailed, "", cost, ctx.Err().Error())
		}

		if attempt < e.policy.MaxAttempts {
			rec.Status = TaskRetry
			if err := e.tasks.UpdateTask(rec); err != nil {
				e.logger.Error("failed to persist task retry", "task", rec.TaskKey, "error", err)
			}
			e.emitter.Emit(missionID, rec.ID, EventTaskRetrying, "", lastErr)
			e.streamer.TaskRetrying(rec.TaskKey, attempt, e.policy.MaxAttempts, fmt.Errorf("%s", lastErr))

			if err := e.policy.Sleep(ctx, attempt+1); err != nil {
				return e.finishTask(missionID, rec, TaskFailed, "", cost, err.Error())
			}
			rec.Status = TaskRunning
			if err := e.tasks.UpdateTask(rec); err != nil {
				e.logger.Error("failed to persist task resume", "task", rec.TaskKey, "error", err)
			}
		}
	}

	return e.finishTask(missionID, rec, TaskFailed, "", cost, lastErr)
}

// invokeTask dispatches one attempt. Tasks without a tool act as
// structural join points and succeed immediately.
func (e *Executor) invokeTask(ctx context.Context, rec *store.TaskRecord, args map[string]any) (*tools.Result, error) {
	if rec.ToolName == "" {
		return tools.Ok(""), nil
	}
	return e.invoker.Invoke(ctx, rec.ToolName, args)
}

func (e *Executor) finishTask(missionID string, rec *store.TaskRecord, status, output string, cost float64, errMsg string) taskOutcome {
	now := time.Now()
	rec.Status = status
	rec.FinishedAt = &now
	if rec.StartedAt != nil {
		rec.DurationMS = now.Sub(*rec.StartedAt).Milliseconds()
	}
	if status == TaskSuccess && output != "" {
		rec.Result = &output
	}
	if err := e.tasks.UpdateTask(rec); err != nil {
		e.logger.Error("failed to persist task outcome", "task", rec.TaskKey, "error", err)
	}

	switch status {
	case TaskSuccess:
		e.emitter.Emit(missionID, rec.ID, EventTaskCompleted, output, "")
		e.streamer.TaskCompleted(rec.TaskKey, output)
	case TaskFailed:
		e.emitter.Emit(missionID, rec.ID, EventTaskFailed, "", errMsg)
		e.streamer.TaskFailed(rec.TaskKey, fmt.Errorf("%s", errMsg))
	}

	return taskOutcome{key: rec.TaskKey, status: status, errMsg: errMsg, cost: cost}
}
