package mission_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"flotilla/mission"
	"flotilla/retry"
	"flotilla/store"
	"flotilla/streamers"
	"flotilla/tools"
)

// probeTool records invocation order and tracks how many invocations are
// live at once. The task key travels in the "id" argument.
type probeTool struct {
	mu    sync.Mutex
	order []string
	live  int
	peak  int
	delay time.Duration
}

func (t *probeTool) Name() string        { return "probe" }
func (t *probeTool) Description() string { return "records invocation order" }

func (t *probeTool) Invoke(ctx context.Context, args map[string]any) (*tools.Result, error) {
	id, _ := args["id"].(string)
	t.mu.Lock()
	t.order = append(t.order, "start:"+id)
	t.live++
	if t.live > t.peak {
		t.peak = t.live
	}
	t.mu.Unlock()

	time.Sleep(t.delay)

	t.mu.Lock()
	t.order = append(t.order, "end:"+id)
	t.live--
	t.mu.Unlock()
	return tools.Ok("done " + id), nil
}

func (t *probeTool) snapshot() ([]string, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.order...), t.peak
}

// meetTool blocks each invocation until `parties` invocations have
// arrived, proving they ran concurrently. A stalled rendezvous fails
// instead of hanging the run.
type meetTool struct {
	mu      sync.Mutex
	parties int
	arrived int
	gate    chan struct{}
}

func newMeetTool(parties int) *meetTool {
	return &meetTool{parties: parties, gate: make(chan struct{})}
}

func (t *meetTool) Name() string        { return "meet" }
func (t *meetTool) Description() string { return "rendezvous point" }

func (t *meetTool) Invoke(ctx context.Context, args map[string]any) (*tools.Result, error) {
	t.mu.Lock()
	t.arrived++
	if t.arrived == t.parties {
		close(t.gate)
	}
	t.mu.Unlock()

	select {
	case <-t.gate:
		return tools.Ok("met"), nil
	case <-time.After(2 * time.Second):
		return tools.Fail("rendezvous never completed"), nil
	}
}

// brokenTool fails every invocation and counts how often it was called.
type brokenTool struct {
	mu    sync.Mutex
	calls int
}

func (t *brokenTool) Name() string        { return "broken" }
func (t *brokenTool) Description() string { return "always fails" }

func (t *brokenTool) Invoke(ctx context.Context, args map[string]any) (*tools.Result, error) {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
	return tools.Fail("boom"), nil
}

func (t *brokenTool) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

func fastPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Multiplier:  2.0,
		MaxDelay:    10 * time.Millisecond,
	}
}

var _ = Describe("Executor", func() {
	var bundle *store.Bundle
	var registry *tools.Registry
	var emitter *mission.EventEmitter

	const missionID = "m1"

	BeforeEach(func() {
		bundle = store.NewMemoryBundle()
		registry = tools.NewRegistry()
		emitter = mission.NewEventEmitter(bundle.Events, nil)
	})

	newExecutor := func(opts ...mission.ExecutorOption) *mission.Executor {
		invoker := tools.NewInvoker(registry, 5*time.Second, nil)
		opts = append([]mission.ExecutorOption{
			mission.WithConcurrency(4),
			mission.WithTaskRetryPolicy(fastPolicy()),
		}, opts...)
		return mission.NewExecutor(bundle.Tasks, emitter, invoker, streamers.Noop{}, opts...)
	}

	createTasks := func(records ...*store.TaskRecord) []*store.TaskRecord {
		for _, rec := range records {
			rec.MissionID = missionID
			rec.PlanID = "p1"
			rec.Status = mission.TaskPending
		}
		Expect(bundle.Tasks.CreateTasks(records)).To(Succeed())
		return records
	}

	task := func(key, toolName, argsJSON string, deps ...string) *store.TaskRecord {
		return &store.TaskRecord{
			TaskKey:      key,
			TaskType:     "TOOL",
			ToolName:     toolName,
			ToolArgsJSON: argsJSON,
			DependsOn:    deps,
		}
	}

	It("runs independent tasks concurrently", func() {
		registry.Register(newMeetTool(2))
		records := createTasks(
			task("alpha", "meet", ""),
			task("gamma", "meet", ""),
		)

		report, err := newExecutor().Execute(context.Background(), missionID, records)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.AllSucceeded()).To(BeTrue())
		Expect(report.Succeeded).To(Equal([]string{"alpha", "gamma"}))
	})

	It("starts a dependent task only after its dependency finishes", func() {
		probe := &probeTool{delay: 5 * time.Millisecond}
		registry.Register(probe)
		records := createTasks(
			task("a", "probe", `{"id":"a"}`),
			task("b", "probe", `{"id":"b"}`, "a"),
		)

		report, err := newExecutor().Execute(context.Background(), missionID, records)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.AllSucceeded()).To(BeTrue())

		order, _ := probe.snapshot()
		Expect(order).To(Equal([]string{"start:a", "end:a", "start:b", "end:b"}))

		for _, rec := range records {
			got, gerr := bundle.Tasks.GetTask(rec.ID)
			Expect(gerr).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(mission.TaskSuccess))
			Expect(got.Result).NotTo(BeNil())
			Expect(got.FinishedAt).NotTo(BeNil())
		}
	})

	It("never exceeds the concurrency limit", func() {
		probe := &probeTool{delay: 10 * time.Millisecond}
		registry.Register(probe)
		records := createTasks(
			task("t1", "probe", `{"id":"t1"}`),
			task("t2", "probe", `{"id":"t2"}`),
			task("t3", "probe", `{"id":"t3"}`),
			task("t4", "probe", `{"id":"t4"}`),
		)

		report, err := newExecutor(mission.WithConcurrency(1)).Execute(context.Background(), missionID, records)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.AllSucceeded()).To(BeTrue())

		_, peak := probe.snapshot()
		Expect(peak).To(Equal(1))
	})

	It("retries a failing task to the ceiling and skips its dependents untouched", func() {
		broken := &brokenTool{}
		probe := &probeTool{}
		registry.Register(broken)
		registry.Register(probe)
		records := createTasks(
			task("a", "broken", ""),
			task("b", "probe", `{"id":"b"}`, "a"),
			task("d", "probe", `{"id":"d"}`, "b"),
			task("c", "probe", `{"id":"c"}`),
		)

		report, err := newExecutor().Execute(context.Background(), missionID, records)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.AllSucceeded()).To(BeFalse())
		Expect(report.Failed).To(HaveKeyWithValue("a", "boom"))
		Expect(report.Skipped).To(Equal([]string{"b", "d"}))
		Expect(report.Succeeded).To(Equal([]string{"c"}))
		Expect(report.FailureSummary()).To(ContainSubstring("task 'a' failed: boom"))

		Expect(broken.callCount()).To(Equal(3))

		byKey := make(map[string]*store.TaskRecord)
		for _, rec := range records {
			got, gerr := bundle.Tasks.GetTask(rec.ID)
			Expect(gerr).NotTo(HaveOccurred())
			byKey[got.TaskKey] = got
		}
		Expect(byKey["a"].Status).To(Equal(mission.TaskFailed))
		Expect(byKey["a"].AttemptCount).To(Equal(3))
		Expect(byKey["b"].Status).To(Equal(mission.TaskSkipped))
		Expect(byKey["b"].AttemptCount).To(BeZero())
		Expect(byKey["d"].Status).To(Equal(mission.TaskSkipped))
		Expect(byKey["d"].AttemptCount).To(BeZero())

		// Skipped tasks must never reach their tool.
		order, _ := probe.snapshot()
		Expect(order).NotTo(ContainElement("start:b"))
		Expect(order).NotTo(ContainElement("start:d"))
	})

	It("emits an ordered event for every task transition", func() {
		broken := &brokenTool{}
		registry.Register(broken)
		records := createTasks(
			task("a", "broken", ""),
			task("b", "", "", "a"),
		)

		_, err := newExecutor().Execute(context.Background(), missionID, records)
		Expect(err).NotTo(HaveOccurred())

		events, err := bundle.Events.GetEventsByMission(missionID)
		Expect(err).NotTo(HaveOccurred())

		var types []string
		lastSeq := int64(0)
		for _, ev := range events {
			Expect(ev.Seq).To(BeNumerically(">", lastSeq))
			lastSeq = ev.Seq
			types = append(types, ev.EventType)
		}
		Expect(types).To(Equal([]string{
			mission.EventTaskStarted,
			mission.EventTaskRetrying,
			mission.EventTaskRetrying,
			mission.EventTaskFailed,
			mission.EventTaskSkipped,
		}))

		skip := events[len(events)-1]
		Expect(skip.Note).To(Equal("dependency 'a' did not succeed"))
		Expect(skip.TaskID).NotTo(BeNil())
	})

	It("treats a task without a tool as an immediately successful join point", func() {
		probe := &probeTool{}
		registry.Register(probe)
		records := createTasks(
			task("left", "probe", `{"id":"left"}`),
			task("right", "probe", `{"id":"right"}`),
			task("join", "", "", "left", "right"),
		)

		report, err := newExecutor().Execute(context.Background(), missionID, records)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.AllSucceeded()).To(BeTrue())
		Expect(report.Succeeded).To(Equal([]string{"join", "left", "right"}))
	})

	It("rejects a cyclic plan before running anything", func() {
		probe := &probeTool{}
		registry.Register(probe)
		records := createTasks(
			task("a", "probe", `{"id":"a"}`, "b"),
			task("b", "probe", `{"id":"b"}`, "a"),
		)

		_, err := newExecutor().Execute(context.Background(), missionID, records)
		Expect(err).To(MatchError(ContainSubstring("dependency cycle detected")))

		order, _ := probe.snapshot()
		Expect(order).To(BeEmpty())
		for _, rec := range records {
			got, gerr := bundle.Tasks.GetTask(rec.ID)
			Expect(gerr).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(mission.TaskPending))
		}
	})

	It("stops launching tasks when the context is cancelled", func() {
		probe := &probeTool{delay: 50 * time.Millisecond}
		registry.Register(probe)
		records := createTasks(
			task("a", "probe", `{"id":"a"}`),
			task("b", "probe", `{"id":"b"}`, "a"),
		)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		_, err := newExecutor().Execute(ctx, missionID, records)
		Expect(err).To(MatchError(context.Canceled))
	})
})
