package mission_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"flotilla/mission"
	"flotilla/planner"
	"flotilla/retry"
	"flotilla/store"
	"flotilla/streamers"
	"flotilla/tools"
)

// scriptedPlanner returns whatever the build function produces and keeps
// every planning context it was handed.
type scriptedPlanner struct {
	mu       sync.Mutex
	calls    int
	contexts []planner.Context
	build    func(call int) (*planner.PlanDraft, error)
}

func (s *scriptedPlanner) BuildPlan(_ context.Context, _ string, planCtx *planner.Context) (*planner.PlanDraft, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	if planCtx != nil {
		s.contexts = append(s.contexts, *planCtx)
	}
	s.mu.Unlock()
	return s.build(call)
}

func (s *scriptedPlanner) seenContexts() []planner.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]planner.Context(nil), s.contexts...)
}

// flakyTool fails its first `failures` invocations, then succeeds.
type flakyTool struct {
	mu       sync.Mutex
	calls    int
	failures int
}

func (t *flakyTool) Name() string        { return "flaky" }
func (t *flakyTool) Description() string { return "fails then recovers" }

func (t *flakyTool) Invoke(ctx context.Context, args map[string]any) (*tools.Result, error) {
	t.mu.Lock()
	t.calls++
	call := t.calls
	t.mu.Unlock()
	if call <= t.failures {
		return tools.Fail("transient outage"), nil
	}
	return tools.Ok("recovered"), nil
}

func singleTaskDraft(toolName string) *planner.PlanDraft {
	return &planner.PlanDraft{Tasks: []planner.TaskSpec{
		{Key: "work", Type: planner.TaskTypeTool, ToolName: toolName},
	}}
}

var _ = Describe("Orchestrator", func() {
	const plannerName = "scripted"

	var bundle *store.Bundle
	var profiler *planner.Profiler
	var orch *mission.Orchestrator
	var maxCycles int

	BeforeEach(func() {
		maxCycles = 3
	})

	setup := func(p planner.Planner, toolset ...tools.Tool) {
		bundle = store.NewMemoryBundle()

		reg := planner.NewRegistry([]string{plannerName}, nil, nil)
		reg.RegisterBuiltin(planner.Blueprint{
			Name:    plannerName,
			Version: "1.0.0",
			New:     func() planner.Planner { return p },
		})
		Expect(reg.Discover()).To(Succeed())

		profiler = planner.NewProfiler(100)
		// One recorded success lifts the planner over the selection
		// threshold, as a warmed-up deployment would have.
		profiler.RecordSelection(plannerName, true)

		loader := planner.NewLoader(reg, profiler, nil)
		heal := retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond}
		factory := planner.NewFactory(reg, loader, profiler, 0.25, heal, nil)

		emitter := mission.NewEventEmitter(bundle.Events, nil)
		invoker := tools.NewInvoker(tools.NewRegistry(toolset...), time.Second, nil)
		exec := mission.NewExecutor(bundle.Tasks, emitter, invoker, streamers.Noop{},
			mission.WithTaskRetryPolicy(fastPolicy()))

		orch = mission.NewOrchestrator(bundle, factory, profiler, exec, emitter,
			mission.WithMaxAdaptiveCycles(maxCycles))
	}

	newMission := func(class string) string {
		id, err := bundle.Missions.CreateMission("ship the release", class)
		Expect(err).NotTo(HaveOccurred())
		return id
	}

	It("drives a mission with a working plan to SUCCESS", func() {
		p := &scriptedPlanner{build: func(int) (*planner.PlanDraft, error) {
			return singleTaskDraft("probe"), nil
		}}
		setup(p, &probeTool{})
		id := newMission("default")

		m, err := orch.Run(context.Background(), id)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Status).To(Equal(mission.MissionSuccess))
		Expect(m.ResultSummary).To(HaveValue(Equal("all 1 tasks succeeded")))
		Expect(m.AdaptiveCycles).To(BeZero())
		Expect(m.ActivePlanID).NotTo(BeNil())

		plans, err := bundle.Plans.GetPlansByMission(id)
		Expect(err).NotTo(HaveOccurred())
		Expect(plans).To(HaveLen(1))
		Expect(plans[0].Status).To(Equal(mission.PlanValid))
		Expect(plans[0].Version).To(Equal(1))
		Expect(plans[0].ContentHash).NotTo(BeEmpty())

		events, err := bundle.Events.GetEventsByMission(id)
		Expect(err).NotTo(HaveOccurred())
		var types []string
		for _, ev := range events {
			types = append(types, ev.EventType)
		}
		Expect(types).To(Equal([]string{
			mission.EventMissionStarted,
			mission.EventMissionPlanning,
			mission.EventPlanCreated,
			mission.EventTaskStarted,
			mission.EventTaskCompleted,
			mission.EventMissionCompleted,
		}))

		selections, _ := profiler.HistoryLen(plannerName)
		Expect(selections).To(Equal(2))
		Expect(profiler.Reliability(plannerName)).To(BeNumerically("==", 1.0))
	})

	It("replans once after a failed execution and supersedes the prior plan", func() {
		flaky := &flakyTool{failures: 3}
		p := &scriptedPlanner{build: func(int) (*planner.PlanDraft, error) {
			return singleTaskDraft("flaky"), nil
		}}
		setup(p, flaky)
		id := newMission("default")

		m, err := orch.Run(context.Background(), id)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Status).To(Equal(mission.MissionSuccess))
		Expect(m.AdaptiveCycles).To(Equal(1))

		plans, err := bundle.Plans.GetPlansByMission(id)
		Expect(err).NotTo(HaveOccurred())
		Expect(plans).To(HaveLen(2))
		Expect(plans[0].Version).To(Equal(1))
		Expect(plans[0].Status).To(Equal(mission.PlanSuperseded))
		Expect(plans[1].Version).To(Equal(2))
		Expect(plans[1].Status).To(Equal(mission.PlanValid))
		Expect(m.ActivePlanID).To(HaveValue(Equal(plans[1].ID)))

		events, err := bundle.Events.GetEventsByMission(id)
		Expect(err).NotTo(HaveOccurred())
		var types []string
		for _, ev := range events {
			types = append(types, ev.EventType)
		}
		Expect(types).To(ContainElement(mission.EventReplanTriggered))
		Expect(types).To(ContainElement(mission.EventPlanSuperseded))

		// The replan sees what went wrong the first time.
		contexts := p.seenContexts()
		Expect(contexts).To(HaveLen(2))
		Expect(contexts[0].FailureNotes).To(BeEmpty())
		Expect(contexts[1].FailureNotes).To(HaveLen(1))
		Expect(contexts[1].FailureNotes[0]).To(ContainSubstring("task 'work' failed"))
	})

	It("fails the mission once adaptive cycles are exhausted", func() {
		p := &scriptedPlanner{build: func(int) (*planner.PlanDraft, error) {
			return singleTaskDraft("broken"), nil
		}}
		setup(p, &brokenTool{})
		id := newMission("default")

		m, err := orch.Run(context.Background(), id)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Status).To(Equal(mission.MissionFailed))
		Expect(m.AdaptiveCycles).To(Equal(3))
		Expect(m.ResultSummary).To(HaveValue(ContainSubstring("exhausted 3 adaptive cycles")))
		Expect(m.ResultSummary).To(HaveValue(ContainSubstring("task 'work' failed")))

		// The initial plan plus one plan per replan cycle.
		plans, err := bundle.Plans.GetPlansByMission(id)
		Expect(err).NotTo(HaveOccurred())
		Expect(plans).To(HaveLen(4))
	})

	It("grants a single replan when the cycle cap is one", func() {
		flaky := &flakyTool{failures: 3}
		p := &scriptedPlanner{build: func(int) (*planner.PlanDraft, error) {
			return singleTaskDraft("flaky"), nil
		}}
		maxCycles = 1
		setup(p, flaky)
		id := newMission("default")

		m, err := orch.Run(context.Background(), id)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Status).To(Equal(mission.MissionSuccess))
		Expect(m.AdaptiveCycles).To(Equal(1))

		plans, err := bundle.Plans.GetPlansByMission(id)
		Expect(err).NotTo(HaveOccurred())
		Expect(plans).To(HaveLen(2))
	})

	It("fails after its single replan when the cycle cap is one and the replan also fails", func() {
		p := &scriptedPlanner{build: func(int) (*planner.PlanDraft, error) {
			return singleTaskDraft("broken"), nil
		}}
		maxCycles = 1
		setup(p, &brokenTool{})
		id := newMission("default")

		m, err := orch.Run(context.Background(), id)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Status).To(Equal(mission.MissionFailed))
		Expect(m.AdaptiveCycles).To(Equal(1))
		Expect(m.ResultSummary).To(HaveValue(ContainSubstring("exhausted 1 adaptive cycles")))

		plans, err := bundle.Plans.GetPlansByMission(id)
		Expect(err).NotTo(HaveOccurred())
		Expect(plans).To(HaveLen(2))
	})

	It("fails the mission when every planner produces unusable plans", func() {
		p := &scriptedPlanner{build: func(int) (*planner.PlanDraft, error) {
			return &planner.PlanDraft{}, nil
		}}
		setup(p)
		id := newMission("default")

		m, err := orch.Run(context.Background(), id)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Status).To(Equal(mission.MissionFailed))
		Expect(m.ResultSummary).To(HaveValue(Equal("no eligible planner for objective")))
	})

	It("rejects a cyclic plan draft before anything executes", func() {
		p := &scriptedPlanner{build: func(int) (*planner.PlanDraft, error) {
			return &planner.PlanDraft{Tasks: []planner.TaskSpec{
				{Key: "a", DependsOn: []string{"b"}},
				{Key: "b", DependsOn: []string{"a"}},
			}}, nil
		}}
		setup(p)
		id := newMission("default")

		m, err := orch.Run(context.Background(), id)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Status).To(Equal(mission.MissionFailed))
		Expect(m.ResultSummary).To(HaveValue(Equal("no eligible planner for objective")))

		plans, perr := bundle.Plans.GetPlansByMission(id)
		Expect(perr).NotTo(HaveOccurred())
		Expect(plans).To(BeEmpty())
	})

	It("refuses to run two missions in the same resource class at once", func() {
		p := &scriptedPlanner{build: func(int) (*planner.PlanDraft, error) {
			return singleTaskDraft("probe"), nil
		}}
		setup(p, &probeTool{})

		first := newMission("deploy")
		second := newMission("deploy")

		acquired, err := bundle.Missions.AcquireLock(first)
		Expect(err).NotTo(HaveOccurred())
		Expect(acquired).To(BeTrue())

		_, err = orch.Run(context.Background(), second)
		Expect(err).To(MatchError(ContainSubstring("resource class 'deploy' is already running")))

		Expect(bundle.Missions.ReleaseLock(first)).To(Succeed())
		m, err := orch.Run(context.Background(), second)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Status).To(Equal(mission.MissionSuccess))
	})

	It("refuses to rerun a finished mission", func() {
		p := &scriptedPlanner{build: func(int) (*planner.PlanDraft, error) {
			return singleTaskDraft("probe"), nil
		}}
		setup(p, &probeTool{})
		id := newMission("default")

		_, err := orch.Run(context.Background(), id)
		Expect(err).NotTo(HaveOccurred())

		_, err = orch.Run(context.Background(), id)
		Expect(err).To(MatchError(ContainSubstring("already finished with status SUCCESS")))
	})

	It("aborts when the context is already cancelled", func() {
		p := &scriptedPlanner{build: func(int) (*planner.PlanDraft, error) {
			return singleTaskDraft("probe"), nil
		}}
		setup(p, &probeTool{})
		id := newMission("default")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		m, err := orch.Run(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Status).To(Equal(mission.MissionAborted))
		Expect(m.ResultSummary).To(HaveValue(ContainSubstring("mission aborted")))
	})
})
