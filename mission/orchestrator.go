package mission

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"flotilla/planner"
	"flotilla/store"
	"flotilla/streamers"
)

// Orchestrator drives a mission from objective to terminal status. It
// selects a planner, persists and executes the plan, and replans on
// failure up to the adaptive cycle limit. At most one mission per
// resource class runs at a time.
type Orchestrator struct {
	stores    *store.Bundle
	factory   *planner.Factory
	profiler  *planner.Profiler
	executor  *Executor
	emitter   *EventEmitter
	streamer  streamers.MissionHandler
	maxCycles int
	logger    hclog.Logger
}

// OrchestratorOption is a functional option for configuring the Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithMaxAdaptiveCycles bounds how many plan-execute rounds a mission
// gets before it is declared failed.
func WithMaxAdaptiveCycles(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxCycles = n
		}
	}
}

// WithStreamer sets the progress handler.
func WithStreamer(streamer streamers.MissionHandler) OrchestratorOption {
	return func(o *Orchestrator) {
		o.streamer = streamer
	}
}

// WithOrchestratorLogger sets the logger.
func WithOrchestratorLogger(logger hclog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// NewOrchestrator creates a mission orchestrator.
func NewOrchestrator(stores *store.Bundle, factory *planner.Factory, profiler *planner.Profiler, executor *Executor, emitter *EventEmitter, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		stores:    stores,
		factory:   factory,
		profiler:  profiler,
		executor:  executor,
		emitter:   emitter,
		streamer:  streamers.Noop{},
		maxCycles: 3,
		logger:    hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes a mission to completion. It returns the terminal
// mission record, or an error if the mission could not start at all.
func (o *Orchestrator) Run(ctx context.Context, missionID string) (*store.MissionRecord, error) {
	m, err := o.stores.Missions.GetMission(missionID)
	if err != nil {
		return nil, fmt.Errorf("loading mission: %w", err)
	}
	if IsTerminalMissionStatus(m.Status) {
		return nil, fmt.Errorf("mission '%s' already finished with status %s", missionID, m.Status)
	}

	acquired, err := o.stores.Missions.AcquireLock(missionID)
	if err != nil {
		return nil, fmt.Errorf("acquiring mission lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("another mission in resource class '%s' is already running", m.ResourceClass)
	}
	defer func() {
		if err := o.stores.Missions.ReleaseLock(missionID); err != nil {
			o.logger.Error("failed to release mission lock", "mission_id", missionID, "error", err)
		}
	}()

	o.emitter.Emit(missionID, "", EventMissionStarted, "", m.Objective)
	o.streamer.MissionStarted(missionID, m.Objective)

	planCtx := &planner.Context{}
	excluded := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return o.finish(m, MissionAborted, "mission aborted: "+ctx.Err().Error())
		default:
		}

		plannerName, draft, err := o.buildPlan(ctx, m, planCtx, excluded)
		if err != nil {
			if errors.Is(err, planner.ErrNoEligiblePlanner) {
				return o.finish(m, MissionFailed, "no eligible planner for objective")
			}
			return o.finish(m, MissionFailed, "planning failed: "+err.Error())
		}

		planRec, taskRecs, err := o.persistPlan(m, draft)
		if err != nil {
			return o.finish(m, MissionFailed, "persisting plan failed: "+err.Error())
		}
		o.streamer.PlanReady(missionID, plannerName, planRec.Version, len(taskRecs))

		if err := o.stores.Missions.UpdateMissionStatus(missionID, MissionRunning, nil); err != nil {
			o.logger.Error("failed to persist mission status", "mission_id", missionID, "error", err)
		}

		report, err := o.executor.Execute(ctx, missionID, taskRecs)
		if report != nil && report.TotalCost > 0 {
			if err := o.stores.Missions.AddCost(missionID, report.TotalCost); err != nil {
				o.logger.Error("failed to record mission cost", "mission_id", missionID, "error", err)
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return o.finish(m, MissionAborted, "mission aborted: "+ctx.Err().Error())
			}
			o.profiler.RecordSelection(plannerName, false)
			return o.finish(m, MissionFailed, "plan rejected: "+err.Error())
		}

		if report.AllSucceeded() {
			o.profiler.RecordSelection(plannerName, true)
			summary := fmt.Sprintf("all %d tasks succeeded", len(report.Succeeded))
			return o.finish(m, MissionSuccess, summary)
		}

		o.profiler.RecordSelection(plannerName, false)
		failure := report.FailureSummary()
		if failure == "" {
			failure = fmt.Sprintf("%d tasks skipped without a recorded failure", len(report.Skipped))
		}

		// The limit is checked before counting this round, so a mission
		// gets exactly maxCycles replans before giving up.
		if m.AdaptiveCycles >= o.maxCycles {
			summary := fmt.Sprintf("exhausted %d adaptive cycles; last failure: %s", o.maxCycles, failure)
			return o.finish(m, MissionFailed, summary)
		}

		cycles, err := o.stores.Missions.IncrementAdaptiveCycles(missionID)
		if err != nil {
			o.logger.Error("failed to bump adaptive cycles", "mission_id", missionID, "error", err)
			cycles = m.AdaptiveCycles + 1
		}
		m.AdaptiveCycles = cycles

		planCtx.FailureNotes = append(planCtx.FailureNotes, failure)
		o.emitter.Emit(m.ID, "", EventReplanTriggered, "", failure)
		o.streamer.ReplanTriggered(m.ID, cycles, failure)
		o.logger.Info("replanning mission", "mission_id", m.ID, "cycle", cycles, "failure", failure)
	}
}

// buildPlan selects planners until one produces a valid plan. A
// planner whose plan fails to build or validate is excluded and its
// failure recorded before selection retries.
func (o *Orchestrator) buildPlan(ctx context.Context, m *store.MissionRecord, planCtx *planner.Context, excluded map[string]bool) (string, *planner.PlanDraft, error) {
	if err := o.stores.Missions.UpdateMissionStatus(m.ID, MissionPlanning, nil); err != nil {
		o.logger.Error("failed to persist mission status", "mission_id", m.ID, "error", err)
	}
	o.emitter.Emit(m.ID, "", EventMissionPlanning, "", "")

	for {
		name, p, err := o.factory.SelectBest(ctx, excluded)
		if err != nil {
			return "", nil, err
		}

		draft, err := p.BuildPlan(ctx, m.Objective, planCtx)
		if err == nil {
			err = validateDraft(draft)
		}
		if err != nil {
			o.logger.Warn("planner produced no usable plan",
				"planner", name, "mission_id", m.ID, "error", err)
			o.profiler.RecordSelection(name, false)
			excluded[name] = true
			continue
		}

		if draft.PlannerName == "" {
			draft.PlannerName = name
		}
		return name, draft, nil
	}
}

func validateDraft(draft *planner.PlanDraft) error {
	if draft == nil || len(draft.Tasks) == 0 {
		return fmt.Errorf("empty plan")
	}
	graph, err := NewGraphFromSpecs(draft.Tasks)
	if err != nil {
		return err
	}
	return graph.Validate()
}

// persistPlan stores the new plan as the mission's active plan, marking
// any prior active plan superseded first.
func (o *Orchestrator) persistPlan(m *store.MissionRecord, draft *planner.PlanDraft) (*store.PlanRecord, []*store.TaskRecord, error) {
	if m.ActivePlanID != nil {
		prior := *m.ActivePlanID
		if err := o.stores.Plans.UpdatePlanStatus(prior, PlanSuperseded); err != nil {
			o.logger.Error("failed to supersede prior plan", "plan_id", prior, "error", err)
		}
		o.emitter.Emit(m.ID, "", EventPlanSuperseded, "", prior)
	}

	score := o.profiler.Reliability(draft.PlannerName)
	planRec, taskRecs, err := BuildPlanRecords(m.ID, draft, score)
	if err != nil {
		return nil, nil, err
	}
	planRec.Status = PlanValid

	if err := o.stores.Plans.CreatePlan(planRec); err != nil {
		return nil, nil, err
	}
	for _, rec := range taskRecs {
		rec.PlanID = planRec.ID
	}
	if err := o.stores.Tasks.CreateTasks(taskRecs); err != nil {
		return nil, nil, err
	}
	if err := o.stores.Missions.SetActivePlan(m.ID, planRec.ID); err != nil {
		return nil, nil, err
	}
	m.ActivePlanID = &planRec.ID

	o.emitter.Emit(m.ID, "", EventPlanCreated, planRec.ContentHash,
		fmt.Sprintf("planner=%s version=%d tasks=%d", draft.PlannerName, planRec.Version, len(taskRecs)))
	return planRec, taskRecs, nil
}

// finish persists the mission's terminal status and emits the closing
// event. The lock is released by the caller's deferred ReleaseLock.
func (o *Orchestrator) finish(m *store.MissionRecord, status, summary string) (*store.MissionRecord, error) {
	if err := o.stores.Missions.UpdateMissionStatus(m.ID, status, &summary); err != nil {
		o.logger.Error("failed to persist terminal mission status",
			"mission_id", m.ID, "status", status, "error", err)
	}
	m.Status = status
	m.ResultSummary = &summary

	switch status {
	case MissionSuccess:
		o.emitter.Emit(m.ID, "", EventMissionCompleted, "", summary)
	case MissionAborted:
		o.emitter.Emit(m.ID, "", EventMissionAborted, "", summary)
	default:
		o.emitter.Emit(m.ID, "", EventMissionFailed, "", summary)
	}
	o.streamer.MissionCompleted(m.ID, status, summary)

	updated, err := o.stores.Missions.GetMission(m.ID)
	if err != nil {
		return m, nil
	}
	return updated, nil
}
