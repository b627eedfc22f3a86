package store

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// NewMemoryBundle creates a Bundle backed by in-process maps. Used by
// tests and for missions that need no durability.
func NewMemoryBundle() *Bundle {
	state := &memoryState{
		missions: make(map[string]*MissionRecord),
		plans:    make(map[string]*PlanRecord),
		tasks:    make(map[string]*TaskRecord),
		events:   make(map[string][]EventRecord),
	}
	return &Bundle{
		Missions: &MemoryMissionStore{state: state},
		Plans:    &MemoryPlanStore{state: state},
		Tasks:    &MemoryTaskStore{state: state},
		Events:   &MemoryEventStore{state: state},
	}
}

// memoryState is shared by all memory stores so lock acquisition can see
// every mission.
type memoryState struct {
	mu       sync.Mutex
	missions map[string]*MissionRecord
	plans    map[string]*PlanRecord
	tasks    map[string]*TaskRecord
	events   map[string][]EventRecord
}

type MemoryMissionStore struct {
	state *memoryState
}

func (s *MemoryMissionStore) CreateMission(objective, resourceClass string) (string, error) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	id := generateID()
	s.state.missions[id] = &MissionRecord{
		ID:            id,
		Objective:     objective,
		Status:        "PENDING",
		ResourceClass: resourceClass,
		CreatedAt:     time.Now(),
	}
	return id, nil
}

func (s *MemoryMissionStore) GetMission(id string) (*MissionRecord, error) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	m, ok := s.state.missions[id]
	if !ok {
		return nil, fmt.Errorf("mission %s: %w", id, ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryMissionStore) ListMissions(limit int) ([]MissionRecord, error) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	missions := make([]MissionRecord, 0, len(s.state.missions))
	for _, m := range s.state.missions {
		missions = append(missions, *m)
	}
	sort.Slice(missions, func(i, j int) bool {
		return missions[i].CreatedAt.After(missions[j].CreatedAt)
	})
	if limit > 0 && len(missions) > limit {
		missions = missions[:limit]
	}
	return missions, nil
}

func (s *MemoryMissionStore) UpdateMissionStatus(id, status string, resultSummary *string) error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	m, ok := s.state.missions[id]
	if !ok {
		return fmt.Errorf("mission %s: %w", id, ErrNotFound)
	}
	m.Status = status
	if resultSummary != nil {
		m.ResultSummary = resultSummary
	}
	if status == "SUCCESS" || status == "FAILED" || status == "ABORTED" {
		now := time.Now()
		m.FinishedAt = &now
	}
	return nil
}

func (s *MemoryMissionStore) SetActivePlan(missionID, planID string) error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	m, ok := s.state.missions[missionID]
	if !ok {
		return fmt.Errorf("mission %s: %w", missionID, ErrNotFound)
	}
	m.ActivePlanID = &planID
	return nil
}

func (s *MemoryMissionStore) IncrementAdaptiveCycles(id string) (int, error) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	m, ok := s.state.missions[id]
	if !ok {
		return 0, fmt.Errorf("mission %s: %w", id, ErrNotFound)
	}
	m.AdaptiveCycles++
	return m.AdaptiveCycles, nil
}

func (s *MemoryMissionStore) AddCost(id string, cost float64) error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	m, ok := s.state.missions[id]
	if !ok {
		return fmt.Errorf("mission %s: %w", id, ErrNotFound)
	}
	m.TotalCost += cost
	return nil
}

func (s *MemoryMissionStore) AcquireLock(missionID string) (bool, error) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	m, ok := s.state.missions[missionID]
	if !ok {
		return false, fmt.Errorf("mission %s: %w", missionID, ErrNotFound)
	}
	for _, other := range s.state.missions {
		if other.Locked && other.ResourceClass == m.ResourceClass {
			return false, nil
		}
	}
	m.Locked = true
	return true, nil
}

func (s *MemoryMissionStore) ReleaseLock(missionID string) error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	m, ok := s.state.missions[missionID]
	if !ok {
		return fmt.Errorf("mission %s: %w", missionID, ErrNotFound)
	}
	m.Locked = false
	return nil
}

type MemoryPlanStore struct {
	state *memoryState
}

func (s *MemoryPlanStore) CreatePlan(rec *PlanRecord) error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	rec.ID = generateID()
	rec.CreatedAt = time.Now()
	version := 1
	for _, p := range s.state.plans {
		if p.MissionID == rec.MissionID && p.Version >= version {
			version = p.Version + 1
		}
	}
	rec.Version = version
	cp := *rec
	s.state.plans[rec.ID] = &cp
	return nil
}

func (s *MemoryPlanStore) GetPlan(id string) (*PlanRecord, error) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	p, ok := s.state.plans[id]
	if !ok {
		return nil, fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryPlanStore) GetPlansByMission(missionID string) ([]PlanRecord, error) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	var plans []PlanRecord
	for _, p := range s.state.plans {
		if p.MissionID == missionID {
			plans = append(plans, *p)
		}
	}
	sort.Slice(plans, func(i, j int) bool {
		return plans[i].Version < plans[j].Version
	})
	return plans, nil
}

func (s *MemoryPlanStore) UpdatePlanStatus(id, status string) error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	p, ok := s.state.plans[id]
	if !ok {
		return fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	p.Status = status
	return nil
}

type MemoryTaskStore struct {
	state *memoryState
}

func (s *MemoryTaskStore) CreateTasks(tasks []*TaskRecord) error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	for _, t := range tasks {
		t.ID = generateID()
		cp := *t
		s.state.tasks[t.ID] = &cp
	}
	return nil
}

func (s *MemoryTaskStore) GetTask(id string) (*TaskRecord, error) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	t, ok := s.state.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryTaskStore) GetTasksByPlan(planID string) ([]TaskRecord, error) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	var tasks []TaskRecord
	for _, t := range s.state.tasks {
		if t.PlanID == planID {
			tasks = append(tasks, *t)
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].TaskKey < tasks[j].TaskKey
	})
	return tasks, nil
}

func (s *MemoryTaskStore) UpdateTask(rec *TaskRecord) error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if _, ok := s.state.tasks[rec.ID]; !ok {
		return fmt.Errorf("task %s: %w", rec.ID, ErrNotFound)
	}
	cp := *rec
	s.state.tasks[rec.ID] = &cp
	return nil
}

type MemoryEventStore struct {
	state *memoryState
}

func (s *MemoryEventStore) AppendEvent(rec *EventRecord) error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	rec.ID = generateID()
	rec.CreatedAt = time.Now()
	s.state.events[rec.MissionID] = append(s.state.events[rec.MissionID], *rec)
	return nil
}

func (s *MemoryEventStore) GetEventsByMission(missionID string) ([]EventRecord, error) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	events := make([]EventRecord, len(s.state.events[missionID]))
	copy(events, s.state.events[missionID])
	sort.Slice(events, func(i, j int) bool {
		return events[i].Seq < events[j].Seq
	})
	return events, nil
}
