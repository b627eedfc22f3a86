package mission

import (
	"sync"

	"github.com/hashicorp/go-hclog"

	"flotilla/store"
)

// EventEmitter is the single append point for a mission's event log.
// All state transitions flow through Emit, which assigns each event a
// strictly increasing sequence number per mission under one lock.
type EventEmitter struct {
	mu     sync.Mutex
	events store.EventStore
	seqs   map[string]int64
	logger hclog.Logger
}

// NewEventEmitter creates an emitter backed by the given event store.
// Sequence numbers resume after the highest already persisted for each
// mission.
func NewEventEmitter(events store.EventStore, logger hclog.Logger) *EventEmitter {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &EventEmitter{
		events: events,
		seqs:   make(map[string]int64),
		logger: logger,
	}
}

// Emit appends an event for a mission. taskID may be empty for
// mission-level events. Append failures are logged, not returned, so a
// flaky event sink never aborts execution.
func (e *EventEmitter) Emit(missionID, taskID, eventType, payload, note string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	seq, ok := e.seqs[missionID]
	if !ok {
		seq = e.lastPersistedSeq(missionID)
	}
	seq++
	e.seqs[missionID] = seq

	rec := &store.EventRecord{
		MissionID: missionID,
		EventType: eventType,
		Payload:   payload,
		Note:      note,
		Seq:       seq,
	}
	if taskID != "" {
		rec.TaskID = &taskID
	}

	if err := e.events.AppendEvent(rec); err != nil {
		e.logger.Error("failed to append mission event",
			"mission_id", missionID, "event_type", eventType, "error", err)
	}
}

func (e *EventEmitter) lastPersistedSeq(missionID string) int64 {
	existing, err := e.events.GetEventsByMission(missionID)
	if err != nil || len(existing) == 0 {
		return 0
	}
	return existing[len(existing)-1].Seq
}
