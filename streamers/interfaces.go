package streamers

// MissionHandler receives progress callbacks while a mission runs.
// Implementations render them for a particular surface, such as the
// terminal.
type MissionHandler interface {
	MissionStarted(missionID, objective string)
	PlanReady(missionID, plannerName string, version, taskCount int)
	TaskStarted(taskKey string)
	TaskRetrying(taskKey string, attempt, maxAttempts int, err error)
	TaskCompleted(taskKey, result string)
	TaskFailed(taskKey string, err error)
	TaskSkipped(taskKey, reason string)
	ReplanTriggered(missionID string, cycle int, reason string)
	MissionCompleted(missionID, status, summary string)
}

// Noop discards all callbacks. Useful for tests and headless runs.
type Noop struct{}

func (Noop) MissionStarted(missionID, objective string)                         {}
func (Noop) PlanReady(missionID, plannerName string, version, taskCount int)    {}
func (Noop) TaskStarted(taskKey string)                                         {}
func (Noop) TaskRetrying(taskKey string, attempt, maxAttempts int, err error)   {}
func (Noop) TaskCompleted(taskKey, result string)                               {}
func (Noop) TaskFailed(taskKey string, err error)                               {}
func (Noop) TaskSkipped(taskKey, reason string)                                 {}
func (Noop) ReplanTriggered(missionID string, cycle int, reason string)         {}
func (Noop) MissionCompleted(missionID, status, summary string)                 {}
