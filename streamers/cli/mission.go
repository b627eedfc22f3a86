package cli

import (
	"fmt"
	"strings"
	"sync"
)

// MissionHandler implements streamers.MissionHandler for CLI output
type MissionHandler struct {
	mu sync.Mutex
}

// NewMissionHandler creates a new CLI mission handler
func NewMissionHandler() *MissionHandler {
	return &MissionHandler{}
}

func (s *MissionHandler) MissionStarted(missionID string, objective string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("\n%s%s=== Mission %s ===%s\n", ColorBold, ColorCyan, missionID, ColorReset)
	fmt.Printf("%sObjective: %s%s\n\n", ColorGray, objective, ColorReset)
}

func (s *MissionHandler) PlanReady(missionID string, plannerName string, version int, taskCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("%s[Plan v%d ready: %d tasks via '%s']%s\n", ColorCyan, version, taskCount, plannerName, ColorReset)
}

func (s *MissionHandler) TaskStarted(taskKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("\n%s%s--- Task: %s ---%s\n", ColorBold, ColorCyan, taskKey, ColorReset)
}

func (s *MissionHandler) TaskRetrying(taskKey string, attempt int, maxAttempts int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("%s[Task '%s' retrying (%d/%d): %v]%s\n", ColorYellow, taskKey, attempt, maxAttempts, err, ColorReset)
}

func (s *MissionHandler) TaskCompleted(taskKey string, result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("\n%s%s[Task '%s' completed]%s\n", ColorBold, ColorGreen, taskKey, ColorReset)
	if result != "" {
		truncated := truncate(result, 300)
		fmt.Printf("%s%s%s\n", ColorGray, truncated, ColorReset)
	}
}

func (s *MissionHandler) TaskFailed(taskKey string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("\n%s%s[Task '%s' FAILED: %v]%s\n", ColorBold, ColorRed, taskKey, err, ColorReset)
}

func (s *MissionHandler) TaskSkipped(taskKey string, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("%s[Task '%s' skipped: %s]%s\n", ColorGray, taskKey, reason, ColorReset)
}

func (s *MissionHandler) ReplanTriggered(missionID string, cycle int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("\n%s[Replanning (cycle %d): %s]%s\n", ColorYellow, cycle, truncate(reason, 200), ColorReset)
}

func (s *MissionHandler) MissionCompleted(missionID string, status string, summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	color := ColorGreen
	if status != "SUCCESS" {
		color = ColorRed
	}
	fmt.Printf("\n%s%s=== Mission %s: %s ===%s\n", ColorBold, color, missionID, status, ColorReset)
	if summary != "" {
		fmt.Printf("%s%s%s\n", ColorGray, summary, ColorReset)
	}
}

// truncate shortens a string to maxLen, collapsing newlines
func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
