package agent

import (
	"fmt"

	"github.com/stewardhq/steward/internal/domain"
)

// Pause stops the loop from claiming new tasks. A task already in flight
// runs to completion or suspension regardless.
func (l *Loop) Pause() {
	l.mu.Lock()
	l.paused = true
	l.mu.Unlock()
}

// Resume lets a paused loop claim tasks again
func (l *Loop) Resume() {
	l.mu.Lock()
	l.paused = false
	l.mu.Unlock()
	l.nudge()
}

// ForceProcess queues a task for execution on the next cycle, bypassing
// the eligibility filter but not single-flight. Forcing a task that is
// already in flight or already queued is a no-op, so rapid repeated
// calls yield exactly one execution.
func (l *Loop) ForceProcess(taskID string) error {
	if taskID == "" {
		return fmt.Errorf("force process: empty task id")
	}

	l.mu.Lock()
	if l.inFlight == taskID || l.forced[taskID] {
		l.mu.Unlock()
		return nil
	}
	l.forced[taskID] = true
	l.queue = append(l.queue, taskID)
	l.mu.Unlock()

	l.nudge()
	return nil
}

// Status returns a snapshot of the loop's run state
func (l *Loop) Status() domain.AgentRunState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// RecentHistory returns the newest finished runs, up to limit
func (l *Loop) RecentHistory(limit int) ([]*domain.RunRecord, error) {
	return l.store.RecentRuns(limit)
}

func (l *Loop) isPaused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paused
}

// nudge wakes the poll loop early
func (l *Loop) nudge() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
