package domain

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

const (
	StatusNew               TaskStatus = "new"
	StatusInProgress        TaskStatus = "in_progress"
	StatusNeedsReview       TaskStatus = "needs_review"
	StatusUserInputReceived TaskStatus = "user_input_received"
	StatusWaiting           TaskStatus = "waiting"
	StatusDone              TaskStatus = "done"
	StatusCancelled         TaskStatus = "cancelled"
	StatusError             TaskStatus = "error"
)

// IsTerminal returns true if no further transitions are allowed from s
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case StatusDone, StatusCancelled, StatusError:
		return true
	}
	return false
}

// EligibleStatuses are the statuses the scheduler loop polls for, in
// claim-priority order: human replies first, then new work, then deferred work.
var EligibleStatuses = []TaskStatus{StatusUserInputReceived, StatusNew, StatusWaiting}

// AgentState represents the scheduler loop's own status
type AgentState string

const (
	AgentIdle       AgentState = "idle"
	AgentProcessing AgentState = "processing"
	AgentPaused     AgentState = "paused"
	AgentError      AgentState = "error"
)
