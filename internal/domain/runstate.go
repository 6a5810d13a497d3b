package domain

import "time"

// AgentRunState describes the scheduler loop itself. There is exactly one
// record per loop instance; it is mutated only by the loop and read by
// status-reporting surfaces.
type AgentRunState struct {
	State          AgentState
	CurrentTaskID  string
	ProcessedCount int
	RetryCount     int // attempts consumed by the most recently failed task
	LastError      string
	UpdatedAt      time.Time
}

// RunRecord is one finished engine invocation, kept for history reporting
type RunRecord struct {
	ID         string
	TaskID     string
	Outcome    string // done | suspended | error
	Detail     string
	FinishedAt time.Time
}
