package domain

import (
	"fmt"
	"time"
)

// Task represents a unit of work tracked through the status lifecycle.
// The engine only ever mutates Status and appends comments; everything
// else is owned by whichever producer created the task.
type Task struct {
	ID          string
	Title       string
	Description string
	Status      TaskStatus
	Tags        []string
	Links       map[string]string // free-form references (person, project, ...)
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Comment is an audit entry appended to a task
type Comment struct {
	ID        string
	TaskID    string
	Author    string
	Body      string
	CreatedAt time.Time
}

// transitions maps each status to the statuses it may legally move to.
// Cancellation from any non-terminal state is handled in CanTransition.
var transitions = map[TaskStatus][]TaskStatus{
	StatusNew:               {StatusInProgress},
	StatusInProgress:        {StatusDone, StatusNeedsReview, StatusWaiting, StatusError},
	StatusNeedsReview:       {StatusUserInputReceived},
	StatusUserInputReceived: {StatusInProgress},
	StatusWaiting:           {StatusInProgress},
}

// CanTransition reports whether moving from one status to another is legal
func CanTransition(from, to TaskStatus) bool {
	if to == StatusCancelled {
		return !from.IsTerminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an error describing an illegal transition
func ValidateTransition(from, to TaskStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("illegal task transition %s -> %s", from, to)
	}
	return nil
}

// Claimable returns true if the scheduler loop may move the task into
// in_progress. Terminal tasks are only claimable with the force override.
func (t *Task) Claimable(force bool) bool {
	if force {
		return true
	}
	return CanTransition(t.Status, StatusInProgress)
}
