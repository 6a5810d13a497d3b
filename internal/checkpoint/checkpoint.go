// Package checkpoint persists suspended execution state so a paused task
// can resume exactly where it left off, across process restarts.
package checkpoint

import (
	"time"

	"github.com/stewardhq/steward/internal/llm"
)

// PendingCall is the action or question the engine was suspended on.
// On resume the human's reply is injected as this call's result.
type PendingCall struct {
	CallID   string            `json:"call_id,omitempty"`
	Name     string            `json:"name"`
	Args     map[string]string `json:"args,omitempty"`
	Question string            `json:"question,omitempty"`
}

// State is the serialized execution state of one task's action loop:
// the full conversation so far, the step pointer, and the call that
// caused the suspension (if any).
type State struct {
	Messages  []llm.Message `json:"messages"`
	Steps     int           `json:"steps"`
	Pending   *PendingCall  `json:"pending,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Store persists at most one checkpoint per task id. Save must be durable
// before the engine reports a suspension; a later Save for the same task
// overwrites.
type Store interface {
	Save(taskID string, state *State) error
	Load(taskID string) (*State, error) // (nil, nil) when absent
	Discard(taskID string) error
}
