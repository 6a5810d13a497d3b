// Package engine drives one task's LLM-directed action loop to completion
// or to an interrupt boundary.
package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/stewardhq/steward/internal/action"
	"github.com/stewardhq/steward/internal/checkpoint"
	"github.com/stewardhq/steward/internal/domain"
	"github.com/stewardhq/steward/internal/llm"
	"github.com/stewardhq/steward/internal/permission"
)

// askUserDef is always offered alongside the registered actions. The
// engine intercepts it: calling it suspends the loop unconditionally.
var askUserDef = llm.ToolDef{
	Name:        action.AskUser,
	Description: "Ask the human operator a question. Execution pauses until they answer.",
	Params: map[string]string{
		"question": "The question for the human operator.",
	},
}

// ResumeInput carries the human reply injected when a suspended task is
// resumed
type ResumeInput struct {
	Reply string
}

// Engine runs task action loops
type Engine struct {
	llm         llm.Client
	actions     *action.Registry
	perms       *permission.Evaluator
	checkpoints checkpoint.Store
	maxSteps    int
}

// New creates an Engine
func New(client llm.Client, actions *action.Registry, perms *permission.Evaluator, checkpoints checkpoint.Store, maxSteps int) *Engine {
	if maxSteps <= 0 {
		maxSteps = 25
	}
	return &Engine{
		llm:         client,
		actions:     actions,
		perms:       perms,
		checkpoints: checkpoints,
		maxSteps:    maxSteps,
	}
}

// Run executes the action loop for a task, either fresh or resumed from
// its checkpoint. All collaborator failures are caught and classified;
// Run never panics the caller with a model or store error.
func (e *Engine) Run(ctx context.Context, task *domain.Task, resume *ResumeInput) Outcome {
	state, err := e.checkpoints.Load(task.ID)
	if err != nil {
		// Corrupt or unreadable checkpoints are structural failures
		return Failed(fmt.Errorf("loading checkpoint for task %s: %w", task.ID, err))
	}
	if state == nil {
		state = &checkpoint.State{
			Messages: []llm.Message{{Role: llm.RoleUser, Content: TaskPrompt(task)}},
		}
	}

	if resume != nil {
		if state.Pending == nil {
			return Failed(fmt.Errorf("resume input for task %s but no pending call", task.ID))
		}
		state.Messages = append(state.Messages, llm.Message{
			Role:       llm.RoleTool,
			ToolCallID: state.Pending.CallID,
			Content:    resume.Reply,
		})
		state.Pending = nil

		// Settle any calls from the suspension batch that never ran
		if out, stop := e.processCalls(ctx, task, state, e.unansweredCalls(state)); stop {
			return out
		}
	} else if state.Pending != nil {
		// Claimed again without an answer; re-raise the original suspension
		return Suspended(interruptFor(state.Pending))
	}

	defs := append(e.actions.Defs(), askUserDef)

	for state.Steps < e.maxSteps {
		resp, err := e.llm.Complete(ctx, llm.Request{
			System:   systemPrompt,
			Messages: state.Messages,
			Tools:    defs,
		})
		if err != nil {
			// Keep the conversation so a retry picks up from here
			if saveErr := e.checkpoints.Save(task.ID, state); saveErr != nil {
				log.Printf("[engine] saving checkpoint for %s after llm failure: %v", task.ID, saveErr)
			}
			return Failed(fmt.Errorf("llm completion for task %s: %w", task.ID, err))
		}
		state.Steps++
		state.Messages = append(state.Messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		if len(resp.ToolCalls) == 0 {
			// Terminal answer; the loop is done and the checkpoint is spent
			if err := e.checkpoints.Discard(task.ID); err != nil {
				log.Printf("[engine] discarding checkpoint for %s: %v", task.ID, err)
			}
			return Completed(resp.Content)
		}

		if out, stop := e.processCalls(ctx, task, state, resp.ToolCalls); stop {
			return out
		}
	}

	return Failed(fmt.Errorf("task %s exceeded the %d step budget", task.ID, e.maxSteps))
}

// processCalls executes requested actions in order. It returns a final
// outcome and true when the loop must stop (suspension or failure).
func (e *Engine) processCalls(ctx context.Context, task *domain.Task, state *checkpoint.State, calls []llm.ToolCall) (Outcome, bool) {
	for _, call := range calls {
		if call.Name == action.AskUser {
			question := call.Args["question"]
			state.Pending = &checkpoint.PendingCall{CallID: call.ID, Name: call.Name, Question: question}
			if err := e.checkpoints.Save(task.ID, state); err != nil {
				// Suspension must not be reported without a durable checkpoint
				return Failed(fmt.Errorf("saving checkpoint for task %s: %w", task.ID, err)), true
			}
			return Suspended(domain.NewUserQuestionInterrupt(question)), true
		}

		if !e.perms.IsApproved(call.Name, call.Args) {
			state.Pending = &checkpoint.PendingCall{CallID: call.ID, Name: call.Name, Args: call.Args}
			if err := e.checkpoints.Save(task.ID, state); err != nil {
				return Failed(fmt.Errorf("saving checkpoint for task %s: %w", task.ID, err)), true
			}
			return Suspended(domain.NewToolApprovalInterrupt(call.Name, call.Args)), true
		}

		result, err := e.execute(ctx, call)
		if err != nil {
			if IsTransient(err) {
				if saveErr := e.checkpoints.Save(task.ID, state); saveErr != nil {
					log.Printf("[engine] saving checkpoint for %s after action failure: %v", task.ID, saveErr)
				}
				return Failed(fmt.Errorf("executing %s for task %s: %w", call.Name, task.ID, err)), true
			}
			// Non-transient action failures are fed back so the model can
			// correct course instead of killing the run
			result = fmt.Sprintf("error: %v", err)
		}
		state.Messages = append(state.Messages, llm.Message{
			Role:       llm.RoleTool,
			ToolCallID: call.ID,
			Content:    result,
		})
	}
	return Outcome{}, false
}

func (e *Engine) execute(ctx context.Context, call llm.ToolCall) (string, error) {
	a, ok := e.actions.Get(call.Name)
	if !ok {
		return "", fmt.Errorf("unknown action %q", call.Name)
	}
	return a.Execute(ctx, call.Args)
}

// unansweredCalls returns the tool calls of the most recent assistant
// message that have no recorded result yet, preserving request order
func (e *Engine) unansweredCalls(state *checkpoint.State) []llm.ToolCall {
	lastAssistant := -1
	for i := len(state.Messages) - 1; i >= 0; i-- {
		if state.Messages[i].Role == llm.RoleAssistant {
			lastAssistant = i
			break
		}
	}
	if lastAssistant == -1 {
		return nil
	}

	answered := make(map[string]bool)
	for _, m := range state.Messages[lastAssistant+1:] {
		if m.Role == llm.RoleTool {
			answered[m.ToolCallID] = true
		}
	}

	var remaining []llm.ToolCall
	for _, call := range state.Messages[lastAssistant].ToolCalls {
		if !answered[call.ID] {
			remaining = append(remaining, call)
		}
	}
	return remaining
}

// interruptFor reconstructs the interrupt a pending call was suspended on
func interruptFor(pending *checkpoint.PendingCall) *domain.Interrupt {
	if pending.Name == action.AskUser {
		return domain.NewUserQuestionInterrupt(pending.Question)
	}
	return domain.NewToolApprovalInterrupt(pending.Name, pending.Args)
}
