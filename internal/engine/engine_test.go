package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stewardhq/steward/internal/action"
	"github.com/stewardhq/steward/internal/checkpoint"
	"github.com/stewardhq/steward/internal/domain"
	"github.com/stewardhq/steward/internal/llm"
	"github.com/stewardhq/steward/internal/permission"
)

// scriptedClient returns canned responses in order and records requests
type scriptedClient struct {
	responses []*llm.Response
	err       error
	requests  []llm.Request
}

func (c *scriptedClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	if len(c.responses) == 0 {
		return nil, fmt.Errorf("scripted client out of responses")
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

// memStore is an in-memory checkpoint store
type memStore struct {
	states  map[string]*checkpoint.State
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{states: make(map[string]*checkpoint.State)}
}

func (m *memStore) Save(taskID string, state *checkpoint.State) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	// deep-enough copy via re-slice so later mutations don't alias
	saved := *state
	saved.Messages = append([]llm.Message(nil), state.Messages...)
	m.states[taskID] = &saved
	return nil
}

func (m *memStore) Load(taskID string) (*checkpoint.State, error) {
	state, ok := m.states[taskID]
	if !ok {
		return nil, nil
	}
	loaded := *state
	loaded.Messages = append([]llm.Message(nil), state.Messages...)
	return &loaded, nil
}

func (m *memStore) Discard(taskID string) error {
	delete(m.states, taskID)
	return nil
}

func testTask() *domain.Task {
	return &domain.Task{ID: "task-1", Title: "Reconcile accounts", Status: domain.StatusInProgress}
}

func allowAll() *permission.Evaluator {
	return permission.NewEvaluator(permission.StaticRules{Allow: []string{"lookup(*)", "lookup"}})
}

func denyAll() *permission.Evaluator {
	return permission.NewEvaluator(permission.StaticRules{})
}

func lookupRegistry(t *testing.T, run func(args map[string]string) (string, error)) *action.Registry {
	t.Helper()
	r := action.NewRegistry()
	r.Register(&action.Func{
		ActionName: "lookup",
		Desc:       "Look something up",
		ParamDocs:  map[string]string{"key": "what to look up"},
		Run: func(ctx context.Context, args map[string]string) (string, error) {
			return run(args)
		},
	})
	return r
}

func TestRun_CompletesWithoutTools(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		{Content: "Everything reconciles."},
	}}
	checkpoints := newMemStore()
	eng := New(client, action.NewRegistry(), denyAll(), checkpoints, 0)

	out := eng.Run(context.Background(), testTask(), nil)

	if out.Kind != OutcomeCompleted {
		t.Fatalf("Kind = %v, want completed (err: %v)", out.Kind, out.Err)
	}
	if out.Summary != "Everything reconciles." {
		t.Errorf("Summary = %q", out.Summary)
	}
	if _, ok := checkpoints.states["task-1"]; ok {
		t.Error("checkpoint should be discarded after completion")
	}
	if len(client.requests) != 1 {
		t.Fatalf("got %d requests, want 1", len(client.requests))
	}
	// The task prompt opens the conversation
	if !strings.Contains(client.requests[0].Messages[0].Content, "Reconcile accounts") {
		t.Error("first message should carry the task title")
	}
	// ask_user is always offered
	found := false
	for _, def := range client.requests[0].Tools {
		if def.Name == action.AskUser {
			found = true
		}
	}
	if !found {
		t.Error("ask_user should be offered alongside registered actions")
	}
}

func TestRun_ExecutesApprovedAction(t *testing.T) {
	var gotArgs map[string]string
	registry := lookupRegistry(t, func(args map[string]string) (string, error) {
		gotArgs = args
		return "balance: 120.50", nil
	})
	client := &scriptedClient{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "lookup", Args: map[string]string{"key": "acct-9"}}}},
		{Content: "done"},
	}}
	eng := New(client, registry, allowAll(), newMemStore(), 0)

	out := eng.Run(context.Background(), testTask(), nil)

	if out.Kind != OutcomeCompleted {
		t.Fatalf("Kind = %v, want completed (err: %v)", out.Kind, out.Err)
	}
	if gotArgs["key"] != "acct-9" {
		t.Errorf("action args = %v", gotArgs)
	}
	// Second request must include the tool result
	second := client.requests[1].Messages
	last := second[len(second)-1]
	if last.Role != llm.RoleTool || last.ToolCallID != "c1" || last.Content != "balance: 120.50" {
		t.Errorf("tool result message = %+v", last)
	}
}

func TestRun_DeniedActionSuspends(t *testing.T) {
	registry := lookupRegistry(t, func(args map[string]string) (string, error) {
		t.Fatal("denied action must not execute")
		return "", nil
	})
	client := &scriptedClient{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "lookup", Args: map[string]string{"key": "x"}}}},
	}}
	checkpoints := newMemStore()
	eng := New(client, registry, denyAll(), checkpoints, 0)

	out := eng.Run(context.Background(), testTask(), nil)

	if out.Kind != OutcomeSuspended {
		t.Fatalf("Kind = %v, want suspended", out.Kind)
	}
	if out.Interrupt == nil || out.Interrupt.Kind != domain.InterruptToolApproval {
		t.Fatalf("Interrupt = %+v, want tool approval", out.Interrupt)
	}
	if out.Interrupt.ActionName != "lookup" {
		t.Errorf("ActionName = %q", out.Interrupt.ActionName)
	}

	saved := checkpoints.states["task-1"]
	if saved == nil || saved.Pending == nil {
		t.Fatal("suspension must leave a checkpoint with a pending call")
	}
	if saved.Pending.CallID != "c1" {
		t.Errorf("Pending.CallID = %q, want c1", saved.Pending.CallID)
	}
}

func TestRun_AskUserSuspends(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: action.AskUser, Args: map[string]string{"question": "Proceed with the refund?"}}}},
	}}
	checkpoints := newMemStore()
	eng := New(client, action.NewRegistry(), denyAll(), checkpoints, 0)

	out := eng.Run(context.Background(), testTask(), nil)

	if out.Kind != OutcomeSuspended {
		t.Fatalf("Kind = %v, want suspended", out.Kind)
	}
	if out.Interrupt.Kind != domain.InterruptUserQuestion {
		t.Errorf("Interrupt.Kind = %v, want user question", out.Interrupt.Kind)
	}
	if out.Interrupt.Question != "Proceed with the refund?" {
		t.Errorf("Question = %q", out.Interrupt.Question)
	}
	if checkpoints.states["task-1"] == nil {
		t.Error("suspension must be checkpointed")
	}
}

func TestRun_ResumeInjectsReply(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: action.AskUser, Args: map[string]string{"question": "Proceed?"}}}},
	}}
	checkpoints := newMemStore()
	eng := New(client, action.NewRegistry(), denyAll(), checkpoints, 0)

	out := eng.Run(context.Background(), testTask(), nil)
	if out.Kind != OutcomeSuspended {
		t.Fatalf("setup: Kind = %v, want suspended", out.Kind)
	}

	// Resume with the human answer; the loop should continue and finish
	client.responses = []*llm.Response{{Content: "Refund issued."}}
	out = eng.Run(context.Background(), testTask(), &ResumeInput{Reply: "yes, proceed"})

	if out.Kind != OutcomeCompleted {
		t.Fatalf("Kind = %v, want completed (err: %v)", out.Kind, out.Err)
	}

	// The resumed request must contain the reply as the pending call's result
	msgs := client.requests[len(client.requests)-1].Messages
	found := false
	for _, m := range msgs {
		if m.Role == llm.RoleTool && m.ToolCallID == "c1" && m.Content == "yes, proceed" {
			found = true
		}
	}
	if !found {
		t.Error("resume reply should be injected as the pending call's tool result")
	}
	if _, ok := checkpoints.states["task-1"]; ok {
		t.Error("checkpoint should be discarded after the resumed run completes")
	}
}

func TestRun_PendingWithoutResumeReRaises(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: action.AskUser, Args: map[string]string{"question": "Proceed?"}}}},
	}}
	checkpoints := newMemStore()
	eng := New(client, action.NewRegistry(), denyAll(), checkpoints, 0)

	if out := eng.Run(context.Background(), testTask(), nil); out.Kind != OutcomeSuspended {
		t.Fatalf("setup: Kind = %v, want suspended", out.Kind)
	}
	requestsBefore := len(client.requests)

	// Claimed again without an answer: same interrupt, no model call
	out := eng.Run(context.Background(), testTask(), nil)
	if out.Kind != OutcomeSuspended {
		t.Fatalf("Kind = %v, want suspended", out.Kind)
	}
	if out.Interrupt.Question != "Proceed?" {
		t.Errorf("Question = %q, want the original question", out.Interrupt.Question)
	}
	if len(client.requests) != requestsBefore {
		t.Error("re-raise must not call the model")
	}
}

func TestRun_ResumeWithoutPendingFails(t *testing.T) {
	eng := New(&scriptedClient{}, action.NewRegistry(), denyAll(), newMemStore(), 0)

	out := eng.Run(context.Background(), testTask(), &ResumeInput{Reply: "hello"})
	if out.Kind != OutcomeFailed {
		t.Errorf("Kind = %v, want failed", out.Kind)
	}
}

func TestRun_NonTransientActionErrorFedBack(t *testing.T) {
	registry := lookupRegistry(t, func(args map[string]string) (string, error) {
		return "", errors.New("no such account")
	})
	client := &scriptedClient{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "lookup", Args: map[string]string{"key": "x"}}}},
		{Content: "could not find it"},
	}}
	eng := New(client, registry, allowAll(), newMemStore(), 0)

	out := eng.Run(context.Background(), testTask(), nil)

	if out.Kind != OutcomeCompleted {
		t.Fatalf("Kind = %v, want completed (err: %v)", out.Kind, out.Err)
	}
	msgs := client.requests[1].Messages
	last := msgs[len(msgs)-1]
	if !strings.HasPrefix(last.Content, "error: ") {
		t.Errorf("action failure should be fed back as an error result, got %q", last.Content)
	}
}

func TestRun_TransientActionErrorFails(t *testing.T) {
	registry := lookupRegistry(t, func(args map[string]string) (string, error) {
		return "", &TransientError{Err: errors.New("connection reset")}
	})
	client := &scriptedClient{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "lookup", Args: map[string]string{"key": "x"}}}},
	}}
	checkpoints := newMemStore()
	eng := New(client, registry, allowAll(), checkpoints, 0)

	out := eng.Run(context.Background(), testTask(), nil)

	if out.Kind != OutcomeFailed {
		t.Fatalf("Kind = %v, want failed", out.Kind)
	}
	if !IsTransient(out.Err) {
		t.Error("failure should stay classified as transient")
	}
	if checkpoints.states["task-1"] == nil {
		t.Error("conversation should be checkpointed for the retry")
	}
}

func TestRun_LLMErrorFailsAndCheckpoints(t *testing.T) {
	client := &scriptedClient{err: &TransientError{Err: errors.New("upstream 503")}}
	checkpoints := newMemStore()
	eng := New(client, action.NewRegistry(), denyAll(), checkpoints, 0)

	out := eng.Run(context.Background(), testTask(), nil)

	if out.Kind != OutcomeFailed {
		t.Fatalf("Kind = %v, want failed", out.Kind)
	}
	if checkpoints.states["task-1"] == nil {
		t.Error("conversation should be checkpointed after an llm failure")
	}
}

func TestRun_StepBudgetExceeded(t *testing.T) {
	registry := lookupRegistry(t, func(args map[string]string) (string, error) {
		return "ok", nil
	})
	// Always asks for another round
	client := &scriptedClient{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "lookup", Args: map[string]string{"key": "x"}}}},
		{ToolCalls: []llm.ToolCall{{ID: "c2", Name: "lookup", Args: map[string]string{"key": "x"}}}},
	}}
	eng := New(client, registry, allowAll(), newMemStore(), 2)

	out := eng.Run(context.Background(), testTask(), nil)

	if out.Kind != OutcomeFailed {
		t.Fatalf("Kind = %v, want failed", out.Kind)
	}
	if out.Err == nil || !strings.Contains(out.Err.Error(), "step budget") {
		t.Errorf("Err = %v, want step budget failure", out.Err)
	}
}

func TestRun_SaveFailureBlocksSuspension(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: action.AskUser, Args: map[string]string{"question": "Proceed?"}}}},
	}}
	checkpoints := newMemStore()
	checkpoints.saveErr = errors.New("disk full")
	eng := New(client, action.NewRegistry(), denyAll(), checkpoints, 0)

	out := eng.Run(context.Background(), testTask(), nil)

	if out.Kind != OutcomeFailed {
		t.Errorf("Kind = %v, want failed when the checkpoint cannot be written", out.Kind)
	}
}

func TestRun_ResumeSettlesRemainingCalls(t *testing.T) {
	// One batch holds an approved call and an ask_user. The approved call
	// runs, then the batch suspends on the question. On resume the reply
	// lands and the loop continues with nothing left unanswered.
	executed := 0
	registry := lookupRegistry(t, func(args map[string]string) (string, error) {
		executed++
		return "ok", nil
	})
	client := &scriptedClient{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{
			{ID: "c1", Name: "lookup", Args: map[string]string{"key": "x"}},
			{ID: "c2", Name: action.AskUser, Args: map[string]string{"question": "Proceed?"}},
		}},
	}}
	checkpoints := newMemStore()
	eng := New(client, registry, allowAll(), checkpoints, 0)

	out := eng.Run(context.Background(), testTask(), nil)
	if out.Kind != OutcomeSuspended {
		t.Fatalf("setup: Kind = %v, want suspended", out.Kind)
	}
	if executed != 1 {
		t.Fatalf("executed = %d, want 1 before suspension", executed)
	}

	client.responses = []*llm.Response{{Content: "done"}}
	out = eng.Run(context.Background(), testTask(), &ResumeInput{Reply: "yes"})

	if out.Kind != OutcomeCompleted {
		t.Fatalf("Kind = %v, want completed (err: %v)", out.Kind, out.Err)
	}
	if executed != 1 {
		t.Errorf("executed = %d, the settled call must not run twice", executed)
	}
}

func TestTaskPrompt(t *testing.T) {
	task := &domain.Task{
		ID:          "t-9",
		Title:       "Chase invoice",
		Description: "Vendor has not replied",
		Tags:        []string{"finance", "urgent"},
		Links:       map[string]string{"vendor": "acme", "invoice": "INV-7"},
	}

	prompt := TaskPrompt(task)

	for _, want := range []string{"t-9", "Chase invoice", "Vendor has not replied", "finance", "invoice: INV-7"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
