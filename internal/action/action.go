// Package action holds the callable actions offered to the model. Every
// action passes through the permission evaluator before it runs.
package action

import (
	"context"
	"fmt"
	"sort"

	"github.com/stewardhq/steward/internal/llm"
)

// AskUser is the escalation action name. It is offered to the model like
// any other action, but the engine intercepts it: invoking it always
// suspends the loop with a user-question interrupt instead of executing.
const AskUser = "ask_user"

// Action is a callable the engine may execute on the model's behalf
type Action interface {
	Name() string
	Description() string
	Params() map[string]string // parameter name -> description
	Execute(ctx context.Context, args map[string]string) (string, error)
}

// Registry holds the actions available to one engine instance
type Registry struct {
	actions map[string]Action
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]Action)}
}

// Register adds an action, replacing any previous one with the same name
func (r *Registry) Register(a Action) {
	r.actions[a.Name()] = a
}

// Get returns the named action
func (r *Registry) Get(name string) (Action, bool) {
	a, ok := r.actions[name]
	return a, ok
}

// Defs returns tool definitions for every registered action, sorted by
// name so the model sees a stable ordering
func (r *Registry) Defs() []llm.ToolDef {
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]llm.ToolDef, 0, len(names))
	for _, name := range names {
		a := r.actions[name]
		defs = append(defs, llm.ToolDef{
			Name:        a.Name(),
			Description: a.Description(),
			Params:      a.Params(),
		})
	}
	return defs
}

// Func adapts a plain function into an Action
type Func struct {
	ActionName string
	Desc       string
	ParamDocs  map[string]string
	Run        func(ctx context.Context, args map[string]string) (string, error)
}

func (f *Func) Name() string              { return f.ActionName }
func (f *Func) Description() string       { return f.Desc }
func (f *Func) Params() map[string]string { return f.ParamDocs }

// Execute runs the wrapped function
func (f *Func) Execute(ctx context.Context, args map[string]string) (string, error) {
	if f.Run == nil {
		return "", fmt.Errorf("action %s has no implementation", f.ActionName)
	}
	return f.Run(ctx, args)
}
