package domain

// InterruptKind discriminates the interrupt union
type InterruptKind string

const (
	InterruptToolApproval InterruptKind = "tool_approval"
	InterruptUserQuestion InterruptKind = "user_question"
)

// Interrupt is the transient signal produced when the execution engine
// reaches a gated boundary. It is never persisted as its own entity: the
// router translates it into a task comment plus a status change, and the
// engine persists a checkpoint alongside it.
type Interrupt struct {
	Kind       InterruptKind
	ActionName string            // tool_approval only
	ActionArgs map[string]string // tool_approval only
	Question   string            // user_question only
}

// NewToolApprovalInterrupt builds an approval request for a gated action
func NewToolApprovalInterrupt(name string, args map[string]string) *Interrupt {
	return &Interrupt{Kind: InterruptToolApproval, ActionName: name, ActionArgs: args}
}

// NewUserQuestionInterrupt builds an explicit request for human input
func NewUserQuestionInterrupt(question string) *Interrupt {
	return &Interrupt{Kind: InterruptUserQuestion, Question: question}
}
