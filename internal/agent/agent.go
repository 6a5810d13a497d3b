// Package agent implements the scheduler loop: a single long-lived
// background task that claims eligible tasks one at a time, runs the
// execution engine on each, and turns engine outcomes into task-store and
// run-state updates.
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/stewardhq/steward/internal/domain"
	"github.com/stewardhq/steward/internal/engine"
	"github.com/stewardhq/steward/internal/notify"
)

// Runner abstracts the execution engine
type Runner interface {
	Run(ctx context.Context, task *domain.Task, resume *engine.ResumeInput) engine.Outcome
}

// InterruptRouter abstracts the interrupt router
type InterruptRouter interface {
	Route(task *domain.Task, interrupt *domain.Interrupt) error
}

// TaskStore is the store surface the loop depends on
type TaskStore interface {
	GetTask(id string) (*domain.Task, error)
	ListByStatus(statuses ...domain.TaskStatus) ([]*domain.Task, error)
	UpdateTaskStatus(id string, status domain.TaskStatus) error
	AppendComment(taskID, author, body string) (*domain.Comment, error)
	ListComments(taskID string) ([]*domain.Comment, error)
	SaveAgentState(state *domain.AgentRunState) error
	RecordRun(rec *domain.RunRecord) error
	RecentRuns(limit int) ([]*domain.RunRecord, error)
}

// Config holds the loop's timing and retry settings
type Config struct {
	PollInterval       time.Duration
	ErrorRetryInterval time.Duration
	MaxRetries         int
	ShutdownTimeout    time.Duration
	Author             string // comment author for engine-written comments
}

// withDefaults fills zero fields
func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.ErrorRetryInterval <= 0 {
		c.ErrorRetryInterval = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.Author == "" {
		c.Author = "steward"
	}
	return c
}

// Loop is one scheduler loop instance. It owns its AgentRunState; all
// task status writes go through it or the router.
type Loop struct {
	store    TaskStore
	runner   Runner
	router   InterruptRouter
	notifier notify.Notifier
	cfg      Config

	mu       sync.Mutex
	state    domain.AgentRunState
	paused   bool
	inFlight string          // task id currently executing, "" if none
	forced   map[string]bool // force-queued task ids, for dedup
	queue    []string        // pending force requests in arrival order
	retries  map[string]int
	retryAt  map[string]time.Time

	wake chan struct{}
}

// New creates a Loop
func New(store TaskStore, runner Runner, router InterruptRouter, notifier notify.Notifier, cfg Config) *Loop {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &Loop{
		store:    store,
		runner:   runner,
		router:   router,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		state:    domain.AgentRunState{State: domain.AgentIdle},
		forced:   make(map[string]bool),
		retries:  make(map[string]int),
		retryAt:  make(map[string]time.Time),
		wake:     make(chan struct{}, 1),
	}
}
