// Package router translates engine interrupts into task-store side
// effects: an audit comment plus a needs_review transition.
package router

import (
	"fmt"
	"log"
	"time"

	"github.com/stewardhq/steward/internal/domain"
	"github.com/stewardhq/steward/internal/notify"
	"github.com/stewardhq/steward/internal/permission"
)

// TaskStore is the slice of the task store the router writes through
type TaskStore interface {
	UpdateTaskStatus(id string, status domain.TaskStatus) error
	AppendComment(taskID, author, body string) (*domain.Comment, error)
}

// Router fires once per suspension
type Router struct {
	store      TaskStore
	notifier   notify.Notifier
	author     string
	attempts   int
	retryDelay time.Duration
}

// New creates a Router. author is recorded on the audit comments.
func New(store TaskStore, notifier notify.Notifier, author string) *Router {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &Router{
		store:      store,
		notifier:   notifier,
		author:     author,
		attempts:   3,
		retryDelay: 250 * time.Millisecond,
	}
}

// Route records the interrupt on the task and moves it to needs_review.
// Store calls are retried on transient failure; a persistent failure is
// returned for logging and leaves the task in its pre-interrupt status so
// the next poll cycle retries. Route never panics.
func (r *Router) Route(task *domain.Task, interrupt *domain.Interrupt) error {
	body := r.commentFor(interrupt)

	if err := r.withRetry(func() error {
		_, err := r.store.AppendComment(task.ID, r.author, body)
		return err
	}); err != nil {
		return fmt.Errorf("appending interrupt comment on task %s: %w", task.ID, err)
	}

	if err := r.withRetry(func() error {
		return r.store.UpdateTaskStatus(task.ID, domain.StatusNeedsReview)
	}); err != nil {
		return fmt.Errorf("moving task %s to needs_review: %w", task.ID, err)
	}

	if err := r.notifier.Send(notify.Notification{
		Title:      "Task needs review",
		Message:    body,
		Type:       notify.NotifyWarning,
		TaskID:     task.ID,
		TaskStatus: string(domain.StatusNeedsReview),
	}); err != nil {
		// Notifications are best effort
		log.Printf("[router] notify failed for task %s: %v", task.ID, err)
	}

	return nil
}

// commentFor renders the audit comment. Unrecognized interrupt kinds fall
// back to a generic human-input request rather than failing; an unexpected
// payload shape must never crash the scheduler loop.
func (r *Router) commentFor(interrupt *domain.Interrupt) string {
	switch interrupt.Kind {
	case domain.InterruptToolApproval:
		pattern := permission.FormatPattern(interrupt.ActionName, interrupt.ActionArgs)
		return fmt.Sprintf("Requesting permission to use %s. Reply to approve or deny.", pattern)
	case domain.InterruptUserQuestion:
		return fmt.Sprintf("Requesting human input: %s", interrupt.Question)
	default:
		return "Requesting human input to continue this task."
	}
}

func (r *Router) withRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(r.retryDelay)
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}
