package action

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stewardhq/steward/internal/domain"
)

// Store is the slice of the task store the built-in actions need
type Store interface {
	GetTask(id string) (*domain.Task, error)
	ListByStatus(statuses ...domain.TaskStatus) ([]*domain.Task, error)
	UpdateTaskStatus(id string, status domain.TaskStatus) error
	AppendComment(taskID, author, body string) (*domain.Comment, error)
	CreateTask(task *domain.Task) error
}

// taskSummary is the compact task rendering returned to the model
type taskSummary struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// RegisterBuiltins adds the task-store actions to the registry. author is
// the comment author recorded for model-initiated comments.
func RegisterBuiltins(r *Registry, store Store, author string) {
	r.Register(&Func{
		ActionName: "get_tasks",
		Desc:       "List tasks, optionally filtered by status.",
		ParamDocs: map[string]string{
			"status": "Optional status filter (new, in_progress, needs_review, user_input_received, waiting, done, cancelled, error).",
		},
		Run: func(ctx context.Context, args map[string]string) (string, error) {
			statuses := []domain.TaskStatus{
				domain.StatusNew, domain.StatusInProgress, domain.StatusNeedsReview,
				domain.StatusUserInputReceived, domain.StatusWaiting,
				domain.StatusDone, domain.StatusCancelled, domain.StatusError,
			}
			if s := args["status"]; s != "" {
				statuses = []domain.TaskStatus{domain.TaskStatus(s)}
			}
			tasks, err := store.ListByStatus(statuses...)
			if err != nil {
				return "", err
			}
			summaries := make([]taskSummary, 0, len(tasks))
			for _, t := range tasks {
				summaries = append(summaries, taskSummary{ID: t.ID, Title: t.Title, Status: string(t.Status)})
			}
			out, err := json.Marshal(summaries)
			return string(out), err
		},
	})

	r.Register(&Func{
		ActionName: "update_task",
		Desc:       "Change the status of a task.",
		ParamDocs: map[string]string{
			"id":     "Task id.",
			"status": "New status for the task.",
		},
		Run: func(ctx context.Context, args map[string]string) (string, error) {
			task, err := store.GetTask(args["id"])
			if err != nil {
				return "", err
			}
			to := domain.TaskStatus(args["status"])
			if err := domain.ValidateTransition(task.Status, to); err != nil {
				return "", err
			}
			if err := store.UpdateTaskStatus(task.ID, to); err != nil {
				return "", err
			}
			return fmt.Sprintf("task %s is now %s", task.ID, to), nil
		},
	})

	r.Register(&Func{
		ActionName: "add_comment",
		Desc:       "Append a comment to a task.",
		ParamDocs: map[string]string{
			"id":   "Task id.",
			"text": "Comment text.",
		},
		Run: func(ctx context.Context, args map[string]string) (string, error) {
			if _, err := store.AppendComment(args["id"], author, args["text"]); err != nil {
				return "", err
			}
			return "comment added", nil
		},
	})

	r.Register(&Func{
		ActionName: "create_task",
		Desc:       "Create a new task.",
		ParamDocs: map[string]string{
			"title":       "Task title.",
			"description": "Task description.",
		},
		Run: func(ctx context.Context, args map[string]string) (string, error) {
			task := &domain.Task{
				Title:       args["title"],
				Description: args["description"],
				Status:      domain.StatusNew,
			}
			if task.Title == "" {
				return "", fmt.Errorf("create_task requires a title")
			}
			if err := store.CreateTask(task); err != nil {
				return "", err
			}
			return fmt.Sprintf("created task %s", task.ID), nil
		},
	})
}
