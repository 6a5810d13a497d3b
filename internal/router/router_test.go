package router

import (
	"errors"
	"strings"
	"testing"

	"github.com/stewardhq/steward/internal/domain"
	"github.com/stewardhq/steward/internal/notify"
)

type fakeStore struct {
	comments     []string
	statuses     []domain.TaskStatus
	commentFails int
	statusErr    error
}

func (f *fakeStore) AppendComment(taskID, author, body string) (*domain.Comment, error) {
	if f.commentFails > 0 {
		f.commentFails--
		return nil, errors.New("locked")
	}
	f.comments = append(f.comments, body)
	return &domain.Comment{TaskID: taskID, Author: author, Body: body}, nil
}

func (f *fakeStore) UpdateTaskStatus(id string, status domain.TaskStatus) error {
	if f.statusErr != nil {
		return f.statusErr
	}
	f.statuses = append(f.statuses, status)
	return nil
}

type recordingNotifier struct {
	sent []notify.Notification
}

func (r *recordingNotifier) Send(n notify.Notification) error {
	r.sent = append(r.sent, n)
	return nil
}

func newTestRouter(store *fakeStore, notifier notify.Notifier) *Router {
	r := New(store, notifier, "steward")
	r.retryDelay = 0
	return r
}

func TestRoute_ToolApproval(t *testing.T) {
	store := &fakeStore{}
	notifier := &recordingNotifier{}
	r := newTestRouter(store, notifier)

	task := &domain.Task{ID: "t1", Status: domain.StatusInProgress}
	interrupt := domain.NewToolApprovalInterrupt("update_task", map[string]string{"status": "done", "id": "42"})

	if err := r.Route(task, interrupt); err != nil {
		t.Fatal(err)
	}

	if len(store.comments) != 1 {
		t.Fatalf("got %d comments, want 1", len(store.comments))
	}
	want := "Requesting permission to use update_task(id=42,status=done). Reply to approve or deny."
	if store.comments[0] != want {
		t.Errorf("comment = %q, want %q", store.comments[0], want)
	}
	if len(store.statuses) != 1 || store.statuses[0] != domain.StatusNeedsReview {
		t.Errorf("statuses = %v, want [needs_review]", store.statuses)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].TaskID != "t1" {
		t.Errorf("notifications = %+v", notifier.sent)
	}
	if notifier.sent[0].TaskStatus != string(domain.StatusNeedsReview) {
		t.Errorf("notification TaskStatus = %q, want needs_review", notifier.sent[0].TaskStatus)
	}
}

func TestRoute_UserQuestion(t *testing.T) {
	store := &fakeStore{}
	r := newTestRouter(store, nil)

	task := &domain.Task{ID: "t1"}
	if err := r.Route(task, domain.NewUserQuestionInterrupt("Which vendor?")); err != nil {
		t.Fatal(err)
	}

	if store.comments[0] != "Requesting human input: Which vendor?" {
		t.Errorf("comment = %q", store.comments[0])
	}
}

func TestRoute_UnknownKindFallsBack(t *testing.T) {
	store := &fakeStore{}
	r := newTestRouter(store, nil)

	task := &domain.Task{ID: "t1"}
	interrupt := &domain.Interrupt{Kind: domain.InterruptKind("telemetry_event")}

	if err := r.Route(task, interrupt); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(store.comments[0], "Requesting human input to continue") {
		t.Errorf("fallback comment = %q", store.comments[0])
	}
	// The transition still happens for unknown kinds
	if len(store.statuses) != 1 || store.statuses[0] != domain.StatusNeedsReview {
		t.Errorf("statuses = %v, want [needs_review]", store.statuses)
	}
}

func TestRoute_RetriesTransientCommentFailure(t *testing.T) {
	store := &fakeStore{commentFails: 2}
	r := newTestRouter(store, nil)

	task := &domain.Task{ID: "t1"}
	if err := r.Route(task, domain.NewUserQuestionInterrupt("q")); err != nil {
		t.Fatalf("Route should succeed after retries: %v", err)
	}
	if len(store.comments) != 1 {
		t.Errorf("got %d comments, want 1", len(store.comments))
	}
}

func TestRoute_PersistentFailureReturned(t *testing.T) {
	store := &fakeStore{statusErr: errors.New("disk full")}
	r := newTestRouter(store, nil)

	task := &domain.Task{ID: "t1"}
	err := r.Route(task, domain.NewUserQuestionInterrupt("q"))
	if err == nil {
		t.Fatal("Route should report a persistent store failure")
	}
	if !strings.Contains(err.Error(), "needs_review") {
		t.Errorf("err = %v", err)
	}
}
