package checkpoint

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stewardhq/steward/internal/llm"
	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestSaveAndLoad(t *testing.T) {
	store := newTestStore(t)

	state := &State{
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "work on the task"},
			{Role: llm.RoleAssistant, Content: "", ToolCalls: []llm.ToolCall{
				{ID: "call-1", Name: "ask_user", Args: map[string]string{"question": "Proceed?"}},
			}},
		},
		Steps: 3,
		Pending: &PendingCall{
			CallID:   "call-1",
			Name:     "ask_user",
			Question: "Proceed?",
		},
	}

	if err := store.Save("task-1", state); err != nil {
		t.Fatal(err)
	}

	got, err := store.Load("task-1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("Load returned nil for a saved checkpoint")
	}
	if len(got.Messages) != 2 {
		t.Errorf("Messages length = %d, want 2", len(got.Messages))
	}
	if got.Steps != 3 {
		t.Errorf("Steps = %d, want 3", got.Steps)
	}
	if got.Pending == nil || got.Pending.CallID != "call-1" {
		t.Errorf("Pending = %+v, want call-1", got.Pending)
	}
	if got.Pending.Question != "Proceed?" {
		t.Errorf("Pending.Question = %q, want Proceed?", got.Pending.Question)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set by Save")
	}
}

func TestLoad_Missing(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Load("nope")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("Load(missing) = %+v, want nil", got)
	}
}

func TestSave_Overwrites(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save("task-1", &State{Steps: 1}); err != nil {
		t.Fatal(err)
	}
	if err := store.Save("task-1", &State{Steps: 7}); err != nil {
		t.Fatal(err)
	}

	got, err := store.Load("task-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Steps != 7 {
		t.Errorf("Steps = %d, want 7 after overwrite", got.Steps)
	}

	ids, err := store.TaskIDs()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 {
		t.Errorf("TaskIDs length = %d, want 1", len(ids))
	}
}

func TestDiscard(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save("task-1", &State{Steps: 1}); err != nil {
		t.Fatal(err)
	}
	if err := store.Discard("task-1"); err != nil {
		t.Fatal(err)
	}

	got, err := store.Load("task-1")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("checkpoint should be gone after Discard")
	}

	// Discarding a missing checkpoint is not an error
	if err := store.Discard("task-1"); err != nil {
		t.Errorf("Discard(missing) = %v, want nil", err)
	}
}

func TestLoad_Corrupt(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.db.Exec(
		`INSERT INTO checkpoints (task_id, payload) VALUES ('bad', '{not json')`,
	); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Load("bad"); err == nil {
		t.Error("Load of corrupt payload should error")
	}
}
