package checkpoint

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const checkpointSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
    task_id TEXT PRIMARY KEY,
    payload TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteStore keeps checkpoints in the task database
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the checkpoints table on the shared handle
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(checkpointSchema); err != nil {
		return nil, fmt.Errorf("creating checkpoints table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save writes the checkpoint, replacing any previous one for the task.
// The write is committed before Save returns.
func (s *SQLiteStore) Save(taskID string, state *State) error {
	state.UpdatedAt = time.Now()
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO checkpoints (task_id, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, taskID, string(payload), state.UpdatedAt)
	return err
}

// Load returns the checkpoint for a task, or (nil, nil) if none exists
func (s *SQLiteStore) Load(taskID string) (*State, error) {
	row := s.db.QueryRow(`SELECT payload FROM checkpoints WHERE task_id = ?`, taskID)

	var payload string
	err := row.Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var state State
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return nil, fmt.Errorf("corrupt checkpoint for task %s: %w", taskID, err)
	}
	return &state, nil
}

// Discard removes a task's checkpoint, if any
func (s *SQLiteStore) Discard(taskID string) error {
	_, err := s.db.Exec(`DELETE FROM checkpoints WHERE task_id = ?`, taskID)
	return err
}

// TaskIDs returns every task id that currently has a checkpoint
func (s *SQLiteStore) TaskIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT task_id FROM checkpoints`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
