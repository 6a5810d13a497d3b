package taskstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stewardhq/steward/internal/domain"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a task does not exist
var ErrNotFound = errors.New("task not found")

// Store provides SQLite-backed persistence for tasks, comments, the
// agent run state, and run history
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle so sibling stores (checkpoints) can
// share the same database file
func (s *Store) DB() *sql.DB {
	return s.db
}

// CreateTask inserts a new task. A missing ID is generated.
func (s *Store) CreateTask(task *domain.Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = domain.StatusNew
	}
	now := time.Now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	tagsJSON, err := json.Marshal(task.Tags)
	if err != nil {
		return err
	}
	linksJSON, err := json.Marshal(task.Links)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO tasks (id, title, description, status, tags, links, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		task.ID,
		task.Title,
		task.Description,
		string(task.Status),
		string(tagsJSON),
		string(linksJSON),
		task.CreatedAt,
		task.UpdatedAt,
	)
	return err
}

// GetTask retrieves a task by ID
func (s *Store) GetTask(id string) (*domain.Task, error) {
	row := s.db.QueryRow(`
		SELECT id, title, description, status, tags, links, created_at, updated_at
		FROM tasks WHERE id = ?
	`, id)

	task, err := scanTask(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return task, err
}

// ListByStatus returns tasks in any of the given statuses, oldest
// updated_at first
func (s *Store) ListByStatus(statuses ...domain.TaskStatus) ([]*domain.Task, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]interface{}, len(statuses))
	for i, st := range statuses {
		placeholders[i] = "?"
		args[i] = string(st)
	}

	query := fmt.Sprintf(`
		SELECT id, title, description, status, tags, links, created_at, updated_at
		FROM tasks WHERE status IN (%s)
		ORDER BY updated_at
	`, strings.Join(placeholders, ", "))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

// ListTasks returns every task, most recently updated first
func (s *Store) ListTasks() ([]*domain.Task, error) {
	rows, err := s.db.Query(`
		SELECT id, title, description, status, tags, links, created_at, updated_at
		FROM tasks ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

// UpdateTaskStatus updates a task's status
func (s *Store) UpdateTaskStatus(id string, status domain.TaskStatus) error {
	res, err := s.db.Exec(`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}

// AppendComment adds a comment to a task and returns the stored record
func (s *Store) AppendComment(taskID, author, body string) (*domain.Comment, error) {
	comment := &domain.Comment{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		Author:    author,
		Body:      body,
		CreatedAt: time.Now(),
	}

	_, err := s.db.Exec(`
		INSERT INTO comments (id, task_id, author, body, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, comment.ID, comment.TaskID, comment.Author, comment.Body, comment.CreatedAt)
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// ListComments returns a task's comments in chronological order
func (s *Store) ListComments(taskID string) ([]*domain.Comment, error) {
	rows, err := s.db.Query(`
		SELECT id, task_id, author, body, created_at
		FROM comments WHERE task_id = ?
		ORDER BY created_at, id
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []*domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.Author, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, &c)
	}
	return comments, rows.Err()
}

// SaveAgentState persists the singleton scheduler loop state
func (s *Store) SaveAgentState(state *domain.AgentRunState) error {
	_, err := s.db.Exec(`
		INSERT INTO agent_state (id, state, current_task_id, processed_count, retry_count, last_error, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			current_task_id = excluded.current_task_id,
			processed_count = excluded.processed_count,
			retry_count = excluded.retry_count,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`,
		string(state.State),
		state.CurrentTaskID,
		state.ProcessedCount,
		state.RetryCount,
		state.LastError,
		time.Now(),
	)
	return err
}

// LoadAgentState returns the persisted loop state, or an idle zero state
// if none has been saved yet
func (s *Store) LoadAgentState() (*domain.AgentRunState, error) {
	row := s.db.QueryRow(`
		SELECT state, current_task_id, processed_count, retry_count, last_error, updated_at
		FROM agent_state WHERE id = 1
	`)

	var state domain.AgentRunState
	var st string
	var currentTaskID, lastError sql.NullString
	err := row.Scan(&st, &currentTaskID, &state.ProcessedCount, &state.RetryCount, &lastError, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.AgentRunState{State: domain.AgentIdle}, nil
	}
	if err != nil {
		return nil, err
	}

	state.State = domain.AgentState(st)
	state.CurrentTaskID = currentTaskID.String
	state.LastError = lastError.String
	return &state, nil
}

// RecordRun appends one finished engine invocation to the run history
func (s *Store) RecordRun(rec *domain.RunRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO runs (id, task_id, outcome, detail, finished_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.ID, rec.TaskID, rec.Outcome, rec.Detail, rec.FinishedAt)
	return err
}

// RecentRuns returns up to limit run records, newest first
func (s *Store) RecentRuns(limit int) ([]*domain.RunRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, task_id, outcome, detail, finished_at
		FROM runs ORDER BY finished_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*domain.RunRecord
	for rows.Next() {
		var r domain.RunRecord
		var detail sql.NullString
		if err := rows.Scan(&r.ID, &r.TaskID, &r.Outcome, &detail, &r.FinishedAt); err != nil {
			return nil, err
		}
		r.Detail = detail.String
		recs = append(recs, &r)
	}
	return recs, rows.Err()
}

// TrimRuns deletes run records beyond the newest keep entries
func (s *Store) TrimRuns(keep int) error {
	_, err := s.db.Exec(`
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY finished_at DESC, id LIMIT ?
		)
	`, keep)
	return err
}

func scanTask(scan func(dest ...interface{}) error) (*domain.Task, error) {
	var task domain.Task
	var status string
	var description, tagsJSON, linksJSON sql.NullString

	err := scan(&task.ID, &task.Title, &description, &status, &tagsJSON, &linksJSON, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}

	task.Status = domain.TaskStatus(status)
	task.Description = description.String

	if tagsJSON.String != "" && tagsJSON.String != "null" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &task.Tags); err != nil {
			return nil, err
		}
	}
	if linksJSON.String != "" && linksJSON.String != "null" {
		if err := json.Unmarshal([]byte(linksJSON.String), &task.Links); err != nil {
			return nil, err
		}
	}

	return &task, nil
}
