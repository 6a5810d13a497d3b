// Package maintenance runs periodic housekeeping sweeps: discarding
// checkpoints whose task already finished, and trimming run history.
package maintenance

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stewardhq/steward/internal/domain"
	"github.com/stewardhq/steward/internal/taskstore"
)

// TaskReader is the task-store surface the sweeper reads
type TaskReader interface {
	GetTask(id string) (*domain.Task, error)
	TrimRuns(keep int) error
}

// CheckpointStore is the checkpoint surface the sweeper prunes
type CheckpointStore interface {
	TaskIDs() ([]string, error)
	Discard(taskID string) error
}

// Sweeper schedules sweeps with a cron expression
type Sweeper struct {
	tasks       TaskReader
	checkpoints CheckpointStore
	schedule    cron.Schedule
	historyKeep int
}

// NewSweeper parses the cron expression (standard five-field form) and
// creates a Sweeper
func NewSweeper(tasks TaskReader, checkpoints CheckpointStore, cronExpr string, historyKeep int) (*Sweeper, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, err
	}
	if historyKeep <= 0 {
		historyKeep = 1000
	}
	return &Sweeper{
		tasks:       tasks,
		checkpoints: checkpoints,
		schedule:    schedule,
		historyKeep: historyKeep,
	}, nil
}

// Run sweeps on schedule until the context is cancelled
func (s *Sweeper) Run(ctx context.Context) error {
	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			s.Sweep()
		}
	}
}

// Sweep performs one housekeeping pass
func (s *Sweeper) Sweep() {
	ids, err := s.checkpoints.TaskIDs()
	if err != nil {
		log.Printf("[maintenance] listing checkpoints: %v", err)
		return
	}

	pruned := 0
	for _, id := range ids {
		task, err := s.tasks.GetTask(id)
		switch {
		case errors.Is(err, taskstore.ErrNotFound):
			// Task was deleted out from under its checkpoint
		case err != nil:
			log.Printf("[maintenance] loading task %s: %v", id, err)
			continue
		case !task.Status.IsTerminal():
			continue
		}
		if err := s.checkpoints.Discard(id); err != nil {
			log.Printf("[maintenance] discarding checkpoint for %s: %v", id, err)
			continue
		}
		pruned++
	}

	if err := s.tasks.TrimRuns(s.historyKeep); err != nil {
		log.Printf("[maintenance] trimming run history: %v", err)
	}

	if pruned > 0 {
		log.Printf("[maintenance] pruned %d orphaned checkpoints", pruned)
	}
}
