package agent

import (
	"errors"
	"log"
	"time"

	"github.com/stewardhq/steward/internal/domain"
	"github.com/stewardhq/steward/internal/taskstore"
)

// pickNext chooses the next task to execute. Force requests win over the
// eligibility poll; among eligible tasks, statuses are taken in
// claim-priority order (human replies, then new work, then deferred
// work) and oldest first within a status. Tasks inside their error-retry
// backoff window are skipped.
func (l *Loop) pickNext() (*domain.Task, bool) {
	if id, ok := l.popForced(); ok {
		task, err := l.store.GetTask(id)
		if err != nil {
			if !errors.Is(err, taskstore.ErrNotFound) {
				log.Printf("[agent] loading forced task %s: %v", id, err)
			}
			return nil, false
		}
		return task, true
	}

	tasks, err := l.store.ListByStatus(domain.EligibleStatuses...)
	if err != nil {
		log.Printf("[agent] polling for tasks: %v", err)
		return nil, false
	}
	if len(tasks) == 0 {
		return nil, false
	}

	now := time.Now()
	for _, status := range domain.EligibleStatuses {
		for _, task := range tasks {
			if task.Status != status {
				continue
			}
			if l.inBackoff(task.ID, now) {
				continue
			}
			return task, false
		}
	}
	return nil, false
}

func (l *Loop) popForced() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return "", false
	}
	id := l.queue[0]
	l.queue = l.queue[1:]
	delete(l.forced, id)
	return id, true
}

func (l *Loop) inBackoff(taskID string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	at, ok := l.retryAt[taskID]
	return ok && now.Before(at)
}
