package agent

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/stewardhq/steward/internal/domain"
	"github.com/stewardhq/steward/internal/engine"
	"github.com/stewardhq/steward/internal/notify"
)

// Run is the blocking background loop. It polls for eligible tasks,
// enforces single-flight execution, and returns once the context is
// cancelled and the in-flight task (if any) has reached completion or a
// safe suspension point. The final AgentRunState is persisted on exit.
func (l *Loop) Run(ctx context.Context) error {
	l.recoverStranded()

	for {
		if ctx.Err() != nil {
			break
		}

		if l.isPaused() {
			l.setState(domain.AgentPaused, "")
			l.sleep(ctx)
			continue
		}

		task, force := l.pickNext()
		if task == nil {
			l.setState(domain.AgentIdle, "")
			l.sleep(ctx)
			continue
		}

		l.process(ctx, task, force)
	}

	l.mu.Lock()
	l.state.State = domain.AgentIdle
	l.state.CurrentTaskID = ""
	final := l.state
	l.mu.Unlock()
	if err := l.store.SaveAgentState(&final); err != nil {
		log.Printf("[agent] persisting run state on shutdown: %v", err)
	}
	return ctx.Err()
}

// process claims a task, runs the engine on it, and applies the outcome
func (l *Loop) process(ctx context.Context, task *domain.Task, force bool) {
	if !task.Claimable(force) {
		log.Printf("[agent] task %s in %s is not claimable, skipping", task.ID, task.Status)
		return
	}

	var resume *engine.ResumeInput
	if task.Status == domain.StatusUserInputReceived {
		resume = &engine.ResumeInput{Reply: l.latestHumanReply(task.ID)}
	}

	if err := l.store.UpdateTaskStatus(task.ID, domain.StatusInProgress); err != nil {
		log.Printf("[agent] claiming task %s: %v", task.ID, err)
		return
	}

	l.mu.Lock()
	l.inFlight = task.ID
	l.mu.Unlock()
	l.setState(domain.AgentProcessing, task.ID)

	// An in-flight task survives a shutdown request for the configured
	// grace period, so it can reach completion or a checkpointed
	// suspension instead of being cut off mid-action.
	runCtx, cancel := graceContext(ctx, l.cfg.ShutdownTimeout)
	outcome := l.runner.Run(runCtx, task, resume)
	cancel()

	l.mu.Lock()
	l.inFlight = ""
	l.mu.Unlock()

	switch outcome.Kind {
	case engine.OutcomeCompleted:
		l.finishCompleted(task, outcome)
	case engine.OutcomeSuspended:
		l.finishSuspended(task, outcome)
	case engine.OutcomeFailed:
		l.finishFailed(task, outcome)
	}
}

func (l *Loop) finishCompleted(task *domain.Task, outcome engine.Outcome) {
	if err := l.store.UpdateTaskStatus(task.ID, domain.StatusDone); err != nil {
		log.Printf("[agent] marking task %s done: %v", task.ID, err)
		return
	}
	l.clearRetries(task.ID)

	l.mu.Lock()
	l.state.ProcessedCount++
	l.mu.Unlock()
	l.setState(domain.AgentIdle, "")

	l.record(task.ID, "done", outcome.Summary)
	log.Printf("[agent] task %s completed", task.ID)
}

func (l *Loop) finishSuspended(task *domain.Task, outcome engine.Outcome) {
	if err := l.router.Route(task, outcome.Interrupt); err != nil {
		// Put the task back in the poll set. The checkpoint's pending
		// call re-raises the same interrupt on the next claim, so the
		// routing gets retried without losing the suspension.
		log.Printf("[agent] routing interrupt for task %s: %v", task.ID, err)
		if uerr := l.store.UpdateTaskStatus(task.ID, domain.StatusWaiting); uerr != nil {
			log.Printf("[agent] deferring task %s after routing failure: %v", task.ID, uerr)
		}
	}
	l.clearRetries(task.ID)
	l.setState(domain.AgentIdle, "")

	detail := string(outcome.Interrupt.Kind)
	if outcome.Interrupt.Question != "" {
		detail = outcome.Interrupt.Question
	}
	l.record(task.ID, "suspended", detail)
	log.Printf("[agent] task %s suspended: %s", task.ID, outcome.Interrupt.Kind)
}

func (l *Loop) finishFailed(task *domain.Task, outcome engine.Outcome) {
	err := outcome.Err

	l.mu.Lock()
	l.retries[task.ID]++
	attempts := l.retries[task.ID]
	l.state.RetryCount = attempts
	l.state.LastError = err.Error()
	l.mu.Unlock()

	if engine.IsTransient(err) && attempts <= l.cfg.MaxRetries {
		// The conversation is checkpointed; back off and try again
		if uerr := l.store.UpdateTaskStatus(task.ID, domain.StatusWaiting); uerr != nil {
			log.Printf("[agent] deferring task %s for retry: %v", task.ID, uerr)
		}
		l.mu.Lock()
		l.retryAt[task.ID] = time.Now().Add(l.cfg.ErrorRetryInterval)
		l.mu.Unlock()
		l.setState(domain.AgentIdle, "")
		log.Printf("[agent] task %s failed (attempt %d/%d), retrying in %s: %v",
			task.ID, attempts, l.cfg.MaxRetries, l.cfg.ErrorRetryInterval, err)
		return
	}

	if uerr := l.store.UpdateTaskStatus(task.ID, domain.StatusError); uerr != nil {
		log.Printf("[agent] marking task %s errored: %v", task.ID, uerr)
	}
	if _, cerr := l.store.AppendComment(task.ID, l.cfg.Author,
		fmt.Sprintf("Giving up after %d attempts: %v", attempts, err)); cerr != nil {
		log.Printf("[agent] recording failure comment on task %s: %v", task.ID, cerr)
	}
	l.clearRetries(task.ID)
	l.setState(domain.AgentIdle, "")
	l.record(task.ID, "error", err.Error())

	if nerr := l.notifier.Send(notify.Notification{
		Title:      "Task failed",
		Message:    err.Error(),
		Type:       notify.NotifyError,
		TaskID:     task.ID,
		TaskStatus: string(domain.StatusError),
	}); nerr != nil {
		log.Printf("[agent] notify failed for task %s: %v", task.ID, nerr)
	}
	log.Printf("[agent] task %s failed permanently: %v", task.ID, err)
}

// recoverStranded resets tasks a previous process left in_progress. They
// go back to waiting; a checkpoint with a pending call re-raises its
// suspension on the next claim.
func (l *Loop) recoverStranded() {
	stranded, err := l.store.ListByStatus(domain.StatusInProgress)
	if err != nil {
		log.Printf("[agent] listing stranded tasks: %v", err)
		return
	}
	for _, task := range stranded {
		if err := l.store.UpdateTaskStatus(task.ID, domain.StatusWaiting); err != nil {
			log.Printf("[agent] recovering stranded task %s: %v", task.ID, err)
			continue
		}
		log.Printf("[agent] recovered stranded task %s", task.ID)
	}
}

// latestHumanReply finds the newest comment not written by the engine,
// which is the human response that moved the task to user_input_received
func (l *Loop) latestHumanReply(taskID string) string {
	comments, err := l.store.ListComments(taskID)
	if err != nil {
		log.Printf("[agent] loading comments for %s: %v", taskID, err)
		return ""
	}
	for i := len(comments) - 1; i >= 0; i-- {
		if comments[i].Author != l.cfg.Author {
			return comments[i].Body
		}
	}
	return ""
}

func (l *Loop) record(taskID, outcome, detail string) {
	if err := l.store.RecordRun(&domain.RunRecord{TaskID: taskID, Outcome: outcome, Detail: detail}); err != nil {
		log.Printf("[agent] recording run for %s: %v", taskID, err)
	}
}

func (l *Loop) clearRetries(taskID string) {
	l.mu.Lock()
	delete(l.retries, taskID)
	delete(l.retryAt, taskID)
	l.mu.Unlock()
}

// setState updates and persists the loop's run state
func (l *Loop) setState(state domain.AgentState, currentTaskID string) {
	l.mu.Lock()
	l.state.State = state
	l.state.CurrentTaskID = currentTaskID
	l.state.UpdatedAt = time.Now()
	snapshot := l.state
	l.mu.Unlock()

	if err := l.store.SaveAgentState(&snapshot); err != nil {
		log.Printf("[agent] persisting run state: %v", err)
	}
}

// sleep waits out the poll interval, a wake nudge, or cancellation
func (l *Loop) sleep(ctx context.Context) {
	timer := time.NewTimer(l.cfg.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-l.wake:
	case <-timer.C:
	}
}

// graceContext returns a context that stays live for gracePeriod after
// parent is cancelled, then cancels
func graceContext(parent context.Context, gracePeriod time.Duration) (context.Context, context.CancelFunc) {
	detached, cancel := context.WithCancel(context.WithoutCancel(parent))
	stop := make(chan struct{})

	go func() {
		select {
		case <-stop:
			return
		case <-parent.Done():
		}
		timer := time.NewTimer(gracePeriod)
		defer timer.Stop()
		select {
		case <-stop:
		case <-timer.C:
			cancel()
		}
	}()

	var once sync.Once
	return detached, func() {
		once.Do(func() { close(stop) })
		cancel()
	}
}
