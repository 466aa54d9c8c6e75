// Package executor runs one scheduled task against its resolved accounts.
//
// The core correctness property is failure isolation: one account's failure
// is recorded and never aborts the remaining accounts or flips the task to
// error. Only a failure outside the per-account loop (the fatal path) ends a
// run with task status error.
package executor

import (
	"context"
	"fmt"
	"time"

	"mailwarden/internal/activity"
	"mailwarden/internal/store"
	"mailwarden/internal/verify"
	logx "mailwarden/pkg/logx"
)

type Executor struct {
	tasks    store.TaskStore
	accounts store.AccountStore
	verifier verify.Verifier
	sink     activity.Sink
	log      logx.Logger
}

func New(tasks store.TaskStore, accounts store.AccountStore, verifier verify.Verifier, sink activity.Sink, log logx.Logger) *Executor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Executor{
		tasks:    tasks,
		accounts: accounts,
		verifier: verifier,
		sink:     sink,
		log:      log,
	}
}

// Run executes one task. A nil return means the run completed (individual
// accounts may still have failed); a non-nil return is a task-level fatal
// error and the task has been flipped to error status.
func (e *Executor) Run(ctx context.Context, task store.Task) error {
	err := e.run(ctx, task)
	if err == nil {
		return nil
	}

	e.log.Error("task run failed", logx.String("task", task.ID), logx.Err(err))
	if _, ok := e.tasks.UpdateTask(task.ID, func(t *store.Task) {
		t.Status = store.TaskError
		if t.LastRun.IsZero() {
			t.LastRun = time.Now()
		}
	}); !ok {
		e.log.Warn("task vanished during failed run", logx.String("task", task.ID))
	}
	e.append(ctx, activity.Entry{
		OwnerID: task.OwnerID,
		Type:    "task_failed",
		Status:  activity.StatusError,
		Message: "task run failed",
		Details: map[string]any{"task_id": task.ID, "error": err.Error()},
	})
	return err
}

func (e *Executor) run(ctx context.Context, task store.Task) (err error) {
	// Anything escaping the per-account isolation below is a task-level
	// fatal error, including panics.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if _, ok := e.tasks.UpdateTask(task.ID, func(t *store.Task) {
		t.Status = store.TaskRunning
		t.LastRun = time.Now()
	}); !ok {
		// The task may have been deleted between fire and execution. The run
		// still proceeds; its effects are the point, the record is gone.
		e.log.Warn("task missing at run start", logx.String("task", task.ID))
	}

	// Targets are resolved now, not at schedule time, so accounts added or
	// removed since then are picked up.
	targets := ResolveTargets(e.accounts, task.OwnerID, task.AccountID)
	e.log.Debug("task firing",
		logx.String("task", task.ID),
		logx.String("kind", string(task.Kind)),
		logx.Int("targets", len(targets)))

	for _, account := range targets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.runAccount(ctx, task, account)
	}

	if _, ok := e.tasks.UpdateTask(task.ID, func(t *store.Task) {
		t.Status = store.TaskCompleted
	}); !ok {
		e.log.Warn("task missing at run end", logx.String("task", task.ID))
	}
	return nil
}

// runAccount performs the task's effect for a single account and records
// exactly one activity entry. It never lets a failure escape.
func (e *Executor) runAccount(ctx context.Context, task store.Task, account store.Account) {
	status := activity.StatusSuccess
	var message string

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		switch task.Kind {
		case store.KindVerifyStatus:
			res, verr := e.verifier.Verify(ctx, account)
			if verr != nil {
				return verr
			}
			message = res.Message
			if !res.IsValid {
				status = activity.StatusError
			}
		case store.KindSendEmail:
			status = activity.StatusWarning
			message = "email sending not implemented"
		case store.KindCheckInbox:
			status = activity.StatusWarning
			message = "inbox checking not implemented"
		case store.KindCleanUp:
			status = activity.StatusWarning
			message = "cleanup not implemented"
		default:
			status = activity.StatusWarning
			message = fmt.Sprintf("unknown task kind %q", task.Kind)
		}
		return nil
	}()

	entry := activity.Entry{
		OwnerID:   task.OwnerID,
		AccountID: account.ID,
		Type:      "task_" + string(task.Kind),
		Status:    status,
		Message:   message,
		Details:   map[string]any{"task_id": task.ID},
	}
	if err != nil {
		entry.Status = activity.StatusError
		entry.Message = "task execution failed"
		entry.Details["error"] = err.Error()
		e.log.Warn("account execution failed",
			logx.String("task", task.ID),
			logx.String("account", account.Email),
			logx.Err(err))
	}
	e.append(ctx, entry)
}

func (e *Executor) append(ctx context.Context, entry activity.Entry) {
	if err := e.sink.Append(ctx, entry); err != nil {
		e.log.Warn("activity append failed", logx.Err(err))
	}
}
