package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"mailwarden/internal/activity"
	"mailwarden/internal/eventbus"
	"mailwarden/internal/executor"
	"mailwarden/internal/recurrence"
	"mailwarden/internal/store"
	logx "mailwarden/pkg/logx"
)

var ErrTaskNotFound = errors.New("task not found")

// Config controls scheduler behavior beyond the per-task rules.
type Config struct {
	// ReconcileEvery is the sweep interval for the drift reconciler.
	// 0 means default (1m); negative disables the sweep.
	ReconcileEvery time.Duration
	// StuckAfter flags tasks that stay in running longer than this as
	// failed. 0 means default (30m); negative disables the watchdog.
	StuckAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReconcileEvery == 0 {
		c.ReconcileEvery = time.Minute
	}
	if c.StuckAfter == 0 {
		c.StuckAfter = 30 * time.Minute
	}
	return c
}

// Scheduler owns the timer registry and drives the recurrence calculator and
// task executor. All scheduling state transitions go through it.
type Scheduler struct {
	cfg   Config
	log   logx.Logger
	bus   eventbus.Bus
	tasks store.TaskStore
	exec  *executor.Executor
	sink  activity.Sink
	reg   *Registry

	// now is swappable for tests.
	now func() time.Time

	// fireMu serializes fire callbacks and manual executions so two tasks
	// due at the same instant never interleave their executor runs.
	fireMu sync.Mutex

	mu      sync.Mutex
	runCtx  context.Context
	cancel  context.CancelFunc
	sweeper *sweeper
}

func New(cfg Config, tasks store.TaskStore, exec *executor.Executor, sink activity.Sink, bus eventbus.Bus, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		cfg:   cfg.withDefaults(),
		log:   log,
		bus:   bus,
		tasks: tasks,
		exec:  exec,
		sink:  sink,
		reg:   NewRegistry(),
		now:   time.Now,
	}
}

// Registry exposes the timer registry for introspection (API snapshots,
// tests). Mutation stays with the scheduler.
func (s *Scheduler) Registry() *Registry { return s.reg }

// Start makes the scheduler live: fire callbacks run under ctx and the drift
// reconciler begins sweeping. Call Bootstrap afterwards to arm stored tasks.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx != nil {
		return
	}
	s.runCtx, s.cancel = context.WithCancel(ctx)
	if s.cfg.ReconcileEvery > 0 {
		s.sweeper = newSweeper(s, s.cfg.ReconcileEvery)
		s.sweeper.start()
	}
	s.log.Info("scheduler started",
		logx.Duration("reconcile_every", s.cfg.ReconcileEvery),
		logx.Duration("stuck_after", s.cfg.StuckAfter))
}

// Stop cancels all timers and the reconciler. In-flight runs are not
// preempted beyond context cancellation.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.runCtx = nil
	sw := s.sweeper
	s.sweeper = nil
	s.mu.Unlock()

	if sw != nil {
		sw.stop(ctx)
	}
	s.reg.StopAll()
	if cancel != nil {
		cancel()
	}
	s.log.Info("scheduler stopped")
}

// Schedule computes the task's next run, persists it, and arms a timer.
//
// A rule error leaves the task unarmed and is returned to the caller; the
// task stays pending.
func (s *Scheduler) Schedule(task store.Task) error {
	next, err := recurrence.NextRun(task.Recurrence, task.Spec, s.now())
	if err != nil {
		s.log.Warn("cannot schedule task",
			logx.String("task", task.ID),
			logx.String("recurrence", string(task.Recurrence)),
			logx.Err(err))
		return err
	}

	if _, ok := s.tasks.UpdateTask(task.ID, func(t *store.Task) {
		t.NextRun = next
	}); !ok {
		return ErrTaskNotFound
	}

	id := task.ID
	s.reg.Arm(id, next, func() { s.fire(id) })

	s.publish(eventbus.EventTaskScheduled, eventbus.TaskEvent{
		TaskID: id, Kind: string(task.Kind), NextRun: next,
	})
	s.appendLifecycle(activity.Entry{
		OwnerID: task.OwnerID,
		Type:    "task_scheduled",
		Status:  activity.StatusSuccess,
		Details: map[string]any{"task_id": id, "next_run": next},
	})
	s.log.Debug("task armed",
		logx.String("task", id),
		logx.String("recurrence", string(task.Recurrence)),
		logx.Time("next_run", next))
	return nil
}

// Cancel disarms the task's timer if one is live. It never interrupts an
// in-flight run.
func (s *Scheduler) Cancel(id string) bool {
	if !s.reg.Cancel(id) {
		return false
	}
	task, ok := s.tasks.UpdateTask(id, func(t *store.Task) {
		t.NextRun = time.Time{}
	})
	s.publish(eventbus.EventTaskCanceled, eventbus.TaskEvent{TaskID: id, Kind: string(task.Kind)})
	if ok {
		s.appendLifecycle(activity.Entry{
			OwnerID: task.OwnerID,
			Type:    "task_canceled",
			Status:  activity.StatusSuccess,
			Details: map[string]any{"task_id": id},
		})
	}
	s.log.Debug("task canceled", logx.String("task", id))
	return true
}

// Reschedule cancels and re-arms from the task's current stored state. Used
// after an edit.
func (s *Scheduler) Reschedule(id string) error {
	s.Cancel(id)
	task, ok := s.tasks.Task(id)
	if !ok {
		return ErrTaskNotFound
	}
	return s.Schedule(task)
}

// Execute runs the task immediately, bypassing its timer. The armed timer,
// if any, is untouched.
func (s *Scheduler) Execute(ctx context.Context, task store.Task) error {
	s.fireMu.Lock()
	defer s.fireMu.Unlock()
	s.publish(eventbus.EventTaskFired, eventbus.TaskEvent{TaskID: task.ID, Kind: string(task.Kind)})
	err := s.exec.Run(ctx, task)
	if err != nil {
		s.publish(eventbus.EventTaskFailed, eventbus.TaskEvent{TaskID: task.ID, Kind: string(task.Kind), Error: err.Error()})
		return err
	}
	s.publish(eventbus.EventTaskCompleted, eventbus.TaskEvent{TaskID: task.ID, Kind: string(task.Kind)})
	return nil
}

// Bootstrap arms every non-terminal task found in the store. Called once at
// process start; order across tasks is irrelevant, each is independent.
func (s *Scheduler) Bootstrap(ctx context.Context) int {
	tasks := s.tasks.Tasks()
	scheduled := 0
	for _, t := range tasks {
		if ctx.Err() != nil {
			break
		}
		if isTerminal(t) {
			continue
		}
		if err := s.Schedule(t); err != nil {
			s.log.Warn("bootstrap skip", logx.String("task", t.ID), logx.Err(err))
			continue
		}
		scheduled++
	}
	s.log.Info("scheduler bootstrapped",
		logx.Int("tasks", len(tasks)),
		logx.Int("scheduled", scheduled))
	return scheduled
}

// fire is the timer callback: run the executor, then re-arm recurring tasks
// from their freshly fetched state so edits made since arming are honored.
func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		// Scheduler is live only between Start and Stop. A fire that races
		// shutdown is dropped; bootstrap will re-arm next start.
		return
	}

	task, ok := s.tasks.Task(id)
	if !ok {
		s.log.Debug("fired task no longer exists", logx.String("task", id))
		return
	}

	s.fireMu.Lock()
	s.publish(eventbus.EventTaskFired, eventbus.TaskEvent{TaskID: id, Kind: string(task.Kind)})
	err := s.exec.Run(ctx, task)
	s.fireMu.Unlock()

	if err != nil {
		// A task-level fatal error ends the chain; the reconciler will not
		// resurrect error tasks, only an explicit reschedule does. No timer
		// remains, so the next-run marker is cleared too.
		s.tasks.UpdateTask(id, func(t *store.Task) {
			t.NextRun = time.Time{}
		})
		s.publish(eventbus.EventTaskFailed, eventbus.TaskEvent{TaskID: id, Kind: string(task.Kind), Error: err.Error()})
		s.log.Error("recurrence chain ended", logx.String("task", id), logx.Err(err))
		return
	}
	s.publish(eventbus.EventTaskCompleted, eventbus.TaskEvent{TaskID: id, Kind: string(task.Kind)})

	if task.Recurrence == recurrence.Once {
		// Terminal: no timer remains, clear the stale next-run marker.
		s.tasks.UpdateTask(id, func(t *store.Task) {
			t.NextRun = time.Time{}
		})
		return
	}

	// Re-fetch: the rule may have been edited while this run executed.
	current, ok := s.tasks.Task(id)
	if !ok {
		return
	}
	if err := s.Schedule(current); err != nil {
		s.log.Warn("re-arm failed", logx.String("task", id), logx.Err(err))
	}
}

func isTerminal(t store.Task) bool {
	if t.Status == store.TaskError {
		return true
	}
	return t.Recurrence == recurrence.Once && t.Status == store.TaskCompleted
}

func (s *Scheduler) publish(typ string, data eventbus.TaskEvent) {
	if s.bus == nil {
		return
	}
	if data.At.IsZero() {
		data.At = s.now()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

func (s *Scheduler) appendLifecycle(e activity.Entry) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Append(context.Background(), e); err != nil {
		s.log.Warn("activity append failed", logx.Err(err))
	}
}
