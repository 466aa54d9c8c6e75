package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"mailwarden/internal/activity"
	"mailwarden/internal/store"
	logx "mailwarden/pkg/logx"
)

// sweeper periodically repairs scheduler drift:
//
//   - a non-terminal task whose next-run time passed with no live timer is
//     re-armed (belt and braces against lost timer callbacks)
//   - a task stuck in running beyond the watchdog window is flipped to
//     error; the in-flight goroutine is never killed, only the record is
//     marked so the stall is visible
type sweeper struct {
	s     *Scheduler
	c     *cron.Cron
	every time.Duration
}

func newSweeper(s *Scheduler, every time.Duration) *sweeper {
	return &sweeper{s: s, c: cron.New(), every: every}
}

func (w *sweeper) start() {
	spec := fmt.Sprintf("@every %s", w.every.String())
	if _, err := w.c.AddFunc(spec, w.sweep); err != nil {
		w.s.log.Error("reconciler register failed", logx.Err(err))
		return
	}
	w.c.Start()
}

func (w *sweeper) stop(ctx context.Context) {
	select {
	case <-w.c.Stop().Done():
	case <-ctx.Done():
		// best-effort
	}
}

func (w *sweeper) sweep() {
	s := w.s
	now := s.now()
	for _, t := range s.tasks.Tasks() {
		switch {
		case t.Status == store.TaskRunning && s.cfg.StuckAfter > 0 &&
			!t.LastRun.IsZero() && now.Sub(t.LastRun) > s.cfg.StuckAfter:
			w.flagStuck(t, now)

		case !isTerminal(t) && !t.NextRun.IsZero() &&
			t.NextRun.Before(now) && !s.reg.Armed(t.ID):
			s.log.Warn("re-arming drifted task",
				logx.String("task", t.ID),
				logx.Time("next_run", t.NextRun))
			if err := s.Schedule(t); err != nil {
				s.log.Warn("drift re-arm failed", logx.String("task", t.ID), logx.Err(err))
			}
		}
	}
}

func (w *sweeper) flagStuck(t store.Task, now time.Time) {
	s := w.s
	if _, ok := s.tasks.UpdateTask(t.ID, func(cur *store.Task) {
		cur.Status = store.TaskError
		cur.NextRun = time.Time{}
	}); !ok {
		return
	}
	s.reg.Cancel(t.ID)
	s.log.Error("task stuck in running, flagging as failed",
		logx.String("task", t.ID),
		logx.Time("last_run", t.LastRun),
		logx.Duration("stuck_after", s.cfg.StuckAfter))
	s.appendLifecycle(activity.Entry{
		OwnerID: t.OwnerID,
		Type:    "task_stuck",
		Status:  activity.StatusError,
		Message: fmt.Sprintf("task running for more than %s", s.cfg.StuckAfter),
		Details: map[string]any{"task_id": t.ID, "last_run": t.LastRun},
	})
}
