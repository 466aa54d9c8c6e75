// Package app wires the configuration, stores, verification service,
// scheduler and HTTP server into one runnable unit.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"mailwarden/internal/activity"
	"mailwarden/internal/api"
	"mailwarden/internal/config"
	"mailwarden/internal/eventbus"
	"mailwarden/internal/executor"
	"mailwarden/internal/runtime/supervisor"
	"mailwarden/internal/schedule"
	"mailwarden/internal/store"
	"mailwarden/internal/verify"
	logx "mailwarden/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	mem  *store.Mem
	sink activity.Sink

	verifier *verify.Service
	sched    *schedule.Scheduler
	httpSrv  *http.Server
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()
	mem := store.NewMem()

	busyTimeout, err := config.ParseDurationField("activity.busy_timeout", cfg.Activity.BusyTimeout)
	if err != nil {
		return nil, err
	}
	sink, err := activity.Open(activity.Config{
		Driver:      cfg.Activity.Driver,
		Path:        cfg.Activity.Path,
		MaxEntries:  cfg.Activity.MaxEntries,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "activity")))
	if err != nil {
		return nil, err
	}

	dialTimeout, err := config.ParseDurationField("smtp.dial_timeout", cfg.SMTP.DialTimeout)
	if err != nil {
		return nil, err
	}
	verifier := verify.New(verify.Config{
		Host:        cfg.SMTP.Host,
		Port:        cfg.SMTP.Port,
		DialTimeout: dialTimeout,
		RatePerMin:  cfg.SMTP.RatePerMin,
	}, mem, sink, log.With(logx.String("comp", "verify")))

	exec := executor.New(mem, mem, verifier, sink, log.With(logx.String("comp", "executor")))

	reconcileEvery, err := config.ParseDurationField("scheduler.reconcile_every", cfg.Scheduler.ReconcileEvery)
	if err != nil {
		return nil, err
	}
	stuckAfter, err := config.ParseDurationField("scheduler.stuck_after", cfg.Scheduler.StuckAfter)
	if err != nil {
		return nil, err
	}
	sched := schedule.New(schedule.Config{
		ReconcileEvery: reconcileEvery,
		StuckAfter:     stuckAfter,
	}, mem, exec, sink, bus, log.With(logx.String("comp", "scheduler")))

	handler := api.NewServer(mem, mem, sched, verifier, sink, log.With(logx.String("comp", "api")))
	httpSrv, err := buildHTTPServer(cfg, handler)
	if err != nil {
		return nil, err
	}

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		mem:      mem,
		sink:     sink,
		verifier: verifier,
		sched:    sched,
		httpSrv:  httpSrv,
	}, nil
}

func buildHTTPServer(cfg *config.Config, handler http.Handler) (*http.Server, error) {
	addr := cfg.HTTP.Addr
	if addr == "" {
		addr = "127.0.0.1:8080"
	}
	readTimeout, err := config.ParseDurationOrDefault("http.read_timeout", cfg.HTTP.ReadTimeout, 15*time.Second)
	if err != nil {
		return nil, err
	}
	writeTimeout, err := config.ParseDurationOrDefault("http.write_timeout", cfg.HTTP.WriteTimeout, 30*time.Second)
	if err != nil {
		return nil, err
	}
	idleTimeout, err := config.ParseDurationOrDefault("http.idle_timeout", cfg.HTTP.IdleTimeout, time.Minute)
	if err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}, nil
}

// Done is closed when the supervisor context is canceled, either by a fatal
// error or by Stop.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))

	a.sched.Start(a.sup.Context())
	n := a.sched.Bootstrap(a.sup.Context())
	a.log.Info("tasks armed from store", logx.Int("count", n))

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(ctx context.Context) {
		defer unsub()
		a.consumeEvents(ctx, events)
	})

	a.sup.GoRestart("config.watch", func(ctx context.Context) error {
		return a.cfgm.Watch(ctx)
	})
	a.sup.Go0("config.apply", func(ctx context.Context) {
		a.applyUpdates(ctx)
	})

	a.sup.Go("http", func(ctx context.Context) error {
		a.log.Info("http server listening", logx.String("addr", a.httpSrv.Addr))
		err := a.httpSrv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	a.sup.Go0("http.shutdown", func(ctx context.Context) {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.httpSrv.Shutdown(sctx)
	})

	return nil
}

// consumeEvents routes task lifecycle events into the log. Failures surface
// at warn level; the steady-state chatter stays at debug to keep frequent
// recurrences quiet.
func (a *App) consumeEvents(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			te, _ := e.Data.(eventbus.TaskEvent)
			fields := []logx.Field{
				logx.String("type", e.Type),
				logx.String("task", te.TaskID),
				logx.String("kind", te.Kind),
			}
			if !te.NextRun.IsZero() {
				fields = append(fields, logx.Time("next_run", te.NextRun))
			}
			if e.Type == eventbus.EventTaskFailed {
				fields = append(fields, logx.String("error", te.Error))
				a.log.Warn("task event", fields...)
				continue
			}
			a.log.Debug("task event", fields...)
		}
	}
}

// applyUpdates consumes validated config reloads. Only logging reacts live;
// the rest of the stack keeps the settings it booted with.
func (a *App) applyUpdates(ctx context.Context) {
	ch := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok {
				return
			}
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.log.Info("logging config applied", logx.String("level", cfg.Logging.Level))
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	a.sched.Stop(ctx)
	var err error
	if a.sup != nil {
		err = a.sup.Stop(ctx)
	}
	if cerr := a.sink.Close(); cerr != nil && err == nil {
		err = cerr
	}
	a.log.Info("shutdown complete")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}
