// Package api exposes the HTTP surface: account and task CRUD, manual
// verification, manual task execution, and the activity feed.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mailwarden/internal/activity"
	"mailwarden/internal/schedule"
	"mailwarden/internal/store"
	"mailwarden/internal/verify"
	logx "mailwarden/pkg/logx"
)

type Server struct {
	r        *chi.Mux
	accounts store.AccountStore
	tasks    store.TaskStore
	sched    *schedule.Scheduler
	verifier OwnerVerifier
	sink     activity.Sink
	log      logx.Logger
}

// OwnerVerifier is the slice of the verification service the API needs.
type OwnerVerifier interface {
	Verify(ctx context.Context, account store.Account) (verify.Result, error)
	VerifyOwner(ctx context.Context, ownerID string) (verify.OwnerSummary, error)
}

func NewServer(accounts store.AccountStore, tasks store.TaskStore, sched *schedule.Scheduler, verifier OwnerVerifier, sink activity.Sink, log logx.Logger) http.Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(log), middleware.Recoverer)

	s := &Server{
		r:        r,
		accounts: accounts,
		tasks:    tasks,
		sched:    sched,
		verifier: verifier,
		sink:     sink,
		log:      log,
	}

	r.Get("/health", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", s.listAccounts)
			r.Post("/", s.createAccount)
			r.Post("/verify-all", s.verifyAll)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getAccount)
				r.Put("/", s.updateAccount)
				r.Delete("/", s.deleteAccount)
				r.Post("/verify", s.verifyAccount)
			})
		})
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.listTasks)
			r.Post("/", s.createTask)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getTask)
				r.Put("/", s.updateTask)
				r.Delete("/", s.deleteTask)
				r.Post("/execute", s.executeTask)
			})
		})
		r.Get("/activity", s.recentActivity)
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) recentActivity(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	entries, err := s.sink.Recent(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []activity.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func requestLogger(log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", ww.Status()),
				logx.Duration("took", time.Since(start)))
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
