package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mailwarden/internal/activity"
	"mailwarden/internal/recurrence"
	"mailwarden/internal/schedule"
	"mailwarden/internal/store"
	logx "mailwarden/pkg/logx"
)

type taskReq struct {
	OwnerID    string           `json:"owner_id"`
	AccountID  string           `json:"account_id"`
	Kind       string           `json:"kind"`
	Recurrence string           `json:"recurrence"`
	Spec       *recurrence.Spec `json:"spec"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req taskReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.OwnerID == "" {
		http.Error(w, "owner_id is required", http.StatusBadRequest)
		return
	}
	kind, err := store.ParseTaskKind(req.Kind)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec, err := recurrence.ParseKind(req.Recurrence)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var spec recurrence.Spec
	if req.Spec != nil {
		spec = *req.Spec
	}

	task := s.tasks.CreateTask(store.Task{
		OwnerID:    req.OwnerID,
		AccountID:  req.AccountID,
		Kind:       kind,
		Recurrence: rec,
		Spec:       spec,
	})

	// Scheduling validates the rule. A bad rule must not leave a dead task
	// behind, so creation is rolled back.
	if err := s.sched.Schedule(task); err != nil {
		s.tasks.DeleteTask(task.ID)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, _ := s.tasks.Task(task.ID)
	s.log.Info("task created",
		logx.String("task", created.ID),
		logx.String("kind", string(created.Kind)),
		logx.String("recurrence", string(created.Recurrence)))
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	var tasks []store.Task
	if owner := r.URL.Query().Get("owner_id"); owner != "" {
		tasks = s.tasks.TasksByOwner(owner)
	} else {
		tasks = s.tasks.Tasks()
	}
	if tasks == nil {
		tasks = []store.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.tasks.Task(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req taskReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Kind != "" {
		if _, err := store.ParseTaskKind(req.Kind); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if req.Recurrence != "" {
		if _, err := recurrence.ParseKind(req.Recurrence); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	_, ok := s.tasks.UpdateTask(id, func(t *store.Task) {
		if req.AccountID != "" {
			t.AccountID = req.AccountID
		}
		if req.Kind != "" {
			t.Kind = store.TaskKind(req.Kind)
		}
		if req.Recurrence != "" {
			t.Recurrence = recurrence.Kind(req.Recurrence)
		}
		if req.Spec != nil {
			t.Spec = *req.Spec
		}
		// An edit restarts a chain that previously ended in error.
		t.Status = store.TaskPending
	})
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	if err := s.sched.Reschedule(id); err != nil {
		if errors.Is(err, schedule.ErrTaskNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	task, _ := s.tasks.Task(id)
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, ok := s.tasks.Task(id)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	s.sched.Cancel(id)
	s.tasks.DeleteTask(id)
	if s.sink != nil {
		_ = s.sink.Append(r.Context(), activity.Entry{
			OwnerID: task.OwnerID,
			Type:    "task_deleted",
			Status:  activity.StatusSuccess,
			Details: map[string]any{"task_id": id, "kind": string(task.Kind)},
		})
	}
	s.log.Info("task deleted", logx.String("task", id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) executeTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.tasks.Task(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err := s.sched.Execute(r.Context(), task); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	updated, _ := s.tasks.Task(task.ID)
	writeJSON(w, http.StatusOK, updated)
}
