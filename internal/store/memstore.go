package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Mem is the in-memory store backing tasks and accounts.
//
// State lives for the process lifetime only; the scheduler rebuilds its
// timers from it at startup (bootstrap), nothing is persisted to disk.
type Mem struct {
	mu       sync.RWMutex
	tasks    map[string]Task
	accounts map[string]Account
}

func NewMem() *Mem {
	return &Mem{
		tasks:    map[string]Task{},
		accounts: map[string]Account{},
	}
}

// ---- tasks ----

func (m *Mem) Task(id string) (Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	return t, ok
}

func (m *Mem) Tasks() []Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	sortTasks(out)
	return out
}

func (m *Mem) TasksByOwner(ownerID string) []Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Task
	for _, t := range m.tasks {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	sortTasks(out)
	return out
}

func (m *Mem) CreateTask(t Task) Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	m.tasks[t.ID] = t
	return t
}

func (m *Mem) UpdateTask(id string, mutate func(*Task)) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return Task{}, false
	}
	mutate(&t)
	t.ID = id // id is immutable
	m.tasks[id] = t
	return t, true
}

func (m *Mem) DeleteTask(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return false
	}
	delete(m.tasks, id)
	return true
}

// ---- accounts ----

func (m *Mem) Account(id string) (Account, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	return a, ok
}

func (m *Mem) Accounts() []Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	sortAccounts(out)
	return out
}

func (m *Mem) AccountsByOwner(ownerID string) []Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Account
	for _, a := range m.accounts {
		if a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	sortAccounts(out)
	return out
}

func (m *Mem) CreateAccount(a Account) Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = AccountPending
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	m.accounts[a.ID] = a
	return a
}

func (m *Mem) UpdateAccount(id string, mutate func(*Account)) (Account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return Account{}, false
	}
	mutate(&a)
	a.ID = id
	m.accounts[id] = a
	return a, true
}

func (m *Mem) DeleteAccount(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[id]; !ok {
		return false
	}
	delete(m.accounts, id)
	return true
}

// Listing order: stable, oldest first. Map iteration order would leak into
// API responses and executor target order otherwise.
func sortTasks(ts []Task) {
	sort.Slice(ts, func(i, j int) bool {
		if !ts[i].CreatedAt.Equal(ts[j].CreatedAt) {
			return ts[i].CreatedAt.Before(ts[j].CreatedAt)
		}
		return ts[i].ID < ts[j].ID
	})
}

func sortAccounts(as []Account) {
	sort.Slice(as, func(i, j int) bool {
		if !as[i].CreatedAt.Equal(as[j].CreatedAt) {
			return as[i].CreatedAt.Before(as[j].CreatedAt)
		}
		return as[i].ID < as[j].ID
	})
}
