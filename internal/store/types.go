package store

import (
	"errors"
	"time"

	"mailwarden/internal/recurrence"
)

var ErrNotFound = errors.New("not found")

// AuthType is how an account authenticates against Gmail SMTP.
type AuthType string

const (
	AuthOAuth    AuthType = "oauth"
	AuthPassword AuthType = "password"
)

// AccountStatus is the last known SMTP health of an account.
type AccountStatus string

const (
	AccountPending AccountStatus = "pending"
	AccountActive  AccountStatus = "active"
	AccountWarning AccountStatus = "warning"
	AccountError   AccountStatus = "error"
)

// Account is a registered Gmail account.
//
// Credentials are stored as provided. Encrypting them at rest is the job of
// an outer layer, not this store.
type Account struct {
	ID         string        `json:"id"`
	OwnerID    string        `json:"owner_id"`
	Email      string        `json:"email"`
	Name       string        `json:"name,omitempty"`
	AuthType   AuthType      `json:"auth_type"`
	Credential string        `json:"-"`
	Status     AccountStatus `json:"status"`
	LastCheck  time.Time     `json:"last_check,omitzero"`
	CreatedAt  time.Time     `json:"created_at"`
}

// TaskKind is the effect a scheduled task performs.
type TaskKind string

const (
	KindVerifyStatus TaskKind = "verify_status"
	KindSendEmail    TaskKind = "send_email"
	KindCheckInbox   TaskKind = "check_inbox"
	KindCleanUp      TaskKind = "clean_up"
)

// ParseTaskKind validates a task kind coming from the API layer.
func ParseTaskKind(s string) (TaskKind, error) {
	switch TaskKind(s) {
	case KindVerifyStatus, KindSendEmail, KindCheckInbox, KindCleanUp:
		return TaskKind(s), nil
	default:
		return "", errors.New("unknown task kind " + s)
	}
}

// TaskStatus is the task's execution state.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskError     TaskStatus = "error"
)

// Task is a scheduled maintenance task against one or all of an owner's
// accounts.
//
// AccountID empty means "all of the owner's accounts", resolved at fire time
// rather than snapshotted at schedule time.
type Task struct {
	ID         string          `json:"id"`
	OwnerID    string          `json:"owner_id"`
	AccountID  string          `json:"account_id,omitempty"`
	Kind       TaskKind        `json:"kind"`
	Recurrence recurrence.Kind `json:"recurrence"`
	Spec       recurrence.Spec `json:"spec"`
	Status     TaskStatus      `json:"status"`
	LastRun    time.Time       `json:"last_run,omitzero"`
	NextRun    time.Time       `json:"next_run,omitzero"`
	CreatedAt  time.Time       `json:"created_at"`
}

// TaskStore is the task persistence API consumed by the scheduler, executor
// and HTTP layer.
type TaskStore interface {
	Task(id string) (Task, bool)
	Tasks() []Task
	TasksByOwner(ownerID string) []Task
	CreateTask(t Task) Task
	// UpdateTask applies mutate to the stored task under the store lock and
	// returns the updated copy. It reports false if the task is gone.
	UpdateTask(id string, mutate func(*Task)) (Task, bool)
	DeleteTask(id string) bool
}

// AccountStore is the account persistence API.
type AccountStore interface {
	Account(id string) (Account, bool)
	Accounts() []Account
	AccountsByOwner(ownerID string) []Account
	CreateAccount(a Account) Account
	UpdateAccount(id string, mutate func(*Account)) (Account, bool)
	DeleteAccount(id string) bool
}
