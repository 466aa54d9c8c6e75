package executor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mailwarden/internal/activity"
	"mailwarden/internal/recurrence"
	"mailwarden/internal/store"
	"mailwarden/internal/verify"
	logx "mailwarden/pkg/logx"
)

// fakeVerifier fails accounts whose email starts with "bad" and panics for
// emails starting with "boom".
type fakeVerifier struct {
	calls []string
}

func (f *fakeVerifier) Verify(_ context.Context, a store.Account) (verify.Result, error) {
	f.calls = append(f.calls, a.Email)
	switch {
	case strings.HasPrefix(a.Email, "boom"):
		panic("verifier exploded")
	case strings.HasPrefix(a.Email, "bad"):
		return verify.Result{}, errors.New("535 auth failed")
	default:
		return verify.Result{IsValid: true, Status: store.AccountActive, Message: "SMTP verification successful"}, nil
	}
}

func newFixture(t *testing.T) (*Executor, *store.Mem, activity.Sink, *fakeVerifier) {
	t.Helper()
	mem := store.NewMem()
	sink, err := activity.Open(activity.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("activity.Open: %v", err)
	}
	v := &fakeVerifier{}
	return New(mem, mem, v, sink, logx.Nop()), mem, sink, v
}

func TestRunFailureIsolation(t *testing.T) {
	t.Parallel()
	e, mem, sink, v := newFixture(t)

	mem.CreateAccount(store.Account{OwnerID: "u1", Email: "a@gmail.com"})
	mem.CreateAccount(store.Account{OwnerID: "u1", Email: "bad@gmail.com"})
	mem.CreateAccount(store.Account{OwnerID: "u1", Email: "c@gmail.com"})

	task := mem.CreateTask(store.Task{
		OwnerID:    "u1",
		Kind:       store.KindVerifyStatus,
		Recurrence: recurrence.Daily,
		Spec:       recurrence.Spec{Time: "09:00"},
	})

	if err := e.Run(context.Background(), task); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// All three accounts were attempted despite the middle failure.
	if len(v.calls) != 3 {
		t.Fatalf("verifier calls = %d, want 3", len(v.calls))
	}

	got, _ := mem.Task(task.ID)
	if got.Status != store.TaskCompleted {
		t.Fatalf("task status = %s, want completed (account failures are not fatal)", got.Status)
	}
	if got.LastRun.IsZero() {
		t.Fatal("expected LastRun to be set")
	}

	entries, _ := sink.Recent(context.Background(), 10)
	if len(entries) != 3 {
		t.Fatalf("expected 3 activity entries, got %d", len(entries))
	}
	var failed int
	for _, en := range entries {
		if en.Type != "task_verify_status" {
			t.Fatalf("unexpected entry type %q", en.Type)
		}
		if en.Status == activity.StatusError {
			failed++
		}
	}
	if failed != 1 {
		t.Fatalf("expected exactly 1 error entry, got %d", failed)
	}
}

func TestRunAccountPanicIsolated(t *testing.T) {
	t.Parallel()
	e, mem, sink, _ := newFixture(t)

	mem.CreateAccount(store.Account{OwnerID: "u1", Email: "boom@gmail.com"})
	mem.CreateAccount(store.Account{OwnerID: "u1", Email: "ok@gmail.com"})

	task := mem.CreateTask(store.Task{OwnerID: "u1", Kind: store.KindVerifyStatus})
	if err := e.Run(context.Background(), task); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, _ := mem.Task(task.ID)
	if got.Status != store.TaskCompleted {
		t.Fatalf("task status = %s, want completed", got.Status)
	}
	entries, _ := sink.Recent(context.Background(), 10)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestRunSingleTargetOwnership(t *testing.T) {
	t.Parallel()
	e, mem, sink, v := newFixture(t)

	mine := mem.CreateAccount(store.Account{OwnerID: "u1", Email: "mine@gmail.com"})
	other := mem.CreateAccount(store.Account{OwnerID: "u2", Email: "other@gmail.com"})

	// Targeting someone else's account resolves to an empty set.
	task := mem.CreateTask(store.Task{OwnerID: "u1", AccountID: other.ID, Kind: store.KindVerifyStatus})
	if err := e.Run(context.Background(), task); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(v.calls) != 0 {
		t.Fatalf("expected no verifier calls, got %v", v.calls)
	}
	entries, _ := sink.Recent(context.Background(), 10)
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
	got, _ := mem.Task(task.ID)
	if got.Status != store.TaskCompleted {
		t.Fatalf("empty run should still complete, got %s", got.Status)
	}

	// Targeting our own account runs exactly that one.
	task2 := mem.CreateTask(store.Task{OwnerID: "u1", AccountID: mine.ID, Kind: store.KindVerifyStatus})
	if err := e.Run(context.Background(), task2); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(v.calls) != 1 || v.calls[0] != "mine@gmail.com" {
		t.Fatalf("unexpected calls: %v", v.calls)
	}
}

func TestRunDynamicResolution(t *testing.T) {
	t.Parallel()
	e, mem, _, v := newFixture(t)

	task := mem.CreateTask(store.Task{OwnerID: "u1", Kind: store.KindVerifyStatus})

	// Account added after the task exists is still picked up at run time.
	mem.CreateAccount(store.Account{OwnerID: "u1", Email: "late@gmail.com"})

	if err := e.Run(context.Background(), task); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(v.calls) != 1 || v.calls[0] != "late@gmail.com" {
		t.Fatalf("unexpected calls: %v", v.calls)
	}
}

func TestRunUnimplementedKindsWarn(t *testing.T) {
	t.Parallel()
	e, mem, sink, _ := newFixture(t)
	mem.CreateAccount(store.Account{OwnerID: "u1", Email: "a@gmail.com"})

	for _, kind := range []store.TaskKind{store.KindSendEmail, store.KindCheckInbox, store.KindCleanUp} {
		task := mem.CreateTask(store.Task{OwnerID: "u1", Kind: kind})
		if err := e.Run(context.Background(), task); err != nil {
			t.Fatalf("Run(%s): %v", kind, err)
		}
	}

	entries, _ := sink.Recent(context.Background(), 10)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for _, en := range entries {
		if en.Status != activity.StatusWarning {
			t.Fatalf("entry %s status = %s, want warning (not success-shaped)", en.Type, en.Status)
		}
		if !strings.Contains(en.Message, "not implemented") {
			t.Fatalf("unexpected message %q", en.Message)
		}
	}
}

func TestResolveTargets(t *testing.T) {
	t.Parallel()
	mem := store.NewMem()
	a := mem.CreateAccount(store.Account{OwnerID: "u1", Email: "a@gmail.com"})
	mem.CreateAccount(store.Account{OwnerID: "u1", Email: "b@gmail.com"})
	foreign := mem.CreateAccount(store.Account{OwnerID: "u2", Email: "x@gmail.com"})

	if got := ResolveTargets(mem, "u1", ""); len(got) != 2 {
		t.Fatalf("all-accounts resolution = %d, want 2", len(got))
	}
	if got := ResolveTargets(mem, "u1", a.ID); len(got) != 1 || got[0].ID != a.ID {
		t.Fatalf("single resolution = %+v", got)
	}
	if got := ResolveTargets(mem, "u1", foreign.ID); got != nil {
		t.Fatalf("foreign account must not resolve, got %+v", got)
	}
	if got := ResolveTargets(mem, "u1", "missing"); got != nil {
		t.Fatalf("missing account must not resolve, got %+v", got)
	}
}
