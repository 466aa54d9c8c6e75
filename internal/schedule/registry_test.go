package schedule

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestRegistryArmReplacesTimer(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	defer r.StopAll()

	var first, second atomic.Int32
	r.Arm("t1", time.Now().Add(50*time.Millisecond), func() { first.Add(1) })
	r.Arm("t1", time.Now().Add(10*time.Millisecond), func() { second.Add(1) })

	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}

	time.Sleep(150 * time.Millisecond)
	if got := first.Load(); got != 0 {
		t.Fatalf("replaced callback fired %d times", got)
	}
	if got := second.Load(); got != 1 {
		t.Fatalf("active callback fired %d times, want 1", got)
	}
	if r.Armed("t1") {
		t.Fatal("timer still armed after firing")
	}
}

func TestRegistryPastDueFiresImmediately(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	defer r.StopAll()

	done := make(chan struct{})
	r.Arm("past", time.Now().Add(-time.Hour), func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("past-due timer never fired")
	}
}

func TestRegistryCancel(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	defer r.StopAll()

	var fired atomic.Int32
	r.Arm("t1", time.Now().Add(20*time.Millisecond), func() { fired.Add(1) })

	if !r.Cancel("t1") {
		t.Fatal("Cancel returned false for an armed timer")
	}
	if r.Cancel("t1") {
		t.Fatal("second Cancel returned true")
	}
	if r.Cancel("never-armed") {
		t.Fatal("Cancel of unknown id returned true")
	}

	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("canceled callback fired %d times", got)
	}
}

func TestRegistryStopAll(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	var fired atomic.Int32
	for _, id := range []string{"a", "b", "c"} {
		r.Arm(id, time.Now().Add(30*time.Millisecond), func() { fired.Add(1) })
	}
	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}
	r.StopAll()
	if r.Len() != 0 {
		t.Fatalf("Len() after StopAll = %d, want 0", r.Len())
	}

	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("%d callbacks fired after StopAll", got)
	}
}
