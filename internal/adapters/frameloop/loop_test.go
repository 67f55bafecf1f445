package frameloop_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/samirrijal/locus/internal/adapters/frameloop"
)

func TestLoop_RunsRequestedFrame(t *testing.T) {
	l := frameloop.New(time.Millisecond)
	defer l.Close()

	done := make(chan time.Time, 1)
	l.RequestFrame(func(now time.Time) { done <- now })

	select {
	case now := <-done:
		if now.IsZero() {
			t.Error("expected a frame timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("frame callback never ran")
	}
}

func TestLoop_CancelFrame(t *testing.T) {
	l := frameloop.New(5 * time.Millisecond)
	defer l.Close()

	var ran atomic.Bool
	id := l.RequestFrame(func(time.Time) { ran.Store(true) })
	l.CancelFrame(id)

	time.Sleep(30 * time.Millisecond)
	if ran.Load() {
		t.Error("cancelled frame must not run")
	}
	if l.Pending() != 0 {
		t.Errorf("expected no pending frames, got %d", l.Pending())
	}
}

func TestLoop_RequestDuringTickRunsNextTick(t *testing.T) {
	l := frameloop.New(time.Millisecond)
	defer l.Close()

	var frames atomic.Int32
	done := make(chan struct{})
	var step func(time.Time)
	step = func(time.Time) {
		if frames.Add(1) == 3 {
			close(done)
			return
		}
		l.RequestFrame(step)
	}
	l.RequestFrame(step)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected 3 chained frames, got %d", frames.Load())
	}
}

func TestLoop_SurvivesPanickingCallback(t *testing.T) {
	l := frameloop.New(time.Millisecond)
	defer l.Close()

	done := make(chan struct{})
	l.RequestFrame(func(time.Time) { panic("boom") })
	l.RequestFrame(func(time.Time) { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop stopped after a panicking callback")
	}
}

func TestLoop_CloseIsIdempotent(t *testing.T) {
	l := frameloop.New(time.Millisecond)
	if err := l.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
