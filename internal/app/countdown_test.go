package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"iq-card-service/internal/domain"
)

type fakeTicker struct {
	ch chan time.Time

	mu      sync.Mutex
	resets  int
	stopped bool
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{ch: make(chan time.Time)}
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }

func (f *fakeTicker) Reset(time.Duration) {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
}

func (f *fakeTicker) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeTicker) Resets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

func waitFor(t *testing.T, ch <-chan domain.SessionView, match func(domain.SessionView) bool) domain.SessionView {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-ch:
			if match(v) {
				return v
			}
		case <-deadline:
			t.Fatalf("timed out waiting for snapshot")
		}
	}
}

func TestCountdownTicksAndStopsOnFinish(t *testing.T) {
	s := newTestSession(t)
	s.Start(bankOf(1))
	updates, cancel := s.Subscribe()
	defer cancel()

	ticker := newFakeTicker()
	done := make(chan struct{})
	go func() {
		runCountdown(context.Background(), s, s.currentRun(), time.Second, func(time.Duration) Ticker { return ticker })
		close(done)
	}()

	ticker.ch <- time.Now()
	waitFor(t, updates, func(v domain.SessionView) bool { return v.TimeRemaining == InitialTime-1 })

	for i := 1; i < InitialTime; i++ {
		ticker.ch <- time.Now()
	}
	waitFor(t, updates, func(v domain.SessionView) bool { return v.Phase == domain.PhaseFinished })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("countdown did not exit after finish")
	}
}

func TestCountdownReArmsAfterSelection(t *testing.T) {
	s := newTestSession(t)
	s.Start(bankOf(3))
	ticker := newFakeTicker()

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runCountdown(ctx, s, s.currentRun(), time.Second, func(time.Duration) Ticker { return ticker })
		close(done)
	}()

	if _, err := s.Select(0, 0); err != nil {
		t.Fatalf("select: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for ticker.Resets() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("ticker was not re-armed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("countdown did not exit on cancel")
	}
	if s.View().TimeRemaining != InitialTime {
		t.Fatalf("expected untouched timer, got %d", s.View().TimeRemaining)
	}
}

func TestCountdownExitsWhenRunReplaced(t *testing.T) {
	s := newTestSession(t)
	s.Start(bankOf(2))
	run := s.currentRun()
	ticker := newFakeTicker()

	done := make(chan struct{})
	go func() {
		runCountdown(context.Background(), s, run, time.Second, func(time.Duration) Ticker { return ticker })
		close(done)
	}()

	s.Start(bankOf(2))
	ticker.ch <- time.Now()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("stale countdown kept running")
	}
	if s.View().TimeRemaining != InitialTime {
		t.Fatalf("stale tick reached the new run")
	}
}
