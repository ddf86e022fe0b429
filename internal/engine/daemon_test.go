package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadpilot_backend/internal/marketplace"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestRunExecutesFirstCycleImmediatelyAndTicksOnInterval(t *testing.T) {
	f := newFixture(t, func(f *fixture) {
		f.source.leads = []marketplace.Lead{inquiryLead()}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.engine.Run(ctx)
	}()

	// First cycle runs without any clock advance.
	waitFor(t, 2*time.Second, func() bool {
		return f.store.outcomeOf("lead-2") != ""
	})

	// Queue a second lead and tick the interval.
	f.source.mu.Lock()
	f.source.leads = []marketplace.Lead{schedulingLead()}
	f.source.mu.Unlock()

	waitFor(t, 2*time.Second, func() bool {
		f.clk.Advance(time.Minute)
		return f.store.outcomeOf("lead-1") != ""
	})

	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("daemon did not stop after cancel")
	}
}

func TestRunContinuesAfterCycleError(t *testing.T) {
	f := newFixture(t, func(f *fixture) {
		f.source.fetchErr = errors.New("upstream down")
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.engine.Run(ctx)
	}()

	// Recover the source and tick; the daemon must pick the lead up despite
	// the earlier failed cycle.
	waitFor(t, 2*time.Second, func() bool {
		f.source.mu.Lock()
		f.source.fetchErr = nil
		f.source.leads = []marketplace.Lead{inquiryLead()}
		f.source.mu.Unlock()
		f.clk.Advance(time.Minute)
		return f.store.outcomeOf("lead-2") == "sent"
	})

	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("daemon did not stop after cancel")
	}
}
