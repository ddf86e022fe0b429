package clock

import (
	"testing"
	"time"
)

func TestFakeAdvanceFiresDueWaiters(t *testing.T) {
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	fake := NewFake(start)

	short := fake.After(time.Minute)
	long := fake.After(time.Hour)

	fake.Advance(time.Minute)

	select {
	case at := <-short:
		if !at.Equal(start.Add(time.Minute)) {
			t.Fatalf("expected fire at %s, got %s", start.Add(time.Minute), at)
		}
	default:
		t.Fatalf("expected short waiter to fire")
	}

	select {
	case <-long:
		t.Fatalf("long waiter fired early")
	default:
	}

	fake.Advance(time.Hour)
	select {
	case <-long:
	default:
		t.Fatalf("expected long waiter to fire after full advance")
	}
}

func TestFakeNowTracksAdvances(t *testing.T) {
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	fake := NewFake(start)
	fake.Advance(90 * time.Minute)
	if !fake.Now().Equal(start.Add(90 * time.Minute)) {
		t.Fatalf("expected %s, got %s", start.Add(90*time.Minute), fake.Now())
	}
}
