package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"leadpilot_backend/platform/logger"
)

type testEvent struct {
	BaseEvent
	name string
}

func (e testEvent) EventName() string { return e.name }

func TestPublishDispatchesToSubscribers(t *testing.T) {
	bus := NewInMemoryBus(logger.New("test"))

	var calls atomic.Int32
	bus.Subscribe("thing.happened", HandlerFunc(func(ctx context.Context, event Event) error {
		calls.Add(1)
		return nil
	}))
	bus.Subscribe("thing.happened", HandlerFunc(func(ctx context.Context, event Event) error {
		calls.Add(1)
		return nil
	}))
	bus.Subscribe("other.happened", HandlerFunc(func(ctx context.Context, event Event) error {
		t.Error("handler for other event must not fire")
		return nil
	}))

	bus.Publish(context.Background(), testEvent{BaseEvent: NewBaseEvent(), name: "thing.happened"})

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() != 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 handler calls, got %d", calls.Load())
	}
}

func TestPublishSurvivesPanickingHandler(t *testing.T) {
	bus := NewInMemoryBus(logger.New("test"))

	done := make(chan struct{})
	bus.Subscribe("boom", HandlerFunc(func(ctx context.Context, event Event) error {
		defer close(done)
		panic("handler bug")
	}))

	bus.Publish(context.Background(), testEvent{BaseEvent: NewBaseEvent(), name: "boom"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler never ran")
	}
}

func TestPublishSyncAggregatesErrors(t *testing.T) {
	bus := NewInMemoryBus(logger.New("test"))

	errA := errors.New("a failed")
	bus.Subscribe("sync.event", HandlerFunc(func(ctx context.Context, event Event) error {
		return errA
	}))
	bus.Subscribe("sync.event", HandlerFunc(func(ctx context.Context, event Event) error {
		return nil
	}))

	err := bus.PublishSync(context.Background(), testEvent{BaseEvent: NewBaseEvent(), name: "sync.event"})
	if !errors.Is(err, errA) {
		t.Fatalf("expected aggregated error to contain errA, got %v", err)
	}
}

func TestPublishWithNoSubscribersIsNoop(t *testing.T) {
	bus := NewInMemoryBus(logger.New("test"))
	bus.Publish(context.Background(), testEvent{BaseEvent: NewBaseEvent(), name: "nobody.listening"})
	if err := bus.PublishSync(context.Background(), testEvent{BaseEvent: NewBaseEvent(), name: "nobody.listening"}); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
