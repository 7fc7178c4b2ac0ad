package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"zapflow_backend/platform/logger"
)

type testEvent struct {
	BaseEvent
	name string
}

func (e testEvent) EventName() string { return e.name }

func TestPublishSyncJoinsHandlerErrors(t *testing.T) {
	bus := NewInMemoryBus(logger.Nop())
	var calls int32
	bus.Subscribe("demo", HandlerFunc(func(context.Context, Event) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("first failed")
	}))
	bus.Subscribe("demo", HandlerFunc(func(context.Context, Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))

	err := bus.PublishSync(context.Background(), testEvent{BaseEvent: NewBaseEvent(), name: "demo"})
	if err == nil {
		t.Fatalf("expected joined error")
	}
	if calls != 2 {
		t.Fatalf("expected both handlers to run, got %d", calls)
	}
}

func TestPublishRecoversPanicsAndRunsOtherHandlers(t *testing.T) {
	bus := NewInMemoryBus(logger.Nop())
	var ran atomic.Bool
	bus.Subscribe("demo", HandlerFunc(func(context.Context, Event) error {
		panic("boom")
	}))
	bus.Subscribe("demo", HandlerFunc(func(context.Context, Event) error {
		ran.Store(true)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Publish(ctx, testEvent{BaseEvent: NewBaseEvent(), name: "demo"})
	bus.Wait()

	if !ran.Load() {
		t.Fatalf("expected second handler to run")
	}
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	bus := NewInMemoryBus(logger.Nop())
	bus.Publish(context.Background(), testEvent{BaseEvent: NewBaseEvent(), name: "nobody"})
	bus.Wait()
	if err := bus.PublishSync(context.Background(), testEvent{name: "nobody"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewBaseEventIsUnique(t *testing.T) {
	a, b := NewBaseEvent(), NewBaseEvent()
	if a.EventID() == b.EventID() {
		t.Fatal("expected distinct event ids")
	}
	if a.OccurredAt().IsZero() {
		t.Fatal("expected timestamp to be set")
	}
}
