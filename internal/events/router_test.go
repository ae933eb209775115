package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatchRoutesToRegisteredHandler(t *testing.T) {
	r := NewRouter(discard())
	var got ChangeEvent
	r.Register(ResourceBookings, KindCreated, func(ctx context.Context, ev ChangeEvent) error {
		got = ev
		return nil
	})
	r.Dispatch(context.Background(), ChangeEvent{Resource: ResourceBookings, Kind: KindCreated, DocumentID: "b1"})
	if got.DocumentID != "b1" {
		t.Fatalf("handler not invoked, got %+v", got)
	}
}

func TestDispatchIgnoresUnknownEvents(t *testing.T) {
	r := NewRouter(discard())
	called := false
	r.Register(ResourceRides, KindUpdated, func(ctx context.Context, ev ChangeEvent) error {
		called = true
		return nil
	})
	r.Dispatch(context.Background(), ChangeEvent{Resource: ResourceRides, Kind: KindDeleted})
	if called {
		t.Fatal("handler invoked for unregistered kind")
	}
}

func TestDispatchSwallowsHandlerErrors(t *testing.T) {
	r := NewRouter(discard())
	r.Register(ResourceRatings, KindCreated, func(ctx context.Context, ev ChangeEvent) error {
		return errors.New("store down")
	})
	// must not panic or propagate
	r.Dispatch(context.Background(), ChangeEvent{Resource: ResourceRatings, Kind: KindCreated})
}

func TestDispatchContainsHandlerPanic(t *testing.T) {
	r := NewRouter(discard())
	r.Register(ResourceRides, KindUpdated, func(ctx context.Context, ev ChangeEvent) error {
		panic("boom")
	})
	r.Dispatch(context.Background(), ChangeEvent{Resource: ResourceRides, Kind: KindUpdated})
}

func TestDecodeBeforeAbsentOnCreation(t *testing.T) {
	ev := ChangeEvent{Resource: ResourceBookings, Kind: KindCreated, After: []byte(`{"id":"b1"}`)}
	var v struct {
		ID string `json:"id"`
	}
	ok, err := ev.DecodeBefore(&v)
	if err != nil || ok {
		t.Fatalf("expected no prior snapshot, ok=%v err=%v", ok, err)
	}
	ok, err = ev.DecodeAfter(&v)
	if err != nil || !ok || v.ID != "b1" {
		t.Fatalf("after decode failed: ok=%v err=%v v=%+v", ok, err, v)
	}
}
