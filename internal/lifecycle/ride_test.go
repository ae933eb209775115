package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/example/campuspool/internal/events"
	"github.com/example/campuspool/internal/models"
	"github.com/example/campuspool/internal/notify"
	"github.com/example/campuspool/internal/storage"
)

func rideFixture(t *testing.T) (*storage.MemoryStore, *fakeGateway, *fakeChat, *fakePayments, *RideStateMachine) {
	t.Helper()
	store := storage.NewMemoryStore()
	store.PutUser(models.User{ID: "d1", Name: "Dana", Role: models.RoleDriver, PushToken: "t1", Email: "dana@campus.edu"})
	store.PutUser(models.User{ID: "p1", Name: "Pat", Role: models.RoleRider, PushToken: "t2", Email: "pat@campus.edu"})
	store.PutUser(models.User{ID: "p2", Name: "Quinn", Role: models.RoleRider, PushToken: "t3", Email: "quinn@campus.edu"})
	ride := models.Ride{
		ID: "r1", DriverID: "d1", Origin: "North Campus", Destination: "Airport",
		ScheduledAt: time.Now().Add(24 * time.Hour), Status: models.RideActive,
		RiderIDs: []string{"p1", "p2"},
	}
	store.PutRide(ride)
	store.PutBooking(models.Booking{ID: "b1", RideID: "r1", RiderID: "p1", Status: models.BookingActive, PaymentIntentID: "pi_1"})
	store.PutBooking(models.Booking{ID: "b2", RideID: "r1", RiderID: "p2", Status: models.BookingActive, PaymentIntentID: "pi_2"})
	store.PutBooking(models.Booking{ID: "b9", RideID: "r9", RiderID: "p1", Status: models.BookingActive})

	gw := &fakeGateway{}
	chat := &fakeChat{}
	pay := &fakePayments{}
	m := &RideStateMachine{
		Store:    store,
		Gateway:  gw,
		Chat:     chat,
		Batch:    storage.NewBatchWriter(store, discard()),
		Payments: pay,
		Log:      discard(),
	}
	return store, gw, chat, pay, m
}

func transition(t *testing.T, m *RideStateMachine, store *storage.MemoryStore, from, to string) error {
	t.Helper()
	before, err := store.GetRide(context.Background(), "r1")
	if err != nil {
		t.Fatalf("fixture ride: %v", err)
	}
	before.Status = from
	after := *before
	after.Status = to
	return m.OnRideUpdated(context.Background(), updateEvent(t, events.ResourceRides, "r1", before, after))
}

func TestRideSameStatusIsNoop(t *testing.T) {
	store, gw, chat, _, m := rideFixture(t)
	if err := transition(t, m, store, models.RideActive, models.RideActive); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(gw.pushes) != 0 || len(chat.entries) != 0 {
		t.Fatal("duplicate delivery produced side effects")
	}
}

func TestRideTerminalStateNeverTransitions(t *testing.T) {
	store, gw, _, _, m := rideFixture(t)
	if err := transition(t, m, store, models.RideCancelled, models.RideCompleted); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(gw.pushes) != 0 {
		t.Fatal("terminal ride produced notifications")
	}
}

func TestRideFullNotifiesDriverOnly(t *testing.T) {
	store, gw, chat, _, m := rideFixture(t)
	if err := transition(t, m, store, models.RideActive, models.RideFull); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(gw.pushes) != 1 || gw.pushes[0].userID != "d1" {
		t.Fatalf("expected one push to driver, got %+v", gw.pushes)
	}
	if gw.pushes[0].data["type"] != notify.TypeRideFull {
		t.Fatalf("expected ride_full, got %s", gw.pushes[0].data["type"])
	}
	if len(chat.entries) != 1 {
		t.Fatal("expected chat entry")
	}
	// no cascading booking changes on full
	for _, id := range []string{"b1", "b2"} {
		b, _ := store.GetBooking(context.Background(), id)
		if b.Status != models.BookingActive {
			t.Fatalf("booking %s touched on full transition", id)
		}
	}
}

func TestRideCancelledCascadesBookings(t *testing.T) {
	store, gw, _, pay, m := rideFixture(t)
	if err := transition(t, m, store, models.RideActive, models.RideCancelled); err != nil {
		t.Fatalf("handler: %v", err)
	}
	for _, rider := range []string{"p1", "p2"} {
		if len(gw.pushesTo(rider)) != 1 {
			t.Fatalf("expected cancel push to %s", rider)
		}
	}
	if len(gw.mailsTo("pat@campus.edu")) != 1 || len(gw.mailsTo("quinn@campus.edu")) != 1 {
		t.Fatal("expected cancel email to each rider")
	}
	if len(gw.pushesTo("d1")) != 0 {
		t.Fatal("driver should not be notified of own cancellation")
	}
	for _, id := range []string{"b1", "b2"} {
		b, _ := store.GetBooking(context.Background(), id)
		if b.Status != models.BookingCancelled {
			t.Fatalf("booking %s not cascaded", id)
		}
	}
	// a booking referencing a different ride is untouched
	b9, _ := store.GetBooking(context.Background(), "b9")
	if b9.Status != models.BookingActive {
		t.Fatal("unrelated booking cascaded")
	}
	if len(pay.released) != 2 {
		t.Fatalf("expected both holds released, got %v", pay.released)
	}
}

func TestRideCompletedSendsRatingPrompts(t *testing.T) {
	store, gw, _, pay, m := rideFixture(t)
	if err := transition(t, m, store, models.RideActive, models.RideCompleted); err != nil {
		t.Fatalf("handler: %v", err)
	}
	dPushes := gw.pushesTo("d1")
	if len(dPushes) != 1 || dPushes[0].data["type"] != notify.TypeRatingPrompt || dPushes[0].data["userType"] != models.RoleDriver {
		t.Fatalf("driver prompt wrong: %+v", dPushes)
	}
	if len(gw.mailsTo("dana@campus.edu")) != 1 {
		t.Fatal("expected driver prompt email")
	}
	for _, rider := range []string{"p1", "p2"} {
		p := gw.pushesTo(rider)
		if len(p) != 1 || p[0].data["type"] != notify.TypeRatingPrompt || p[0].data["userType"] != models.RoleRider {
			t.Fatalf("rider %s prompt wrong: %+v", rider, p)
		}
	}
	if len(gw.mailsTo("pat@campus.edu")) != 1 || len(gw.mailsTo("quinn@campus.edu")) != 1 {
		t.Fatal("expected rider prompt emails")
	}
	// the handler must not write ride status beyond what triggered it
	ride, _ := store.GetRide(context.Background(), "r1")
	if ride.Status != models.RideActive {
		t.Fatalf("handler mutated ride status to %s", ride.Status)
	}
	if len(pay.captured) != 2 {
		t.Fatalf("expected both holds captured, got %v", pay.captured)
	}
}

func TestRideCompletedToleratesMissingContactChannels(t *testing.T) {
	store, gw, _, _, m := rideFixture(t)
	store.PutUser(models.User{ID: "p1", Name: "Pat", Role: models.RoleRider}) // no token, no email
	if err := transition(t, m, store, models.RideActive, models.RideCompleted); err != nil {
		t.Fatalf("handler must not fail on missing channels: %v", err)
	}
	if len(gw.pushesTo("p2")) != 1 {
		t.Fatal("other recipients must still be notified")
	}
}
