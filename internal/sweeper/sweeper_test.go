package sweeper

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/example/campuspool/internal/events"
	"github.com/example/campuspool/internal/models"
	"github.com/example/campuspool/internal/notify"
	"github.com/example/campuspool/internal/storage"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type sentPush struct {
	userID string
	typ    string
}

type fakeGateway struct {
	mu     sync.Mutex
	pushes []sentPush
	mails  []string
}

func (g *fakeGateway) NotifyPush(ctx context.Context, userID, token, title, body string, data map[string]string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pushes = append(g.pushes, sentPush{userID, data["type"]})
}

func (g *fakeGateway) NotifyEmail(ctx context.Context, to, subject, html string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mails = append(g.mails, to)
}

func (g *fakeGateway) pushCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pushes)
}

type fakeChat struct {
	mu      sync.Mutex
	entries []string
	deleted []string
}

func (c *fakeChat) AppendSystemMessage(ctx context.Context, rideID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, rideID)
	return nil
}

func (c *fakeChat) DeleteRideTrees(ctx context.Context, rideID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, rideID)
	return nil
}

type fakePublisher struct {
	published []events.ChangeEvent
}

func (p *fakePublisher) PublishChange(ctx context.Context, ev events.ChangeEvent) error {
	p.published = append(p.published, ev)
	return nil
}

type heldLease struct{}

func (heldLease) Acquire(ctx context.Context, job string) (bool, error) { return false, nil }
func (heldLease) Release(ctx context.Context, job string) error         { return nil }

var base = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func fixture() (*storage.MemoryStore, *fakeGateway, *fakeChat, *fakePublisher, *Sweeper) {
	store := storage.NewMemoryStore()
	store.PutUser(models.User{ID: "d1", Name: "Dana", Role: models.RoleDriver, PushToken: "t1", Email: "dana@campus.edu"})
	store.PutUser(models.User{ID: "p1", Name: "Pat", Role: models.RoleRider, PushToken: "t2", Email: "pat@campus.edu"})
	gw := &fakeGateway{}
	chat := &fakeChat{}
	pub := &fakePublisher{}
	s := &Sweeper{
		Store:   store,
		Gateway: gw,
		Chat:    chat,
		Batch:   storage.NewBatchWriter(store, discard()),
		Events:  pub,
		Clock:   func() time.Time { return base },
		Log:     discard(),
	}
	return store, gw, chat, pub, s
}

func putRide(store *storage.MemoryStore, id, status string, scheduled time.Time) {
	store.PutRide(models.Ride{
		ID: id, DriverID: "d1", Destination: "Airport", Status: status,
		ScheduledAt: scheduled, RiderIDs: []string{"p1"},
	})
}

func TestRideReminderWindowBoundaries(t *testing.T) {
	store, gw, chat, _, s := fixture()
	putRide(store, "r29", models.RideActive, base.Add(29*time.Minute))
	putRide(store, "r30", models.RideActive, base.Add(30*time.Minute))
	putRide(store, "r34", models.RideActive, base.Add(34*time.Minute))
	putRide(store, "r35", models.RideActive, base.Add(35*time.Minute))
	putRide(store, "r36", models.RideActive, base.Add(36*time.Minute))
	putRide(store, "rfull", models.RideFull, base.Add(32*time.Minute))

	s.RideReminder(context.Background())

	// only r30 and r34 qualify: driver + one rider each
	if got := gw.pushCount(); got != 4 {
		t.Fatalf("expected 4 pushes, got %d (%+v)", got, gw.pushes)
	}
	for _, p := range gw.pushes {
		if p.typ != notify.TypeRideReminder {
			t.Fatalf("expected ride_reminder type, got %s", p.typ)
		}
	}
	if len(chat.entries) != 2 {
		t.Fatalf("expected 2 chat entries, got %v", chat.entries)
	}
}

func TestAutoCompleteExpiredSelection(t *testing.T) {
	store, _, _, pub, s := fixture()
	putRide(store, "rExactly2h", models.RideActive, base.Add(-2*time.Hour))
	putRide(store, "rOld", models.RideActive, base.Add(-5*time.Hour))
	putRide(store, "rRecent", models.RideActive, base.Add(-119*time.Minute))
	putRide(store, "rDone", models.RideCompleted, base.Add(-5*time.Hour))

	s.AutoCompleteExpired(context.Background())

	for _, id := range []string{"rExactly2h", "rOld"} {
		r, _ := store.GetRide(context.Background(), id)
		if r.Status != models.RideCompleted || !r.AutoCompleted {
			t.Fatalf("ride %s not auto-completed: %+v", id, r)
		}
	}
	r, _ := store.GetRide(context.Background(), "rRecent")
	if r.Status != models.RideActive {
		t.Fatal("ride under the cutoff was completed early")
	}
	if len(pub.published) != 2 {
		t.Fatalf("expected 2 change events, got %d", len(pub.published))
	}
	for _, ev := range pub.published {
		if ev.Resource != events.ResourceRides || ev.Kind != events.KindUpdated {
			t.Fatalf("unexpected event %+v", ev)
		}
		var after models.Ride
		if ok, err := ev.DecodeAfter(&after); err != nil || !ok {
			t.Fatalf("decode after: %v", err)
		}
		if after.Status != models.RideCompleted || !after.AutoCompleted {
			t.Fatalf("event after snapshot wrong: %+v", after)
		}
	}
}

func TestCompletionReminderWindow(t *testing.T) {
	store, gw, _, _, s := fixture()
	putRide(store, "r90m", models.RideActive, base.Add(-90*time.Minute))
	putRide(store, "r2h", models.RideActive, base.Add(-121*time.Minute))
	putRide(store, "r1h", models.RideActive, base.Add(-time.Hour))
	putRide(store, "r30m", models.RideActive, base.Add(-30*time.Minute))

	s.CompletionReminder(context.Background())

	// only r90m qualifies: driver push + rider push, driver email
	if got := gw.pushCount(); got != 2 {
		t.Fatalf("expected 2 pushes, got %d (%+v)", got, gw.pushes)
	}
	var driverType, riderType string
	for _, p := range gw.pushes {
		if p.userID == "d1" {
			driverType = p.typ
		} else {
			riderType = p.typ
		}
	}
	if driverType != notify.TypeCompletionReminder {
		t.Fatalf("driver push type %q", driverType)
	}
	if riderType != notify.TypeRideStatusCheck {
		t.Fatalf("rider push type %q", riderType)
	}
	if len(gw.mails) != 1 || gw.mails[0] != "dana@campus.edu" {
		t.Fatalf("expected driver email only, got %v", gw.mails)
	}
}

func TestStaleRideArchivalMovesAndCleans(t *testing.T) {
	store, _, chat, _, s := fixture()
	old := base.Add(-31 * 24 * time.Hour)
	putRide(store, "rCancelled", models.RideCancelled, old)
	putRide(store, "rCompleted", models.RideCompleted, old)
	putRide(store, "rFresh", models.RideCompleted, base.Add(-10*24*time.Hour))
	putRide(store, "rActiveOld", models.RideActive, old)

	s.StaleRideArchival(context.Background())

	for _, id := range []string{"rCancelled", "rCompleted"} {
		if _, err := store.GetRide(context.Background(), id); err != storage.ErrNotFound {
			t.Fatalf("ride %s not removed from live store", id)
		}
		if _, err := store.GetArchivedRide(context.Background(), id); err != nil {
			t.Fatalf("ride %s not archived", id)
		}
	}
	if len(chat.deleted) != 2 {
		t.Fatalf("expected 2 realtime trees deleted, got %v", chat.deleted)
	}
	if _, err := store.GetRide(context.Background(), "rFresh"); err != nil {
		t.Fatal("fresh terminal ride archived too early")
	}
	if _, err := store.GetRide(context.Background(), "rActiveOld"); err != nil {
		t.Fatal("active ride must never be archived")
	}
}

func TestStaleRideArchivalHonorsRunCap(t *testing.T) {
	store, _, _, _, s := fixture()
	s.ArchiveLimit = 2
	old := base.Add(-40 * 24 * time.Hour)
	for _, id := range []string{"a", "b", "c"} {
		putRide(store, id, models.RideCancelled, old)
	}
	s.StaleRideArchival(context.Background())

	archived := 0
	for _, id := range []string{"a", "b", "c"} {
		if _, err := store.GetArchivedRide(context.Background(), id); err == nil {
			archived++
		}
	}
	if archived != 2 {
		t.Fatalf("expected run cap of 2, archived %d", archived)
	}
}

func TestHeldLeaseSkipsRun(t *testing.T) {
	store, gw, _, _, s := fixture()
	s.Lease = heldLease{}
	putRide(store, "r1", models.RideActive, base.Add(32*time.Minute))
	s.RideReminder(context.Background())
	if gw.pushCount() != 0 {
		t.Fatal("job ran while lease was held elsewhere")
	}
}
