// Package sweeper implements the four time-triggered jobs that keep ride
// state converging: departure reminders, stale-ride archival, auto-completion
// of expired rides, and completion reminders. Jobs are stateless; every run
// reselects from the document store, so re-processing after a crash or an
// overlapping tick is safe.
package sweeper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/campuspool/internal/events"
	"github.com/example/campuspool/internal/models"
	"github.com/example/campuspool/internal/notify"
	"github.com/example/campuspool/internal/observability"
	"github.com/example/campuspool/internal/realtime"
	"github.com/example/campuspool/internal/storage"
)

const (
	JobRideReminder       = "ride_reminder"
	JobStaleRideArchival  = "stale_ride_archival"
	JobAutoComplete       = "auto_complete_expired"
	JobCompletionReminder = "completion_reminder"
)

type gatewayPort interface {
	NotifyPush(ctx context.Context, userID, token, title, body string, data map[string]string)
	NotifyEmail(ctx context.Context, to, subject, html string)
}

// EventPublisher lets the auto-completion job emit ride change events so the
// state machine fan-out (rating prompts, payment capture) fires for rides it
// completes.
type EventPublisher interface {
	PublishChange(ctx context.Context, ev events.ChangeEvent) error
}

// Lease guards a job run against overlapping ticks.
type Lease interface {
	Acquire(ctx context.Context, job string) (bool, error)
	Release(ctx context.Context, job string) error
}

type Sweeper struct {
	Store   storage.Store
	Gateway gatewayPort
	Chat    realtime.ChatLog
	Batch   *storage.BatchWriter
	Events  EventPublisher // optional
	Lease   Lease          // optional
	Clock   func() time.Time
	Log     *slog.Logger

	ReminderLead          time.Duration // default 30m
	ReminderWindow        time.Duration // default 5m
	AutoCompleteAfter     time.Duration // default 2h
	CompletionRemindAfter time.Duration // default 1h
	ArchiveAfter          time.Duration // default 30d
	ArchiveLimit          int           // default 500
}

func (s *Sweeper) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}

func orDefault(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}

// run wraps one job execution: lease, metrics, and the catch-all error
// boundary. A failed run logs and waits for the next tick.
func (s *Sweeper) run(ctx context.Context, job string, fn func(context.Context) error) {
	if s.Lease != nil {
		ok, err := s.Lease.Acquire(ctx, job)
		if err != nil {
			s.Log.Error("lease acquire failed", "job", job, "error", err)
			return
		}
		if !ok {
			observability.SweepSkipped.WithLabelValues(job).Inc()
			s.Log.Info("lease held elsewhere, skipping run", "job", job)
			return
		}
		defer func() {
			if err := s.Lease.Release(ctx, job); err != nil {
				s.Log.Warn("lease release failed", "job", job, "error", err)
			}
		}()
	}
	observability.SweepRuns.WithLabelValues(job).Inc()
	if err := fn(ctx); err != nil {
		s.Log.Error("sweep run failed", "job", job, "error", err)
	}
}

// RideReminder pushes a departure reminder to the driver and every rider of
// rides scheduled in [now+lead, now+lead+window), and narrates it in chat.
func (s *Sweeper) RideReminder(ctx context.Context) {
	s.run(ctx, JobRideReminder, func(ctx context.Context) error {
		now := s.now()
		from := now.Add(orDefault(s.ReminderLead, 30*time.Minute))
		to := from.Add(orDefault(s.ReminderWindow, 5*time.Minute))
		rides, err := s.Store.RidesDueBetween(ctx, models.RideActive, from, to)
		if err != nil {
			return err
		}
		for i := range rides {
			ride := &rides[i]
			users, err := s.participants(ctx, ride)
			if err != nil {
				s.Log.Warn("reminder participants lookup failed", "ride_id", ride.ID, "error", err)
				continue
			}
			body := fmt.Sprintf("Your ride to %s departs at %s", ride.Destination, ride.ScheduledAt.Format("15:04"))
			s.fanOutPush(ctx, users, "Ride reminder", body, notify.TypeRideReminder, "ride_detail", ride.ID)
			if err := s.Chat.AppendSystemMessage(ctx, ride.ID, "Reminder: this ride departs in 30 minutes"); err != nil {
				s.Log.Warn("chat append failed", "ride_id", ride.ID, "error", err)
			}
			observability.SweepEntities.WithLabelValues(JobRideReminder).Inc()
		}
		return nil
	})
}

// StaleRideArchival moves terminal rides older than the retention window to
// the archive store and drops their realtime chat/location trees, capped per
// run by the batch ceiling.
func (s *Sweeper) StaleRideArchival(ctx context.Context) {
	s.run(ctx, JobStaleRideArchival, func(ctx context.Context) error {
		now := s.now()
		limit := s.ArchiveLimit
		if limit <= 0 {
			limit = storage.DefaultChunkSize
		}
		cutoff := now.Add(-orDefault(s.ArchiveAfter, 30*24*time.Hour))
		rides, err := s.Store.TerminalRidesEndedBefore(ctx, cutoff, limit)
		if err != nil {
			return err
		}
		muts := make([]storage.Mutation, 0, len(rides))
		for _, r := range rides {
			muts = append(muts, storage.ArchiveRide{Ride: r, ArchivedAt: now})
		}
		committed, err := s.Batch.Commit(ctx, muts)
		for i := 0; i < committed; i++ {
			if derr := s.Chat.DeleteRideTrees(ctx, rides[i].ID); derr != nil {
				s.Log.Warn("realtime tree delete failed", "ride_id", rides[i].ID, "error", derr)
			}
			observability.SweepEntities.WithLabelValues(JobStaleRideArchival).Inc()
		}
		return err
	})
}

// AutoCompleteExpired flips active rides whose scheduled time is at least
// two hours gone to completed, marking them auto-completed, then publishes
// the corresponding ride change events.
func (s *Sweeper) AutoCompleteExpired(ctx context.Context) {
	s.run(ctx, JobAutoComplete, func(ctx context.Context) error {
		now := s.now()
		cutoff := now.Add(-orDefault(s.AutoCompleteAfter, 2*time.Hour))
		rides, err := s.Store.ActiveRidesExpiredBy(ctx, cutoff)
		if err != nil {
			return err
		}
		muts := make([]storage.Mutation, 0, len(rides))
		for _, r := range rides {
			muts = append(muts, storage.SetRideStatus{RideID: r.ID, Status: models.RideCompleted, AutoCompleted: true})
		}
		committed, cerr := s.Batch.Commit(ctx, muts)
		for i := 0; i < committed; i++ {
			observability.SweepEntities.WithLabelValues(JobAutoComplete).Inc()
			if s.Events == nil {
				continue
			}
			before := rides[i]
			after := before
			after.Status = models.RideCompleted
			after.AutoCompleted = true
			ev, err := rideUpdateEvent(&before, &after, now)
			if err != nil {
				s.Log.Warn("event encode failed", "ride_id", before.ID, "error", err)
				continue
			}
			if err := s.Events.PublishChange(ctx, ev); err != nil {
				s.Log.Warn("event publish failed", "ride_id", before.ID, "error", err)
			}
		}
		return cerr
	})
}

// CompletionReminder nudges the driver (push + email) and riders (push) of
// active rides scheduled one to two hours in the past to confirm the ride
// really happened.
func (s *Sweeper) CompletionReminder(ctx context.Context) {
	s.run(ctx, JobCompletionReminder, func(ctx context.Context) error {
		now := s.now()
		from := now.Add(-orDefault(s.AutoCompleteAfter, 2*time.Hour))
		to := now.Add(-orDefault(s.CompletionRemindAfter, time.Hour))
		rides, err := s.Store.RidesDueBetween(ctx, models.RideActive, from, to)
		if err != nil {
			return err
		}
		for i := range rides {
			ride := &rides[i]
			driver, err := s.Store.GetUser(ctx, ride.DriverID)
			if err != nil {
				s.Log.Warn("completion reminder driver lookup failed", "ride_id", ride.ID, "error", err)
				continue
			}
			riders, err := s.Store.GetUsers(ctx, ride.RiderIDs)
			if err != nil {
				s.Log.Warn("completion reminder riders lookup failed", "ride_id", ride.ID, "error", err)
				continue
			}
			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				s.Gateway.NotifyPush(ctx, driver.ID, driver.PushToken, "Is your ride complete?",
					fmt.Sprintf("Mark your ride to %s complete so riders can rate it", ride.Destination),
					data(notify.TypeCompletionReminder, "ride_detail", ride.ID))
				subject, html := notify.CompletionReminderEmail(ride)
				s.Gateway.NotifyEmail(ctx, driver.Email, subject, html)
			}()
			go func() {
				defer wg.Done()
				s.fanOutPush(ctx, riders, "Ride complete?",
					fmt.Sprintf("Was your ride to %s completed?", ride.Destination),
					notify.TypeRideStatusCheck, "my_bookings", ride.ID)
			}()
			wg.Wait()
			observability.SweepEntities.WithLabelValues(JobCompletionReminder).Inc()
		}
		return nil
	})
}

func (s *Sweeper) participants(ctx context.Context, ride *models.Ride) ([]models.User, error) {
	driver, err := s.Store.GetUser(ctx, ride.DriverID)
	if err != nil {
		return nil, err
	}
	riders, err := s.Store.GetUsers(ctx, ride.RiderIDs)
	if err != nil {
		return nil, err
	}
	return append([]models.User{*driver}, riders...), nil
}

func (s *Sweeper) fanOutPush(ctx context.Context, users []models.User, title, body, typ, screen, rideID string) {
	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u models.User) {
			defer wg.Done()
			s.Gateway.NotifyPush(ctx, u.ID, u.PushToken, title, body, data(typ, screen, rideID))
		}(u)
	}
	wg.Wait()
}

func data(typ, screen, rideID string) map[string]string {
	return map[string]string{"type": typ, "screen": screen, "ride_id": rideID}
}

func rideUpdateEvent(before, after *models.Ride, at time.Time) (events.ChangeEvent, error) {
	b, err := json.Marshal(before)
	if err != nil {
		return events.ChangeEvent{}, err
	}
	a, err := json.Marshal(after)
	if err != nil {
		return events.ChangeEvent{}, err
	}
	return events.ChangeEvent{
		Resource:   events.ResourceRides,
		Kind:       events.KindUpdated,
		DocumentID: after.ID,
		Before:     b,
		After:      a,
		OccurredAt: at,
	}, nil
}
