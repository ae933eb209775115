package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/example/campuspool/internal/events"
	"github.com/example/campuspool/internal/models"
	"github.com/example/campuspool/internal/notify"
	"github.com/example/campuspool/internal/payments"
	"github.com/example/campuspool/internal/realtime"
	"github.com/example/campuspool/internal/storage"
)

// RideStateMachine reacts to ride status transitions and drives the
// cascading effects: rider fan-out, dependent booking cancellation, payment
// holds, rating prompts.
type RideStateMachine struct {
	Store    storage.Store
	Gateway  gatewayPort
	Chat     realtime.ChatLog
	Batch    *storage.BatchWriter
	Payments payments.Provider
	Log      *slog.Logger
}

// OnRideUpdated diffs the before/after snapshots. No transition is inferred
// without an observed status change, so duplicate delivery of the same
// update is a no-op.
func (m *RideStateMachine) OnRideUpdated(ctx context.Context, ev events.ChangeEvent) error {
	var before, after models.Ride
	if ok, err := ev.DecodeBefore(&before); err != nil || !ok {
		return fmt.Errorf("decode ride %s before: %w", ev.DocumentID, err)
	}
	if ok, err := ev.DecodeAfter(&after); err != nil || !ok {
		return fmt.Errorf("decode ride %s after: %w", ev.DocumentID, err)
	}
	if before.Status == after.Status {
		return nil
	}
	if before.Status != models.RideActive && before.Status != models.RideFull {
		// terminal states never transition automatically
		return nil
	}
	switch after.Status {
	case models.RideFull:
		return m.onFull(ctx, &after)
	case models.RideCancelled:
		return m.onCancelled(ctx, &after)
	case models.RideCompleted:
		return m.onCompleted(ctx, &after)
	}
	return nil
}

// onFull tells the driver only; riders see no change.
func (m *RideStateMachine) onFull(ctx context.Context, ride *models.Ride) error {
	driver, err := m.Store.GetUser(ctx, ride.DriverID)
	if err != nil {
		return fmt.Errorf("driver %s: %w", ride.DriverID, err)
	}
	m.Gateway.NotifyPush(ctx, driver.ID, driver.PushToken, "Ride full",
		fmt.Sprintf("All seats on your ride to %s are taken", ride.Destination),
		pushData(notify.TypeRideFull, "ride_detail", ride.ID))
	if err := m.Chat.AppendSystemMessage(ctx, ride.ID, "The ride is now full"); err != nil {
		m.Log.Warn("chat append failed", "ride_id", ride.ID, "error", err)
	}
	return nil
}

// onCancelled notifies every rider in parallel, then cascades their bookings
// to cancelled and releases any payment holds. Notifications go out before
// the cascade commits; a crash in between leaves riders informed but
// bookings pending, which the next event redelivery converges.
func (m *RideStateMachine) onCancelled(ctx context.Context, ride *models.Ride) error {
	riders, err := m.Store.GetUsers(ctx, ride.RiderIDs)
	if err != nil {
		return fmt.Errorf("riders for ride %s: %w", ride.ID, err)
	}
	subject, html := notify.RideCancelledEmail(ride)
	fanOut(ctx, riders, func(ctx context.Context, u models.User) {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.Gateway.NotifyPush(ctx, u.ID, u.PushToken, "Ride cancelled",
				fmt.Sprintf("Your ride to %s was cancelled", ride.Destination),
				pushData(notify.TypeRideCancelled, "my_bookings", ride.ID))
		}()
		go func() {
			defer wg.Done()
			m.Gateway.NotifyEmail(ctx, u.Email, subject, html)
		}()
		wg.Wait()
	})

	bookings, err := m.Store.ActiveBookingsForRide(ctx, ride.ID)
	if err != nil {
		return fmt.Errorf("bookings for ride %s: %w", ride.ID, err)
	}
	muts := make([]storage.Mutation, 0, len(bookings))
	for _, b := range bookings {
		muts = append(muts, storage.SetBookingStatus{BookingID: b.ID, Status: models.BookingCancelled})
	}
	if _, err := m.Batch.Commit(ctx, muts); err != nil {
		return fmt.Errorf("cascade bookings for ride %s: %w", ride.ID, err)
	}
	for _, b := range bookings {
		if b.PaymentIntentID == "" || m.Payments == nil {
			continue
		}
		if err := m.Payments.Release(ctx, b.PaymentIntentID); err != nil {
			m.Log.Warn("payment release failed", "booking_id", b.ID, "error", err)
		}
	}
	return nil
}

// onCompleted prompts everyone to rate their counterparty and captures the
// riders' payment holds.
func (m *RideStateMachine) onCompleted(ctx context.Context, ride *models.Ride) error {
	if err := m.SendRatingPrompts(ctx, ride); err != nil {
		return err
	}
	bookings, err := m.Store.ActiveBookingsForRide(ctx, ride.ID)
	if err != nil {
		return fmt.Errorf("bookings for ride %s: %w", ride.ID, err)
	}
	for _, b := range bookings {
		if b.PaymentIntentID == "" || m.Payments == nil {
			continue
		}
		if err := m.Payments.Capture(ctx, b.PaymentIntentID); err != nil {
			m.Log.Warn("payment capture failed", "booking_id", b.ID, "error", err)
		}
	}
	return nil
}

// SendRatingPrompts pushes and emails a rating prompt to the driver (rate
// your riders) and every rider (rate your driver), all in parallel. Also
// invoked by the callable rating-request endpoint.
func (m *RideStateMachine) SendRatingPrompts(ctx context.Context, ride *models.Ride) error {
	driver, err := m.Store.GetUser(ctx, ride.DriverID)
	if err != nil {
		return fmt.Errorf("driver %s: %w", ride.DriverID, err)
	}
	riders, err := m.Store.GetUsers(ctx, ride.RiderIDs)
	if err != nil {
		return fmt.Errorf("riders for ride %s: %w", ride.ID, err)
	}
	recipients := append([]models.User{*driver}, riders...)
	fanOut(ctx, recipients, func(ctx context.Context, u models.User) {
		userType := models.RoleRider
		body := "How was your driver? Leave a rating"
		if u.ID == ride.DriverID {
			userType = models.RoleDriver
			body = "How were your riders? Leave a rating"
		}
		data := pushData(notify.TypeRatingPrompt, "rating", ride.ID)
		data["userType"] = userType
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.Gateway.NotifyPush(ctx, u.ID, u.PushToken, "Rate your ride", body, data)
		}()
		go func() {
			defer wg.Done()
			subject, html := notify.RatingPromptEmail(ride, userType)
			m.Gateway.NotifyEmail(ctx, u.Email, subject, html)
		}()
		wg.Wait()
	})
	return nil
}
