package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/example/campuspool/internal/events"
	"github.com/example/campuspool/internal/models"
	"github.com/example/campuspool/internal/notify"
	"github.com/example/campuspool/internal/realtime"
	"github.com/example/campuspool/internal/storage"
)

// BookingCoordinator reacts to booking creation and cancellation by telling
// the counterparty (the driver) what happened.
type BookingCoordinator struct {
	Store   storage.Store
	Gateway gatewayPort
	Chat    realtime.ChatLog
	Log     *slog.Logger
}

// OnBookingCreated notifies the ride's driver over push and email and posts
// a system chat entry. The three channels fire concurrently; none blocks or
// aborts the others.
func (c *BookingCoordinator) OnBookingCreated(ctx context.Context, ev events.ChangeEvent) error {
	var booking models.Booking
	if ok, err := ev.DecodeAfter(&booking); err != nil || !ok {
		return fmt.Errorf("decode booking %s: %w", ev.DocumentID, err)
	}
	ride, err := c.Store.GetRide(ctx, booking.RideID)
	if err != nil {
		return fmt.Errorf("ride %s for booking %s: %w", booking.RideID, booking.ID, err)
	}
	driver, err := c.Store.GetUser(ctx, ride.DriverID)
	if err != nil {
		return fmt.Errorf("driver %s: %w", ride.DriverID, err)
	}
	riderName := booking.RiderID
	if rider, err := c.Store.GetUser(ctx, booking.RiderID); err == nil {
		riderName = rider.Name
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		c.Gateway.NotifyPush(ctx, driver.ID, driver.PushToken, "New booking",
			fmt.Sprintf("%s joined your ride to %s", riderName, ride.Destination),
			pushData(notify.TypeNewBooking, "ride_detail", ride.ID))
	}()
	go func() {
		defer wg.Done()
		subject, html := notify.NewBookingEmail(riderName, ride)
		c.Gateway.NotifyEmail(ctx, driver.Email, subject, html)
	}()
	go func() {
		defer wg.Done()
		if err := c.Chat.AppendSystemMessage(ctx, ride.ID, fmt.Sprintf("%s joined the ride", riderName)); err != nil {
			c.Log.Warn("chat append failed", "ride_id", ride.ID, "error", err)
		}
	}()
	wg.Wait()
	return nil
}

// OnBookingUpdated handles the active→cancelled transition: push the driver
// and narrate the freed seat. Seats are restored by the rider-initiated
// cancellation flow, never here.
func (c *BookingCoordinator) OnBookingUpdated(ctx context.Context, ev events.ChangeEvent) error {
	var before, after models.Booking
	if ok, err := ev.DecodeBefore(&before); err != nil || !ok {
		return fmt.Errorf("decode booking %s before: %w", ev.DocumentID, err)
	}
	if ok, err := ev.DecodeAfter(&after); err != nil || !ok {
		return fmt.Errorf("decode booking %s after: %w", ev.DocumentID, err)
	}
	if before.Status == after.Status || after.Status != models.BookingCancelled {
		return nil
	}
	ride, err := c.Store.GetRide(ctx, after.RideID)
	if err != nil {
		return fmt.Errorf("ride %s for booking %s: %w", after.RideID, after.ID, err)
	}
	driver, err := c.Store.GetUser(ctx, ride.DriverID)
	if err != nil {
		return fmt.Errorf("driver %s: %w", ride.DriverID, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.Gateway.NotifyPush(ctx, driver.ID, driver.PushToken, "Booking cancelled",
			fmt.Sprintf("A seat on your ride to %s is available again", ride.Destination),
			pushData(notify.TypeBookingCancelled, "ride_detail", ride.ID))
	}()
	go func() {
		defer wg.Done()
		if err := c.Chat.AppendSystemMessage(ctx, ride.ID, "A booking was cancelled, seat now available"); err != nil {
			c.Log.Warn("chat append failed", "ride_id", ride.ID, "error", err)
		}
	}()
	wg.Wait()
	return nil
}
