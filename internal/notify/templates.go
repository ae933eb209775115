package notify

import (
	"fmt"
	"time"

	"github.com/example/campuspool/internal/models"
)

// Static HTML bodies for transactional email. Plain string interpolation on
// ride/user fields, no template engine.

func NewBookingEmail(riderName string, ride *models.Ride) (subject, html string) {
	subject = "New booking on your ride"
	html = fmt.Sprintf(
		`<h2>New booking</h2><p><b>%s</b> joined your ride to <b>%s</b> on %s.</p><p>Seats are held automatically; open the app to see your passengers.</p>`,
		riderName, ride.Destination, fmtRideTime(ride.ScheduledAt))
	return subject, html
}

func RideCancelledEmail(ride *models.Ride) (subject, html string) {
	subject = "Your ride was cancelled"
	html = fmt.Sprintf(
		`<h2>Ride cancelled</h2><p>The ride to <b>%s</b> scheduled for %s has been cancelled by the driver.</p><p>Your booking was cancelled automatically and no payment will be taken.</p>`,
		ride.Destination, fmtRideTime(ride.ScheduledAt))
	return subject, html
}

func RatingPromptEmail(ride *models.Ride, userType string) (subject, html string) {
	who := "your driver"
	if userType == models.RoleDriver {
		who = "your riders"
	}
	subject = "How was your ride?"
	html = fmt.Sprintf(
		`<h2>Ride completed</h2><p>Your ride to <b>%s</b> on %s is complete.</p><p>Take a moment to rate %s. Ratings keep the community trustworthy.</p>`,
		ride.Destination, fmtRideTime(ride.ScheduledAt), who)
	return subject, html
}

func CompletionReminderEmail(ride *models.Ride) (subject, html string) {
	subject = "Is your ride complete?"
	html = fmt.Sprintf(
		`<h2>Mark your ride complete</h2><p>Your ride to <b>%s</b> was scheduled for %s and is still marked active.</p><p>If the trip is over, mark it complete in the app so your riders can rate it. Rides left active are completed automatically after two hours.</p>`,
		ride.Destination, fmtRideTime(ride.ScheduledAt))
	return subject, html
}

func fmtRideTime(t time.Time) string {
	return t.Format("Mon, 2 Jan 2006 at 15:04")
}
