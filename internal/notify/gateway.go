package notify

import (
	"context"
	"log/slog"

	"github.com/example/campuspool/internal/observability"
)

// Push payload type discriminators, mirrored by the client for routing.
const (
	TypeNewBooking         = "new_booking"
	TypeRideFull           = "ride_full"
	TypeRideCancelled      = "ride_cancelled"
	TypeRideReminder       = "ride_reminder"
	TypeBookingCancelled   = "booking_cancelled"
	TypeRatingPrompt       = "rating_prompt"
	TypeCompletionReminder = "completion_reminder"
	TypeRideStatusCheck    = "ride_status_check"
)

type PushMessage struct {
	Token string            `json:"token"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
}

type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

type PushSender interface {
	Send(ctx context.Context, msg PushMessage) error
}

type MailSender interface {
	Send(ctx context.Context, mail Email) error
}

// Gateway delivers a single push or email, best-effort. Failures are logged
// and swallowed: the state change a notification accompanies must never be
// rolled back because a token was stale or the mail provider was down. One
// attempt per call, no retry.
type Gateway struct {
	Push     PushSender
	Mail     MailSender
	Sessions *Registry // optional in-app delivery, tried before the push provider
	Log      *slog.Logger
}

// NotifyPush sends one push message to a user. A live in-app session wins
// over the push provider when one is connected.
func (g *Gateway) NotifyPush(ctx context.Context, userID, token, title, body string, data map[string]string) {
	if g.Sessions != nil {
		if err := g.Sessions.Send(userID, PushMessage{Title: title, Body: body, Data: data}); err == nil {
			observability.NotificationsSent.WithLabelValues("ws").Inc()
			return
		}
	}
	if token == "" {
		return
	}
	if err := g.Push.Send(ctx, PushMessage{Token: token, Title: title, Body: body, Data: data}); err != nil {
		observability.NotificationFailures.WithLabelValues("push").Inc()
		g.Log.Warn("push delivery failed", "user_id", userID, "type", data["type"], "error", err)
		return
	}
	observability.NotificationsSent.WithLabelValues("push").Inc()
}

// NotifyEmail sends one transactional email.
func (g *Gateway) NotifyEmail(ctx context.Context, to, subject, html string) {
	if to == "" {
		return
	}
	if err := g.Mail.Send(ctx, Email{To: to, Subject: subject, HTML: html}); err != nil {
		observability.NotificationFailures.WithLabelValues("email").Inc()
		g.Log.Warn("email delivery failed", "to", to, "subject", subject, "error", err)
		return
	}
	observability.NotificationsSent.WithLabelValues("email").Inc()
}
