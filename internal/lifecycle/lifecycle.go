// Package lifecycle holds the event-triggered automation that keeps ride and
// booking state consistent and fans state changes out to participants. Each
// handler is a pure reaction to (before, after) document snapshots delivered
// by the event router; handlers share no state between invocations beyond
// the document store itself.
package lifecycle

import (
	"context"
	"sync"

	"github.com/example/campuspool/internal/models"
	"github.com/example/campuspool/internal/notify"
)

func pushData(typ, screen, rideID string) map[string]string {
	return map[string]string{"type": typ, "screen": screen, "ride_id": rideID}
}

// fanOut dispatches one notification per recipient concurrently and waits
// for all of them. Individual deliveries are best-effort; recipients without
// a contact channel are skipped inside the gateway.
func fanOut(ctx context.Context, users []models.User, send func(ctx context.Context, u models.User)) {
	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u models.User) {
			defer wg.Done()
			send(ctx, u)
		}(u)
	}
	wg.Wait()
}

// gatewayPort keeps the handlers testable against a recording fake.
type gatewayPort interface {
	NotifyPush(ctx context.Context, userID, token, title, body string, data map[string]string)
	NotifyEmail(ctx context.Context, to, subject, html string)
}

var _ gatewayPort = (*notify.Gateway)(nil)
