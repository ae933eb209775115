package lifecycle

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/example/campuspool/internal/events"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type sentPush struct {
	userID string
	token  string
	title  string
	body   string
	data   map[string]string
}

type sentMail struct {
	to      string
	subject string
	html    string
}

// fakeGateway records every delivery; safe for the concurrent fan-out.
type fakeGateway struct {
	mu     sync.Mutex
	pushes []sentPush
	mails  []sentMail
}

func (g *fakeGateway) NotifyPush(ctx context.Context, userID, token, title, body string, data map[string]string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pushes = append(g.pushes, sentPush{userID, token, title, body, data})
}

func (g *fakeGateway) NotifyEmail(ctx context.Context, to, subject, html string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mails = append(g.mails, sentMail{to, subject, html})
}

func (g *fakeGateway) pushesTo(userID string) []sentPush {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []sentPush
	for _, p := range g.pushes {
		if p.userID == userID {
			out = append(out, p)
		}
	}
	return out
}

func (g *fakeGateway) mailsTo(addr string) []sentMail {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []sentMail
	for _, m := range g.mails {
		if m.to == addr {
			out = append(out, m)
		}
	}
	return out
}

type chatEntry struct {
	rideID string
	text   string
}

type fakeChat struct {
	mu      sync.Mutex
	entries []chatEntry
	deleted []string
}

func (c *fakeChat) AppendSystemMessage(ctx context.Context, rideID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, chatEntry{rideID, text})
	return nil
}

func (c *fakeChat) DeleteRideTrees(ctx context.Context, rideID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, rideID)
	return nil
}

type fakePayments struct {
	mu       sync.Mutex
	captured []string
	released []string
}

func (p *fakePayments) Capture(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.captured = append(p.captured, id)
	return nil
}

func (p *fakePayments) Release(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = append(p.released, id)
	return nil
}

func mustRaw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func updateEvent(t *testing.T, resource, id string, before, after any) events.ChangeEvent {
	t.Helper()
	return events.ChangeEvent{
		Resource:   resource,
		Kind:       events.KindUpdated,
		DocumentID: id,
		Before:     mustRaw(t, before),
		After:      mustRaw(t, after),
	}
}

func createEvent(t *testing.T, resource, id string, after any) events.ChangeEvent {
	t.Helper()
	return events.ChangeEvent{
		Resource:   resource,
		Kind:       events.KindCreated,
		DocumentID: id,
		After:      mustRaw(t, after),
	}
}
