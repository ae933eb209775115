package events

import (
	"context"
	"log/slog"

	"github.com/example/campuspool/internal/observability"
)

// Handler reacts to a single change event. Errors are logged and swallowed
// by the router: delivery is at-least-once, so a failed handler simply runs
// again when the event is redelivered.
type Handler func(ctx context.Context, ev ChangeEvent) error

type routeKey struct {
	resource string
	kind     string
}

// Router maps (resource, kind) to exactly one handler and dispatches each
// incoming event to it.
type Router struct {
	handlers map[routeKey]Handler
	log      *slog.Logger
}

func NewRouter(log *slog.Logger) *Router {
	return &Router{handlers: make(map[routeKey]Handler), log: log}
}

func (r *Router) Register(resource, kind string, h Handler) {
	r.handlers[routeKey{resource, kind}] = h
}

// Dispatch invokes the handler registered for the event, if any. Handler
// errors and panics are contained here; Dispatch itself never fails.
func (r *Router) Dispatch(ctx context.Context, ev ChangeEvent) {
	h, ok := r.handlers[routeKey{ev.Resource, ev.Kind}]
	if !ok {
		r.log.Debug("no handler for event", "resource", ev.Resource, "kind", ev.Kind)
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			observability.EventFailures.WithLabelValues(ev.Resource, ev.Kind).Inc()
			r.log.Error("handler panic", "resource", ev.Resource, "kind", ev.Kind, "doc_id", ev.DocumentID, "panic", rec)
		}
	}()
	if err := h(ctx, ev); err != nil {
		observability.EventFailures.WithLabelValues(ev.Resource, ev.Kind).Inc()
		r.log.Error("handler failed", "resource", ev.Resource, "kind", ev.Kind, "doc_id", ev.DocumentID, "error", err)
		return
	}
	observability.EventsProcessed.WithLabelValues(ev.Resource, ev.Kind).Inc()
}
