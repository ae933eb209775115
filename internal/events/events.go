package events

import (
	"encoding/json"
	"time"
)

const (
	ResourceRides    = "rides"
	ResourceBookings = "bookings"
	ResourceRatings  = "ratings"
)

const (
	KindCreated = "created"
	KindUpdated = "updated"
	KindDeleted = "deleted"
)

// ChangeEvent is one document mutation observed by the store: the document
// snapshots before and after the write. Handlers diff the snapshots and must
// never infer a transition without an observed change, so redelivering the
// same event is harmless.
type ChangeEvent struct {
	Resource   string          `json:"resource"`
	Kind       string          `json:"kind"`
	DocumentID string          `json:"document_id"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// DecodeBefore unmarshals the prior snapshot into v. Returns false when the
// event carries no prior snapshot (creations).
func (e *ChangeEvent) DecodeBefore(v any) (bool, error) {
	if len(e.Before) == 0 {
		return false, nil
	}
	return true, json.Unmarshal(e.Before, v)
}

func (e *ChangeEvent) DecodeAfter(v any) (bool, error) {
	if len(e.After) == 0 {
		return false, nil
	}
	return true, json.Unmarshal(e.After, v)
}
