package storage

import (
	"context"
	"errors"
	"time"

	"github.com/example/campuspool/internal/models"
)

// ErrNotFound is returned by point lookups when no document matches.
var ErrNotFound = errors.New("storage: not found")

// Store is the document-store port used by the lifecycle handlers and the
// sweeper. Implementations: PostgresStore for production, MemoryStore for
// tests and local runs.
type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUsers(ctx context.Context, ids []string) ([]models.User, error)
	GetRide(ctx context.Context, id string) (*models.Ride, error)

	// ApplyRating writes the new running average for a user, guarded by the
	// ratings count observed at read time. Returns false without writing if
	// another writer got there first.
	ApplyRating(ctx context.Context, userID string, priorCount int, newAvg float64) (bool, error)

	ActiveBookingsForRide(ctx context.Context, rideID string) ([]models.Booking, error)

	// RidesDueBetween selects rides with the given status scheduled in the
	// half-open window [from, to).
	RidesDueBetween(ctx context.Context, status string, from, to time.Time) ([]models.Ride, error)

	// ActiveRidesExpiredBy selects active rides scheduled at or before cutoff.
	ActiveRidesExpiredBy(ctx context.Context, cutoff time.Time) ([]models.Ride, error)

	// TerminalRidesEndedBefore selects completed/cancelled rides scheduled
	// before cutoff, at most limit of them.
	TerminalRidesEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Ride, error)

	BatchStore
}

// BatchStore commits a set of mutations atomically.
type BatchStore interface {
	ApplyBatch(ctx context.Context, muts []Mutation) error
}

// Mutation is one pending write against the document store. An ArchiveRide
// (insert into archive + delete original) counts as a single mutation.
type Mutation interface {
	mutation()
}

type SetBookingStatus struct {
	BookingID string
	Status    string
}

type SetRideStatus struct {
	RideID        string
	Status        string
	AutoCompleted bool
}

type ArchiveRide struct {
	Ride       models.Ride
	ArchivedAt time.Time
}

func (SetBookingStatus) mutation() {}
func (SetRideStatus) mutation()    {}
func (ArchiveRide) mutation()      {}
