package storage

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/example/campuspool/internal/models"
)

// MemoryStore keeps every collection in process memory. It backs tests and
// local runs without a database.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]models.User
	rides    map[string]models.Ride
	bookings map[string]models.Booking
	archived map[string]models.Ride
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]models.User),
		rides:    make(map[string]models.Ride),
		bookings: make(map[string]models.Booking),
		archived: make(map[string]models.Ride),
	}
}

func (m *MemoryStore) PutUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *MemoryStore) PutRide(r models.Ride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[r.ID] = r
}

func (m *MemoryStore) PutBooking(b models.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[b.ID] = b
}

func (m *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *MemoryStore) GetUsers(ctx context.Context, ids []string) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (m *MemoryStore) GetArchivedRide(ctx context.Context, id string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.archived[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) ApplyRating(ctx context.Context, userID string, priorCount int, newAvg float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return false, ErrNotFound
	}
	if u.RatingsCount != priorCount {
		return false, nil
	}
	u.AvgRating = math.Round(newAvg*100) / 100
	u.RatingsCount++
	m.users[userID] = u
	return true, nil
}

func (m *MemoryStore) ActiveBookingsForRide(ctx context.Context, rideID string) ([]models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Booking
	for _, b := range m.bookings {
		if b.RideID == rideID && b.Status == models.BookingActive {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *MemoryStore) RidesDueBetween(ctx context.Context, status string, from, to time.Time) ([]models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Ride
	for _, r := range m.rides {
		if r.Status != status {
			continue
		}
		if r.ScheduledAt.Before(from) || !r.ScheduledAt.Before(to) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *MemoryStore) ActiveRidesExpiredBy(ctx context.Context, cutoff time.Time) ([]models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Ride
	for _, r := range m.rides {
		if r.Status == models.RideActive && !r.ScheduledAt.After(cutoff) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) TerminalRidesEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Ride
	for _, r := range m.rides {
		if len(out) == limit {
			break
		}
		if (r.Status == models.RideCompleted || r.Status == models.RideCancelled) && r.ScheduledAt.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) ApplyBatch(ctx context.Context, muts []Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mut := range muts {
		switch v := mut.(type) {
		case SetBookingStatus:
			if b, ok := m.bookings[v.BookingID]; ok {
				b.Status = v.Status
				m.bookings[v.BookingID] = b
			}
		case SetRideStatus:
			if r, ok := m.rides[v.RideID]; ok {
				r.Status = v.Status
				r.AutoCompleted = v.AutoCompleted
				r.UpdatedAt = time.Now().UTC()
				m.rides[v.RideID] = r
			}
		case ArchiveRide:
			m.archived[v.Ride.ID] = v.Ride
			delete(m.rides, v.Ride.ID)
		}
	}
	return nil
}
