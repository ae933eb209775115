package models

import "time"

// Ride statuses. A ride is terminal once completed or cancelled.
const (
	RideActive    = "active"
	RideFull      = "full"
	RideCompleted = "completed"
	RideCancelled = "cancelled"
)

const (
	BookingActive    = "active"
	BookingCancelled = "cancelled"
)

const (
	RoleDriver = "driver"
	RoleRider  = "rider"
)

type User struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Role         string  `json:"role"` // driver, rider
	PushToken    string  `json:"push_token,omitempty"`
	Email        string  `json:"email,omitempty"`
	AvgRating    float64 `json:"avg_rating"`
	RatingsCount int     `json:"ratings_count"`
}

type Ride struct {
	ID             string    `json:"id"`
	DriverID       string    `json:"driver_id"`
	Origin         string    `json:"origin"`
	Destination    string    `json:"destination"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	Status         string    `json:"status"`
	SeatsAvailable int       `json:"seats_available"`
	RiderIDs       []string  `json:"rider_ids"`
	CostPerSeat    float64   `json:"cost_per_seat"`
	AutoCompleted  bool      `json:"auto_completed,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (r *Ride) Terminal() bool {
	return r.Status == RideCompleted || r.Status == RideCancelled
}

// Booking denormalizes ride fields for display so the client never joins.
type Booking struct {
	ID              string    `json:"id"`
	RideID          string    `json:"ride_id"`
	RiderID         string    `json:"rider_id"`
	Status          string    `json:"status"`
	Destination     string    `json:"destination"`
	RideAt          time.Time `json:"ride_at"`
	Cost            float64   `json:"cost"`
	PaymentIntentID string    `json:"payment_intent_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Rating is immutable once written; the aggregator folds each one into the
// target user's running average exactly once.
type Rating struct {
	ID         string    `json:"id"`
	RideID     string    `json:"ride_id"`
	FromUserID string    `json:"from_user_id"`
	ToUserID   string    `json:"to_user_id"`
	Rating     int       `json:"rating"` // 1..5
	CreatedAt  time.Time `json:"created_at"`
}

// ChatSystemMessage narrates automated events in a ride's message stream.
type ChatSystemMessage struct {
	ID         string    `json:"id"`
	SenderRole string    `json:"sender_role"` // always "system"
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sent_at"`
}
