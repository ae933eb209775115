package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/lib/pq"

	"github.com/example/campuspool/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, name, role, push_token, email, avg_rating, ratings_count FROM users WHERE id=$1`, id)
	var u models.User
	err := row.Scan(&u.ID, &u.Name, &u.Role, &u.PushToken, &u.Email, &u.AvgRating, &u.RatingsCount)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *PostgresStore) GetUsers(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, name, role, push_token, email, avg_rating, ratings_count FROM users WHERE id = ANY($1)`,
		pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Role, &u.PushToken, &u.Email, &u.AvgRating, &u.RatingsCount); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, rideSelect+` WHERE id=$1`, id)
	r, err := scanRide(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (p *PostgresStore) ApplyRating(ctx context.Context, userID string, priorCount int, newAvg float64) (bool, error) {
	// Guarded write: only lands if nobody else folded a rating in since the
	// caller read (avg, count).
	res, err := p.db.ExecContext(ctx,
		`UPDATE users SET avg_rating=$1, ratings_count=ratings_count+1 WHERE id=$2 AND ratings_count=$3`,
		math.Round(newAvg*100)/100, userID, priorCount)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		var exists bool
		if err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`, userID).Scan(&exists); err != nil {
			return false, err
		}
		if !exists {
			return false, ErrNotFound
		}
		return false, nil
	}
	return true, nil
}

func (p *PostgresStore) ActiveBookingsForRide(ctx context.Context, rideID string) ([]models.Booking, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, ride_id, rider_id, status, destination, ride_at, cost, payment_intent_id, created_at
		 FROM bookings WHERE ride_id=$1 AND status=$2`, rideID, models.BookingActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Booking
	for rows.Next() {
		var b models.Booking
		if err := rows.Scan(&b.ID, &b.RideID, &b.RiderID, &b.Status, &b.Destination, &b.RideAt, &b.Cost, &b.PaymentIntentID, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p *PostgresStore) RidesDueBetween(ctx context.Context, status string, from, to time.Time) ([]models.Ride, error) {
	return p.queryRides(ctx, rideSelect+` WHERE status=$1 AND scheduled_at >= $2 AND scheduled_at < $3`, status, from, to)
}

func (p *PostgresStore) ActiveRidesExpiredBy(ctx context.Context, cutoff time.Time) ([]models.Ride, error) {
	return p.queryRides(ctx, rideSelect+` WHERE status=$1 AND scheduled_at <= $2`, models.RideActive, cutoff)
}

func (p *PostgresStore) TerminalRidesEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Ride, error) {
	return p.queryRides(ctx,
		rideSelect+` WHERE status = ANY($1) AND scheduled_at < $2 ORDER BY scheduled_at LIMIT $3`,
		pq.Array([]string{models.RideCompleted, models.RideCancelled}), cutoff, limit)
}

func (p *PostgresStore) ApplyBatch(ctx context.Context, muts []Mutation) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, mut := range muts {
		if err := applyMutation(ctx, tx, mut); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func applyMutation(ctx context.Context, tx *sql.Tx, mut Mutation) error {
	switch v := mut.(type) {
	case SetBookingStatus:
		_, err := tx.ExecContext(ctx, `UPDATE bookings SET status=$1 WHERE id=$2`, v.Status, v.BookingID)
		return err
	case SetRideStatus:
		_, err := tx.ExecContext(ctx,
			`UPDATE rides SET status=$1, auto_completed=$2, updated_at=$3 WHERE id=$4`,
			v.Status, v.AutoCompleted, time.Now().UTC(), v.RideID)
		return err
	case ArchiveRide:
		r := v.Ride
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO archived_rides(id, driver_id, origin, destination, scheduled_at, status, seats_available, rider_ids, cost_per_seat, auto_completed, created_at, updated_at, archived_at)
			 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			r.ID, r.DriverID, r.Origin, r.Destination, r.ScheduledAt, r.Status, r.SeatsAvailable,
			pq.Array(r.RiderIDs), r.CostPerSeat, r.AutoCompleted, r.CreatedAt, r.UpdatedAt, v.ArchivedAt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM rides WHERE id=$1`, r.ID)
		return err
	default:
		return fmt.Errorf("unknown mutation %T", mut)
	}
}

const rideSelect = `SELECT id, driver_id, origin, destination, scheduled_at, status, seats_available, rider_ids, cost_per_seat, auto_completed, created_at, updated_at FROM rides`

func (p *PostgresStore) queryRides(ctx context.Context, q string, args ...any) ([]models.Ride, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*models.Ride, error) {
	var r models.Ride
	var riders pq.StringArray
	err := row.Scan(&r.ID, &r.DriverID, &r.Origin, &r.Destination, &r.ScheduledAt, &r.Status,
		&r.SeatsAvailable, &riders, &r.CostPerSeat, &r.AutoCompleted, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.RiderIDs = riders
	return &r, nil
}
