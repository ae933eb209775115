package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/example/campuspool/internal/events"
	"github.com/example/campuspool/internal/models"
	"github.com/example/campuspool/internal/storage"
)

const casAttempts = 3

// RatingAggregator folds each new rating document into the target user's
// running average.
type RatingAggregator struct {
	Store storage.Store
	Log   *slog.Logger
}

// OnRatingCreated recomputes the average from the current (avg, count) pair
// and writes it back guarded by the observed count, retrying a few times if
// a concurrent rating landed in between. A missing target user is logged and
// ignored: the rating was submitted asynchronously and there is nobody left
// to credit.
func (a *RatingAggregator) OnRatingCreated(ctx context.Context, ev events.ChangeEvent) error {
	var rating models.Rating
	ok, err := ev.DecodeAfter(&rating)
	if err != nil {
		return fmt.Errorf("decode rating %s: %w", ev.DocumentID, err)
	}
	if !ok {
		return fmt.Errorf("rating event %s has no document snapshot", ev.DocumentID)
	}
	for i := 0; i < casAttempts; i++ {
		u, err := a.Store.GetUser(ctx, rating.ToUserID)
		if errors.Is(err, storage.ErrNotFound) {
			a.Log.Warn("rating target missing, skipping", "rating_id", rating.ID, "to_user_id", rating.ToUserID)
			return nil
		}
		if err != nil {
			return err
		}
		newAvg := (u.AvgRating*float64(u.RatingsCount) + float64(rating.Rating)) / float64(u.RatingsCount+1)
		newAvg = math.Round(newAvg*100) / 100
		ok, err := a.Store.ApplyRating(ctx, u.ID, u.RatingsCount, newAvg)
		if errors.Is(err, storage.ErrNotFound) {
			a.Log.Warn("rating target missing, skipping", "rating_id", rating.ID, "to_user_id", rating.ToUserID)
			return nil
		}
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		// lost the race, re-read and retry
	}
	return fmt.Errorf("rating %s: concurrent writers exhausted %d attempts", rating.ID, casAttempts)
}
