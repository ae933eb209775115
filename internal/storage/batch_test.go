package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/campuspool/internal/models"
)

type chunkRecorder struct {
	chunks  []int
	failOn  int // 1-based chunk index to fail on, 0 = never
	applied int
}

func (c *chunkRecorder) ApplyBatch(ctx context.Context, muts []Mutation) error {
	c.chunks = append(c.chunks, len(muts))
	if c.failOn > 0 && len(c.chunks) == c.failOn {
		return errors.New("chunk boom")
	}
	c.applied += len(muts)
	return nil
}

func archiveMuts(n int) []Mutation {
	muts := make([]Mutation, 0, n)
	for i := 0; i < n; i++ {
		muts = append(muts, ArchiveRide{Ride: models.Ride{ID: "r", Status: models.RideCompleted}, ArchivedAt: time.Now()})
	}
	return muts
}

func TestBatchWriterChunks1200Into3(t *testing.T) {
	rec := &chunkRecorder{}
	w := NewBatchWriter(rec, nil)
	n, err := w.Commit(context.Background(), archiveMuts(1200))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if n != 1200 {
		t.Fatalf("expected 1200 committed, got %d", n)
	}
	want := []int{500, 500, 200}
	if len(rec.chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %v", len(want), rec.chunks)
	}
	for i, sz := range want {
		if rec.chunks[i] != sz {
			t.Fatalf("chunk %d: expected %d, got %d", i, sz, rec.chunks[i])
		}
	}
}

func TestBatchWriterExactCeilingIsOneChunk(t *testing.T) {
	rec := &chunkRecorder{}
	w := NewBatchWriter(rec, nil)
	if _, err := w.Commit(context.Background(), archiveMuts(500)); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(rec.chunks) != 1 || rec.chunks[0] != 500 {
		t.Fatalf("expected single 500 chunk, got %v", rec.chunks)
	}
}

func TestBatchWriterStopsAfterFailedChunk(t *testing.T) {
	rec := &chunkRecorder{failOn: 2}
	w := NewBatchWriter(rec, nil)
	n, err := w.Commit(context.Background(), archiveMuts(1200))
	if err == nil {
		t.Fatal("expected error")
	}
	if n != 500 {
		t.Fatalf("expected 500 committed before failure, got %d", n)
	}
	if len(rec.chunks) != 2 {
		t.Fatalf("expected no chunks after the failed one, got %v", rec.chunks)
	}
}

func TestMemoryStoreApplyBatchCascade(t *testing.T) {
	m := NewMemoryStore()
	m.PutBooking(models.Booking{ID: "b1", RideID: "r1", Status: models.BookingActive})
	m.PutBooking(models.Booking{ID: "b2", RideID: "r1", Status: models.BookingActive})
	m.PutBooking(models.Booking{ID: "b3", RideID: "r2", Status: models.BookingActive})

	err := m.ApplyBatch(context.Background(), []Mutation{
		SetBookingStatus{BookingID: "b1", Status: models.BookingCancelled},
		SetBookingStatus{BookingID: "b2", Status: models.BookingCancelled},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	for _, id := range []string{"b1", "b2"} {
		b, _ := m.GetBooking(context.Background(), id)
		if b.Status != models.BookingCancelled {
			t.Fatalf("booking %s not cancelled", id)
		}
	}
	b3, _ := m.GetBooking(context.Background(), "b3")
	if b3.Status != models.BookingActive {
		t.Fatalf("booking on another ride was touched")
	}
}
