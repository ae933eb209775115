package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/campuspool/internal/observability"
)

// DefaultChunkSize matches the store's transactional operation ceiling.
const DefaultChunkSize = 500

// BatchWriter commits an ordered list of mutations in chunks no larger than
// ChunkSize. Each chunk commits atomically; chunks are not atomic with
// respect to each other, so callers must tolerate partial completion when a
// run is interrupted between chunks.
type BatchWriter struct {
	Store     BatchStore
	ChunkSize int
	Log       *slog.Logger
}

func NewBatchWriter(store BatchStore, log *slog.Logger) *BatchWriter {
	return &BatchWriter{Store: store, ChunkSize: DefaultChunkSize, Log: log}
}

// Commit applies muts chunk by chunk and returns how many mutations landed.
// On a chunk failure the remaining chunks are abandoned; the next sweep run
// reselects whatever still matches.
func (w *BatchWriter) Commit(ctx context.Context, muts []Mutation) (int, error) {
	size := w.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	committed := 0
	for start := 0; start < len(muts); start += size {
		end := start + size
		if end > len(muts) {
			end = len(muts)
		}
		if err := w.Store.ApplyBatch(ctx, muts[start:end]); err != nil {
			if w.Log != nil {
				w.Log.Error("batch chunk failed", "committed", committed, "chunk_size", end-start, "error", err)
			}
			return committed, fmt.Errorf("batch commit after %d mutations: %w", committed, err)
		}
		committed += end - start
		observability.BatchChunksCommitted.Inc()
	}
	return committed, nil
}
