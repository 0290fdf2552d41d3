package cache

import (
	"context"
	"time"

	"pharmaledger/backend/internal/domain"
)

// BatchCache holds read-side batch snapshots. It is never consulted by
// the mutation engines, which always read batches under lock.
//
// Set writes a committed snapshot through and keeps whichever copy has
// the later UpdatedAt. Add only fills an empty key, so a reader holding
// a snapshot loaded before a commit cannot replace the committed one.
type BatchCache interface {
	Get(ctx context.Context, batchID string) (*domain.Batch, bool, error)
	Set(ctx context.Context, batch *domain.Batch, ttl time.Duration) error
	Add(ctx context.Context, batch *domain.Batch, ttl time.Duration) error
	Delete(ctx context.Context, batchIDs ...string) error
}

type NoopBatchCache struct{}

func (NoopBatchCache) Get(_ context.Context, _ string) (*domain.Batch, bool, error) {
	return nil, false, nil
}

func (NoopBatchCache) Set(_ context.Context, _ *domain.Batch, _ time.Duration) error {
	return nil
}

func (NoopBatchCache) Add(_ context.Context, _ *domain.Batch, _ time.Duration) error {
	return nil
}

func (NoopBatchCache) Delete(_ context.Context, _ ...string) error {
	return nil
}
