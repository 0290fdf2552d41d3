package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pharmaledger/backend/internal/domain"
	"pharmaledger/backend/internal/store"
	"pharmaledger/backend/internal/store/memory"
)

// conflictingRepo fails the first n units of work with a conflict before
// handing them to the wrapped store.
type conflictingRepo struct {
	store.Repository
	mu        sync.Mutex
	remaining int
	calls     int
}

func (r *conflictingRepo) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	r.mu.Lock()
	r.calls++
	fail := r.remaining > 0
	if fail {
		r.remaining--
	}
	r.mu.Unlock()

	if fail {
		return store.ErrConcurrencyConflict
	}
	return r.Repository.WithinTx(ctx, fn)
}

type recordingCache struct {
	mu      sync.Mutex
	entries map[string]domain.Batch
	deleted []string
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: make(map[string]domain.Batch)}
}

func (c *recordingCache) Get(_ context.Context, batchID string) (*domain.Batch, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	batch, ok := c.entries[batchID]
	if !ok {
		return nil, false, nil
	}
	return &batch, true, nil
}

func (c *recordingCache) Set(_ context.Context, batch *domain.Batch, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.entries[batch.ID]; ok && cached.UpdatedAt.After(batch.UpdatedAt) {
		return nil
	}
	c.entries[batch.ID] = *batch
	return nil
}

func (c *recordingCache) Add(_ context.Context, batch *domain.Batch, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[batch.ID]; !ok {
		c.entries[batch.ID] = *batch
	}
	return nil
}

func (c *recordingCache) Delete(_ context.Context, batchIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range batchIDs {
		delete(c.entries, id)
		c.deleted = append(c.deleted, id)
	}
	return nil
}

func newRetryService(repo store.Repository, attempts int) *Service {
	return New(repo, nil, Options{
		MaxTxAttempts: attempts,
		RetryBackoff:  time.Millisecond,
		Logger:        quietLogger(),
		Now:           func() time.Time { return testClock },
	})
}

func TestConflictIsRetried(t *testing.T) {
	repo := &conflictingRepo{Repository: memory.NewSeeded(), remaining: 2}
	svc := newRetryService(repo, 3)

	purchase := receive(t, svc, purchaseLine("med-amoxicillin-250", "AMX-1", 4))
	require.Equal(t, 3, repo.calls)
	require.Len(t, purchase.Items, 1)

	entries, err := svc.BatchLedger(context.Background(), purchase.Items[0].BatchID)
	require.NoError(t, err)
	require.Len(t, entries, 1, "a retried unit must not double-apply")
}

func TestConflictRetriesAreBounded(t *testing.T) {
	repo := &conflictingRepo{Repository: memory.NewSeeded(), remaining: 10}
	svc := newRetryService(repo, 2)

	_, err := svc.ReceivePurchase(context.Background(), domain.PurchaseRequest{
		VendorID:      "ven-medline",
		InvoiceNumber: "MD-2001",
		InvoiceDate:   testClock,
		Items:         []domain.PurchaseLineRequest{purchaseLine("med-amoxicillin-250", "AMX-2", 4)},
	})
	require.ErrorIs(t, err, store.ErrConcurrencyConflict)
	require.Equal(t, 2, repo.calls)
}

func TestBusinessErrorsAreNotRetried(t *testing.T) {
	repo := &conflictingRepo{Repository: memory.NewSeeded()}
	svc := newRetryService(repo, 3)

	_, err := svc.AdjustStock(context.Background(), domain.StockAdjustmentRequest{BatchID: "bat-none", Delta: 1, Reason: domain.AdjustmentReasonOther})
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Equal(t, 1, repo.calls)
}

// stalledFillCache holds the read path's fill until released, so a
// mutation can commit between the reader's load and its cache write.
type stalledFillCache struct {
	*recordingCache
	once    sync.Once
	reached chan struct{}
	release chan struct{}
}

func (c *stalledFillCache) Add(ctx context.Context, batch *domain.Batch, ttl time.Duration) error {
	c.once.Do(func() { close(c.reached) })
	<-c.release
	return c.recordingCache.Add(ctx, batch, ttl)
}

func TestMutationsWriteCommittedBatchesThrough(t *testing.T) {
	batchCache := newRecordingCache()
	svc := New(memory.NewSeeded(), batchCache, Options{Logger: quietLogger(), Now: func() time.Time { return testClock }})
	ctx := context.Background()
	batchID := seedBatch(t, svc, "P500-Z", 10)

	batch, err := svc.GetBatch(ctx, batchID)
	require.NoError(t, err)
	require.Equal(t, 10, batch.QuantityAvailable)

	_, err = svc.CreateSale(ctx, saleRequest("0", saleLine(batchID, 3, "90", "100")))
	require.NoError(t, err)
	cached, ok, _ := batchCache.Get(ctx, batchID)
	require.True(t, ok)
	require.Equal(t, 7, cached.QuantityAvailable)

	batch, err = svc.GetBatch(ctx, batchID)
	require.NoError(t, err)
	require.Equal(t, 7, batch.QuantityAvailable)
}

func TestStaleReadDoesNotOverwriteCommittedSnapshot(t *testing.T) {
	batchCache := &stalledFillCache{
		recordingCache: newRecordingCache(),
		reached:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	svc := New(memory.NewSeeded(), batchCache, Options{Logger: quietLogger(), Now: func() time.Time { return testClock }})
	ctx := context.Background()
	batchID := seedBatch(t, svc, "P500-S", 10)
	require.NoError(t, batchCache.Delete(ctx, batchID))

	readDone := make(chan domain.Batch, 1)
	go func() {
		batch, err := svc.GetBatch(ctx, batchID)
		if err != nil {
			t.Errorf("get batch: %v", err)
		}
		readDone <- batch
	}()

	<-batchCache.reached
	_, err := svc.CreateSale(ctx, saleRequest("0", saleLine(batchID, 4, "90", "100")))
	require.NoError(t, err)
	close(batchCache.release)

	require.Equal(t, 10, (<-readDone).QuantityAvailable, "the racing reader saw the pre-sale snapshot")

	batch, err := svc.GetBatch(ctx, batchID)
	require.NoError(t, err)
	require.Equal(t, 6, batch.QuantityAvailable)
}
