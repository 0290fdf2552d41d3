package cache

import (
	"context"
	"testing"
	"time"

	"pharmaledger/backend/internal/domain"
)

func TestNoopBatchCacheAlwaysMisses(t *testing.T) {
	var c BatchCache = NoopBatchCache{}
	ctx := context.Background()

	if err := c.Set(ctx, &domain.Batch{ID: "bat-1", QuantityAvailable: 3}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.Add(ctx, &domain.Batch{ID: "bat-1", QuantityAvailable: 3}, time.Minute); err != nil {
		t.Fatalf("add: %v", err)
	}
	got, ok, err := c.Get(ctx, "bat-1")
	if err != nil || ok || got != nil {
		t.Fatalf("expected miss, got %v %v %v", got, ok, err)
	}
	if err := c.Delete(ctx, "bat-1", "bat-2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
