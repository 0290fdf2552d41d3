package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"pharmaledger/backend/internal/domain"
)

const batchKeyPrefix = "pharmaledger:batch:"

type RedisBatchCache struct {
	client *redis.Client
}

func NewRedisBatchCache(addr string, password string, db int) *RedisBatchCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisBatchCache{client: client}
}

func (c *RedisBatchCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisBatchCache) Close() error {
	return c.client.Close()
}

func (c *RedisBatchCache) Get(ctx context.Context, batchID string) (*domain.Batch, bool, error) {
	val, err := c.client.Get(ctx, batchKeyPrefix+batchID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var batch domain.Batch
	if err := json.Unmarshal(val, &batch); err != nil {
		return nil, false, err
	}
	return &batch, true, nil
}

func (c *RedisBatchCache) Set(ctx context.Context, batch *domain.Batch, ttl time.Duration) error {
	if batch == nil {
		return nil
	}
	payload, err := json.Marshal(batch)
	if err != nil {
		return err
	}
	key := batchKeyPrefix + batch.ID

	return c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			var cached domain.Batch
			if json.Unmarshal(current, &cached) == nil && cached.UpdatedAt.After(batch.UpdatedAt) {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, ttl)
			return nil
		})
		return err
	}, key)
}

func (c *RedisBatchCache) Add(ctx context.Context, batch *domain.Batch, ttl time.Duration) error {
	if batch == nil {
		return nil
	}
	payload, err := json.Marshal(batch)
	if err != nil {
		return err
	}
	return c.client.SetNX(ctx, batchKeyPrefix+batch.ID, payload, ttl).Err()
}

func (c *RedisBatchCache) Delete(ctx context.Context, batchIDs ...string) error {
	if len(batchIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(batchIDs))
	for _, id := range batchIDs {
		keys = append(keys, batchKeyPrefix+id)
	}
	return c.client.Del(ctx, keys...).Err()
}
