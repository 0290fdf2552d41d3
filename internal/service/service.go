package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"pharmaledger/backend/internal/cache"
	"pharmaledger/backend/internal/domain"
	"pharmaledger/backend/internal/store"
	"pharmaledger/backend/internal/xid"
)

var validate = validator.New()

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

func actorOrSystem(ctx context.Context) domain.Actor {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return domain.Actor{Username: "system", Role: "system"}
	}
	return actor
}

type Options struct {
	// ShopStateCode is the two-digit GST state code of the shop.
	ShopStateCode string
	MaxTxAttempts int
	RetryBackoff  time.Duration
	BatchCacheTTL time.Duration
	Logger        logrus.FieldLogger
	Now           func() time.Time
}

// Service hosts the mutation engines. It holds no mutable state of its
// own; all coordination between concurrent calls happens in the store.
type Service struct {
	repo          store.Repository
	batchCache    cache.BatchCache
	shopStateCode string
	maxAttempts   int
	retryBackoff  time.Duration
	batchCacheTTL time.Duration
	log           logrus.FieldLogger
	now           func() time.Time
}

func New(repo store.Repository, batchCache cache.BatchCache, opts Options) *Service {
	if batchCache == nil {
		batchCache = cache.NoopBatchCache{}
	}
	if opts.ShopStateCode == "" {
		opts.ShopStateCode = "33"
	}
	if opts.MaxTxAttempts < 1 {
		opts.MaxTxAttempts = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 25 * time.Millisecond
	}
	if opts.BatchCacheTTL <= 0 {
		opts.BatchCacheTTL = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:          repo,
		batchCache:    batchCache,
		shopStateCode: opts.ShopStateCode,
		maxAttempts:   opts.MaxTxAttempts,
		retryBackoff:  opts.RetryBackoff,
		batchCacheTTL: opts.BatchCacheTTL,
		log:           opts.Logger,
		now:           opts.Now,
	}
}

// runInTx runs fn as one unit of work, repeating the whole unit when the
// store reports a concurrency conflict. fn must reset any result it
// captures, since it may run more than once.
func (s *Service) runInTx(ctx context.Context, op string, fn func(tx store.Tx) error) error {
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = s.repo.WithinTx(ctx, fn)
		if err == nil || !errors.Is(err, store.ErrConcurrencyConflict) {
			return err
		}
		if attempt == s.maxAttempts {
			break
		}

		s.log.WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt,
		}).WithError(err).Warn("concurrency conflict, retrying unit of work")

		wait := s.retryBackoff*time.Duration(attempt) + time.Duration(rand.Int63n(int64(s.retryBackoff)))
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s: gave up after %d attempts: %w", op, s.maxAttempts, err)
}

func (s *Service) appendAudit(ctx context.Context, tx store.Tx, actor domain.Actor, action string, table string, recordID string, before any, after any) error {
	entry := domain.AuditLog{
		ID:        xid.New("aud"),
		Actor:     actor.Username,
		ActorRole: actor.Role,
		Action:    action,
		TableName: table,
		RecordID:  recordID,
		CreatedAt: s.now().UTC(),
	}
	if before != nil {
		raw, err := json.Marshal(before)
		if err != nil {
			return fmt.Errorf("encode audit snapshot: %w", err)
		}
		entry.Before = string(raw)
	}
	if after != nil {
		raw, err := json.Marshal(after)
		if err != nil {
			return fmt.Errorf("encode audit snapshot: %w", err)
		}
		entry.After = string(raw)
	}
	return tx.AppendAuditLog(ctx, entry)
}

// refreshBatches runs after commit and writes the committed snapshots
// through to the cache. A batch that cannot be reloaded is evicted
// instead; the committed mutation stands either way.
func (s *Service) refreshBatches(ctx context.Context, batchIDs []string) {
	for _, id := range batchIDs {
		batch, err := s.repo.GetBatch(ctx, id)
		if err == nil {
			err = s.batchCache.Set(ctx, batch, s.batchCacheTTL)
		}
		if err == nil {
			continue
		}
		s.log.WithError(err).WithField("batch_id", id).Warn("batch cache refresh failed, evicting")
		if err := s.batchCache.Delete(ctx, id); err != nil {
			s.log.WithError(err).WithField("batch_id", id).Warn("batch cache eviction failed")
		}
	}
}

func validateRequest(req any) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidTransaction, err)
	}
	return nil
}

// checkMoneyScale rejects amounts finer than paise. The NUMERIC(_,2)
// columns would otherwise round them on write.
func checkMoneyScale(field string, amount decimal.Decimal) error {
	if !amount.Equal(amount.Round(2)) {
		return invalidf("%s %s has more than two decimal places", field, amount.String())
	}
	return nil
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrInvalidTransaction, fmt.Sprintf(format, args...))
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
