package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradeops/recon-engine/internal/model"
)

const refKey = "recon:reference_data"

// CachedStore wraps a primary Store (PostgreSQL) with a Redis
// read-through cache for reference data. Instrument specs and fee rates
// are stable within a trading day, so they cache well; per-account state
// changes between runs and always hits the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Read-through (check cache first) ---

func (s *CachedStore) LoadReferenceData(ctx context.Context) (model.ReferenceData, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, refKey).Bytes()
	if err == nil {
		var ref model.ReferenceData
		if json.Unmarshal(data, &ref) == nil && len(ref.Instruments) > 0 {
			return ref, nil
		}
	}

	// Cache miss: read from primary.
	ref, err := s.primary.LoadReferenceData(ctx)
	if err != nil {
		return ref, err
	}

	if data, err := json.Marshal(ref); err == nil {
		s.rdb.Set(ctx, refKey, data, s.ttl)
	}
	return ref, nil
}

// Invalidate drops the cached reference data; the next read re-populates
// it from the primary.
func (s *CachedStore) Invalidate(ctx context.Context) {
	s.rdb.Del(ctx, refKey)
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListAccounts(ctx context.Context) ([]string, error) {
	return s.primary.ListAccounts(ctx)
}

func (s *CachedStore) LoadOpeningFunds(ctx context.Context, accountID string) (model.FundsSnapshot, error) {
	return s.primary.LoadOpeningFunds(ctx, accountID)
}

func (s *CachedStore) LoadOpeningPositions(ctx context.Context, accountID string) (model.PositionMap, error) {
	return s.primary.LoadOpeningPositions(ctx, accountID)
}

func (s *CachedStore) LoadCounterFunds(ctx context.Context, accountID string) (model.FundsSnapshot, error) {
	return s.primary.LoadCounterFunds(ctx, accountID)
}

func (s *CachedStore) LoadCounterPositions(ctx context.Context, accountID string) (model.PositionMap, error) {
	return s.primary.LoadCounterPositions(ctx, accountID)
}

func (s *CachedStore) LoadLedger(ctx context.Context, accountID string) ([]model.Order, error) {
	return s.primary.LoadLedger(ctx, accountID)
}
