package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tradeops/recon-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Seed it with reference data and per-account fixtures
// before running.
type MemoryStore struct {
	mu               sync.RWMutex
	ref              model.ReferenceData
	openingFunds     map[string]model.FundsSnapshot
	counterFunds     map[string]model.FundsSnapshot
	openingPositions map[string]model.PositionMap
	counterPositions map[string]model.PositionMap
	ledgers          map[string][]model.Order
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ref: model.ReferenceData{
			Instruments: make(map[string]model.InstrumentSpec),
			FeeRates:    make(map[string]model.FeeRate),
		},
		openingFunds:     make(map[string]model.FundsSnapshot),
		counterFunds:     make(map[string]model.FundsSnapshot),
		openingPositions: make(map[string]model.PositionMap),
		counterPositions: make(map[string]model.PositionMap),
		ledgers:          make(map[string][]model.Order),
	}
}

// --- Seeding ---

func (s *MemoryStore) SeedInstrument(spec model.InstrumentSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ref.Instruments[spec.InstrumentID] = spec
}

func (s *MemoryStore) SeedFeeRate(rate model.FeeRate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ref.FeeRates[rate.InstrumentID] = rate
}

func (s *MemoryStore) SeedOpeningFunds(f model.FundsSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openingFunds[f.AccountID] = f
}

func (s *MemoryStore) SeedCounterFunds(f model.FundsSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counterFunds[f.AccountID] = f
}

func (s *MemoryStore) SeedOpeningPositions(accountID string, positions model.PositionMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openingPositions[accountID] = positions.Clone()
}

func (s *MemoryStore) SeedCounterPositions(accountID string, positions model.PositionMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counterPositions[accountID] = positions.Clone()
}

func (s *MemoryStore) SeedLedger(accountID string, orders []model.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledgers[accountID] = append([]model.Order(nil), orders...)
}

// --- Store ---

func (s *MemoryStore) ListAccounts(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]string, 0, len(s.openingFunds))
	for id := range s.openingFunds {
		accounts = append(accounts, id)
	}
	sort.Strings(accounts)
	return accounts, nil
}

func (s *MemoryStore) LoadReferenceData(_ context.Context) (model.ReferenceData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref := model.ReferenceData{
		Instruments: make(map[string]model.InstrumentSpec, len(s.ref.Instruments)),
		FeeRates:    make(map[string]model.FeeRate, len(s.ref.FeeRates)),
	}
	for k, v := range s.ref.Instruments {
		ref.Instruments[k] = v
	}
	for k, v := range s.ref.FeeRates {
		ref.FeeRates[k] = v
	}
	return ref, nil
}

func (s *MemoryStore) LoadOpeningFunds(_ context.Context, accountID string) (model.FundsSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.openingFunds[accountID]
	if !ok {
		return f, fmt.Errorf("funds for account %s not found", accountID)
	}
	return f, nil
}

func (s *MemoryStore) LoadCounterFunds(_ context.Context, accountID string) (model.FundsSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.counterFunds[accountID]
	if !ok {
		return f, fmt.Errorf("counter funds for account %s not found", accountID)
	}
	return f, nil
}

func (s *MemoryStore) LoadOpeningPositions(_ context.Context, accountID string) (model.PositionMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.openingPositions[accountID]; ok {
		return p.Clone(), nil
	}
	return make(model.PositionMap), nil
}

func (s *MemoryStore) LoadCounterPositions(_ context.Context, accountID string) (model.PositionMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.counterPositions[accountID]; ok {
		return p.Clone(), nil
	}
	return make(model.PositionMap), nil
}

func (s *MemoryStore) LoadLedger(_ context.Context, accountID string) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := append([]model.Order(nil), s.ledgers[accountID]...)
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].LocalID < orders[j].LocalID
	})
	return orders, nil
}
