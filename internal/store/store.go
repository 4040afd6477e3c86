// Package store defines the persistence interface for the reconciliation
// engine. Implementations include PostgreSQL (origin and counter
// databases), Redis (read-through cache for reference data), and
// in-memory (for testing).
package store

import (
	"context"

	"github.com/tradeops/recon-engine/internal/model"
)

// Store loads the inputs of a reconciliation run. The origin database is
// the source of truth for reference data and the opening state; the
// counter system supplies the day's order ledger and its own settlement
// snapshot to reconcile against.
type Store interface {
	// --- Reference data (origin) ---

	// ListAccounts returns the account IDs eligible for reconciliation.
	ListAccounts(ctx context.Context) ([]string, error)

	// LoadReferenceData returns instrument specs and fee rates for all
	// instruments.
	LoadReferenceData(ctx context.Context) (model.ReferenceData, error)

	// --- Opening state (origin) ---

	// LoadOpeningFunds returns the pre-replay funds snapshot for an account.
	LoadOpeningFunds(ctx context.Context, accountID string) (model.FundsSnapshot, error)

	// LoadOpeningPositions returns the pre-replay position slices for an
	// account.
	LoadOpeningPositions(ctx context.Context, accountID string) (model.PositionMap, error)

	// --- Counter system (counter) ---

	// LoadLedger returns the account's orders with their trades, ordered
	// by order local ID.
	LoadLedger(ctx context.Context, accountID string) ([]model.Order, error)

	// LoadCounterFunds returns the counter system's own funds snapshot.
	LoadCounterFunds(ctx context.Context, accountID string) (model.FundsSnapshot, error)

	// LoadCounterPositions returns the counter system's own position
	// slices.
	LoadCounterPositions(ctx context.Context, accountID string) (model.PositionMap, error)
}
