// Package recon provides the HTTP handlers and orchestration for
// reconciliation runs: replaying each account's order ledger through the
// settlement calculator and diffing the result against the counter
// system's snapshot.
//
// All monetary values use shopspring/decimal — never float64 for money.
package recon

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tradeops/recon-engine/internal/compare"
	"github.com/tradeops/recon-engine/internal/metrics"
	"github.com/tradeops/recon-engine/internal/model"
	"github.com/tradeops/recon-engine/internal/settle"
	"github.com/tradeops/recon-engine/internal/store"
)

// Account outcome statuses.
const (
	StatusClean    = "clean"
	StatusMismatch = "mismatch"
	StatusError    = "error"
	StatusBusy     = "busy"
)

// Service orchestrates reconciliation runs. Each account is owned by at
// most one in-flight run; concurrent requests for the same account are
// reported busy rather than queued.
type Service struct {
	store store.Store
	wsHub *WSHub // optional WebSocket hub for result broadcasts

	mu      sync.Mutex
	running map[string]bool
	reports map[string]*AccountReport // latest per account
}

// NewService creates a new reconciliation service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, hub *WSHub) *Service {
	return &Service{
		store:   st,
		wsHub:   hub,
		running: make(map[string]bool),
		reports: make(map[string]*AccountReport),
	}
}

// --- Request/Response types ---

// RunRequest is the JSON body for POST /reconcile. An empty accounts
// list reconciles every known account.
type RunRequest struct {
	Accounts []string `json:"accounts"`
}

// AccountReport is the outcome of reconciling one account.
type AccountReport struct {
	RunID          string          `json:"run_id"`
	AccountID      string          `json:"account_id"`
	Status         string          `json:"status"`
	Error          string          `json:"error,omitempty"`
	OrdersReplayed int             `json:"orders_replayed"`
	Report         *compare.Report `json:"report,omitempty"`
	CompletedAt    time.Time       `json:"completed_at"`
}

// RunResponse is the JSON body returned from POST /reconcile.
type RunResponse struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	DurationMS int64           `json:"duration_ms"`
	Clean      int             `json:"clean"`
	Mismatched int             `json:"mismatched"`
	Failed     int             `json:"failed"`
	Accounts   []AccountReport `json:"accounts"`
}

// --- HTTP Handlers ---

// Reconcile handles POST /api/v1/reconcile. Accounts run concurrently;
// the response carries every account's outcome.
func (s *Service) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	ctx := r.Context()

	accounts := req.Accounts
	if len(accounts) == 0 {
		var err error
		accounts, err = s.store.ListAccounts(ctx)
		if err != nil {
			writeError(w, "failed to list accounts", http.StatusInternalServerError)
			return
		}
	}
	if len(accounts) == 0 {
		writeError(w, "no accounts to reconcile", http.StatusNotFound)
		return
	}

	ref, err := s.store.LoadReferenceData(ctx)
	if err != nil {
		writeError(w, "failed to load reference data", http.StatusInternalServerError)
		return
	}

	runID := uuid.New().String()
	started := time.Now().UTC()

	results := make([]AccountReport, len(accounts))
	var wg sync.WaitGroup
	for i, accountID := range accounts {
		wg.Add(1)
		go func(i int, accountID string) {
			defer wg.Done()
			results[i] = s.runAccount(ctx, runID, ref, accountID)
		}(i, accountID)
	}
	wg.Wait()

	resp := RunResponse{
		RunID:      runID,
		StartedAt:  started,
		DurationMS: time.Since(started).Milliseconds(),
		Accounts:   results,
	}
	for _, ar := range results {
		switch ar.Status {
		case StatusClean:
			resp.Clean++
		case StatusMismatch:
			resp.Mismatched++
		default:
			resp.Failed++
		}
	}

	slog.Info("reconciliation run finished",
		"run_id", runID,
		"accounts", len(accounts),
		"clean", resp.Clean,
		"mismatched", resp.Mismatched,
		"failed", resp.Failed,
		"duration_ms", resp.DurationMS,
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// ListAccounts handles GET /api/v1/accounts
func (s *Service) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.ListAccounts(r.Context())
	if err != nil {
		writeError(w, "failed to list accounts", http.StatusInternalServerError)
		return
	}
	if accounts == nil {
		accounts = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(accounts)
}

// GetReport handles GET /api/v1/accounts/{accountID}/report
// Returns the latest reconciliation outcome for the account.
func (s *Service) GetReport(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	s.mu.Lock()
	report, ok := s.reports[accountID]
	s.mu.Unlock()
	if !ok {
		writeError(w, "no report for account "+accountID, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

// --- Run orchestration ---

// runAccount reconciles a single account and records the outcome. The
// account is exclusively owned for the duration: a second run touching
// the same account comes back busy.
func (s *Service) runAccount(ctx context.Context, runID string, ref model.ReferenceData, accountID string) AccountReport {
	s.mu.Lock()
	if s.running[accountID] {
		s.mu.Unlock()
		return AccountReport{
			RunID:       runID,
			AccountID:   accountID,
			Status:      StatusBusy,
			Error:       "account is being reconciled by another run",
			CompletedAt: time.Now().UTC(),
		}
	}
	s.running[accountID] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, accountID)
		s.mu.Unlock()
	}()

	start := time.Now()
	ar := s.reconcileAccount(ctx, runID, ref, accountID)
	metrics.RunDuration.Observe(time.Since(start).Seconds())
	metrics.RunsTotal.WithLabelValues(ar.Status).Inc()

	s.mu.Lock()
	s.reports[accountID] = &ar
	s.mu.Unlock()

	if s.wsHub != nil {
		msg := WSMessage{
			Type:      "account_reconciled",
			RunID:     runID,
			AccountID: accountID,
			Status:    ar.Status,
			Error:     ar.Error,
		}
		if ar.Report != nil {
			msg.Mismatches = len(ar.Report.Mismatches)
		}
		s.wsHub.Broadcast(msg)
	}

	return ar
}

func (s *Service) reconcileAccount(ctx context.Context, runID string, ref model.ReferenceData, accountID string) AccountReport {
	ar := AccountReport{RunID: runID, AccountID: accountID}

	fail := func(stage string, err error) AccountReport {
		ar.Status = StatusError
		ar.Error = stage + ": " + err.Error()
		ar.CompletedAt = time.Now().UTC()
		slog.Error("account reconciliation failed",
			"run_id", runID, "account_id", accountID,
			"stage", stage, "err", err)
		return ar
	}

	openingFunds, err := s.store.LoadOpeningFunds(ctx, accountID)
	if err != nil {
		return fail("load opening funds", err)
	}
	openingPositions, err := s.store.LoadOpeningPositions(ctx, accountID)
	if err != nil {
		return fail("load opening positions", err)
	}
	ledger, err := s.store.LoadLedger(ctx, accountID)
	if err != nil {
		return fail("load ledger", err)
	}

	// Typed calculator errors carry the offending order, so the report
	// names the order, instrument, and volumes without extra wrapping.
	res, err := settle.Settle(ref, ledger, openingFunds, openingPositions)
	if err != nil {
		return fail("settle", err)
	}
	metrics.OrdersReplayed.Add(float64(len(ledger)))
	ar.OrdersReplayed = len(ledger)

	counterFunds, err := s.store.LoadCounterFunds(ctx, accountID)
	if err != nil {
		return fail("load counter funds", err)
	}
	counterPositions, err := s.store.LoadCounterPositions(ctx, accountID)
	if err != nil {
		return fail("load counter positions", err)
	}

	calc := model.Snapshot{
		Funds:     map[string]model.FundsSnapshot{accountID: res.Funds},
		Positions: res.Positions,
	}
	counter := model.Snapshot{
		Funds:     map[string]model.FundsSnapshot{accountID: counterFunds},
		Positions: counterPositions,
	}

	report := compare.Compare(calc, counter)
	ar.Report = report
	for _, m := range report.Mismatches {
		metrics.MismatchesTotal.WithLabelValues(string(m.Kind)).Inc()
	}

	if report.OK() {
		ar.Status = StatusClean
	} else {
		ar.Status = StatusMismatch
		slog.Warn("account diverges from counter",
			"run_id", runID, "account_id", accountID,
			"mismatches", len(report.Mismatches))
	}
	ar.CompletedAt = time.Now().UTC()
	return ar
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
