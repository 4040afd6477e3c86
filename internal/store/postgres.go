package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tradeops/recon-engine/internal/model"
)

// PostgresStore implements Store over two PostgreSQL databases: the
// origin schema (reference data, opening state) and the counter schema
// (order ledger plus the counter's own settlement snapshot). All
// monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	origin  *pgxpool.Pool
	counter *pgxpool.Pool
}

// NewPostgresStore creates a store over the origin and counter pools.
func NewPostgresStore(origin, counter *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{origin: origin, counter: counter}
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]string, error) {
	rows, err := s.origin.Query(ctx,
		`SELECT account_id FROM tb_account_funds_info ORDER BY account_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		accounts = append(accounts, id)
	}
	return accounts, rows.Err()
}

func (s *PostgresStore) LoadReferenceData(ctx context.Context) (model.ReferenceData, error) {
	ref := model.ReferenceData{
		Instruments: make(map[string]model.InstrumentSpec),
		FeeRates:    make(map[string]model.FeeRate),
	}

	rows, err := s.origin.Query(ctx,
		`SELECT instrument_id, volume_multiple::TEXT, pre_settlement_price::TEXT
		 FROM tb_instrument_info`)
	if err != nil {
		return ref, err
	}
	defer rows.Close()

	for rows.Next() {
		var spec model.InstrumentSpec
		var mult, pre string
		if err := rows.Scan(&spec.InstrumentID, &mult, &pre); err != nil {
			return ref, err
		}
		spec.VolumeMultiple, _ = decimal.NewFromString(mult)
		spec.PreSettlementPrice, _ = decimal.NewFromString(pre)
		ref.Instruments[spec.InstrumentID] = spec
	}
	if err := rows.Err(); err != nil {
		return ref, err
	}

	rateRows, err := s.origin.Query(ctx,
		`SELECT instrument_id,
		        long_margin_ratio_by_money::TEXT, short_margin_ratio_by_money::TEXT,
		        open_ratio_by_volume::TEXT, open_ratio_by_money::TEXT,
		        close_ratio_by_volume::TEXT, close_ratio_by_money::TEXT,
		        close_today_ratio_by_volume::TEXT, close_today_ratio_by_money::TEXT
		 FROM tb_fee_ratio_info`)
	if err != nil {
		return ref, err
	}
	defer rateRows.Close()

	for rateRows.Next() {
		var r model.FeeRate
		var lm, sm, ov, om, cv, cm, ctv, ctm string
		if err := rateRows.Scan(&r.InstrumentID,
			&lm, &sm, &ov, &om, &cv, &cm, &ctv, &ctm); err != nil {
			return ref, err
		}
		r.LongMarginRatioByMoney, _ = decimal.NewFromString(lm)
		r.ShortMarginRatioByMoney, _ = decimal.NewFromString(sm)
		r.OpenRatioByVolume, _ = decimal.NewFromString(ov)
		r.OpenRatioByMoney, _ = decimal.NewFromString(om)
		r.CloseRatioByVolume, _ = decimal.NewFromString(cv)
		r.CloseRatioByMoney, _ = decimal.NewFromString(cm)
		r.CloseTodayRatioByVolume, _ = decimal.NewFromString(ctv)
		r.CloseTodayRatioByMoney, _ = decimal.NewFromString(ctm)
		ref.FeeRates[r.InstrumentID] = r
	}
	return ref, rateRows.Err()
}

func (s *PostgresStore) LoadOpeningFunds(ctx context.Context, accountID string) (model.FundsSnapshot, error) {
	return scanFunds(s.origin, ctx, accountID)
}

func (s *PostgresStore) LoadCounterFunds(ctx context.Context, accountID string) (model.FundsSnapshot, error) {
	return scanFunds(s.counter, ctx, accountID)
}

func scanFunds(pool *pgxpool.Pool, ctx context.Context, accountID string) (model.FundsSnapshot, error) {
	var f model.FundsSnapshot
	var avail, margin, fee, benefits, posiProfit, closeProfit, deposit, withdraw string

	err := pool.QueryRow(ctx,
		`SELECT account_id,
		        available::TEXT, margin::TEXT, fee::TEXT, benefits::TEXT,
		        position_profit::TEXT, close_profit::TEXT,
		        deposit::TEXT, withdraw::TEXT
		 FROM tb_account_funds_info WHERE account_id = $1`, accountID).
		Scan(&f.AccountID,
			&avail, &margin, &fee, &benefits,
			&posiProfit, &closeProfit,
			&deposit, &withdraw)
	if err != nil {
		return f, fmt.Errorf("load funds %s: %w", accountID, err)
	}

	f.Available, _ = decimal.NewFromString(avail)
	f.Margin, _ = decimal.NewFromString(margin)
	f.Fee, _ = decimal.NewFromString(fee)
	f.Benefits, _ = decimal.NewFromString(benefits)
	f.PositionProfit, _ = decimal.NewFromString(posiProfit)
	f.CloseProfit, _ = decimal.NewFromString(closeProfit)
	f.Deposit, _ = decimal.NewFromString(deposit)
	f.Withdraw, _ = decimal.NewFromString(withdraw)

	return f, nil
}

func (s *PostgresStore) LoadOpeningPositions(ctx context.Context, accountID string) (model.PositionMap, error) {
	return scanPositions(s.origin, ctx, accountID)
}

func (s *PostgresStore) LoadCounterPositions(ctx context.Context, accountID string) (model.PositionMap, error) {
	return scanPositions(s.counter, ctx, accountID)
}

func scanPositions(pool *pgxpool.Pool, ctx context.Context, accountID string) (model.PositionMap, error) {
	rows, err := pool.Query(ctx,
		`SELECT account_id, instrument_id, direction,
		        position, y_d_position, position_frozen, y_d_position_frozen,
		        open_volume, close_volume, total_position,
		        total_average_price::TEXT, margin::TEXT, y_d_margin::TEXT,
		        posi_profit::TEXT, close_profit::TEXT
		 FROM tb_account_position WHERE account_id = $1`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	positions := make(model.PositionMap)
	for rows.Next() {
		var key model.PositionKey
		var dir string
		var ps model.PositionSlice
		var avg, margin, ydMargin, posiProfit, closeProfit string

		if err := rows.Scan(&key.AccountID, &key.InstrumentID, &dir,
			&ps.Position, &ps.YdPosition, &ps.PositionFrozen, &ps.YdPositionFrozen,
			&ps.OpenVolume, &ps.CloseVolume, &ps.TotalPosition,
			&avg, &margin, &ydMargin, &posiProfit, &closeProfit); err != nil {
			return nil, err
		}

		key.Direction, err = model.ParseDirection(dir)
		if err != nil {
			return nil, fmt.Errorf("position %s/%s: %w", key.AccountID, key.InstrumentID, err)
		}
		ps.TotalAveragePrice, _ = decimal.NewFromString(avg)
		ps.Margin, _ = decimal.NewFromString(margin)
		ps.YdMargin, _ = decimal.NewFromString(ydMargin)
		ps.PosiProfit, _ = decimal.NewFromString(posiProfit)
		ps.CloseProfit, _ = decimal.NewFromString(closeProfit)

		positions[key] = &ps
	}
	return positions, rows.Err()
}

// LoadLedger reads the day's orders and trades from the counter schema.
// Orders come back in local-ID order so the replay matches submission
// order. Duplicate or missing local IDs are logged; the replay still
// runs over whatever the counter reported.
func (s *PostgresStore) LoadLedger(ctx context.Context, accountID string) ([]model.Order, error) {
	rows, err := s.counter.Query(ctx,
		`SELECT order_local_id, COALESCE(order_sys_id, 0),
		        account_id, instrument_id,
		        direction, offset_flag, order_status,
		        limit_price::TEXT, volume_total_original, volume_traded, volume_cancelled
		 FROM tb_order_info WHERE account_id = $1 ORDER BY order_local_id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.Order
	byLocalID := make(map[int64]int)

	for rows.Next() {
		var o model.Order
		var dir, offset, status, limitPrice string

		if err := rows.Scan(&o.LocalID, &o.SystemID, &o.AccountID, &o.InstrumentID,
			&dir, &offset, &status,
			&limitPrice, &o.VolumeRequested, &o.VolumeTraded, &o.VolumeCancelled); err != nil {
			return nil, err
		}

		if o.Direction, err = model.ParseDirection(dir); err != nil {
			return nil, fmt.Errorf("order %d: %w", o.LocalID, err)
		}
		if o.Offset, err = model.ParseOffset(offset); err != nil {
			return nil, fmt.Errorf("order %d: %w", o.LocalID, err)
		}
		if o.Status, err = model.ParseOrderStatus(status); err != nil {
			return nil, fmt.Errorf("order %d: %w", o.LocalID, err)
		}
		o.LimitPrice, _ = decimal.NewFromString(limitPrice)

		if _, dup := byLocalID[o.LocalID]; dup {
			slog.Warn("duplicate order local ID in ledger",
				"account_id", accountID, "order_local_id", o.LocalID)
		}
		byLocalID[o.LocalID] = len(orders)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.attachTrades(ctx, accountID, orders, byLocalID); err != nil {
		return nil, err
	}
	logLocalIDGaps(accountID, orders)
	return orders, nil
}

func (s *PostgresStore) attachTrades(ctx context.Context, accountID string, orders []model.Order, byLocalID map[int64]int) error {
	rows, err := s.counter.Query(ctx,
		`SELECT trade_id, order_local_id, price::TEXT, volume
		 FROM tb_trade_info WHERE account_id = $1 ORDER BY trade_id`, accountID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var t model.Trade
		var price string
		if err := rows.Scan(&t.TradeID, &t.OrderLocalID, &price, &t.Volume); err != nil {
			return err
		}
		t.Price, _ = decimal.NewFromString(price)

		idx, ok := byLocalID[t.OrderLocalID]
		if !ok {
			slog.Warn("trade references unknown order",
				"account_id", accountID, "trade_id", t.TradeID,
				"order_local_id", t.OrderLocalID)
			continue
		}
		orders[idx].Trades = append(orders[idx].Trades, t)
	}
	return rows.Err()
}

// logLocalIDGaps flags holes in the local ID sequence. A gap usually
// means the counter dropped an order mid-session.
func logLocalIDGaps(accountID string, orders []model.Order) {
	for i := 1; i < len(orders); i++ {
		if prev, cur := orders[i-1].LocalID, orders[i].LocalID; cur > prev+1 {
			slog.Warn("gap in order local ID sequence",
				"account_id", accountID, "after", prev, "next", cur)
		}
	}
}
