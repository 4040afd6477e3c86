// Package settle implements the order-settlement calculator: it replays an
// account's order ledger against the reference-data snapshot and recomputes
// the funds and position state the counter should have ended up with.
//
// The calculator is pure computation — no I/O, no clock, no randomness.
// Replaying the same ledger against the same opening state always produces
// the same output. All monetary values use shopspring/decimal — never
// float64 for money.
package settle

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tradeops/recon-engine/internal/model"
)

// MoneyScale is the number of decimal places money amounts are rounded to,
// matching the counter's own rounding of margin, fee and P&L figures.
const MoneyScale int32 = 3

var (
	// ErrMissingReferenceData is returned when an order references an
	// instrument absent from the reference snapshot. Fatal for the run.
	ErrMissingReferenceData = errors.New("settle: missing reference data")

	// ErrInsufficientPosition is returned when a close order's
	// yesterday/today split would go negative. Never clamped.
	ErrInsufficientPosition = errors.New("settle: insufficient position")
)

// MissingReferenceDataError reports which order referenced an unknown
// instrument.
type MissingReferenceDataError struct {
	OrderLocalID int64
	InstrumentID string
}

func (e *MissingReferenceDataError) Error() string {
	return fmt.Sprintf("settle: order %d references instrument %q with no reference data",
		e.OrderLocalID, e.InstrumentID)
}

func (e *MissingReferenceDataError) Unwrap() error { return ErrMissingReferenceData }

// InsufficientPositionError reports a close order that asked for more
// volume than the targeted lots can supply.
type InsufficientPositionError struct {
	OrderLocalID int64
	InstrumentID string
	Direction    model.Direction // direction of the position being closed
	Requested    int64
	Available    int64
}

func (e *InsufficientPositionError) Error() string {
	return fmt.Sprintf("settle: order %d closes %d lots of %s %s but only %d available",
		e.OrderLocalID, e.Requested, e.InstrumentID, e.Direction, e.Available)
}

func (e *InsufficientPositionError) Unwrap() error { return ErrInsufficientPosition }

// Result is the recomputed end-of-session state for one account.
type Result struct {
	Funds     model.FundsSnapshot
	Positions model.PositionMap
	// Orders is the ledger annotated with the derived frozen-money and
	// traded/cancelled volume fields.
	Orders []model.Order
}

// Settle replays the ledger, in order, against the opening state and
// returns the recomputed funds and positions.
//
// Inputs are borrowed read-only: the calculator stages all mutation on
// copies and commits nothing on error, so a failed run leaves no partial
// state observable. Orders must be supplied in ledger order — frozen and
// released amounts of later orders depend on the exact state left by
// earlier ones.
func Settle(ref model.ReferenceData, ledger []model.Order, openingFunds model.FundsSnapshot, openingPositions model.PositionMap) (*Result, error) {
	c := &calculator{
		ref:       ref,
		funds:     openingFunds,
		positions: openingPositions.Clone(),
	}

	// Session cash flows first: deposits add to, withdrawals drain the
	// available balance before any order is considered.
	c.funds.Available = c.funds.Available.Add(c.funds.Deposit).Sub(c.funds.Withdraw)

	orders := make([]model.Order, len(ledger))
	copy(orders, ledger)

	for i := range orders {
		if err := c.applyOrder(&orders[i]); err != nil {
			return nil, err
		}
	}

	return &Result{Funds: c.funds, Positions: c.positions, Orders: orders}, nil
}

type calculator struct {
	ref       model.ReferenceData
	funds     model.FundsSnapshot
	positions model.PositionMap
}

func (c *calculator) applyOrder(o *model.Order) error {
	// Broker-cancelled and rejected orders never touched funds or
	// positions: any freeze was released at the earlier transition,
	// which this engine does not model retroactively.
	if o.Status.IsInactive() {
		return nil
	}

	spec, ok := c.ref.Instruments[o.InstrumentID]
	if !ok {
		return &MissingReferenceDataError{OrderLocalID: o.LocalID, InstrumentID: o.InstrumentID}
	}
	rate, ok := c.ref.FeeRates[o.InstrumentID]
	if !ok {
		return &MissingReferenceDataError{OrderLocalID: o.LocalID, InstrumentID: o.InstrumentID}
	}

	if o.Offset == model.Open {
		c.applyOpen(o, spec, rate)
		return nil
	}
	return c.applyClose(o, spec, rate)
}

// --- Open orders ---

func (c *calculator) applyOpen(o *model.Order, spec model.InstrumentSpec, rate model.FeeRate) {
	switch {
	case o.Status.IsPending():
		// Live and unfilled: reserve margin and fee for the frozen
		// volume at the limit price.
		frozenVol := o.VolumeRequested - o.VolumeTraded
		o.FrozenMargin = marginAt(o.LimitPrice, frozenVol, o.Direction, spec, rate)
		o.FrozenFee = feeAt(o.LimitPrice, frozenVol, feeOpen, spec, rate)
		c.funds.Available = c.funds.Available.Sub(o.FrozenMargin).Sub(o.FrozenFee)

	case o.Status.HasFills():
		var traded int64
		for _, tr := range o.Trades {
			// Zero-volume fills carry no money and no lots to book.
			if tr.Volume <= 0 {
				continue
			}
			c.applyOpenFill(o, tr, spec, rate)
			traded += tr.Volume
		}
		o.VolumeTraded = traded

		switch o.Status {
		case model.PartiallyFilled:
			// The remainder is still working: re-freeze it at the
			// limit price.
			rem := o.VolumeRequested - traded
			o.FrozenMargin = marginAt(o.LimitPrice, rem, o.Direction, spec, rate)
			o.FrozenFee = feeAt(o.LimitPrice, rem, feeOpen, spec, rate)
			c.funds.Available = c.funds.Available.Sub(o.FrozenMargin).Sub(o.FrozenFee)
		case model.PartiallyFilledThenCancelled:
			// The cancelled remainder holds no money.
			o.VolumeCancelled = o.VolumeRequested - traded
			o.FrozenMargin = decimal.Zero
			o.FrozenFee = decimal.Zero
		}
	}
}

// applyOpenFill books one fill of an opening order: position grows, actual
// margin/fee replace any frozen estimate, the average entry price is
// re-weighted and the holding P&L re-marked against the pre-settlement
// price.
func (c *calculator) applyOpenFill(o *model.Order, tr model.Trade, spec model.InstrumentSpec, rate model.FeeRate) {
	key := model.PositionKey{AccountID: o.AccountID, InstrumentID: o.InstrumentID, Direction: o.Direction}
	ps := c.positions.Ensure(key)

	margin := marginAt(tr.Price, tr.Volume, o.Direction, spec, rate)
	fee := feeAt(tr.Price, tr.Volume, feeOpen, spec, rate)

	newTotal := ps.TotalPosition + tr.Volume
	avg := ps.TotalAveragePrice.Mul(dec(ps.TotalPosition)).
		Add(tr.Price.Mul(dec(tr.Volume))).
		Div(dec(newTotal)).
		Round(MoneyScale)

	posi := spec.PreSettlementPrice.Sub(avg).
		Mul(spec.VolumeMultiple).
		Mul(dec(newTotal)).
		Round(MoneyScale)
	posiDelta := posi.Sub(ps.PosiProfit)

	ps.OpenVolume += tr.Volume
	ps.Position += tr.Volume
	ps.TotalPosition = newTotal
	ps.TotalAveragePrice = avg
	ps.Margin = ps.Margin.Add(margin)
	ps.PosiProfit = posi

	c.funds.Fee = c.funds.Fee.Add(fee)
	c.funds.Margin = c.funds.Margin.Add(margin)
	c.funds.Available = c.funds.Available.Sub(margin).Sub(fee)
	c.funds.PositionProfit = c.funds.PositionProfit.Add(posiDelta)
	c.funds.Benefits = c.funds.Benefits.Add(posiDelta).Sub(fee)
}

// --- Close orders ---

func (c *calculator) applyClose(o *model.Order, spec model.InstrumentSpec, rate model.FeeRate) error {
	// A sell-to-close order closes a long position and vice versa.
	dir := o.Direction.Opposite()
	key := model.PositionKey{AccountID: o.AccountID, InstrumentID: o.InstrumentID, Direction: dir}
	ps := c.positions.Get(key)
	if ps == nil {
		return &InsufficientPositionError{
			OrderLocalID: o.LocalID,
			InstrumentID: o.InstrumentID,
			Direction:    dir,
			Requested:    o.VolumeRequested,
		}
	}

	switch {
	case o.Status.IsPending():
		vy, vt, ok := splitClose(o.Offset, ps, o.VolumeRequested)
		if !ok {
			return c.shortError(o, dir, ps)
		}
		// Close orders freeze position counts and fee only — margin is
		// released at close, never charged.
		o.FrozenFee = closeFee(o.LimitPrice, vy, vt, spec, rate)
		c.funds.Available = c.funds.Available.Sub(o.FrozenFee)
		ps.YdPositionFrozen += vy
		ps.PositionFrozen += vt

	case o.Status.HasFills():
		// Freeze phase: the same split the order held while working.
		vy, vt, ok := splitClose(o.Offset, ps, o.VolumeRequested)
		if !ok {
			return c.shortError(o, dir, ps)
		}
		ps.YdPositionFrozen += vy
		ps.PositionFrozen += vt

		// Fill phase: consume the frozen allocation yesterday-first,
		// by the identical rule.
		ydLeft, tdLeft := vy, vt
		var traded int64
		for _, tr := range o.Trades {
			fy := min(tr.Volume, ydLeft)
			ft := tr.Volume - fy
			if ft > tdLeft {
				return &InsufficientPositionError{
					OrderLocalID: o.LocalID,
					InstrumentID: o.InstrumentID,
					Direction:    dir,
					Requested:    tr.Volume,
					Available:    ydLeft + tdLeft,
				}
			}
			if fy > 0 {
				c.applyCloseFill(ps, tr.Price, fy, lotYesterday, dir, spec, rate)
			}
			if ft > 0 {
				c.applyCloseFill(ps, tr.Price, ft, lotToday, dir, spec, rate)
			}
			ydLeft -= fy
			tdLeft -= ft
			traded += tr.Volume
		}
		o.VolumeTraded = traded

		switch o.Status {
		case model.PartiallyFilled:
			// Remainder keeps working; its freeze stays in place,
			// along with the frozen fee for the unfilled volume.
			o.FrozenFee = closeFee(o.LimitPrice, ydLeft, tdLeft, spec, rate)
			c.funds.Available = c.funds.Available.Sub(o.FrozenFee)
		case model.FullyFilled, model.PartiallyFilledThenCancelled:
			// Release whatever the fills did not consume.
			ps.YdPositionFrozen -= ydLeft
			ps.PositionFrozen -= tdLeft
			if o.Status == model.PartiallyFilledThenCancelled {
				o.VolumeCancelled = o.VolumeRequested - traded
			}
		}
	}
	return nil
}

type lot uint8

const (
	lotYesterday lot = iota
	lotToday
)

// applyCloseFill books one split portion of a closing fill: the lot and
// its frozen count shrink, margin is released at the position direction's
// rate, realized P&L is booked against the average entry price.
func (c *calculator) applyCloseFill(ps *model.PositionSlice, price decimal.Decimal, volume int64, l lot, dir model.Direction, spec model.InstrumentSpec, rate model.FeeRate) {
	margin := marginAt(price, volume, dir, spec, rate)
	axis := feeCloseYesterday
	if l == lotToday {
		axis = feeCloseToday
	}
	fee := feeAt(price, volume, axis, spec, rate)
	profit := price.Sub(ps.TotalAveragePrice).
		Mul(spec.VolumeMultiple).
		Mul(dec(volume)).
		Round(MoneyScale)

	c.funds.Fee = c.funds.Fee.Add(fee)
	c.funds.Margin = c.funds.Margin.Sub(margin)
	c.funds.Available = c.funds.Available.Add(margin).Sub(fee)
	c.funds.CloseProfit = c.funds.CloseProfit.Add(profit)
	c.funds.Benefits = c.funds.Benefits.Add(profit).Sub(fee)

	if l == lotYesterday {
		ps.YdMargin = ps.YdMargin.Sub(margin)
		ps.YdPosition -= volume
		ps.YdPositionFrozen -= volume
	} else {
		ps.Margin = ps.Margin.Sub(margin)
		ps.Position -= volume
		ps.PositionFrozen -= volume
	}
	ps.CloseVolume += volume
	ps.CloseProfit = ps.CloseProfit.Add(profit)
	ps.TotalPosition -= volume
}

func (c *calculator) shortError(o *model.Order, dir model.Direction, ps *model.PositionSlice) error {
	return &InsufficientPositionError{
		OrderLocalID: o.LocalID,
		InstrumentID: o.InstrumentID,
		Direction:    dir,
		Requested:    o.VolumeRequested,
		Available:    (ps.YdPosition - ps.YdPositionFrozen) + (ps.Position - ps.PositionFrozen),
	}
}

// splitClose allocates a close volume across yesterday's and today's lots.
// The freeze phase and the fill phase both route through this function so
// the two can never disagree. ok is false when the targeted lots cannot
// supply the volume.
func splitClose(offset model.Offset, ps *model.PositionSlice, volume int64) (vy, vt int64, ok bool) {
	availYd := ps.YdPosition - ps.YdPositionFrozen
	availTd := ps.Position - ps.PositionFrozen

	switch offset {
	case model.CloseYesterday:
		vy = volume
	case model.CloseToday:
		vt = volume
	default: // Close, ForceClose: yesterday first, spill into today
		vy = min(volume, availYd)
		vt = volume - vy
	}

	if volume < 0 || vy > availYd || vt > availTd {
		return 0, 0, false
	}
	return vy, vt, true
}

// --- Money formulas ---

type feeAxis uint8

const (
	feeOpen feeAxis = iota
	feeCloseYesterday
	feeCloseToday
)

// marginAt computes price × volume × multiplier × margin ratio for the
// given direction, rounded to MoneyScale.
func marginAt(price decimal.Decimal, volume int64, dir model.Direction, spec model.InstrumentSpec, rate model.FeeRate) decimal.Decimal {
	ratio := rate.LongMarginRatioByMoney
	if dir == model.Sell {
		ratio = rate.ShortMarginRatioByMoney
	}
	return price.Mul(dec(volume)).Mul(spec.VolumeMultiple).Mul(ratio).Round(MoneyScale)
}

// feeAt computes volume × ratio-by-volume + price × volume × multiplier ×
// ratio-by-money on the given rate axis, rounded to MoneyScale.
func feeAt(price decimal.Decimal, volume int64, axis feeAxis, spec model.InstrumentSpec, rate model.FeeRate) decimal.Decimal {
	var byVolume, byMoney decimal.Decimal
	switch axis {
	case feeOpen:
		byVolume, byMoney = rate.OpenRatioByVolume, rate.OpenRatioByMoney
	case feeCloseYesterday:
		byVolume, byMoney = rate.CloseRatioByVolume, rate.CloseRatioByMoney
	case feeCloseToday:
		byVolume, byMoney = rate.CloseTodayRatioByVolume, rate.CloseTodayRatioByMoney
	}
	fee := dec(volume).Mul(byVolume).
		Add(price.Mul(dec(volume)).Mul(spec.VolumeMultiple).Mul(byMoney))
	return fee.Round(MoneyScale)
}

// closeFee totals the frozen fee for a pending close: the yesterday
// portion at the close rate, the today portion at the close-today rate.
func closeFee(price decimal.Decimal, vy, vt int64, spec model.InstrumentSpec, rate model.FeeRate) decimal.Decimal {
	return feeAt(price, vy, feeCloseYesterday, spec, rate).
		Add(feeAt(price, vt, feeCloseToday, spec, rate))
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }
