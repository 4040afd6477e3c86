// Package model defines the core domain types shared across the
// reconciliation engine: orders, trades, positions, funds snapshots and
// reference data. All monetary values use shopspring/decimal — never
// float64 for money.
package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Direction is the trade direction of an order.
type Direction uint8

const (
	Buy Direction = iota
	Sell
)

// ParseDirection maps the gateway's single-character direction code.
func ParseDirection(code string) (Direction, error) {
	switch code {
	case "0":
		return Buy, nil
	case "1":
		return Sell, nil
	}
	return 0, fmt.Errorf("model: unknown direction code %q", code)
}

// Opposite returns the reverse direction. A close order reduces the
// position held on the opposite side of its own trade direction.
func (d Direction) Opposite() Direction {
	if d == Buy {
		return Sell
	}
	return Buy
}

func (d Direction) String() string {
	if d == Buy {
		return "Buy"
	}
	return "Sell"
}

// Offset says whether an order opens a new position or closes an existing
// one, and if closing, which lot it targets.
type Offset uint8

const (
	// Open opens a new position in the order's own direction.
	Open Offset = iota
	// Close closes yesterday's lot first and spills into today's.
	Close
	// ForceClose is a broker-initiated liquidation; same yesterday-first
	// ordering as Close.
	ForceClose
	// CloseToday targets only the lot opened this session.
	CloseToday
	// CloseYesterday targets only the carried-over lot.
	CloseYesterday
)

// ParseOffset maps the gateway's offset_flag code.
func ParseOffset(code string) (Offset, error) {
	switch code {
	case "0":
		return Open, nil
	case "1":
		return Close, nil
	case "2":
		return ForceClose, nil
	case "3":
		return CloseToday, nil
	case "4":
		return CloseYesterday, nil
	}
	return 0, fmt.Errorf("model: unknown offset code %q", code)
}

// IsClose reports whether the offset reduces an existing position.
func (o Offset) IsClose() bool { return o != Open }

func (o Offset) String() string {
	switch o {
	case Open:
		return "Open"
	case Close:
		return "Close"
	case ForceClose:
		return "ForceClose"
	case CloseToday:
		return "CloseToday"
	case CloseYesterday:
		return "CloseYesterday"
	}
	return fmt.Sprintf("Offset(%d)", uint8(o))
}

// OrderStatus is the terminal (for this run) state of an order as reported
// by the counter.
type OrderStatus uint8

const (
	PendingBrokerAck OrderStatus = iota + 1
	PendingExchangeAck
	PartiallyFilled
	FullyFilled
	CancelledByBroker
	PartiallyFilledThenCancelled
	Rejected
)

// ParseOrderStatus maps the gateway's order_status code.
func ParseOrderStatus(code string) (OrderStatus, error) {
	switch code {
	case "1":
		return PendingBrokerAck, nil
	case "2":
		return PendingExchangeAck, nil
	case "3":
		return PartiallyFilled, nil
	case "4":
		return FullyFilled, nil
	case "5":
		return CancelledByBroker, nil
	case "6":
		return PartiallyFilledThenCancelled, nil
	case "7":
		return Rejected, nil
	}
	return 0, fmt.Errorf("model: unknown order status code %q", code)
}

// IsPending reports whether the order is live and fully unfilled:
// margin/fee are frozen against it but nothing has executed.
func (s OrderStatus) IsPending() bool {
	return s == PendingBrokerAck || s == PendingExchangeAck
}

// HasFills reports whether the order carries trade records to replay.
func (s OrderStatus) HasFills() bool {
	return s == PartiallyFilled || s == FullyFilled || s == PartiallyFilledThenCancelled
}

// IsInactive reports whether the order never affected funds or positions:
// any freeze was already released at the prior status transition.
func (s OrderStatus) IsInactive() bool {
	return s == CancelledByBroker || s == Rejected
}

func (s OrderStatus) String() string {
	switch s {
	case PendingBrokerAck:
		return "PendingBrokerAck"
	case PendingExchangeAck:
		return "PendingExchangeAck"
	case PartiallyFilled:
		return "PartiallyFilled"
	case FullyFilled:
		return "FullyFilled"
	case CancelledByBroker:
		return "CancelledByBroker"
	case PartiallyFilledThenCancelled:
		return "PartiallyFilledThenCancelled"
	case Rejected:
		return "Rejected"
	}
	return fmt.Sprintf("OrderStatus(%d)", uint8(s))
}

// Trade is a single fill belonging to one order. The sum of a parent
// order's trade volumes never exceeds its requested volume.
type Trade struct {
	TradeID      int64           `json:"trade_id"`
	OrderLocalID int64           `json:"order_local_id"`
	Price        decimal.Decimal `json:"price"`
	Volume       int64           `json:"volume"`
}

// Order is one ledger entry as reported by the counter, plus the
// frozen-money fields the settlement calculator derives during replay.
type Order struct {
	LocalID      int64       `json:"local_id"`
	SystemID     int64       `json:"system_id"` // 0 while pending at the exchange
	AccountID    string      `json:"account_id"`
	InstrumentID string      `json:"instrument_id"`
	Direction    Direction   `json:"direction"`
	Offset       Offset      `json:"offset"`
	Status       OrderStatus `json:"status"`

	LimitPrice      decimal.Decimal `json:"limit_price"`
	VolumeRequested int64           `json:"volume_requested"`
	VolumeTraded    int64           `json:"volume_traded"`
	VolumeCancelled int64           `json:"volume_cancelled"`

	Trades []Trade `json:"trades,omitempty"`

	// Derived at settlement: money reserved while the order is live.
	FrozenMargin decimal.Decimal `json:"frozen_margin"`
	FrozenFee    decimal.Decimal `json:"frozen_fee"`
}

// PositionKey identifies one position slice. A flat struct key avoids the
// auto-vivification hazards of nested account→instrument→direction maps.
type PositionKey struct {
	AccountID    string    `json:"account_id"`
	InstrumentID string    `json:"instrument_id"`
	Direction    Direction `json:"direction"`
}

func (k PositionKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.AccountID, k.InstrumentID, k.Direction)
}

// MarshalText lets PositionMap serialize as a JSON object keyed by
// "account/instrument/direction".
func (k PositionKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *PositionKey) UnmarshalText(text []byte) error {
	parts := strings.Split(string(text), "/")
	if len(parts) != 3 {
		return fmt.Errorf("model: malformed position key %q", text)
	}
	k.AccountID, k.InstrumentID = parts[0], parts[1]
	switch parts[2] {
	case "Buy":
		k.Direction = Buy
	case "Sell":
		k.Direction = Sell
	default:
		return fmt.Errorf("model: malformed position key direction %q", parts[2])
	}
	return nil
}

// PositionSlice is the per-(account, instrument, direction) position state.
// Today's and yesterday's lots are tracked separately because they close
// under different fee and margin rules.
type PositionSlice struct {
	Position         int64 `json:"position"`            // today quantity
	YdPosition       int64 `json:"y_d_position"`        // yesterday quantity
	PositionFrozen   int64 `json:"position_frozen"`     // reserved by live close orders
	YdPositionFrozen int64 `json:"y_d_position_frozen"`
	OpenVolume       int64 `json:"open_volume"`
	CloseVolume      int64 `json:"close_volume"`
	TotalPosition    int64 `json:"total_position"` // position + y_d_position

	TotalAveragePrice decimal.Decimal `json:"total_average_price"`
	Margin            decimal.Decimal `json:"margin"`
	YdMargin          decimal.Decimal `json:"y_d_margin"`
	PosiProfit        decimal.Decimal `json:"posi_profit"`  // holding P&L
	CloseProfit       decimal.Decimal `json:"close_profit"` // realized this session
}

// FundsSnapshot is the per-account money state.
type FundsSnapshot struct {
	AccountID      string          `json:"account_id"`
	Available      decimal.Decimal `json:"available"`
	Margin         decimal.Decimal `json:"margin"`
	Fee            decimal.Decimal `json:"fee"`
	Benefits       decimal.Decimal `json:"benefits"` // equity delta
	PositionProfit decimal.Decimal `json:"position_profit"`
	CloseProfit    decimal.Decimal `json:"close_profit"`
	Deposit        decimal.Decimal `json:"deposit"`
	Withdraw       decimal.Decimal `json:"withdraw"`
}

// PositionMap holds position slices keyed by (account, instrument,
// direction).
type PositionMap map[PositionKey]*PositionSlice

// Clone returns a deep copy. The settlement calculator stages its work on
// a clone and commits only on success.
func (m PositionMap) Clone() PositionMap {
	out := make(PositionMap, len(m))
	for k, v := range m {
		c := *v
		out[k] = &c
	}
	return out
}

// Get returns the slice for key, or nil if absent. Lookups never create
// entries.
func (m PositionMap) Get(k PositionKey) *PositionSlice {
	return m[k]
}

// Ensure returns the slice for key, creating a zeroed slice if absent.
func (m PositionMap) Ensure(k PositionKey) *PositionSlice {
	if s, ok := m[k]; ok {
		return s
	}
	s := &PositionSlice{}
	m[k] = s
	return s
}

// InstrumentSpec is the contract specification for one instrument.
type InstrumentSpec struct {
	InstrumentID       string          `json:"instrument_id"`
	VolumeMultiple     decimal.Decimal `json:"volume_multiple"`
	PreSettlementPrice decimal.Decimal `json:"pre_settlement_price"`
}

// FeeRate carries the margin and commission ratios for one instrument.
// "ByVolume" ratios are money per lot; "ByMoney" ratios multiply
// price × volume × multiplier.
type FeeRate struct {
	InstrumentID            string          `json:"instrument_id"`
	LongMarginRatioByMoney  decimal.Decimal `json:"long_margin_ratio_by_money"`
	ShortMarginRatioByMoney decimal.Decimal `json:"short_margin_ratio_by_money"`
	OpenRatioByVolume       decimal.Decimal `json:"open_ratio_by_volume"`
	OpenRatioByMoney        decimal.Decimal `json:"open_ratio_by_money"`
	CloseRatioByVolume      decimal.Decimal `json:"close_ratio_by_volume"`
	CloseRatioByMoney       decimal.Decimal `json:"close_ratio_by_money"`
	CloseTodayRatioByVolume decimal.Decimal `json:"close_today_ratio_by_volume"`
	CloseTodayRatioByMoney  decimal.Decimal `json:"close_today_ratio_by_money"`
}

// ReferenceData is the immutable lookup snapshot for one run.
type ReferenceData struct {
	Instruments map[string]InstrumentSpec `json:"instruments"`
	FeeRates    map[string]FeeRate        `json:"fee_rates"`
}

// Snapshot pairs the funds and position state for a set of accounts. The
// settlement calculator produces one; the counter supplies another of the
// same shape for comparison.
type Snapshot struct {
	Funds     map[string]FundsSnapshot `json:"funds"`
	Positions PositionMap              `json:"positions"`
}
