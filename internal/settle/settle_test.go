package settle

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tradeops/recon-engine/internal/model"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// testRef builds a one-instrument reference snapshot:
// multiplier 5, pre-settlement price 100, both margin ratios 0.1,
// open fee 1/lot + 0.0001 by money, close 1.5/lot + 0.0002,
// close-today 2/lot + 0.0003.
func testRef() model.ReferenceData {
	return model.ReferenceData{
		Instruments: map[string]model.InstrumentSpec{
			"cu2409": {
				InstrumentID:       "cu2409",
				VolumeMultiple:     d(5),
				PreSettlementPrice: d(100),
			},
		},
		FeeRates: map[string]model.FeeRate{
			"cu2409": {
				InstrumentID:            "cu2409",
				LongMarginRatioByMoney:  d(0.1),
				ShortMarginRatioByMoney: d(0.1),
				OpenRatioByVolume:       d(1),
				OpenRatioByMoney:        d(0.0001),
				CloseRatioByVolume:      d(1.5),
				CloseRatioByMoney:       d(0.0002),
				CloseTodayRatioByVolume: d(2),
				CloseTodayRatioByMoney:  d(0.0003),
			},
		},
	}
}

func testFunds() model.FundsSnapshot {
	return model.FundsSnapshot{
		AccountID: "60076155",
		Available: d(1000000),
	}
}

func eq(t *testing.T, name string, got, want decimal.Decimal) {
	t.Helper()
	if !got.Equal(want) {
		t.Errorf("%s: got %s, want %s", name, got, want)
	}
}

// --- Open orders ---

func TestSettle_OpenFullyFilled(t *testing.T) {
	order := model.Order{
		LocalID: 1, AccountID: "60076155", InstrumentID: "cu2409",
		Direction: model.Buy, Offset: model.Open, Status: model.FullyFilled,
		LimitPrice: d(100), VolumeRequested: 10,
		Trades: []model.Trade{{TradeID: 11, OrderLocalID: 1, Price: d(100), Volume: 10}},
	}

	res, err := Settle(testRef(), []model.Order{order}, testFunds(), model.PositionMap{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// margin = 100 × 5 × 10 × 0.1, fee = 10×1 + 100×10×5×0.0001
	eq(t, "funds.margin", res.Funds.Margin, d(500))
	eq(t, "funds.fee", res.Funds.Fee, d(10.5))
	eq(t, "available", res.Funds.Available, d(1000000-510.5))

	key := model.PositionKey{AccountID: "60076155", InstrumentID: "cu2409", Direction: model.Buy}
	ps := res.Positions.Get(key)
	if ps == nil {
		t.Fatal("expected position slice to be created")
	}
	if ps.Position != 10 || ps.TotalPosition != 10 || ps.OpenVolume != 10 {
		t.Errorf("position counts: position=%d total=%d open=%d", ps.Position, ps.TotalPosition, ps.OpenVolume)
	}
	eq(t, "position.margin", ps.Margin, d(500))
	eq(t, "avg price", ps.TotalAveragePrice, d(100))
	// fill at the pre-settlement price → zero holding P&L
	eq(t, "posi profit", ps.PosiProfit, d(0))
}

func TestSettle_OpenPendingFreezesMoney(t *testing.T) {
	order := model.Order{
		LocalID: 1, AccountID: "60076155", InstrumentID: "cu2409",
		Direction: model.Sell, Offset: model.Open, Status: model.PendingExchangeAck,
		LimitPrice: d(100), VolumeRequested: 4,
	}

	res, err := Settle(testRef(), []model.Order{order}, testFunds(), model.PositionMap{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// frozen margin = 100 × 5 × 4 × 0.1 = 200, frozen fee = 4 + 0.2
	eq(t, "frozen margin", res.Orders[0].FrozenMargin, d(200))
	eq(t, "frozen fee", res.Orders[0].FrozenFee, d(4.2))
	eq(t, "available", res.Funds.Available, d(1000000-204.2))
	// nothing booked into the position yet
	if len(res.Positions) != 0 {
		t.Errorf("pending open should not create positions, got %d", len(res.Positions))
	}
	// conservation: the drop equals exactly frozen margin + frozen fee
	drop := d(1000000).Sub(res.Funds.Available)
	eq(t, "conservation", drop, res.Orders[0].FrozenMargin.Add(res.Orders[0].FrozenFee))
}

func TestSettle_OpenPartiallyFilledRefreezesRemainder(t *testing.T) {
	order := model.Order{
		LocalID: 1, AccountID: "60076155", InstrumentID: "cu2409",
		Direction: model.Buy, Offset: model.Open, Status: model.PartiallyFilled,
		LimitPrice: d(100), VolumeRequested: 10,
		Trades: []model.Trade{{TradeID: 11, OrderLocalID: 1, Price: d(99), Volume: 4}},
	}

	res, err := Settle(testRef(), []model.Order{order}, testFunds(), model.PositionMap{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Orders[0].VolumeTraded != 4 {
		t.Errorf("volume traded: got %d, want 4", res.Orders[0].VolumeTraded)
	}
	// remainder of 6 lots re-frozen at the limit price
	eq(t, "frozen margin", res.Orders[0].FrozenMargin, d(300))
	eq(t, "frozen fee", res.Orders[0].FrozenFee, d(6.3))

	// filled portion: margin = 99×5×4×0.1 = 198, fee = 4 + 99×4×5×0.0001 = 4.198
	eq(t, "funds.margin", res.Funds.Margin, d(198))
	eq(t, "funds.fee", res.Funds.Fee, d(4.198))
	wantAvailable := d(1000000).Sub(d(198 + 4.198)).Sub(d(300 + 6.3))
	eq(t, "available", res.Funds.Available, wantAvailable)
}

func TestSettle_OpenPartiallyFilledThenCancelled_NoPhantomFreeze(t *testing.T) {
	order := model.Order{
		LocalID: 1, AccountID: "60076155", InstrumentID: "cu2409",
		Direction: model.Buy, Offset: model.Open, Status: model.PartiallyFilledThenCancelled,
		LimitPrice: d(100), VolumeRequested: 10,
		Trades: []model.Trade{{TradeID: 11, OrderLocalID: 1, Price: d(100), Volume: 4}},
	}

	res, err := Settle(testRef(), []model.Order{order}, testFunds(), model.PositionMap{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	o := res.Orders[0]
	if o.VolumeCancelled != 6 {
		t.Errorf("volume cancelled: got %d, want 6", o.VolumeCancelled)
	}
	eq(t, "frozen margin", o.FrozenMargin, d(0))
	eq(t, "frozen fee", o.FrozenFee, d(0))

	// only the 4 filled lots cost money: margin 200, fee 4.2
	eq(t, "available", res.Funds.Available, d(1000000-204.2))
}

func TestSettle_ZeroVolumeTradeIgnored(t *testing.T) {
	order := model.Order{
		LocalID: 1, AccountID: "60076155", InstrumentID: "cu2409",
		Direction: model.Buy, Offset: model.Open, Status: model.FullyFilled,
		LimitPrice: d(100), VolumeRequested: 10,
		Trades: []model.Trade{
			{TradeID: 10, OrderLocalID: 1, Price: d(100), Volume: 0},
			{TradeID: 11, OrderLocalID: 1, Price: d(100), Volume: 10},
		},
	}

	res, err := Settle(testRef(), []model.Order{order}, testFunds(), model.PositionMap{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Orders[0].VolumeTraded != 10 {
		t.Errorf("volume traded: got %d, want 10", res.Orders[0].VolumeTraded)
	}
	eq(t, "funds.margin", res.Funds.Margin, d(500))
	eq(t, "available", res.Funds.Available, d(1000000-510.5))
}

func TestSettle_CancelledAndRejectedAreNoOps(t *testing.T) {
	for _, status := range []model.OrderStatus{model.CancelledByBroker, model.Rejected} {
		order := model.Order{
			LocalID: 1, AccountID: "60076155", InstrumentID: "cu2409",
			Direction: model.Buy, Offset: model.Open, Status: status,
			LimitPrice: d(100), VolumeRequested: 10,
		}
		res, err := Settle(testRef(), []model.Order{order}, testFunds(), model.PositionMap{})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", status, err)
		}
		eq(t, status.String()+" available", res.Funds.Available, d(1000000))
	}
}

func TestSettle_OpenAveragePriceVolumeWeighted(t *testing.T) {
	orders := []model.Order{
		{
			LocalID: 1, AccountID: "60076155", InstrumentID: "cu2409",
			Direction: model.Buy, Offset: model.Open, Status: model.FullyFilled,
			LimitPrice: d(100), VolumeRequested: 10,
			Trades: []model.Trade{{TradeID: 11, OrderLocalID: 1, Price: d(100), Volume: 10}},
		},
		{
			LocalID: 2, AccountID: "60076155", InstrumentID: "cu2409",
			Direction: model.Buy, Offset: model.Open, Status: model.FullyFilled,
			LimitPrice: d(110), VolumeRequested: 10,
			Trades: []model.Trade{{TradeID: 12, OrderLocalID: 2, Price: d(110), Volume: 10}},
		},
	}

	res, err := Settle(testRef(), orders, testFunds(), model.PositionMap{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	key := model.PositionKey{AccountID: "60076155", InstrumentID: "cu2409", Direction: model.Buy}
	ps := res.Positions.Get(key)
	eq(t, "avg price", ps.TotalAveragePrice, d(105))
	// holding P&L marked against pre-settlement 100: (100-105)×5×20
	eq(t, "posi profit", ps.PosiProfit, d(-500))
}

// --- Close orders ---

// openLong returns opening positions holding a long of 5 yesterday lots
// and 10 today lots at average price 90.
func openLong() model.PositionMap {
	key := model.PositionKey{AccountID: "60076155", InstrumentID: "cu2409", Direction: model.Buy}
	return model.PositionMap{
		key: {
			Position: 10, YdPosition: 5, TotalPosition: 15,
			TotalAveragePrice: d(90),
			Margin:            d(4500), YdMargin: d(2250),
		},
	}
}

func TestSplitClose_YesterdayFirst(t *testing.T) {
	tests := []struct {
		name   string
		offset model.Offset
		volume int64
		vy, vt int64
		ok     bool
	}{
		{"generic spills into today", model.Close, 12, 5, 7, true},
		{"generic within yesterday", model.Close, 5, 5, 0, true},
		{"generic under yesterday", model.Close, 3, 3, 0, true},
		{"force close same rule", model.ForceClose, 12, 5, 7, true},
		{"close today only", model.CloseToday, 8, 0, 8, true},
		{"close yesterday only", model.CloseYesterday, 5, 5, 0, true},
		{"yesterday overdrawn", model.CloseYesterday, 6, 0, 0, false},
		{"today overdrawn", model.CloseToday, 11, 0, 0, false},
		{"total overdrawn", model.Close, 16, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps := &model.PositionSlice{Position: 10, YdPosition: 5}
			vy, vt, ok := splitClose(tt.offset, ps, tt.volume)
			if ok != tt.ok || vy != tt.vy || vt != tt.vt {
				t.Errorf("got (%d,%d,%v), want (%d,%d,%v)", vy, vt, ok, tt.vy, tt.vt, tt.ok)
			}
		})
	}
}

func TestSplitClose_FreezeAndFillPhasesAgree(t *testing.T) {
	// The same position state must yield the same split whether asked
	// at freeze time or at fill time.
	ps := &model.PositionSlice{Position: 10, YdPosition: 5}
	fy, ft, _ := splitClose(model.Close, ps, 12)
	gy, gt, _ := splitClose(model.Close, ps, 12)
	if fy != gy || ft != gt {
		t.Errorf("split not stable: (%d,%d) vs (%d,%d)", fy, ft, gy, gt)
	}
}

func TestSettle_CloseFullyFilled(t *testing.T) {
	order := model.Order{
		LocalID: 1, AccountID: "60076155", InstrumentID: "cu2409",
		Direction: model.Sell, Offset: model.Close, Status: model.FullyFilled,
		LimitPrice: d(100), VolumeRequested: 12,
		Trades: []model.Trade{{TradeID: 11, OrderLocalID: 1, Price: d(100), Volume: 12}},
	}

	res, err := Settle(testRef(), []model.Order{order}, testFunds(), openLong())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	key := model.PositionKey{AccountID: "60076155", InstrumentID: "cu2409", Direction: model.Buy}
	ps := res.Positions.Get(key)
	if ps.YdPosition != 0 || ps.Position != 3 || ps.TotalPosition != 3 {
		t.Errorf("position after close: yd=%d td=%d total=%d", ps.YdPosition, ps.Position, ps.TotalPosition)
	}
	if ps.YdPositionFrozen != 0 || ps.PositionFrozen != 0 {
		t.Errorf("frozen counts should return to zero: yd=%d td=%d", ps.YdPositionFrozen, ps.PositionFrozen)
	}
	if ps.CloseVolume != 12 {
		t.Errorf("close volume: got %d, want 12", ps.CloseVolume)
	}

	// realized P&L: (100-90) × 5 × 12
	eq(t, "close profit", ps.CloseProfit, d(600))
	eq(t, "funds close profit", res.Funds.CloseProfit, d(600))

	// released margin at trade price: yd 100×5×5×0.1=250, td 100×7×5×0.1=350
	eq(t, "released margin", res.Funds.Margin, d(-600))
	eq(t, "yd margin", ps.YdMargin, d(2250-250))
	eq(t, "td margin", ps.Margin, d(4500-350))

	// fees: yd 5×1.5+100×5×5×0.0002=8, td 7×2+100×7×5×0.0003=15.05
	eq(t, "fee", res.Funds.Fee, d(23.05))
	// conservation: available moves by released margin − fee
	eq(t, "available", res.Funds.Available, d(1000000+600-23.05))
}

func TestSettle_ClosePendingFreezesCountsAndFee(t *testing.T) {
	order := model.Order{
		LocalID: 1, AccountID: "60076155", InstrumentID: "cu2409",
		Direction: model.Sell, Offset: model.Close, Status: model.PendingBrokerAck,
		LimitPrice: d(100), VolumeRequested: 12,
	}

	res, err := Settle(testRef(), []model.Order{order}, testFunds(), openLong())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	key := model.PositionKey{AccountID: "60076155", InstrumentID: "cu2409", Direction: model.Buy}
	ps := res.Positions.Get(key)
	if ps.YdPositionFrozen != 5 || ps.PositionFrozen != 7 {
		t.Errorf("frozen split: yd=%d td=%d, want 5/7", ps.YdPositionFrozen, ps.PositionFrozen)
	}
	// no margin freeze on close — margin is released at fill, not charged
	eq(t, "funds.margin untouched", res.Funds.Margin, d(0))
	// frozen fee: yd portion 8, td portion 15.05
	eq(t, "frozen fee", res.Orders[0].FrozenFee, d(23.05))
	eq(t, "available", res.Funds.Available, d(1000000-23.05))
}

func TestSettle_CloseTodayTargetsTodayLot(t *testing.T) {
	order := model.Order{
		LocalID: 1, AccountID: "60076155", InstrumentID: "cu2409",
		Direction: model.Sell, Offset: model.CloseToday, Status: model.FullyFilled,
		LimitPrice: d(100), VolumeRequested: 8,
		Trades: []model.Trade{{TradeID: 11, OrderLocalID: 1, Price: d(100), Volume: 8}},
	}

	res, err := Settle(testRef(), []model.Order{order}, testFunds(), openLong())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	key := model.PositionKey{AccountID: "60076155", InstrumentID: "cu2409", Direction: model.Buy}
	ps := res.Positions.Get(key)
	if ps.Position != 2 || ps.YdPosition != 5 {
		t.Errorf("close-today must leave yesterday alone: td=%d yd=%d", ps.Position, ps.YdPosition)
	}
	// close-today fee axis: 8×2 + 100×8×5×0.0003 = 17.2
	eq(t, "fee", res.Funds.Fee, d(17.2))
}

func TestSettle_ClosePartiallyFilledThenCancelled_ReleasesRemainder(t *testing.T) {
	order := model.Order{
		LocalID: 1, AccountID: "60076155", InstrumentID: "cu2409",
		Direction: model.Sell, Offset: model.Close, Status: model.PartiallyFilledThenCancelled,
		LimitPrice: d(100), VolumeRequested: 12,
		Trades: []model.Trade{{TradeID: 11, OrderLocalID: 1, Price: d(100), Volume: 4}},
	}

	res, err := Settle(testRef(), []model.Order{order}, testFunds(), openLong())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	key := model.PositionKey{AccountID: "60076155", InstrumentID: "cu2409", Direction: model.Buy}
	ps := res.Positions.Get(key)
	// 4 lots closed from yesterday, cancelled remainder fully released
	if ps.YdPosition != 1 || ps.Position != 10 {
		t.Errorf("lots after partial close: yd=%d td=%d", ps.YdPosition, ps.Position)
	}
	if ps.YdPositionFrozen != 0 || ps.PositionFrozen != 0 {
		t.Errorf("cancelled remainder left frozen counts: yd=%d td=%d", ps.YdPositionFrozen, ps.PositionFrozen)
	}
	if res.Orders[0].VolumeCancelled != 8 {
		t.Errorf("volume cancelled: got %d, want 8", res.Orders[0].VolumeCancelled)
	}
}

func TestSettle_InsufficientPosition(t *testing.T) {
	order := model.Order{
		LocalID: 7, AccountID: "60076155", InstrumentID: "cu2409",
		Direction: model.Sell, Offset: model.Close, Status: model.FullyFilled,
		LimitPrice: d(100), VolumeRequested: 16,
		Trades: []model.Trade{{TradeID: 11, OrderLocalID: 7, Price: d(100), Volume: 16}},
	}

	_, err := Settle(testRef(), []model.Order{order}, testFunds(), openLong())
	if !errors.Is(err, ErrInsufficientPosition) {
		t.Fatalf("expected ErrInsufficientPosition, got %v", err)
	}

	var ipe *InsufficientPositionError
	if !errors.As(err, &ipe) {
		t.Fatalf("expected *InsufficientPositionError, got %T", err)
	}
	if ipe.OrderLocalID != 7 || ipe.Requested != 16 || ipe.Available != 15 {
		t.Errorf("error context: %+v", ipe)
	}
}

func TestSettle_CloseWithNoPosition(t *testing.T) {
	order := model.Order{
		LocalID: 1, AccountID: "60076155", InstrumentID: "cu2409",
		Direction: model.Sell, Offset: model.Close, Status: model.FullyFilled,
		LimitPrice: d(100), VolumeRequested: 1,
		Trades: []model.Trade{{TradeID: 11, OrderLocalID: 1, Price: d(100), Volume: 1}},
	}
	_, err := Settle(testRef(), []model.Order{order}, testFunds(), model.PositionMap{})
	if !errors.Is(err, ErrInsufficientPosition) {
		t.Fatalf("expected ErrInsufficientPosition, got %v", err)
	}
}

// --- Run-level properties ---

func TestSettle_MissingReferenceData_NoPartialMutation(t *testing.T) {
	opening := openLong()
	orders := []model.Order{
		{
			LocalID: 1, AccountID: "60076155", InstrumentID: "cu2409",
			Direction: model.Buy, Offset: model.Open, Status: model.FullyFilled,
			LimitPrice: d(100), VolumeRequested: 10,
			Trades: []model.Trade{{TradeID: 11, OrderLocalID: 1, Price: d(100), Volume: 10}},
		},
		{
			LocalID: 2, AccountID: "60076155", InstrumentID: "zz9999",
			Direction: model.Buy, Offset: model.Open, Status: model.FullyFilled,
			LimitPrice: d(100), VolumeRequested: 1,
			Trades: []model.Trade{{TradeID: 12, OrderLocalID: 2, Price: d(100), Volume: 1}},
		},
	}

	res, err := Settle(testRef(), orders, testFunds(), opening)
	if !errors.Is(err, ErrMissingReferenceData) {
		t.Fatalf("expected ErrMissingReferenceData, got %v", err)
	}
	if res != nil {
		t.Fatal("failed run must not return partial output")
	}

	// the borrowed opening state is untouched even though order 1 was valid
	key := model.PositionKey{AccountID: "60076155", InstrumentID: "cu2409", Direction: model.Buy}
	if opening[key].Position != 10 || opening[key].TotalPosition != 15 {
		t.Errorf("opening positions mutated: %+v", opening[key])
	}
}

func TestSettle_DepositWithdrawAppliedOnce(t *testing.T) {
	funds := testFunds()
	funds.Deposit = d(5000)
	funds.Withdraw = d(1200)

	res, err := Settle(testRef(), nil, funds, model.PositionMap{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	eq(t, "available", res.Funds.Available, d(1000000+5000-1200))
}

func TestSettle_ReplayIdempotent(t *testing.T) {
	orders := []model.Order{
		{
			LocalID: 1, AccountID: "60076155", InstrumentID: "cu2409",
			Direction: model.Buy, Offset: model.Open, Status: model.FullyFilled,
			LimitPrice: d(100), VolumeRequested: 10,
			Trades: []model.Trade{{TradeID: 11, OrderLocalID: 1, Price: d(101), Volume: 10}},
		},
		{
			LocalID: 2, AccountID: "60076155", InstrumentID: "cu2409",
			Direction: model.Sell, Offset: model.Close, Status: model.FullyFilled,
			LimitPrice: d(103), VolumeRequested: 6,
			Trades: []model.Trade{{TradeID: 12, OrderLocalID: 2, Price: d(103), Volume: 6}},
		},
	}

	first, err := Settle(testRef(), orders, testFunds(), openLong())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Settle(testRef(), orders, testFunds(), openLong())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	eq(t, "available", first.Funds.Available, second.Funds.Available)
	eq(t, "margin", first.Funds.Margin, second.Funds.Margin)
	eq(t, "fee", first.Funds.Fee, second.Funds.Fee)
	eq(t, "close profit", first.Funds.CloseProfit, second.Funds.CloseProfit)

	if len(first.Positions) != len(second.Positions) {
		t.Fatalf("position map sizes differ: %d vs %d", len(first.Positions), len(second.Positions))
	}
	for k, a := range first.Positions {
		b := second.Positions.Get(k)
		if b == nil {
			t.Fatalf("key %s missing from second run", k)
		}
		if a.Position != b.Position || a.YdPosition != b.YdPosition || !a.CloseProfit.Equal(b.CloseProfit) {
			t.Errorf("slices differ at %s: %+v vs %+v", k, a, b)
		}
	}
}

func TestSettle_PositionInvariantsHold(t *testing.T) {
	orders := []model.Order{
		{
			LocalID: 1, AccountID: "60076155", InstrumentID: "cu2409",
			Direction: model.Sell, Offset: model.Close, Status: model.PendingBrokerAck,
			LimitPrice: d(100), VolumeRequested: 7,
		},
		{
			LocalID: 2, AccountID: "60076155", InstrumentID: "cu2409",
			Direction: model.Sell, Offset: model.CloseToday, Status: model.FullyFilled,
			LimitPrice: d(100), VolumeRequested: 3,
			Trades: []model.Trade{{TradeID: 12, OrderLocalID: 2, Price: d(100), Volume: 3}},
		},
	}

	res, err := Settle(testRef(), orders, testFunds(), openLong())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for k, ps := range res.Positions {
		if ps.PositionFrozen > ps.Position {
			t.Errorf("%s: position_frozen %d > position %d", k, ps.PositionFrozen, ps.Position)
		}
		if ps.YdPositionFrozen > ps.YdPosition {
			t.Errorf("%s: y_d_position_frozen %d > y_d_position %d", k, ps.YdPositionFrozen, ps.YdPosition)
		}
		if ps.TotalPosition < 0 {
			t.Errorf("%s: total_position %d < 0", k, ps.TotalPosition)
		}
	}
}
