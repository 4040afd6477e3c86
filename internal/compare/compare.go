// Package compare diffs a calculated settlement snapshot against the
// counter system's snapshot field by field.
package compare

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tradeops/recon-engine/internal/model"
	"github.com/tradeops/recon-engine/internal/settle"
)

// Kind classifies a mismatch.
type Kind string

const (
	FieldMismatch Kind = "field_mismatch"
	MissingEntity Kind = "missing_entity"
)

// Mismatch is a single divergence between the calculated and the
// reference snapshot. For MissingEntity the side that has the entity is
// named in Calculated or Reference and the other is empty.
type Mismatch struct {
	Kind       Kind   `json:"kind"`
	Entity     string `json:"entity"`
	Field      string `json:"field,omitempty"`
	Calculated string `json:"calculated,omitempty"`
	Reference  string `json:"reference,omitempty"`
}

// Report is the outcome of one comparison run.
type Report struct {
	Mismatches      []Mismatch `json:"mismatches"`
	FundsChecked    int        `json:"funds_checked"`
	PositionChecked int        `json:"positions_checked"`
}

// OK reports whether the two snapshots agree everywhere.
func (r *Report) OK() bool {
	return len(r.Mismatches) == 0
}

func (r *Report) addField(entity, field string, calc, ref decimal.Decimal) {
	r.Mismatches = append(r.Mismatches, Mismatch{
		Kind:       FieldMismatch,
		Entity:     entity,
		Field:      field,
		Calculated: calc.String(),
		Reference:  ref.String(),
	})
}

func (r *Report) addIntField(entity, field string, calc, ref int64) {
	r.Mismatches = append(r.Mismatches, Mismatch{
		Kind:       FieldMismatch,
		Entity:     entity,
		Field:      field,
		Calculated: fmt.Sprintf("%d", calc),
		Reference:  fmt.Sprintf("%d", ref),
	})
}

func (r *Report) addMissing(entity, calcSide, refSide string) {
	r.Mismatches = append(r.Mismatches, Mismatch{
		Kind:       MissingEntity,
		Entity:     entity,
		Calculated: calcSide,
		Reference:  refSide,
	})
}

// same normalizes both sides to settlement money scale before comparing,
// so a stored "10.5000" and a computed "10.5" agree.
func same(a, b decimal.Decimal) bool {
	return a.Round(settle.MoneyScale).Equal(b.Round(settle.MoneyScale))
}

// Compare diffs every funds field and every position slice field of the
// calculated snapshot against the counter snapshot. It never fails; all
// divergences are collected into the report.
func Compare(calc, counter model.Snapshot) *Report {
	r := &Report{}

	for id, cf := range calc.Funds {
		rf, ok := counter.Funds[id]
		if !ok {
			r.addMissing("funds/"+id, "present", "absent")
			continue
		}
		r.FundsChecked++
		compareFunds(r, id, cf, rf)
	}
	for id := range counter.Funds {
		if _, ok := calc.Funds[id]; !ok {
			r.addMissing("funds/"+id, "absent", "present")
		}
	}

	for key, cp := range calc.Positions {
		rp := counter.Positions.Get(key)
		if rp == nil {
			r.addMissing("position/"+key.String(), "present", "absent")
			continue
		}
		r.PositionChecked++
		comparePosition(r, key.String(), cp, rp)
	}
	for key := range counter.Positions {
		if calc.Positions.Get(key) == nil {
			r.addMissing("position/"+key.String(), "absent", "present")
		}
	}

	return r
}

func compareFunds(r *Report, id string, calc, ref model.FundsSnapshot) {
	entity := "funds/" + id
	checks := []struct {
		field     string
		calc, ref decimal.Decimal
	}{
		{"available", calc.Available, ref.Available},
		{"margin", calc.Margin, ref.Margin},
		{"fee", calc.Fee, ref.Fee},
		{"benefits", calc.Benefits, ref.Benefits},
		{"position_profit", calc.PositionProfit, ref.PositionProfit},
		{"close_profit", calc.CloseProfit, ref.CloseProfit},
		{"deposit", calc.Deposit, ref.Deposit},
		{"withdraw", calc.Withdraw, ref.Withdraw},
	}
	for _, c := range checks {
		if !same(c.calc, c.ref) {
			r.addField(entity, c.field, c.calc, c.ref)
		}
	}
}

func comparePosition(r *Report, entity string, calc, ref *model.PositionSlice) {
	entity = "position/" + entity
	ints := []struct {
		field     string
		calc, ref int64
	}{
		{"position", calc.Position, ref.Position},
		{"y_d_position", calc.YdPosition, ref.YdPosition},
		{"position_frozen", calc.PositionFrozen, ref.PositionFrozen},
		{"y_d_position_frozen", calc.YdPositionFrozen, ref.YdPositionFrozen},
		{"open_volume", calc.OpenVolume, ref.OpenVolume},
		{"close_volume", calc.CloseVolume, ref.CloseVolume},
		{"total_position", calc.TotalPosition, ref.TotalPosition},
	}
	for _, c := range ints {
		if c.calc != c.ref {
			r.addIntField(entity, c.field, c.calc, c.ref)
		}
	}

	decs := []struct {
		field     string
		calc, ref decimal.Decimal
	}{
		{"total_average_price", calc.TotalAveragePrice, ref.TotalAveragePrice},
		{"margin", calc.Margin, ref.Margin},
		{"y_d_margin", calc.YdMargin, ref.YdMargin},
		{"posi_profit", calc.PosiProfit, ref.PosiProfit},
		{"close_profit", calc.CloseProfit, ref.CloseProfit},
	}
	for _, c := range decs {
		if !same(c.calc, c.ref) {
			r.addField(entity, c.field, c.calc, c.ref)
		}
	}
}
