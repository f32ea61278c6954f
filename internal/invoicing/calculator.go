package invoicing

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

var hundred = decimal.NewFromInt(100)

// ResolveReason looks up the reason an adjustment refers to.
type ResolveReason func(ctx context.Context, reasonID int64) (Reason, error)

// Line is the priced quantity the calculator multiplies out.
type Line struct {
	Count int64
	Price decimal.Decimal
}

// Totals is the result of Calculate.
type Totals struct {
	Sum         decimal.Decimal
	Total       decimal.Decimal
	Adjustments []Adjustment
}

// LineTotal is count × price rounded to the money scale.
func LineTotal(count int64, price decimal.Decimal) decimal.Decimal {
	return shared.RoundMoney(price.Mul(decimal.NewFromInt(count)))
}

// AdjustmentAmount converts an adjustment value into money against base.
// With UnitAuto, values up to and including 100 are percentages of base and
// larger values are fixed amounts.
func AdjustmentAmount(value, base decimal.Decimal, unit Unit) decimal.Decimal {
	percent := value.LessThanOrEqual(hundred)
	switch unit {
	case UnitPercent:
		percent = true
	case UnitFixed:
		percent = false
	}
	if percent {
		return shared.RoundMoney(base.Mul(value).Div(hundred))
	}
	return shared.RoundMoney(value)
}

// Calculate sums the lines and applies the adjustments: every subtract in list
// order against the original sum, then every add in list order against the
// running total. The returned adjustments carry their effective value and amount.
func Calculate(ctx context.Context, lines []Line, adjustments []Adjustment, resolve ResolveReason) (Totals, error) {
	sum := decimal.Zero
	for idx, line := range lines {
		if line.Count < 0 {
			return Totals{}, shared.Validation("line %d count must be >= 0", idx)
		}
		if line.Price.IsNegative() {
			return Totals{}, shared.Validation("line %d price must be >= 0", idx)
		}
		sum = sum.Add(LineTotal(line.Count, line.Price))
	}

	out := make([]Adjustment, len(adjustments))
	ops := make([]ReasonOperation, len(adjustments))
	for idx, adj := range adjustments {
		if adj.Value.IsNegative() {
			return Totals{}, shared.Validation("adjustment %d value must be >= 0", idx)
		}
		if resolve == nil {
			return Totals{}, shared.Validation("adjustment %d cannot be resolved", idx)
		}
		reason, err := resolve(ctx, adj.ReasonID)
		if err != nil {
			return Totals{}, err
		}
		switch adj.Unit {
		case UnitAuto, UnitPercent, UnitFixed:
		default:
			return Totals{}, shared.Validation("adjustment %d has unknown unit %q", idx, adj.Unit)
		}
		if reason.Operation != OperationAdd && reason.Operation != OperationSubtract {
			return Totals{}, shared.Validation("reason %d has unknown operation %q", reason.ID, reason.Operation)
		}
		out[idx] = adj
		if adj.Value.IsZero() {
			out[idx].Value = reason.DefaultValue
		}
		ops[idx] = reason.Operation
	}

	total := sum
	for idx := range out {
		if ops[idx] != OperationSubtract {
			continue
		}
		out[idx].Amount = AdjustmentAmount(out[idx].Value, sum, out[idx].Unit)
		total = total.Sub(out[idx].Amount)
	}
	for idx := range out {
		if ops[idx] != OperationAdd {
			continue
		}
		out[idx].Amount = AdjustmentAmount(out[idx].Value, total, out[idx].Unit)
		total = total.Add(out[idx].Amount)
	}
	if total.IsNegative() {
		return Totals{}, shared.Validation("adjustments take the total below zero (%s)", total.StringFixed(shared.MoneyScale))
	}
	return Totals{Sum: sum, Total: total, Adjustments: out}, nil
}
