package consensus

import "github.com/shopspring/decimal"

// Inputs are the stakeholder quantities a consensus number is built from
type Inputs struct {
	Baseline          decimal.Decimal
	SalesOverride     decimal.Decimal
	MarketingUplift   decimal.Decimal
	FinanceAdjustment decimal.Decimal
	Cap               *decimal.Decimal
}

// Compute returns pre = sum of inputs floored at 0, and final = min(pre, cap)
// floored at 0. Both are rounded to 2 decimal places.
func Compute(in Inputs) (pre, final decimal.Decimal) {
	pre = in.Baseline.Add(in.SalesOverride).Add(in.MarketingUplift).Add(in.FinanceAdjustment)
	if pre.IsNegative() {
		pre = decimal.Zero
	}

	final = pre
	if in.Cap != nil {
		final = decimal.Min(pre, *in.Cap)
	}
	if final.IsNegative() {
		final = decimal.Zero
	}
	return pre.Round(2), final.Round(2)
}
