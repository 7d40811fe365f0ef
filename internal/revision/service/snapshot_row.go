package service

import (
	pricingdomain "github.com/quoteforgelabs/quoteforge/internal/pricing/domain"
	quotedomain "github.com/quoteforgelabs/quoteforge/internal/quote/domain"
)

// pricingRowFromSnapshot aggregates line outputs into one quote-level row
// so the factor diff engine can compare two snapshots. Factor amounts sum
// across lines; lead time takes the slowest line.
func pricingRowFromSnapshot(snap quotedomain.Snapshot) pricingdomain.PriceMatrixRow {
	row := pricingdomain.PriceMatrixRow{
		Quantity:  snap.Config.Quantity,
		Breakdown: map[string]float64{},
	}
	for _, line := range snap.Lines {
		row.UnitPrice += numField(line.Outputs, "unit_price")
		row.TotalPrice += numField(line.Outputs, "total_price")
		if lead := int(numField(line.Outputs, "lead_days")); lead > row.LeadTimeDays {
			row.LeadTimeDays = lead
		}
		bd, ok := line.Outputs["factor_breakdown"].(map[string]any)
		if !ok {
			continue
		}
		for factor, amount := range bd {
			row.Breakdown[factor] += toFloat(amount)
		}
	}
	return row
}

func snapshotTax(snap quotedomain.Snapshot) float64 {
	tax := 0.0
	for _, line := range snap.Lines {
		tax += numField(line.Outputs, "tax")
	}
	return tax
}

func numField(m map[string]any, key string) float64 {
	if m == nil {
		return 0
	}
	return toFloat(m[key])
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
