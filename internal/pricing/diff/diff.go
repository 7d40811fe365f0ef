// Package diff computes structured deltas between price matrices and quote
// pricing states. Patches feed realtime UI updates; factor diffs feed
// revision audit records.
package diff

import (
	"fmt"
	"math"
	"reflect"
	"sort"

	pricingdomain "github.com/quoteforgelabs/quoteforge/internal/pricing/domain"
)

// RowPatch carries the full replacement row for one changed quantity.
type RowPatch struct {
	Quantity     int                `json:"quantity"`
	UnitPrice    float64            `json:"unit_price"`
	TotalPrice   float64            `json:"total_price"`
	LeadTimeDays int                `json:"lead_time_days"`
	Breakdown    map[string]float64 `json:"breakdown"`
	Compliance   map[string]any     `json:"compliance,omitempty"`
}

// DiffPricingMatrix returns one patch per next-row that is new or differs
// from its prev counterpart in any tracked field. Identical matrices yield
// an empty slice. Rows are matched by quantity through a map, so the scan
// is linear in matrix size.
func DiffPricingMatrix(prev, next pricingdomain.PriceMatrix) []RowPatch {
	prevByQty := make(map[int]pricingdomain.PriceMatrixRow, len(prev))
	for _, row := range prev {
		prevByQty[row.Quantity] = row
	}

	patches := []RowPatch{}
	for _, row := range next {
		old, ok := prevByQty[row.Quantity]
		if ok && rowEqual(old, row) {
			continue
		}
		patches = append(patches, RowPatch{
			Quantity:     row.Quantity,
			UnitPrice:    row.UnitPrice,
			TotalPrice:   row.TotalPrice,
			LeadTimeDays: row.LeadTimeDays,
			Breakdown:    row.Breakdown,
			Compliance:   row.Compliance,
		})
	}
	return patches
}

func rowEqual(a, b pricingdomain.PriceMatrixRow) bool {
	return a.UnitPrice == b.UnitPrice &&
		a.TotalPrice == b.TotalPrice &&
		a.LeadTimeDays == b.LeadTimeDays &&
		breakdownEqual(a.Breakdown, b.Breakdown) &&
		reflect.DeepEqual(a.Compliance, b.Compliance)
}

func breakdownEqual(a, b map[string]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// LineItem is one factor's contribution to a pricing change.
type LineItem struct {
	Factor   string  `json:"factor"`
	Old      float64 `json:"old"`
	New      float64 `json:"new"`
	Delta    float64 `json:"delta"`
	DeltaPct float64 `json:"delta_pct"`
	Reason   string  `json:"reason,omitempty"`
}

// PricingDiff is the structured delta stored alongside a revision.
type PricingDiff struct {
	TotalDelta        float64    `json:"total_delta"`
	PctDelta          float64    `json:"pct_delta"`
	LineItems         []LineItem `json:"line_items"`
	LeadTimeDeltaDays int        `json:"lead_time_delta_days,omitempty"`
	TaxDelta          float64    `json:"tax_delta,omitempty"`
	Warnings          []string   `json:"warnings,omitempty"`
	OldPricingVersion string     `json:"old_pricing_version"`
	NewPricingVersion string     `json:"new_pricing_version"`
}

// Metadata carries catalog context into diff generation.
type Metadata struct {
	OldPricingVersion string
	NewPricingVersion string
	CatalogChanged    bool
	OldTax            float64
	NewTax            float64
}

// GeneratePricingDiff compares two selected rows factor-by-factor. Factors
// with a nonzero delta get a line item; deltas above 10% carry a reason and
// larger swings surface as warnings.
func GeneratePricingDiff(prev, next pricingdomain.PriceMatrixRow, meta Metadata) PricingDiff {
	lineItems := []LineItem{}
	warnings := []string{}

	for _, factor := range factorUnion(prev.Breakdown, next.Breakdown) {
		oldVal := prev.Breakdown[factor]
		newVal := next.Breakdown[factor]
		delta := newVal - oldVal
		if delta == 0 {
			continue
		}

		deltaPct := 100.0
		if oldVal != 0 {
			deltaPct = (delta / oldVal) * 100
		}
		reason := ""
		if math.Abs(deltaPct) > 10 {
			reason = fmt.Sprintf("%.1f%% change", math.Abs(deltaPct))
		}
		lineItems = append(lineItems, LineItem{
			Factor:   factor,
			Old:      oldVal,
			New:      newVal,
			Delta:    delta,
			DeltaPct: deltaPct,
			Reason:   reason,
		})
	}

	totalDelta := next.TotalPrice - prev.TotalPrice
	pctDelta := 100.0
	if prev.TotalPrice != 0 {
		pctDelta = (totalDelta / prev.TotalPrice) * 100
	}
	leadTimeDelta := next.LeadTimeDays - prev.LeadTimeDays
	taxDelta := meta.NewTax - meta.OldTax

	if meta.OldPricingVersion != meta.NewPricingVersion {
		warnings = append(warnings, fmt.Sprintf(
			"catalog upgraded from %s to %s", meta.OldPricingVersion, meta.NewPricingVersion))
	}
	if meta.CatalogChanged {
		warnings = append(warnings, "pricing catalog has been updated since quote creation")
	}
	if math.Abs(pctDelta) > 20 {
		warnings = append(warnings, "price change exceeds 20%, review recommended")
	}
	if leadTimeDelta > 5 {
		warnings = append(warnings, fmt.Sprintf("lead time increased by %d days", leadTimeDelta))
	}

	return PricingDiff{
		TotalDelta:        totalDelta,
		PctDelta:          pctDelta,
		LineItems:         lineItems,
		LeadTimeDeltaDays: leadTimeDelta,
		TaxDelta:          taxDelta,
		Warnings:          warnings,
		OldPricingVersion: meta.OldPricingVersion,
		NewPricingVersion: meta.NewPricingVersion,
	}
}

func factorUnion(a, b map[string]float64) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	factors := make([]string, 0, len(seen))
	for k := range seen {
		factors = append(factors, k)
	}
	sort.Strings(factors)
	return factors
}

// LineSelection is one quote line's matrix with its selected quantity.
type LineSelection struct {
	LineID           string
	Matrix           pricingdomain.PriceMatrix
	SelectedQuantity int
}

// SubtotalDeltaInput describes a single-line change within a multi-line
// quote: the updated line's new matrix and (possibly changed) selected
// quantity.
type SubtotalDeltaInput struct {
	PrevItems           []LineSelection
	UpdatedLineID       string
	NewMatrix           pricingdomain.PriceMatrix
	NewSelectedQuantity int
}

// ComputeSelectedSubtotalDelta returns new_subtotal minus old_subtotal
// after exactly one line's matrix or selected quantity changed. Unchanged
// lines contribute their existing selected-quantity totals to both sides,
// so they cancel; the updated line resolves its old total from the old
// matrix at the old quantity and its new total from the new matrix at the
// new quantity.
func ComputeSelectedSubtotalDelta(in SubtotalDeltaInput) float64 {
	oldSubtotal := 0.0
	newSubtotal := 0.0
	for _, item := range in.PrevItems {
		oldSubtotal += item.Matrix.TotalAt(item.SelectedQuantity)
		if item.LineID == in.UpdatedLineID {
			newSubtotal += in.NewMatrix.TotalAt(in.NewSelectedQuantity)
		} else {
			newSubtotal += item.Matrix.TotalAt(item.SelectedQuantity)
		}
	}
	return newSubtotal - oldSubtotal
}
