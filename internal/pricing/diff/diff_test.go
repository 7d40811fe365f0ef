package diff_test

import (
	"testing"

	"github.com/quoteforgelabs/quoteforge/internal/pricing/diff"
	pricingdomain "github.com/quoteforgelabs/quoteforge/internal/pricing/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(qty int, unit float64, lead int, breakdown map[string]float64) pricingdomain.PriceMatrixRow {
	return pricingdomain.PriceMatrixRow{
		Quantity:     qty,
		UnitPrice:    unit,
		TotalPrice:   unit * float64(qty),
		LeadTimeDays: lead,
		Breakdown:    breakdown,
	}
}

func sampleMatrix() pricingdomain.PriceMatrix {
	return pricingdomain.PriceMatrix{
		row(1, 100, 7, map[string]float64{"setup": 75, "material": 10, "margin": 15}),
		row(10, 40, 7, map[string]float64{"setup": 7.5, "material": 10, "margin": 12}),
		row(100, 25, 7, map[string]float64{"setup": 0.75, "material": 10, "margin": 10}),
	}
}

func TestDiffIdenticalMatricesIsEmpty(t *testing.T) {
	m := sampleMatrix()
	assert.Empty(t, diff.DiffPricingMatrix(m, m))

	// Deep-equal copy with distinct backing maps must also diff empty.
	copied := sampleMatrix()
	assert.Empty(t, diff.DiffPricingMatrix(m, copied))
}

func TestDiffSingleChangedRowSinglePatch(t *testing.T) {
	prev := sampleMatrix()
	next := sampleMatrix()
	next[1].UnitPrice = 38
	next[1].TotalPrice = 380

	patches := diff.DiffPricingMatrix(prev, next)
	require.Len(t, patches, 1)
	assert.Equal(t, 10, patches[0].Quantity)
	assert.Equal(t, 38.0, patches[0].UnitPrice)
	assert.Equal(t, 380.0, patches[0].TotalPrice)
}

func TestDiffNewQuantityRowSinglePatch(t *testing.T) {
	prev := sampleMatrix()
	next := append(sampleMatrix(), row(500, 20, 7, map[string]float64{"setup": 0.15, "material": 10, "margin": 9}))

	patches := diff.DiffPricingMatrix(prev, next)
	require.Len(t, patches, 1)
	assert.Equal(t, 500, patches[0].Quantity)
}

func TestDiffTracksLeadTimeBreakdownAndCompliance(t *testing.T) {
	prev := sampleMatrix()

	leadChanged := sampleMatrix()
	leadChanged[0].LeadTimeDays = 12
	require.Len(t, diff.DiffPricingMatrix(prev, leadChanged), 1)

	breakdownChanged := sampleMatrix()
	breakdownChanged[2].Breakdown["material"] = 11
	require.Len(t, diff.DiffPricingMatrix(prev, breakdownChanged), 1)

	complianceChanged := sampleMatrix()
	complianceChanged[0].Compliance = map[string]any{"rohs": true}
	require.Len(t, diff.DiffPricingMatrix(prev, complianceChanged), 1)
}

func TestGeneratePricingDiffFactorLineItems(t *testing.T) {
	prev := row(10, 40, 7, map[string]float64{"setup": 7.5, "material": 10, "margin": 12})
	next := row(10, 42, 7, map[string]float64{"setup": 7.5, "material": 12.5, "margin": 12})

	d := diff.GeneratePricingDiff(prev, next, diff.Metadata{
		OldPricingVersion: "2026.08",
		NewPricingVersion: "2026.08",
	})

	require.Len(t, d.LineItems, 1)
	item := d.LineItems[0]
	assert.Equal(t, "material", item.Factor)
	assert.Equal(t, 10.0, item.Old)
	assert.Equal(t, 12.5, item.New)
	assert.InDelta(t, 2.5, item.Delta, 0.001)
	assert.InDelta(t, 25.0, item.DeltaPct, 0.001)
	assert.Equal(t, "25.0% change", item.Reason)

	assert.InDelta(t, 20.0, d.TotalDelta, 0.001)
	assert.InDelta(t, 5.0, d.PctDelta, 0.001)
	assert.Empty(t, d.Warnings)
}

func TestGeneratePricingDiffSmallDeltaHasNoReason(t *testing.T) {
	prev := row(10, 40, 7, map[string]float64{"material": 10})
	next := row(10, 40.05, 7, map[string]float64{"material": 10.5})

	d := diff.GeneratePricingDiff(prev, next, diff.Metadata{})
	require.Len(t, d.LineItems, 1)
	assert.Empty(t, d.LineItems[0].Reason)
}

func TestGeneratePricingDiffWarnings(t *testing.T) {
	prev := row(10, 40, 7, map[string]float64{"material": 10})
	next := row(10, 55, 14, map[string]float64{"material": 25})

	d := diff.GeneratePricingDiff(prev, next, diff.Metadata{
		OldPricingVersion: "2026.07",
		NewPricingVersion: "2026.08",
		CatalogChanged:    true,
	})

	assert.Equal(t, 7, d.LeadTimeDeltaDays)
	require.Len(t, d.Warnings, 4)
	assert.Contains(t, d.Warnings[0], "2026.07")
	assert.Contains(t, d.Warnings[0], "2026.08")
	assert.Contains(t, d.Warnings[1], "catalog has been updated")
	assert.Contains(t, d.Warnings[2], "exceeds 20%")
	assert.Contains(t, d.Warnings[3], "lead time increased by 7 days")
}

func TestGeneratePricingDiffZeroOldBaseline(t *testing.T) {
	prev := row(10, 0, 7, map[string]float64{})
	prev.TotalPrice = 0
	next := row(10, 5, 7, map[string]float64{"material": 5})

	d := diff.GeneratePricingDiff(prev, next, diff.Metadata{})
	assert.Equal(t, 100.0, d.PctDelta)
	require.Len(t, d.LineItems, 1)
	assert.Equal(t, 100.0, d.LineItems[0].DeltaPct)
}

func TestSubtotalDeltaSingleLinePriceChange(t *testing.T) {
	matrixA := pricingdomain.PriceMatrix{row(1, 100, 7, nil)}
	matrixB := pricingdomain.PriceMatrix{row(1, 50, 7, nil)}
	newMatrixA := pricingdomain.PriceMatrix{row(1, 90, 7, nil)}

	delta := diff.ComputeSelectedSubtotalDelta(diff.SubtotalDeltaInput{
		PrevItems: []diff.LineSelection{
			{LineID: "A", Matrix: matrixA, SelectedQuantity: 1},
			{LineID: "B", Matrix: matrixB, SelectedQuantity: 1},
		},
		UpdatedLineID:       "A",
		NewMatrix:           newMatrixA,
		NewSelectedQuantity: 1,
	})
	assert.Equal(t, -10.0, delta)
}

func TestSubtotalDeltaQuantitySwitch(t *testing.T) {
	prevMatrix := pricingdomain.PriceMatrix{
		row(1, 100, 7, nil),
		row(5, 80, 7, nil),
	}
	newMatrix := pricingdomain.PriceMatrix{
		row(1, 100, 7, nil),
		row(5, 75, 7, nil),
	}

	delta := diff.ComputeSelectedSubtotalDelta(diff.SubtotalDeltaInput{
		PrevItems: []diff.LineSelection{
			{LineID: "A", Matrix: prevMatrix, SelectedQuantity: 1},
		},
		UpdatedLineID:       "A",
		NewMatrix:           newMatrix,
		NewSelectedQuantity: 5,
	})
	assert.Equal(t, 275.0, delta)
}

func TestSubtotalDeltaUnchangedLinesCancel(t *testing.T) {
	matrix := pricingdomain.PriceMatrix{row(1, 100, 7, nil)}

	delta := diff.ComputeSelectedSubtotalDelta(diff.SubtotalDeltaInput{
		PrevItems: []diff.LineSelection{
			{LineID: "A", Matrix: matrix, SelectedQuantity: 1},
			{LineID: "B", Matrix: matrix, SelectedQuantity: 1},
			{LineID: "C", Matrix: matrix, SelectedQuantity: 1},
		},
		UpdatedLineID:       "B",
		NewMatrix:           matrix,
		NewSelectedQuantity: 1,
	})
	assert.Equal(t, 0.0, delta)
}
