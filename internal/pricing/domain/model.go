// Package domain defines the pricing computation contract: requests,
// price matrices, and the factor taxonomy shared with the diff engine.
package domain

import "context"

// Factor names used as breakdown keys. The diff engine operates
// factor-by-factor over these.
const (
	FactorSetup       = "setup"
	FactorMachineTime = "machine_time"
	FactorMaterial    = "material"
	FactorFinish      = "finish"
	FactorInspection  = "inspection"
	FactorRisk        = "risk"
	FactorOverhead    = "overhead"
	FactorMargin      = "margin"
)

// Geometry carries the geometry-derived features a pricing request needs.
// Produced by the CAD service; treated as opaque measurements here.
type Geometry struct {
	VolumeCC       float64        `json:"volume_cc"`
	SurfaceAreaCM2 float64        `json:"surface_area_cm2"`
	Features       map[string]int `json:"features,omitempty"`
	RiskFlags      []string       `json:"risk_flags,omitempty"`
}

// ComputeRequest asks for a price matrix covering one part configuration
// across one or more quantities.
type ComputeRequest struct {
	OrgID          string   `json:"org_id"`
	Process        string   `json:"process"`
	Material       string   `json:"material"`
	Quantities     []int    `json:"quantities"`
	Geometry       Geometry `json:"geometry"`
	Finishes       []string `json:"finishes,omitempty"`
	ToleranceClass string   `json:"tolerance_class,omitempty"`
	LeadTimeClass  string   `json:"lead_time_class,omitempty"`
	Region         string   `json:"region,omitempty"`
}

// PriceMatrixRow is one quantity's quotation with its per-factor cost
// breakdown. Monetary amounts are rounded to 2 decimals; breakdown values
// are per-unit amounts.
type PriceMatrixRow struct {
	Quantity     int                `json:"quantity"`
	UnitPrice    float64            `json:"unit_price"`
	TotalPrice   float64            `json:"total_price"`
	LeadTimeDays int                `json:"lead_time_days"`
	Breakdown    map[string]float64 `json:"breakdown"`
	Compliance   map[string]any     `json:"compliance,omitempty"`
}

// PriceMatrix is an ordered list of rows, one per requested quantity, in
// request order.
type PriceMatrix []PriceMatrixRow

// RowAt returns the row for a quantity and whether it exists.
func (m PriceMatrix) RowAt(quantity int) (PriceMatrixRow, bool) {
	for _, row := range m {
		if row.Quantity == quantity {
			return row, true
		}
	}
	return PriceMatrixRow{}, false
}

// TotalAt returns the total price at a quantity, or 0 when the matrix has
// no row for it.
func (m PriceMatrix) TotalAt(quantity int) float64 {
	row, ok := m.RowAt(quantity)
	if !ok {
		return 0
	}
	return row.TotalPrice
}

type Service interface {
	// ComputeMatrix computes one row per requested quantity. Pure over
	// its inputs apart from the read-through cache.
	ComputeMatrix(ctx context.Context, req ComputeRequest) (PriceMatrix, error)
}
