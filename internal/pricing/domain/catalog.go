package domain

// Catalog is the pricing configuration: per-process rates, material costs,
// finish adders, tolerance multipliers, and the risk-feature matrix.
// Multipliers are illustrative defaults; production deployments load a
// tuned catalog.
type Catalog struct {
	Version    string
	Processes  map[string]ProcessConfig
	Materials  map[string]MaterialConfig
	Finishes   map[string]FinishConfig
	Tolerances map[string]ToleranceConfig
	// RiskAdders maps geometry risk flags (thin_walls, undercuts, ...)
	// to a per-unit cost adder.
	RiskAdders map[string]float64
	// QuantityBreaks is a non-decreasing discount schedule; the highest
	// matching break applies.
	QuantityBreaks []QuantityBreak
	LeadTimeDelta  map[string]int
}

type ProcessConfig struct {
	SetupCost          float64
	MachineRatePerHour float64
	// RemovalRateCCPerMin drives the volume-based cycle time fallback.
	RemovalRateCCPerMin float64
	// FeatureMinutes maps detected feature kinds to machine minutes each.
	FeatureMinutes map[string]float64
	BaseLeadDays   int
	// RequiresVolume / RequiresSurfaceArea declare the geometry inputs
	// the process cannot price without.
	RequiresVolume      bool
	RequiresSurfaceArea bool
	InspectionCost      float64
	OverheadPct         float64
	MarginPct           float64
}

type MaterialConfig struct {
	DensityKgPerCC float64
	CostPerKg      float64
	WasteFactor    float64
	Compliance     map[string]any
}

type FinishConfig struct {
	CostPerUnit float64
	LeadDaysAdd int
}

type ToleranceConfig struct {
	Multiplier float64
}

type QuantityBreak struct {
	MinQty      int
	DiscountPct float64
}

// DefaultCatalog returns the built-in illustrative catalog.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Version: "2026.08",
		Processes: map[string]ProcessConfig{
			"cnc": {
				SetupCost:           75,
				MachineRatePerHour:  85,
				RemovalRateCCPerMin: 8,
				FeatureMinutes: map[string]float64{
					"holes":   0.25,
					"pockets": 0.8,
					"slots":   0.4,
					"faces":   0.15,
					"threads": 0.5,
				},
				BaseLeadDays:   7,
				RequiresVolume: true,
				InspectionCost: 1.5,
				OverheadPct:    0.15,
				MarginPct:      0.35,
			},
			"sheet-metal": {
				SetupCost:          45,
				MachineRatePerHour: 70,
				FeatureMinutes: map[string]float64{
					"bends":   0.6,
					"holes":   0.1,
					"corners": 0.05,
				},
				BaseLeadDays:        5,
				RequiresSurfaceArea: true,
				InspectionCost:      0.8,
				OverheadPct:         0.12,
				MarginPct:           0.30,
			},
			"injection-molding": {
				SetupCost:           4500,
				MachineRatePerHour:  60,
				RemovalRateCCPerMin: 30,
				FeatureMinutes:      map[string]float64{},
				BaseLeadDays:        21,
				RequiresVolume:      true,
				InspectionCost:      0.2,
				OverheadPct:         0.10,
				MarginPct:           0.30,
			},
		},
		Materials: map[string]MaterialConfig{
			"al6061": {
				DensityKgPerCC: 0.0027,
				CostPerKg:      6.5,
				WasteFactor:    1.25,
				Compliance:     map[string]any{"rohs": true, "reach": true},
			},
			"ss304": {
				DensityKgPerCC: 0.008,
				CostPerKg:      4.8,
				WasteFactor:    1.2,
				Compliance:     map[string]any{"rohs": true, "reach": true},
			},
			"abs": {
				DensityKgPerCC: 0.0011,
				CostPerKg:      2.4,
				WasteFactor:    1.05,
				Compliance:     map[string]any{"rohs": true, "ul94": "hb"},
			},
		},
		Finishes: map[string]FinishConfig{
			"anodize":     {CostPerUnit: 2.5, LeadDaysAdd: 2},
			"bead-blast":  {CostPerUnit: 1.2, LeadDaysAdd: 1},
			"powder-coat": {CostPerUnit: 3.0, LeadDaysAdd: 2},
		},
		Tolerances: map[string]ToleranceConfig{
			"standard":  {Multiplier: 1.0},
			"precision": {Multiplier: 1.15},
			"high":      {Multiplier: 1.35},
		},
		RiskAdders: map[string]float64{
			"thin_walls":   1.8,
			"undercuts":    2.5,
			"deep_pockets": 1.2,
			"small_holes":  0.6,
		},
		QuantityBreaks: []QuantityBreak{
			{MinQty: 10, DiscountPct: 5},
			{MinQty: 50, DiscountPct: 10},
			{MinQty: 250, DiscountPct: 18},
			{MinQty: 1000, DiscountPct: 25},
		},
		LeadTimeDelta: map[string]int{
			"economy":  3,
			"standard": 0,
			"expedite": -2,
		},
	}
}
