package workers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"github.com/quoteforgelabs/quoteforge/internal/canonical"
	jobdomain "github.com/quoteforgelabs/quoteforge/internal/job/domain"
	pricingdomain "github.com/quoteforgelabs/quoteforge/internal/pricing/domain"
	"github.com/quoteforgelabs/quoteforge/internal/pricing/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Catalog roots an admin revision proposal may touch. Anything outside this
// set is rejected before any adjustment is applied.
var adjustableRoots = map[string]struct{}{
	"materials":       {},
	"machines":        {},
	"risk_matrix":     {},
	"overhead_margin": {},
	"speed_region":    {},
}

// CatalogAdjustment is one proposed change to a catalog entry.
type CatalogAdjustment struct {
	Root  string  `json:"root"`
	Key   string  `json:"key"`
	Field string  `json:"field,omitempty"`
	Value float64 `json:"value"`
}

// AdminRevisionPayload proposes a set of catalog adjustments. When a sample
// request is included, the result carries a before/after pricing preview.
type AdminRevisionPayload struct {
	Adjustments []CatalogAdjustment           `json:"adjustments"`
	Note        string                        `json:"note,omitempty"`
	Sample      *pricingdomain.ComputeRequest `json:"sample,omitempty"`
}

// AppliedAdjustment echoes one adjustment with the value it replaced.
type AppliedAdjustment struct {
	CatalogAdjustment
	OldValue float64 `json:"old_value"`
}

type AdminRevisionPreview struct {
	Before pricingdomain.PriceMatrix `json:"before"`
	After  pricingdomain.PriceMatrix `json:"after"`
	// UnitPriceDeltaPct is the change at the first sampled quantity.
	UnitPriceDeltaPct float64 `json:"unit_price_delta_pct"`
}

type AdminRevisionResult struct {
	// ProposalDigest fingerprints the adjustment set; approval flows compare
	// digests to detect a proposal changing under review.
	ProposalDigest string                `json:"proposal_digest"`
	CatalogVersion string                `json:"catalog_version"`
	Applied        []AppliedAdjustment   `json:"applied"`
	Preview        *AdminRevisionPreview `json:"preview,omitempty"`
	Warnings       []string              `json:"warnings,omitempty"`
}

type AdminRevisionParams struct {
	fx.In

	Log     *zap.Logger
	Catalog *pricingdomain.Catalog
}

// AdminRevisionProcessor validates and dry-runs catalog adjustment
// proposals. It never mutates the live catalog; the output is a reviewed
// proposal with digest and impact preview for a human to approve.
type AdminRevisionProcessor struct {
	log     *zap.Logger
	catalog *pricingdomain.Catalog
}

func NewAdminRevision(p AdminRevisionParams) *AdminRevisionProcessor {
	return &AdminRevisionProcessor{
		log:     p.Log.Named("workers.admin_revision"),
		catalog: p.Catalog,
	}
}

func (w *AdminRevisionProcessor) Type() string { return jobdomain.TypeAdminPricingRevision }

func (w *AdminRevisionProcessor) Process(ctx context.Context, job *jobdomain.Job, rep jobdomain.Reporter) (any, error) {
	var payload AdminRevisionPayload
	if err := decodePayload(job, &payload); err != nil {
		return nil, err
	}
	if len(payload.Adjustments) == 0 {
		return nil, jobdomain.NewError(jobdomain.KindValidation, "no adjustments proposed")
	}

	digest, err := proposalDigest(payload.Adjustments)
	if err != nil {
		return nil, jobdomain.WrapError(jobdomain.KindInternal, "digest proposal", err)
	}

	rep.Progress(ctx, 20, "validating adjustments", nil)
	adjusted := copyCatalog(w.catalog)
	result := AdminRevisionResult{
		ProposalDigest: digest,
		CatalogVersion: w.catalog.Version,
		Applied:        make([]AppliedAdjustment, 0, len(payload.Adjustments)),
	}
	for _, adj := range payload.Adjustments {
		old, err := applyAdjustment(adjusted, adj)
		if err != nil {
			return nil, err
		}
		result.Applied = append(result.Applied, AppliedAdjustment{CatalogAdjustment: adj, OldValue: old})
		if old != 0 && math.Abs(adj.Value-old)/math.Abs(old) > 0.5 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s/%s %s moves more than 50%% (%.4f -> %.4f)",
					adj.Root, adj.Key, adj.Field, old, adj.Value))
		}
	}

	if payload.Sample != nil {
		rep.Progress(ctx, 60, "previewing pricing impact", nil)
		preview, err := w.preview(ctx, job.OrgID.String(), *payload.Sample, adjusted)
		if err != nil {
			return nil, err
		}
		result.Preview = preview
	}

	w.log.Info("reviewed catalog adjustment proposal",
		zap.String("proposal_digest", digest),
		zap.Int("adjustments", len(result.Applied)),
		zap.Int("warnings", len(result.Warnings)))
	return &result, nil
}

// preview prices the sample request against the current and adjusted
// catalogs. The cache is bypassed so the preview reflects the proposal.
func (w *AdminRevisionProcessor) preview(ctx context.Context, orgID string, sample pricingdomain.ComputeRequest, adjusted *pricingdomain.Catalog) (*AdminRevisionPreview, error) {
	sample.OrgID = orgID

	current := service.NewService(service.ServiceParam{Log: w.log, Catalog: w.catalog})
	proposed := service.NewService(service.ServiceParam{Log: w.log, Catalog: adjusted})

	before, err := current.ComputeMatrix(ctx, sample)
	if err != nil {
		return nil, classifyPricing("preview sample against current catalog", err)
	}
	after, err := proposed.ComputeMatrix(ctx, sample)
	if err != nil {
		return nil, classifyPricing("preview sample against adjusted catalog", err)
	}

	deltaPct := 0.0
	if before[0].UnitPrice != 0 {
		deltaPct = math.Round((after[0].UnitPrice-before[0].UnitPrice)/before[0].UnitPrice*1000) / 10
	}
	return &AdminRevisionPreview{Before: before, After: after, UnitPriceDeltaPct: deltaPct}, nil
}

func proposalDigest(adjustments []CatalogAdjustment) (string, error) {
	raw, err := canonical.Marshal(adjustments)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// applyAdjustment mutates one entry of the copied catalog, returning the
// replaced value. Unknown roots, keys, or fields reject the whole proposal.
func applyAdjustment(cat *pricingdomain.Catalog, adj CatalogAdjustment) (float64, error) {
	root := strings.ToLower(adj.Root)
	if _, ok := adjustableRoots[root]; !ok {
		return 0, jobdomain.NewError(jobdomain.KindValidation,
			fmt.Sprintf("catalog root %q is not adjustable", adj.Root))
	}
	key := strings.ToLower(adj.Key)

	switch root {
	case "materials":
		cfg, ok := cat.Materials[key]
		if !ok {
			return 0, unknownEntry(adj)
		}
		var old float64
		switch adj.Field {
		case "cost_per_kg":
			old, cfg.CostPerKg = cfg.CostPerKg, adj.Value
		case "waste_factor":
			old, cfg.WasteFactor = cfg.WasteFactor, adj.Value
		case "density_kg_per_cc":
			old, cfg.DensityKgPerCC = cfg.DensityKgPerCC, adj.Value
		default:
			return 0, unknownField(adj)
		}
		cat.Materials[key] = cfg
		return old, nil

	case "machines":
		cfg, ok := cat.Processes[key]
		if !ok {
			return 0, unknownEntry(adj)
		}
		var old float64
		switch adj.Field {
		case "setup_cost":
			old, cfg.SetupCost = cfg.SetupCost, adj.Value
		case "machine_rate_per_hour":
			old, cfg.MachineRatePerHour = cfg.MachineRatePerHour, adj.Value
		case "inspection_cost":
			old, cfg.InspectionCost = cfg.InspectionCost, adj.Value
		default:
			return 0, unknownField(adj)
		}
		cat.Processes[key] = cfg
		return old, nil

	case "overhead_margin":
		cfg, ok := cat.Processes[key]
		if !ok {
			return 0, unknownEntry(adj)
		}
		var old float64
		switch adj.Field {
		case "overhead_pct":
			old, cfg.OverheadPct = cfg.OverheadPct, adj.Value
		case "margin_pct":
			old, cfg.MarginPct = cfg.MarginPct, adj.Value
		default:
			return 0, unknownField(adj)
		}
		cat.Processes[key] = cfg
		return old, nil

	case "risk_matrix":
		old, ok := cat.RiskAdders[key]
		if !ok {
			return 0, unknownEntry(adj)
		}
		cat.RiskAdders[key] = adj.Value
		return old, nil

	case "speed_region":
		old, ok := cat.LeadTimeDelta[key]
		if !ok {
			return 0, unknownEntry(adj)
		}
		cat.LeadTimeDelta[key] = int(adj.Value)
		return float64(old), nil
	}
	return 0, unknownEntry(adj)
}

func unknownEntry(adj CatalogAdjustment) error {
	return jobdomain.NewError(jobdomain.KindUnknownConfiguration,
		fmt.Sprintf("no %s entry %q", adj.Root, adj.Key))
}

func unknownField(adj CatalogAdjustment) error {
	return jobdomain.NewError(jobdomain.KindValidation,
		fmt.Sprintf("field %q of %s/%s is not adjustable", adj.Field, adj.Root, adj.Key))
}

func copyCatalog(src *pricingdomain.Catalog) *pricingdomain.Catalog {
	dst := &pricingdomain.Catalog{
		Version:        src.Version,
		Processes:      make(map[string]pricingdomain.ProcessConfig, len(src.Processes)),
		Materials:      make(map[string]pricingdomain.MaterialConfig, len(src.Materials)),
		Finishes:       make(map[string]pricingdomain.FinishConfig, len(src.Finishes)),
		Tolerances:     make(map[string]pricingdomain.ToleranceConfig, len(src.Tolerances)),
		RiskAdders:     make(map[string]float64, len(src.RiskAdders)),
		QuantityBreaks: append([]pricingdomain.QuantityBreak(nil), src.QuantityBreaks...),
		LeadTimeDelta:  make(map[string]int, len(src.LeadTimeDelta)),
	}
	for k, v := range src.Processes {
		fm := make(map[string]float64, len(v.FeatureMinutes))
		for fk, fv := range v.FeatureMinutes {
			fm[fk] = fv
		}
		v.FeatureMinutes = fm
		dst.Processes[k] = v
	}
	for k, v := range src.Materials {
		dst.Materials[k] = v
	}
	for k, v := range src.Finishes {
		dst.Finishes[k] = v
	}
	for k, v := range src.Tolerances {
		dst.Tolerances[k] = v
	}
	for k, v := range src.RiskAdders {
		dst.RiskAdders[k] = v
	}
	for k, v := range src.LeadTimeDelta {
		dst.LeadTimeDelta[k] = v
	}
	return dst
}
