package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	obsmetrics "github.com/quoteforgelabs/quoteforge/internal/observability/metrics"
	pricingdomain "github.com/quoteforgelabs/quoteforge/internal/pricing/domain"
	"github.com/quoteforgelabs/quoteforge/internal/pricinghash"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Redis   *redis.Client `optional:"true"`
	Log     *zap.Logger
	Catalog *pricingdomain.Catalog
	Metrics *obsmetrics.PricingMetrics `optional:"true"`
}

type service struct {
	log     *zap.Logger
	catalog *pricingdomain.Catalog
	cache   *matrixCache
	metrics *obsmetrics.PricingMetrics
}

func NewService(p ServiceParam) pricingdomain.Service {
	var cache *matrixCache
	if p.Redis != nil {
		cache = newMatrixCache(p.Redis, 10*time.Minute)
	}
	return &service{
		log:     p.Log.Named("pricing.service"),
		catalog: p.Catalog,
		cache:   cache,
		metrics: p.Metrics,
	}
}

func (s *service) ComputeMatrix(ctx context.Context, req pricingdomain.ComputeRequest) (pricingdomain.PriceMatrix, error) {
	start := time.Now()
	if err := s.validate(req); err != nil {
		return nil, err
	}

	process := strings.ToLower(strings.TrimSpace(req.Process))
	material := strings.ToLower(strings.TrimSpace(req.Material))

	procCfg, ok := s.catalog.Processes[process]
	if !ok {
		return nil, fmt.Errorf("process %q: %w", req.Process, pricingdomain.ErrUnknownConfiguration)
	}
	matCfg, ok := s.catalog.Materials[material]
	if !ok {
		return nil, fmt.Errorf("material %q: %w", req.Material, pricingdomain.ErrUnknownConfiguration)
	}
	tolCfg, err := s.toleranceConfig(req.ToleranceClass)
	if err != nil {
		return nil, err
	}
	finishes, err := s.finishConfigs(req.Finishes)
	if err != nil {
		return nil, err
	}
	if err := s.requireGeometry(procCfg, req.Geometry); err != nil {
		return nil, err
	}

	cacheKey, err := s.cacheKey(req, process, material)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if matrix, ok := s.cache.Get(ctx, cacheKey); ok {
			if s.metrics != nil {
				s.metrics.IncCacheHit()
			}
			return matrix, nil
		}
	}

	matrix := make(pricingdomain.PriceMatrix, 0, len(req.Quantities))
	for _, qty := range req.Quantities {
		matrix = append(matrix, s.computeRow(req, procCfg, matCfg, tolCfg, finishes, qty))
	}

	if s.cache != nil {
		s.cache.Put(ctx, cacheKey, matrix)
	}
	if s.metrics != nil {
		s.metrics.IncCompute(process)
		s.metrics.ObserveLatency(time.Since(start))
	}
	return matrix, nil
}

func (s *service) validate(req pricingdomain.ComputeRequest) error {
	if len(req.Quantities) == 0 {
		return fmt.Errorf("no quantities requested: %w", pricingdomain.ErrInvalidQuantity)
	}
	for _, qty := range req.Quantities {
		if qty <= 0 {
			return fmt.Errorf("quantity %d: %w", qty, pricingdomain.ErrInvalidQuantity)
		}
	}
	return nil
}

func (s *service) requireGeometry(procCfg pricingdomain.ProcessConfig, geo pricingdomain.Geometry) error {
	if procCfg.RequiresVolume && geo.VolumeCC <= 0 {
		return fmt.Errorf("volume_cc required: %w", pricingdomain.ErrMissingGeometry)
	}
	if procCfg.RequiresSurfaceArea && geo.SurfaceAreaCM2 <= 0 {
		return fmt.Errorf("surface_area_cm2 required: %w", pricingdomain.ErrMissingGeometry)
	}
	return nil
}

func (s *service) toleranceConfig(class string) (pricingdomain.ToleranceConfig, error) {
	if class == "" {
		class = "standard"
	}
	cfg, ok := s.catalog.Tolerances[strings.ToLower(class)]
	if !ok {
		return pricingdomain.ToleranceConfig{}, fmt.Errorf("tolerance %q: %w", class, pricingdomain.ErrUnknownConfiguration)
	}
	return cfg, nil
}

func (s *service) finishConfigs(codes []string) ([]pricingdomain.FinishConfig, error) {
	out := make([]pricingdomain.FinishConfig, 0, len(codes))
	for _, code := range codes {
		cfg, ok := s.catalog.Finishes[strings.ToLower(code)]
		if !ok {
			return nil, fmt.Errorf("finish %q: %w", code, pricingdomain.ErrUnknownConfiguration)
		}
		out = append(out, cfg)
	}
	return out, nil
}

func (s *service) cacheKey(req pricingdomain.ComputeRequest, process, material string) (string, error) {
	tolerances := map[string]any{}
	if req.ToleranceClass != "" {
		tolerances["class"] = req.ToleranceClass
	}
	hash, err := pricinghash.ComputeInputHash(pricinghash.Inputs{
		Process:    process,
		Material:   material,
		Quantities: req.Quantities,
		Tolerances: tolerances,
		Finishes:   req.Finishes,
		Region:     req.Region,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("pricing:cache:%s:%s", req.OrgID, hash), nil
}

// computeRow prices one quantity independently. Setup amortization and the
// quantity-break discount are the only quantity-dependent terms; both move
// per-unit cost down (or hold it) as quantity grows, which keeps the
// per-unit price curve monotonically non-increasing.
func (s *service) computeRow(
	req pricingdomain.ComputeRequest,
	procCfg pricingdomain.ProcessConfig,
	matCfg pricingdomain.MaterialConfig,
	tolCfg pricingdomain.ToleranceConfig,
	finishes []pricingdomain.FinishConfig,
	qty int,
) pricingdomain.PriceMatrixRow {
	machineMinutes := s.estimateMachineMinutes(procCfg, req.Geometry)

	setup := procCfg.SetupCost / float64(qty)
	machine := (machineMinutes / 60) * procCfg.MachineRatePerHour * tolCfg.Multiplier
	materialCost := req.Geometry.VolumeCC * matCfg.DensityKgPerCC * matCfg.CostPerKg * matCfg.WasteFactor

	finishCost := 0.0
	leadDays := procCfg.BaseLeadDays
	for _, f := range finishes {
		finishCost += f.CostPerUnit
		leadDays += f.LeadDaysAdd
	}

	inspection := procCfg.InspectionCost * tolCfg.Multiplier

	risk := 0.0
	for _, flag := range req.Geometry.RiskFlags {
		risk += s.catalog.RiskAdders[strings.ToLower(flag)]
	}

	overhead := procCfg.OverheadPct * (machine + materialCost + setup)

	costBeforeMargin := setup + machine + materialCost + finishCost + inspection + risk + overhead
	margin := costBeforeMargin * procCfg.MarginPct

	unitPrice := (costBeforeMargin + margin) * (1 - s.discountFraction(qty))

	leadDays += s.catalog.LeadTimeDelta[strings.ToLower(req.LeadTimeClass)]
	if leadDays < 1 {
		leadDays = 1
	}

	unitPrice = round2(unitPrice)
	row := pricingdomain.PriceMatrixRow{
		Quantity:     qty,
		UnitPrice:    unitPrice,
		TotalPrice:   round2(unitPrice * float64(qty)),
		LeadTimeDays: leadDays,
		Breakdown: map[string]float64{
			pricingdomain.FactorSetup:       round2(setup),
			pricingdomain.FactorMachineTime: round2(machine),
			pricingdomain.FactorMaterial:    round2(materialCost),
			pricingdomain.FactorFinish:      round2(finishCost),
			pricingdomain.FactorInspection:  round2(inspection),
			pricingdomain.FactorRisk:        round2(risk),
			pricingdomain.FactorOverhead:    round2(overhead),
			pricingdomain.FactorMargin:      round2(margin),
		},
	}
	if len(matCfg.Compliance) > 0 {
		row.Compliance = matCfg.Compliance
	}
	return row
}

func (s *service) estimateMachineMinutes(procCfg pricingdomain.ProcessConfig, geo pricingdomain.Geometry) float64 {
	minutes := 0.0
	for kind, count := range geo.Features {
		if count <= 0 {
			continue
		}
		minutes += float64(count) * procCfg.FeatureMinutes[strings.ToLower(kind)]
	}
	if minutes == 0 && geo.VolumeCC > 0 && procCfg.RemovalRateCCPerMin > 0 {
		minutes = (geo.VolumeCC / procCfg.RemovalRateCCPerMin) * 0.25
		if minutes < 0.5 {
			minutes = 0.5
		}
	}
	return minutes
}

// discountFraction returns the highest matching quantity break as a
// fraction. Breaks are sorted by MinQty ascending in the catalog.
func (s *service) discountFraction(qty int) float64 {
	discount := 0.0
	for _, br := range s.catalog.QuantityBreaks {
		if qty >= br.MinQty {
			discount = br.DiscountPct
		}
	}
	return discount / 100
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
