package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	jobdomain "github.com/quoteforgelabs/quoteforge/internal/job/domain"
	pricingdomain "github.com/quoteforgelabs/quoteforge/internal/pricing/domain"
	"github.com/quoteforgelabs/quoteforge/internal/pricinghash"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const rationaleTTL = time.Hour

// PricingRationalePayload asks for a customer-facing explanation of a price.
type PricingRationalePayload struct {
	QuoteID string                       `json:"quote_id,omitempty"`
	LineID  string                       `json:"line_id,omitempty"`
	Request pricingdomain.ComputeRequest `json:"request"`
}

type PricingRationaleResult struct {
	Rationale  string   `json:"rationale"`
	Highlights []string `json:"highlights"`
	Cached     bool     `json:"cached,omitempty"`
}

type PricingRationaleParams struct {
	fx.In

	Log     *zap.Logger
	Redis   *redis.Client
	Pricing pricingdomain.Service
	Catalog *pricingdomain.Catalog
}

// PricingRationaleProcessor derives a plain-language cost explanation from
// the factor breakdown. Output is deterministic over the pricing inputs, so
// it is cached under the same input hash as the matrix itself.
type PricingRationaleProcessor struct {
	log     *zap.Logger
	rdb     *redis.Client
	pricing pricingdomain.Service
	catalog *pricingdomain.Catalog
}

func NewPricingRationale(p PricingRationaleParams) *PricingRationaleProcessor {
	return &PricingRationaleProcessor{
		log:     p.Log.Named("workers.pricing_rationale"),
		rdb:     p.Redis,
		pricing: p.Pricing,
		catalog: p.Catalog,
	}
}

func (w *PricingRationaleProcessor) Type() string { return jobdomain.TypePricingRationale }

func (w *PricingRationaleProcessor) Process(ctx context.Context, job *jobdomain.Job, rep jobdomain.Reporter) (any, error) {
	var payload PricingRationalePayload
	if err := decodePayload(job, &payload); err != nil {
		return nil, err
	}

	req := payload.Request
	req.OrgID = job.OrgID.String()

	cacheKey, err := w.cacheKey(req)
	if err != nil {
		return nil, err
	}
	if raw, err := w.rdb.Get(ctx, cacheKey).Bytes(); err == nil {
		var cached PricingRationaleResult
		if json.Unmarshal(raw, &cached) == nil {
			cached.Cached = true
			return &cached, nil
		}
	}

	rep.Progress(ctx, 25, "computing price matrix", nil)
	matrix, err := w.pricing.ComputeMatrix(ctx, req)
	if err != nil {
		return nil, classifyPricing("compute matrix for rationale", err)
	}

	rep.Progress(ctx, 75, "composing rationale", nil)
	result := w.compose(req, matrix)

	if raw, err := json.Marshal(result); err == nil {
		w.rdb.Set(ctx, cacheKey, raw, rationaleTTL)
	}
	return result, nil
}

func (w *PricingRationaleProcessor) cacheKey(req pricingdomain.ComputeRequest) (string, error) {
	tolerances := map[string]any{}
	if req.ToleranceClass != "" {
		tolerances["class"] = req.ToleranceClass
	}
	hash, err := pricinghash.ComputeInputHash(pricinghash.Inputs{
		Process:    strings.ToLower(req.Process),
		Material:   strings.ToLower(req.Material),
		Quantities: req.Quantities,
		Tolerances: tolerances,
		Finishes:   req.Finishes,
		Region:     req.Region,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("pricing:rationale:%s:%s", req.OrgID, hash), nil
}

func (w *PricingRationaleProcessor) compose(req pricingdomain.ComputeRequest, matrix pricingdomain.PriceMatrix) *PricingRationaleResult {
	base := matrix[0]

	type factorShare struct {
		name   string
		amount float64
	}
	shares := make([]factorShare, 0, len(base.Breakdown))
	var cost float64
	for name, amount := range base.Breakdown {
		shares = append(shares, factorShare{name: name, amount: amount})
		cost += amount
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].amount != shares[j].amount {
			return shares[i].amount > shares[j].amount
		}
		return shares[i].name < shares[j].name
	})

	var b strings.Builder
	fmt.Fprintf(&b, "At quantity %d the unit price is %.2f.", base.Quantity, base.UnitPrice)

	highlights := make([]string, 0, 3)
	for _, s := range shares {
		if len(highlights) == 3 || s.amount <= 0 {
			break
		}
		pct := 0.0
		if cost > 0 {
			pct = s.amount / cost * 100
		}
		highlights = append(highlights, fmt.Sprintf("%s: %.2f per unit (%.0f%% of cost)",
			factorLabel(s.name), s.amount, pct))
	}
	if len(highlights) > 0 {
		fmt.Fprintf(&b, " The largest cost driver is %s.", highlights[0])
	}

	if last := matrix[len(matrix)-1]; last.Quantity > base.Quantity && last.UnitPrice < base.UnitPrice {
		fmt.Fprintf(&b, " Ordering %d units brings the unit price down to %.2f through volume discounts and setup amortization.",
			last.Quantity, last.UnitPrice)
	}
	if len(req.Geometry.RiskFlags) > 0 {
		fmt.Fprintf(&b, " Manufacturability flags (%s) add risk surcharges.",
			strings.Join(req.Geometry.RiskFlags, ", "))
	}
	fmt.Fprintf(&b, " Estimated lead time is %d days.", base.LeadTimeDays)

	return &PricingRationaleResult{
		Rationale:  b.String(),
		Highlights: highlights,
	}
}

func factorLabel(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}
