package workers

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	jobdomain "github.com/quoteforgelabs/quoteforge/internal/job/domain"
	pricingdomain "github.com/quoteforgelabs/quoteforge/internal/pricing/domain"
	quotedomain "github.com/quoteforgelabs/quoteforge/internal/quote/domain"
	revisiondomain "github.com/quoteforgelabs/quoteforge/internal/revision/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PricingBatchPayload prices every line of a quote in one pass.
type PricingBatchPayload struct {
	QuoteID string             `json:"quote_id"`
	UserID  string             `json:"user_id,omitempty"`
	Lines   []PricingBatchLine `json:"lines"`
	Note    string             `json:"note,omitempty"`
}

type PricingBatchLine struct {
	LineID  string                       `json:"line_id"`
	PartID  string                       `json:"part_id,omitempty"`
	Request pricingdomain.ComputeRequest `json:"request"`
	// SelectedQuantity picks the row used for the quote subtotal. Falls
	// back to the first requested quantity.
	SelectedQuantity int `json:"selected_quantity,omitempty"`
}

// PricingBatchLineResult reports one line's outcome. Failed lines carry the
// error; the batch continues past them.
type PricingBatchLineResult struct {
	LineID           string                    `json:"line_id"`
	OK               bool                      `json:"ok"`
	Matrix           pricingdomain.PriceMatrix `json:"matrix,omitempty"`
	SelectedQuantity int                       `json:"selected_quantity,omitempty"`
	SelectedTotal    float64                   `json:"selected_total,omitempty"`
	Error            string                    `json:"error,omitempty"`
	ErrorKind        string                    `json:"error_kind,omitempty"`
}

type PricingBatchResult struct {
	QuoteID string `json:"quote_id"`
	// BatchHash fingerprints the pricing-relevant inputs of the batch.
	BatchHash       string                   `json:"batch_hash"`
	Subtotal        float64                  `json:"subtotal"`
	Lines           []PricingBatchLineResult `json:"lines"`
	FailedLines     int                      `json:"failed_lines"`
	RevisionID      string                   `json:"revision_id,omitempty"`
	RevisionVersion int                      `json:"revision_version,omitempty"`
}

type PricingBatchParams struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Pricing   pricingdomain.Service
	QuoteRepo quotedomain.Repository
	Revisions revisiondomain.Writer
	Catalog   *pricingdomain.Catalog
}

// PricingBatchProcessor reprices a quote line by line, updates the quote's
// selected totals, and records a system_reprice revision when the pricing
// inputs changed.
type PricingBatchProcessor struct {
	db        *gorm.DB
	log       *zap.Logger
	pricing   pricingdomain.Service
	quoteRepo quotedomain.Repository
	revisions revisiondomain.Writer
	catalog   *pricingdomain.Catalog
}

func NewPricingBatch(p PricingBatchParams) *PricingBatchProcessor {
	return &PricingBatchProcessor{
		db:        p.DB,
		log:       p.Log.Named("workers.pricing_batch"),
		pricing:   p.Pricing,
		quoteRepo: p.QuoteRepo,
		revisions: p.Revisions,
		catalog:   p.Catalog,
	}
}

func (w *PricingBatchProcessor) Type() string { return jobdomain.TypePricingBatch }

func (w *PricingBatchProcessor) Process(ctx context.Context, job *jobdomain.Job, rep jobdomain.Reporter) (any, error) {
	var payload PricingBatchPayload
	if err := decodePayload(job, &payload); err != nil {
		return nil, err
	}
	quoteID, err := snowflake.ParseString(payload.QuoteID)
	if err != nil {
		return nil, jobdomain.WrapError(jobdomain.KindValidation, "invalid quote_id", err)
	}
	if len(payload.Lines) == 0 {
		return nil, jobdomain.NewError(jobdomain.KindValidation, "no lines to price")
	}

	quote, err := w.quoteRepo.FindByID(ctx, w.db, job.OrgID, quoteID)
	if errors.Is(err, quotedomain.ErrNotFound) {
		return nil, jobdomain.WrapError(jobdomain.KindValidation, "quote not found", err)
	}
	if err != nil {
		return nil, err
	}

	result := PricingBatchResult{
		QuoteID: payload.QuoteID,
		Lines:   make([]PricingBatchLineResult, 0, len(payload.Lines)),
	}
	selected := make([]quotedomain.SelectedLine, 0, len(payload.Lines))
	snapLines := make([]quotedomain.SnapshotLine, 0, len(payload.Lines))
	var firstErr error

	for i, line := range payload.Lines {
		if err := rep.Checkpoint(ctx); err != nil {
			return nil, err
		}

		req := line.Request
		req.OrgID = job.OrgID.String()
		matrix, err := w.pricing.ComputeMatrix(ctx, req)
		if err != nil {
			classified := classifyPricing(fmt.Sprintf("price line %s", line.LineID), err)
			if firstErr == nil {
				firstErr = classified
			}
			result.FailedLines++
			result.Lines = append(result.Lines, PricingBatchLineResult{
				LineID:    line.LineID,
				Error:     err.Error(),
				ErrorKind: string(jobdomain.Classify(classified)),
			})
			w.log.Warn("line pricing failed",
				zap.String("quote_id", payload.QuoteID),
				zap.String("line_id", line.LineID),
				zap.Error(err))
			continue
		}

		qty := line.SelectedQuantity
		row, ok := matrix.RowAt(qty)
		if !ok {
			row = matrix[0]
			qty = row.Quantity
		}

		selected = append(selected, quotedomain.SelectedLine{
			LineID:           line.LineID,
			SelectedQuantity: qty,
			SelectedTotal:    row.TotalPrice,
		})
		snapLines = append(snapLines, w.snapshotLine(line, qty, row))
		result.Subtotal += row.TotalPrice
		result.Lines = append(result.Lines, PricingBatchLineResult{
			LineID:           line.LineID,
			OK:               true,
			Matrix:           matrix,
			SelectedQuantity: qty,
			SelectedTotal:    row.TotalPrice,
		})

		pct := 10 + (80*(i+1))/len(payload.Lines)
		rep.Progress(ctx, pct, fmt.Sprintf("priced line %d of %d", i+1, len(payload.Lines)), map[string]any{
			"line_id": line.LineID,
		})
	}

	if len(snapLines) == 0 {
		return nil, firstErr
	}

	if err := w.quoteRepo.UpdateSelectedLines(ctx, w.db, job.OrgID, quoteID, selected, result.Subtotal); err != nil {
		return nil, err
	}

	snapshot := quotedomain.Snapshot{
		SchemaVersion: quotedomain.SnapshotSchemaVersion,
		Header: quotedomain.SnapshotHeader{
			Currency: quote.Currency,
		},
		Lines: snapLines,
	}

	var userID *snowflake.ID
	if payload.UserID != "" {
		uid, err := snowflake.ParseString(payload.UserID)
		if err != nil {
			return nil, jobdomain.WrapError(jobdomain.KindValidation, "invalid user_id", err)
		}
		userID = &uid
	}

	rep.Progress(ctx, 95, "writing revision", nil)
	rev, err := w.revisions.CreateRevisionIfChanged(ctx, revisiondomain.CreateRevisionInput{
		OrgID:     job.OrgID,
		QuoteID:   quoteID,
		UserID:    userID,
		EventType: revisiondomain.EventSystemReprice,
		Snapshot:  snapshot,
		Note:      payload.Note,
	})
	if err != nil {
		return nil, err
	}
	if rev != nil {
		result.BatchHash = rev.PricingHash
		result.RevisionID = rev.ID.String()
		result.RevisionVersion = rev.Version
	} else {
		// Unchanged inputs: reuse the quote's current baseline hash.
		result.BatchHash = quote.PricingHash
	}

	w.log.Info("priced batch",
		zap.String("quote_id", payload.QuoteID),
		zap.Int("lines", len(payload.Lines)),
		zap.Int("failed_lines", result.FailedLines),
		zap.Float64("subtotal", result.Subtotal),
		zap.Bool("revision_created", rev != nil))
	return &result, nil
}

// snapshotLine projects one priced line into the revision snapshot shape.
// Inputs carry everything pricing-relevant; outputs carry the selected row.
func (w *PricingBatchProcessor) snapshotLine(line PricingBatchLine, qty int, row pricingdomain.PriceMatrixRow) quotedomain.SnapshotLine {
	req := line.Request
	inputs := map[string]any{
		"process":           req.Process,
		"material":          req.Material,
		"quantity":          qty,
		"volume_cc":         req.Geometry.VolumeCC,
		"surface_area_cm2":  req.Geometry.SurfaceAreaCM2,
		"catalog_version":   w.catalog.Version,
		"selected_quantity": qty,
	}
	if len(req.Geometry.Features) > 0 {
		inputs["features"] = req.Geometry.Features
	}
	if len(req.Geometry.RiskFlags) > 0 {
		inputs["risk_flags"] = req.Geometry.RiskFlags
	}
	if req.ToleranceClass != "" {
		inputs["tolerance_class"] = req.ToleranceClass
	}
	if len(req.Finishes) > 0 {
		inputs["finishes"] = req.Finishes
	}
	if req.LeadTimeClass != "" {
		inputs["lead_time_class"] = req.LeadTimeClass
	}
	if req.Region != "" {
		inputs["region"] = req.Region
	}

	breakdown := map[string]any{}
	for factor, amount := range row.Breakdown {
		breakdown[factor] = amount
	}

	return quotedomain.SnapshotLine{
		LineID: line.LineID,
		PartID: line.PartID,
		Inputs: inputs,
		Outputs: map[string]any{
			"unit_price":       row.UnitPrice,
			"total_price":      row.TotalPrice,
			"lead_days":        row.LeadTimeDays,
			"factor_breakdown": breakdown,
			"pricing_version":  w.catalog.Version,
		},
	}
}
