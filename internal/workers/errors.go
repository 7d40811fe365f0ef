// Package workers holds the job processors behind the async pipeline. Each
// processor owns one job type; the queue's worker pool drives them.
package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/quoteforgelabs/quoteforge/internal/cad"
	jobdomain "github.com/quoteforgelabs/quoteforge/internal/job/domain"
	pricingdomain "github.com/quoteforgelabs/quoteforge/internal/pricing/domain"
)

// classifyCAD tags a CAD service failure with a retry class. 4xx responses
// and hash mismatches are terminal; everything else may succeed on retry.
func classifyCAD(op string, err error) error {
	if errors.Is(err, cad.ErrHashMismatch) {
		return jobdomain.WrapError(jobdomain.KindHashMismatch, op, err)
	}
	var se *cad.StatusError
	if errors.As(err, &se) {
		if se.Temporary() {
			return jobdomain.WrapError(jobdomain.KindTransient, op, err)
		}
		return jobdomain.WrapError(jobdomain.KindValidation, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return jobdomain.WrapError(jobdomain.KindTimeout, op, err)
	}
	return jobdomain.WrapError(jobdomain.KindTransient, op, err)
}

// classifyPricing tags a pricing computation failure. Configuration and
// validation errors are terminal.
func classifyPricing(op string, err error) error {
	switch {
	case errors.Is(err, pricingdomain.ErrUnknownConfiguration):
		return jobdomain.WrapError(jobdomain.KindUnknownConfiguration, op, err)
	case errors.Is(err, pricingdomain.ErrInvalidQuantity),
		errors.Is(err, pricingdomain.ErrMissingGeometry):
		return jobdomain.WrapError(jobdomain.KindValidation, op, err)
	default:
		return jobdomain.WrapError(jobdomain.KindInternal, op, err)
	}
}

func decodePayload(job *jobdomain.Job, v any) error {
	if err := json.Unmarshal(job.Payload, v); err != nil {
		return jobdomain.WrapError(jobdomain.KindValidation,
			fmt.Sprintf("malformed %s payload", job.Type), err)
	}
	return nil
}
