package observability

import (
	"github.com/quoteforgelabs/quoteforge/internal/observability/metrics"
	"go.uber.org/fx"
)

// Module provides prometheus metric handles shared across the queue,
// workers, and pricing service.
var Module = fx.Module("observability",
	fx.Provide(metrics.NewJobMetrics),
	fx.Provide(metrics.NewPricingMetrics),
)
