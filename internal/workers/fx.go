package workers

import (
	"github.com/quoteforgelabs/quoteforge/internal/job/queue"
	"go.uber.org/fx"
)

// Module wires every processor into the worker pool. Registration happens
// during the invoke phase, before the pool's lifecycle OnStart runs.
var Module = fx.Module("workers",
	fx.Provide(
		NewUploadParse,
		NewMeshDecimate,
		NewPricingBatch,
		NewPricingRationale,
		NewAdminRevision,
	),
	fx.Invoke(registerProcessors),
)

func registerProcessors(
	pool *queue.Pool,
	uploadParse *UploadParseProcessor,
	meshDecimate *MeshDecimateProcessor,
	pricingBatch *PricingBatchProcessor,
	rationale *PricingRationaleProcessor,
	adminRevision *AdminRevisionProcessor,
) {
	pool.Register(uploadParse)
	pool.Register(meshDecimate)
	pool.Register(pricingBatch)
	pool.Register(rationale)
	pool.Register(adminRevision)
}
