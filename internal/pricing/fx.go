package pricing

import (
	"github.com/quoteforgelabs/quoteforge/internal/pricing/domain"
	"github.com/quoteforgelabs/quoteforge/internal/pricing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pricing",
	fx.Provide(
		domain.DefaultCatalog,
		service.NewService,
	),
)
