package quote

import (
	"github.com/quoteforgelabs/quoteforge/internal/quote/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("quote",
	fx.Provide(repository.Provide),
)
