package revision

import (
	"github.com/quoteforgelabs/quoteforge/internal/revision/repository"
	"github.com/quoteforgelabs/quoteforge/internal/revision/service"
	"go.uber.org/fx"
)

var Module = fx.Module("revision",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
