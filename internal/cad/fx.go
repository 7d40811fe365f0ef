package cad

import "go.uber.org/fx"

var Module = fx.Module("cad",
	fx.Provide(NewClient),
)
