package catalog

import (
	"go.uber.org/fx"
)

// Module provides catalog dependencies via fx
var Module = fx.Module("catalog",
	fx.Provide(
		NewRepository,
		NewCache,
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
