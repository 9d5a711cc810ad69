package order

import (
	"go.uber.org/fx"

	service "github.com/Kwazak/umnfestival2026-sub004/internal/service/order"
)

// Module serves the buyer-facing status page from the cached order service.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(NewHandler, fx.From(new(*service.Service))),
	),
	fx.Invoke(Register),
)
