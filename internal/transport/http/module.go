package http

import (
	"go.uber.org/fx"

	ordertransport "github.com/Kwazak/umnfestival2026-sub004/internal/transport/http/order"
	paymenttransport "github.com/Kwazak/umnfestival2026-sub004/internal/transport/http/payment"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	ordertransport.Module,
	paymenttransport.Module,
)
