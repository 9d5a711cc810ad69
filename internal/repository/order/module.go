package order

import "go.uber.org/fx"

// Module provides the order repository, the only writer of order status, to Fx.
var Module = fx.Provide(NewRepository)
