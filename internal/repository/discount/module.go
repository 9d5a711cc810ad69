package discount

import "go.uber.org/fx"

// Module provides the discount code repository to Fx.
var Module = fx.Provide(NewRepository)
