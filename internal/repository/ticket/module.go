package ticket

import "go.uber.org/fx"

// Module provides the ticket repository to Fx.
var Module = fx.Provide(NewRepository)
