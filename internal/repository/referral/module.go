package referral

import "go.uber.org/fx"

// Module provides the referral code repository to Fx.
var Module = fx.Provide(NewRepository)
