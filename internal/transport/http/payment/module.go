package payment

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/config"
	"github.com/Kwazak/umnfestival2026-sub004/internal/service/cleanup"
	ordersvc "github.com/Kwazak/umnfestival2026-sub004/internal/service/order"
	"github.com/Kwazak/umnfestival2026-sub004/internal/service/reconcile"
	"github.com/Kwazak/umnfestival2026-sub004/internal/service/referral"
	"github.com/Kwazak/umnfestival2026-sub004/internal/service/synclock"
)

// Module wires the webhook, the admin endpoints and the opportunistic
// poller middleware.
var Module = fx.Options(
	fx.Provide(
		func(svc *reconcile.Service, status *ordersvc.Service, cfg config.Config, logger *zap.Logger) *Handler {
			return NewHandler(svc, status, cfg, logger)
		},
		func(
			svc *reconcile.Service,
			queue *reconcile.Queue,
			sweeper *cleanup.Sweeper,
			locks *synclock.Registry,
			referrals *referral.Service,
			status *ordersvc.Service,
			cfg config.Config,
			logger *zap.Logger,
		) *AdminHandler {
			return NewAdminHandler(AdminDeps{
				Reconciler: svc,
				Queue:      queue,
				Sweeper:    sweeper,
				Locker:     locks,
				Referrals:  referrals,
				Cache:      status,
			}, cfg, logger)
		},
	),
	fx.Invoke(func(e *echo.Echo, h *Handler, admin *AdminHandler, poller *reconcile.Poller) {
		e.Use(OpportunisticSync(poller, PollerSkipper))
		Register(e, h)
		RegisterAdmin(e, admin)
	}),
)
