package app

import (
	"go.uber.org/fx"

	"github.com/Kwazak/umnfestival2026-sub004/internal/broadcast"
	"github.com/Kwazak/umnfestival2026-sub004/internal/cache"
	"github.com/Kwazak/umnfestival2026-sub004/internal/config"
	"github.com/Kwazak/umnfestival2026-sub004/internal/database"
	"github.com/Kwazak/umnfestival2026-sub004/internal/gateway"
	"github.com/Kwazak/umnfestival2026-sub004/internal/logger"
	"github.com/Kwazak/umnfestival2026-sub004/internal/mail"
	"github.com/Kwazak/umnfestival2026-sub004/internal/messaging"
	"github.com/Kwazak/umnfestival2026-sub004/internal/metrics"
	"github.com/Kwazak/umnfestival2026-sub004/internal/observability"
	repositorydiscount "github.com/Kwazak/umnfestival2026-sub004/internal/repository/discount"
	repositoryorder "github.com/Kwazak/umnfestival2026-sub004/internal/repository/order"
	repositoryreferral "github.com/Kwazak/umnfestival2026-sub004/internal/repository/referral"
	repositoryticket "github.com/Kwazak/umnfestival2026-sub004/internal/repository/ticket"
	"github.com/Kwazak/umnfestival2026-sub004/internal/scheduler"
	grpcserver "github.com/Kwazak/umnfestival2026-sub004/internal/server/grpc"
	httpserver "github.com/Kwazak/umnfestival2026-sub004/internal/server/http"
	"github.com/Kwazak/umnfestival2026-sub004/internal/service/cleanup"
	"github.com/Kwazak/umnfestival2026-sub004/internal/service/fulfillment"
	serviceorder "github.com/Kwazak/umnfestival2026-sub004/internal/service/order"
	"github.com/Kwazak/umnfestival2026-sub004/internal/service/reconcile"
	servicereferral "github.com/Kwazak/umnfestival2026-sub004/internal/service/referral"
	"github.com/Kwazak/umnfestival2026-sub004/internal/service/synclock"
	"github.com/Kwazak/umnfestival2026-sub004/internal/throttle"
	"github.com/Kwazak/umnfestival2026-sub004/internal/tickets/document"
	transporthttp "github.com/Kwazak/umnfestival2026-sub004/internal/transport/http"
	"github.com/Kwazak/umnfestival2026-sub004/internal/worker"
	workerreconcile "github.com/Kwazak/umnfestival2026-sub004/internal/worker/reconcile"
)

// Infra provides configuration, logging and connections without any domain
// services. Migrations and seeding run on top of it.
var Infra = fx.Options(
	config.Module,
	logger.Module,
	database.Module,
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	Infra,
	cache.Module,
	messaging.Module,
	metrics.Module,
	observability.Module,
	repositoryorder.Module,
	repositoryticket.Module,
	repositorydiscount.Module,
	repositoryreferral.Module,
	gateway.Module,
	throttle.Module,
	broadcast.Module,
	mail.Module,
	document.Module,
	fulfillment.Module,
	reconcile.Module,
	synclock.Module,
	cleanup.Module,
	servicereferral.Module,
	serviceorder.Module,
)

// HTTP wires the HTTP transport and the gRPC health endpoint on top of the
// core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	transporthttp.Module,
	grpcserver.Module,
)

// Worker exposes background job processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerreconcile.Module,
)

// Scheduler runs the periodic pending sync and abandoned-order sweep.
var Scheduler = fx.Options(
	Core,
	scheduler.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP
