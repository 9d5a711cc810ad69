package payment

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/config"
	"github.com/Kwazak/umnfestival2026-sub004/internal/dto"
	"github.com/Kwazak/umnfestival2026-sub004/internal/entity"
	"github.com/Kwazak/umnfestival2026-sub004/internal/logger"
	"github.com/Kwazak/umnfestival2026-sub004/internal/presentation/http/response"
	"github.com/Kwazak/umnfestival2026-sub004/internal/service/reconcile"
	"github.com/Kwazak/umnfestival2026-sub004/internal/validation"
	"github.com/Kwazak/umnfestival2026-sub004/pkg/errorbank"
)

// Sweeper deletes abandoned orders.
type Sweeper interface {
	Run(ctx context.Context, threshold time.Duration) (int, error)
	DefaultThreshold() time.Duration
}

// Locker sets and clears the manual sync lock.
type Locker interface {
	Lock(ctx context.Context, number, reason string) (*entity.Order, error)
	Unlock(ctx context.Context, number string) (*entity.Order, error)
}

// Referrals recomputes derived referral counters.
type Referrals interface {
	Recompute(ctx context.Context, code string) ([]entity.ReferralCode, error)
}

// AdminDeps are the collaborators of the admin handler.
type AdminDeps struct {
	Reconciler Reconciler
	Queue      reconcile.Enqueuer
	Sweeper    Sweeper
	Locker     Locker
	Referrals  Referrals
	Cache      StatusCache
}

// AdminHandler exposes explicit sync and maintenance operations. It is
// mounted under /admin and expects the edge proxy to authenticate callers.
type AdminHandler struct {
	deps        AdminDeps
	defaultDays int
	audit       *zap.Logger
}

// NewAdminHandler constructs the admin handler.
func NewAdminHandler(deps AdminDeps, cfg config.Config, log *zap.Logger) *AdminHandler {
	return &AdminHandler{deps: deps, defaultDays: cfg.Reconcile.DefaultDays, audit: logger.Audit(log)}
}

// RegisterAdmin routes the admin endpoints.
func RegisterAdmin(e *echo.Echo, h *AdminHandler) {
	g := e.Group("/admin")
	g.POST("/orders/:number/sync", h.syncOrder)
	g.POST("/orders/:number/lock", h.lock)
	g.DELETE("/orders/:number/lock", h.unlock)
	g.POST("/orders/cleanup", h.cleanup)
	g.POST("/sync/pending", h.syncPending)
	g.POST("/sync/recent", h.syncRecent)
	g.POST("/sync/all", h.syncAll)
	g.POST("/referrals/recompute", h.recomputeReferrals)
}

func (h *AdminHandler) syncOrder(c echo.Context) error {
	b := response.New(c)
	number := c.Param("number")
	force, err := boolQuery(c, "force")
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "admin.syncOrder", trace.WithAttributes(
		attribute.String("order.number", number),
		attribute.Bool("reconcile.force", force),
	))
	defer span.End()

	if force {
		h.audit.Warn("forced order sync requested", zap.String("order.number", number), zap.String("remote", c.RealIP()))
	}
	res, err := h.deps.Reconciler.ReconcileOrder(ctx, number, reconcile.Options{
		Source:       reconcile.SourceAdmin,
		Force:        force,
		OverrideLock: force,
	})
	h.deps.Cache.Invalidate(ctx, number)
	if err != nil {
		span.RecordError(err)
		return b.WithError(syncError(err)).Build()
	}
	return b.WithData(toResultDTO(res, force)).Build()
}

func (h *AdminHandler) syncPending(c echo.Context) error {
	days, err := intQuery(c, "days", h.defaultDays)
	if err != nil {
		return response.New(c).WithError(err).Build()
	}
	return h.runBatch(c, reconcile.Pending(days))
}

func (h *AdminHandler) syncRecent(c echo.Context) error {
	days, err := intQuery(c, "days", h.defaultDays)
	if err != nil {
		return response.New(c).WithError(err).Build()
	}
	return h.runBatch(c, reconcile.Recent(days))
}

func (h *AdminHandler) syncAll(c echo.Context) error {
	return h.runBatch(c, reconcile.All())
}

// runBatch reconciles inline, or hands the batch to the worker when
// ?async=true.
func (h *AdminHandler) runBatch(c echo.Context, sel reconcile.Selector) error {
	b := response.New(c)
	async, err := boolQuery(c, "async")
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "admin.syncBatch", trace.WithAttributes(
		attribute.String("reconcile.selector", sel.String()),
		attribute.Bool("reconcile.async", async),
	))
	defer span.End()

	h.audit.Info("batch sync requested", zap.String("selector", sel.String()), zap.Bool("async", async), zap.String("remote", c.RealIP()))

	if async {
		job := reconcile.Job{Kind: reconcile.JobBatch, Selector: &sel, Source: reconcile.SourceAdmin, RequestedAt: time.Now().UTC()}
		if err := h.deps.Queue.Enqueue(ctx, job); err != nil {
			span.RecordError(err)
			return b.WithError(errorbank.Unavailable("could not queue sync", errorbank.WithCause(err))).Build()
		}
		return b.WithStatus(http.StatusAccepted).WithData(dto.QueuedJobResponse{
			Kind:     string(job.Kind),
			Target:   sel.String(),
			QueuedAt: job.RequestedAt,
		}).Build()
	}

	report, err := h.deps.Reconciler.ReconcileBatch(ctx, sel, reconcile.SourceAdmin)
	if err != nil {
		span.RecordError(err)
		return b.WithError(errorbank.Internal("batch sync failed", errorbank.WithCause(err))).WithMeta("report", toReportDTO(report)).Build()
	}
	return b.WithData(toReportDTO(report)).Build()
}

func (h *AdminHandler) cleanup(c echo.Context) error {
	b := response.New(c)
	threshold := h.deps.Sweeper.DefaultThreshold()
	if raw := c.QueryParam("hours"); raw != "" {
		hours, err := strconv.ParseFloat(raw, 64)
		if err != nil || hours <= 0 {
			return b.WithError(errorbank.BadRequest("hours must be a positive number")).Build()
		}
		threshold = time.Duration(hours * float64(time.Hour))
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "admin.cleanup")
	defer span.End()

	deleted, err := h.deps.Sweeper.Run(ctx, threshold)
	if err != nil {
		span.RecordError(err)
		return b.WithError(errorbank.Internal("cleanup failed", errorbank.WithCause(err))).Build()
	}
	return b.WithData(dto.CleanupResponse{ThresholdHours: threshold.Hours(), Deleted: deleted}).Build()
}

func (h *AdminHandler) lock(c echo.Context) error {
	b := response.New(c)
	var req dto.LockRequest
	if err := c.Bind(&req); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if err := validation.Struct(req); err != nil {
		return b.WithError(err).Build()
	}
	order, err := h.deps.Locker.Lock(c.Request().Context(), c.Param("number"), req.Reason)
	if err != nil {
		return b.WithError(err).Build()
	}
	h.deps.Cache.Invalidate(c.Request().Context(), order.Number)
	return b.WithData(toLockDTO(order)).Build()
}

func (h *AdminHandler) unlock(c echo.Context) error {
	b := response.New(c)
	order, err := h.deps.Locker.Unlock(c.Request().Context(), c.Param("number"))
	if err != nil {
		return b.WithError(err).Build()
	}
	h.deps.Cache.Invalidate(c.Request().Context(), order.Number)
	return b.WithData(toLockDTO(order)).Build()
}

func (h *AdminHandler) recomputeReferrals(c echo.Context) error {
	b := response.New(c)
	changed, err := h.deps.Referrals.Recompute(c.Request().Context(), c.QueryParam("code"))
	if err != nil {
		return b.WithError(err).Build()
	}
	out := make([]dto.ReferralResponse, 0, len(changed))
	for _, ref := range changed {
		out = append(out, dto.ReferralResponse{Code: ref.Code, Uses: ref.Uses})
	}
	return b.WithData(out).WithMeta("changed", len(out)).Build()
}

func toLockDTO(order *entity.Order) dto.LockResponse {
	return dto.LockResponse{
		OrderNumber: order.Number,
		Status:      order.Status.String(),
		Locked:      order.SyncLocked,
		Reason:      order.SyncLockReason,
	}
}

func boolQuery(c echo.Context, name string) (bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errorbank.BadRequest("invalid " + name + " flag")
	}
	return v, nil
}

func intQuery(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, errorbank.BadRequest(name + " must be a positive integer")
	}
	return v, nil
}
