package payment

import (
	"context"
	"errors"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/config"
	"github.com/Kwazak/umnfestival2026-sub004/internal/dto"
	"github.com/Kwazak/umnfestival2026-sub004/internal/gateway"
	"github.com/Kwazak/umnfestival2026-sub004/internal/presentation/http/response"
	"github.com/Kwazak/umnfestival2026-sub004/internal/service/reconcile"
	"github.com/Kwazak/umnfestival2026-sub004/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Kwazak/umnfestival2026-sub004/transport/http/payment")

// Reconciler is the part of the reconciliation core the handlers drive.
type Reconciler interface {
	ReconcileOrder(ctx context.Context, number string, opts reconcile.Options) (reconcile.Result, error)
	ReconcileBatch(ctx context.Context, sel reconcile.Selector, source reconcile.Source) (reconcile.Report, error)
}

// StatusCache drops cached buyer-facing views of an order.
type StatusCache interface {
	Invalidate(ctx context.Context, number string)
}

// Handler receives gateway notifications.
type Handler struct {
	reconciler Reconciler
	cache      StatusCache
	serverKey  string
	verify     bool
	logger     *zap.Logger
}

// NewHandler constructs the webhook handler.
func NewHandler(reconciler Reconciler, cache StatusCache, cfg config.Config, logger *zap.Logger) *Handler {
	return &Handler{
		reconciler: reconciler,
		cache:      cache,
		serverKey:  cfg.Gateway.ServerKey,
		verify:     cfg.Gateway.VerifySignatures,
		logger:     logger,
	}
}

// Register routes the webhook.
func Register(e *echo.Echo, h *Handler) {
	e.POST("/payments/notifications", h.notify)
}

// notify never trusts the status in the body: it only names the order to
// re-query. Non-2xx answers make the gateway re-deliver.
func (h *Handler) notify(c echo.Context) error {
	b := response.New(c)

	var n gateway.Notification
	if err := c.Bind(&n); err != nil {
		return b.WithError(errorbank.BadRequest("invalid notification payload", errorbank.WithCause(err))).Build()
	}
	number := strings.TrimSpace(n.OrderID)
	if number == "" {
		return b.WithError(errorbank.BadRequest("order_id is required")).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "payments.notify", trace.WithAttributes(attribute.String("order.number", number)))
	defer span.End()

	// The signature covers order_id exactly as the gateway sent it.
	if h.verify {
		if err := n.Verify(h.serverKey); err != nil {
			h.logger.Warn("rejected gateway notification", zap.String("order.number", number), zap.Error(err))
			span.SetStatus(codes.Error, "invalid signature")
			return b.WithError(errorbank.Unauthorized("invalid signature")).Build()
		}
	}

	res, err := h.reconciler.ReconcileOrder(ctx, number, reconcile.Options{Source: reconcile.SourceWebhook})
	if res.Outcome.Changed() || res.Outcome == reconcile.OutcomeFulfilled || errors.Is(err, reconcile.ErrFulfillment) {
		h.cache.Invalidate(ctx, number)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reconcile failed")
		return b.WithError(syncError(err)).Build()
	}

	return b.WithData(dto.NotificationAck{
		OrderNumber: res.OrderNumber,
		Outcome:     string(res.Outcome),
		Status:      res.NewStatus.String(),
	}).Build()
}

// syncError maps reconciliation failures onto HTTP-facing errors.
func syncError(err error) error {
	switch {
	case errors.Is(err, reconcile.ErrOrderNotFound):
		return errorbank.NotFound("order not found")
	case errors.Is(err, reconcile.ErrGatewayUnavailable):
		return errorbank.Unavailable("payment gateway unavailable", errorbank.WithCause(err))
	case errors.Is(err, reconcile.ErrFulfillment):
		return errorbank.Internal("payment recorded but fulfillment failed; it will be retried", errorbank.WithCause(err))
	default:
		return errorbank.From(err)
	}
}

func toResultDTO(res reconcile.Result, forced bool) dto.SyncResultResponse {
	return dto.SyncResultResponse{
		OrderNumber: res.OrderNumber,
		Outcome:     string(res.Outcome),
		OldStatus:   res.OldStatus.String(),
		NewStatus:   res.NewStatus.String(),
		Transition:  res.Transition.String(),
		Forced:      forced,
	}
}

func toReportDTO(r reconcile.Report) dto.SyncReportResponse {
	return dto.SyncReportResponse{
		Selector:   r.Selector,
		Total:      r.Total,
		Updated:    r.Updated,
		Fulfilled:  r.Fulfilled,
		Unchanged:  r.Unchanged,
		Skipped:    r.Skipped,
		Failed:     r.Failed,
		Failures:   r.Failures,
		DurationMS: r.Duration.Milliseconds(),
	}
}
