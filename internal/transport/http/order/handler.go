package order

import (
	"context"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Kwazak/umnfestival2026-sub004/internal/presentation/http/response"
	service "github.com/Kwazak/umnfestival2026-sub004/internal/service/order"
)

var httpTracer = otel.Tracer("github.com/Kwazak/umnfestival2026-sub004/transport/http/order")

// StatusReader looks up the buyer-facing status of an order.
type StatusReader interface {
	Status(ctx context.Context, number string) (*service.StatusView, error)
}

// Handler exposes order endpoints over HTTP.
type Handler struct {
	svc StatusReader
}

// NewHandler constructs an order Handler.
func NewHandler(svc StatusReader) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo group.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/orders")
	g.GET("/:number/status", h.status)
}

func (h *Handler) status(c echo.Context) error {
	b := response.New(c)
	number := c.Param("number")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.status", trace.WithAttributes(attribute.String("order.number", number)))
	defer span.End()

	view, err := h.svc.Status(ctx, number)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(view).Build()
}
