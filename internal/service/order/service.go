package order

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/cache"
	"github.com/Kwazak/umnfestival2026-sub004/internal/config"
	"github.com/Kwazak/umnfestival2026-sub004/internal/entity"
	"github.com/Kwazak/umnfestival2026-sub004/internal/payment"
	repo "github.com/Kwazak/umnfestival2026-sub004/internal/repository/order"
	ticketrepo "github.com/Kwazak/umnfestival2026-sub004/internal/repository/ticket"
	"github.com/Kwazak/umnfestival2026-sub004/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Kwazak/umnfestival2026-sub004/service/order")

// StatusView is what a buyer may see about their order.
type StatusView struct {
	Number     string         `json:"number"`
	Status     payment.Status `json:"status"`
	Paid       bool           `json:"paid"`
	Final      bool           `json:"final"`
	PaidAt     *time.Time     `json:"paid_at,omitempty"`
	Tickets    []TicketView   `json:"tickets"`
	UpdatedAt  time.Time      `json:"updated_at"`
	SyncLocked bool           `json:"sync_locked"`
}

// TicketView is a ticket as shown on the status page.
type TicketView struct {
	Code       string              `json:"code"`
	Category   string              `json:"category"`
	HolderName string              `json:"holder_name"`
	Status     entity.TicketStatus `json:"status"`
}

// Service answers order status lookups, consulting cache when available.
type Service struct {
	repo     *repo.Repository
	tickets  *ticketrepo.Repository
	cache    cache.Store
	cacheTTL time.Duration
	prefix   string
	logger   *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Tickets    *ticketrepo.Repository
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		repo:     p.Repository,
		tickets:  p.Tickets,
		cache:    p.Cache,
		cacheTTL: p.Config.Cache.StatusTTL,
		prefix:   p.Config.Cache.KeyPrefix,
		logger:   p.Logger,
	}
}

// Status returns the buyer-facing view of an order by number.
func (s *Service) Status(ctx context.Context, number string) (*StatusView, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Status", trace.WithAttributes(attribute.String("order.number", number)))
	defer span.End()

	if number == "" {
		return nil, errorbank.BadRequest("order number is required")
	}

	if view, err := s.getFromCache(ctx, number); err == nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return view, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		if s.logger != nil {
			s.logger.Warn("order status cache read failed", zap.String("order.number", number), zap.Error(err))
		}
	}

	order, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}
	tickets, err := s.tickets.ListByOrder(ctx, order.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load tickets", errorbank.WithCause(err))
	}

	view := NewStatusView(order, tickets)
	if err := s.storeInCache(ctx, view); err != nil {
		if s.logger != nil {
			s.logger.Warn("order status cache write failed", zap.String("order.number", number), zap.Error(err))
		}
	}
	return view, nil
}

// Invalidate drops the cached view after the order changed.
func (s *Service) Invalidate(ctx context.Context, number string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, s.cacheKey(number)); err != nil && s.logger != nil {
		s.logger.Warn("order status cache delete failed", zap.String("order.number", number), zap.Error(err))
	}
}

// NewStatusView projects an order and its tickets onto the public view.
func NewStatusView(order *entity.Order, tickets []*entity.Ticket) *StatusView {
	view := &StatusView{
		Number:     order.Number,
		Status:     order.Status,
		Paid:       order.Status.IsSuccessful(),
		Final:      order.Status.IsFinal(),
		UpdatedAt:  order.UpdatedAt,
		SyncLocked: order.SyncLocked,
		Tickets:    make([]TicketView, 0, len(tickets)),
	}
	if order.IsPaid() {
		paidAt := order.PaidAt
		view.PaidAt = &paidAt
	}
	for _, t := range tickets {
		view.Tickets = append(view.Tickets, TicketView{
			Code:       t.Code,
			Category:   t.Category,
			HolderName: t.HolderName,
			Status:     t.Status,
		})
	}
	return view
}

func (s *Service) cacheKey(number string) string {
	return cache.Key(s.prefix, "order-status", number)
}

func (s *Service) getFromCache(ctx context.Context, number string) (*StatusView, error) {
	if s.cache == nil {
		return nil, cache.ErrCacheMiss
	}
	return cache.GetJSON[StatusView](ctx, s.cache, s.cacheKey(number))
}

func (s *Service) storeInCache(ctx context.Context, view *StatusView) error {
	if s.cache == nil || view == nil {
		return nil
	}
	return cache.SetJSON(ctx, s.cache, s.cacheKey(view.Number), view, s.cacheTTL)
}
