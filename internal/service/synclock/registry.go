// Package synclock manages the per-order manual override that keeps every
// automatic reconciliation away from an order.
package synclock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/entity"
	"github.com/Kwazak/umnfestival2026-sub004/internal/logger"
	"github.com/Kwazak/umnfestival2026-sub004/internal/payment"
	orderrepo "github.com/Kwazak/umnfestival2026-sub004/internal/repository/order"
	"github.com/Kwazak/umnfestival2026-sub004/internal/validation"
	"github.com/Kwazak/umnfestival2026-sub004/pkg/errorbank"
)

// DefaultOfflineReason is recorded on orders sold at the venue.
const DefaultOfflineReason = "Onsite sale (OTS)"

var tracer = otel.Tracer("github.com/Kwazak/umnfestival2026-sub004/service/synclock")

// Module provides the registry to Fx.
var Module = fx.Provide(NewRegistry)

// Registry locks, unlocks and creates pre-locked orders.
type Registry struct {
	orders *orderrepo.Repository
	logger *zap.Logger
	audit  *zap.Logger
	now    func() time.Time
}

// NewRegistry wires a registry over the order repository.
func NewRegistry(orders *orderrepo.Repository, log *zap.Logger) *Registry {
	return &Registry{orders: orders, logger: log, audit: logger.Audit(log), now: time.Now}
}

// Lock sets the manual override with a mandatory reason.
func (r *Registry) Lock(ctx context.Context, number, reason string) (*entity.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errorbank.BadRequest("lock reason is required")
	}
	order, err := r.setLock(ctx, number, true, reason)
	if err != nil {
		return nil, err
	}
	r.audit.Info("order sync locked", zap.String("order.number", number), zap.String("lock.reason", reason))
	return order, nil
}

// Unlock clears the manual override.
func (r *Registry) Unlock(ctx context.Context, number string) (*entity.Order, error) {
	order, err := r.setLock(ctx, number, false, "")
	if err != nil {
		return nil, err
	}
	r.audit.Info("order sync unlocked", zap.String("order.number", number))
	return order, nil
}

func (r *Registry) setLock(ctx context.Context, number string, locked bool, reason string) (*entity.Order, error) {
	ctx, span := tracer.Start(ctx, "Registry.SetLock", trace.WithAttributes(
		attribute.String("order.number", number),
		attribute.Bool("order.sync_locked", locked),
	))
	defer span.End()

	if strings.TrimSpace(number) == "" {
		return nil, errorbank.BadRequest("order number is required")
	}
	order, err := r.orders.SetSyncLock(ctx, number, locked, reason, r.now().UTC())
	if err != nil {
		if errors.Is(err, orderrepo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to update sync lock", errorbank.WithCause(err))
	}
	return order, nil
}

// OfflineTicket is one admission sold outside the gateway.
type OfflineTicket struct {
	Category   string `json:"category" validate:"max=64"`
	HolderName string `json:"holder_name" validate:"max=255"`
}

// OfflineOrder describes a sale settled by hand, e.g. cash at the venue.
type OfflineOrder struct {
	Number        string          `json:"number" validate:"max=64"`
	Status        payment.Status  `json:"status"`
	CustomerName  string          `json:"customer_name" validate:"required,max=255"`
	CustomerEmail string          `json:"customer_email" validate:"omitempty,email"`
	Amount        int64           `json:"amount" validate:"gte=0"`
	Reason        string          `json:"reason" validate:"max=255"`
	Tickets       []OfflineTicket `json:"tickets" validate:"min=1,dive"`
}

func (o *OfflineOrder) normalize() error {
	if o.Number == "" {
		o.Number = "OTS-" + strings.ToUpper(uuid.NewString()[:8])
	}
	if o.Status == "" {
		o.Status = payment.StatusSettlement
	}
	if o.Reason == "" {
		o.Reason = DefaultOfflineReason
	}
	o.CustomerName = strings.TrimSpace(o.CustomerName)
	if !o.Status.Valid() {
		return errorbank.BadRequest("unknown status " + o.Status.String())
	}
	return validation.Struct(o)
}

// CreateOfflineOrder stores a manually settled order, already locked so no
// gateway sync ever touches it. Tickets are valid when the status is
// successful and cancelled otherwise.
func (r *Registry) CreateOfflineOrder(ctx context.Context, in OfflineOrder) (*entity.Order, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "Registry.CreateOfflineOrder", trace.WithAttributes(attribute.String("order.number", in.Number)))
	defer span.End()

	now := r.now().UTC()
	order := &entity.Order{
		Number:         in.Number,
		Status:         in.Status,
		Amount:         in.Amount,
		FinalAmount:    in.Amount,
		CustomerName:   in.CustomerName,
		CustomerEmail:  in.CustomerEmail,
		SyncLocked:     true,
		SyncLockReason: in.Reason,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	ticketStatus := entity.TicketCancelled
	if in.Status.IsSuccessful() {
		order.PaidAt = now
		// Tickets are handed over at the counter; there is nothing to send.
		order.FulfilledAt = now
		ticketStatus = entity.TicketValid
	}

	tickets := make([]*entity.Ticket, 0, len(in.Tickets))
	for _, t := range in.Tickets {
		ticket := &entity.Ticket{
			Code:       "UMNF-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12]),
			Category:   t.Category,
			HolderName: t.HolderName,
			Status:     ticketStatus,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if ticket.HolderName == "" {
			ticket.HolderName = in.CustomerName
		}
		if ticket.Category == "" {
			ticket.Category = "regular"
		}
		if ticketStatus == entity.TicketValid {
			ticket.ActivatedAt = now
		}
		tickets = append(tickets, ticket)
	}

	if err := r.orders.Create(ctx, order, tickets); err != nil {
		if errors.Is(err, orderrepo.ErrDuplicateNumber) {
			return nil, errorbank.Conflict("order number already exists")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to create offline order", errorbank.WithCause(err))
	}

	r.audit.Info("offline order created",
		zap.String("order.number", order.Number),
		zap.String("status", order.Status.String()),
		zap.String("lock.reason", order.SyncLockReason),
		zap.Int("tickets", len(tickets)),
	)
	return order, nil
}
