package ticket

import (
	"context"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Kwazak/umnfestival2026-sub004/internal/database"
	"github.com/Kwazak/umnfestival2026-sub004/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Kwazak/umnfestival2026-sub004/repository/ticket")

// Repository encapsulates ticket access.
type Repository struct {
	writer *bun.DB
}

// NewRepository wires a ticket repository onto the primary connection.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{writer: conns.Writer}
}

// ListByOrder returns the tickets of an order in issue order.
func (r *Repository) ListByOrder(ctx context.Context, orderID int64) ([]*entity.Ticket, error) {
	ctx, span := repoTracer.Start(ctx, "TicketRepository.ListByOrder", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	var tickets []*entity.Ticket
	err := r.writer.NewSelect().Model(&tickets).Where("order_id = ?", orderID).Order("id ASC").Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return tickets, nil
}

// Activate marks a pending or cancelled ticket valid. It reports false when
// the ticket was already valid, used, or missing.
func (r *Repository) Activate(ctx context.Context, ticketID int64, now time.Time) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "TicketRepository.Activate", trace.WithAttributes(attribute.Int64("ticket.id", ticketID)))
	defer span.End()

	res, err := r.writer.NewUpdate().
		Model((*entity.Ticket)(nil)).
		Set("status = ?", entity.TicketValid).
		Set("activated_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", ticketID).
		Where("status IN (?)", bun.In([]entity.TicketStatus{entity.TicketPending, entity.TicketCancelled})).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Revoke cancels a valid ticket whose order stopped being paid. Used tickets
// are left alone since the holder was already admitted.
func (r *Repository) Revoke(ctx context.Context, ticketID int64, now time.Time) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "TicketRepository.Revoke", trace.WithAttributes(attribute.Int64("ticket.id", ticketID)))
	defer span.End()

	res, err := r.writer.NewUpdate().
		Model((*entity.Ticket)(nil)).
		Set("status = ?", entity.TicketCancelled).
		Set("updated_at = ?", now).
		Where("id = ?", ticketID).
		Where("status = ?", entity.TicketValid).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
