package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Kwazak/umnfestival2026-sub004/internal/database"
	"github.com/Kwazak/umnfestival2026-sub004/internal/entity"
	"github.com/Kwazak/umnfestival2026-sub004/internal/payment"
)

var repoTracer = otel.Tracer("github.com/Kwazak/umnfestival2026-sub004/repository/order")

// ErrNotFound is returned when an order is missing.
var ErrNotFound = errors.New("order not found")

// ErrDuplicateNumber is returned when an order number is already taken.
var ErrDuplicateNumber = errors.New("order number already exists")

// Repository encapsulates read/write access for orders.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// Create persists a new order together with its tickets in one transaction.
func (r *Repository) Create(ctx context.Context, order *entity.Order, tickets []*entity.Ticket) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Create", trace.WithAttributes(attribute.String("order.number", order.Number)))
	defer span.End()

	exists, err := r.writer.NewSelect().Model((*entity.Order)(nil)).Where("number = ?", order.Number).Exists(ctx)
	if err != nil {
		return fail(span, err, "lookup failed")
	}
	if exists {
		return fail(span, ErrDuplicateNumber, "duplicate number")
	}

	err = r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
			return err
		}
		if len(tickets) == 0 {
			return nil
		}
		for _, ticket := range tickets {
			ticket.OrderID = order.ID
		}
		_, err := tx.NewInsert().Model(&tickets).Exec(ctx)
		return err
	})
	if err != nil {
		return fail(span, err, "insert failed")
	}
	order.Tickets = tickets
	return nil
}

// GetByNumber fetches an order by its gateway-facing number using the read replica when available.
func (r *Repository) GetByNumber(ctx context.Context, number string) (*entity.Order, error) {
	return r.getByNumber(ctx, r.reader, number, "OrderRepository.GetByNumber")
}

// GetByNumberFromWriter reads from the primary so a reconciler never acts on
// a replica row that lags behind a concurrent status write.
func (r *Repository) GetByNumberFromWriter(ctx context.Context, number string) (*entity.Order, error) {
	return r.getByNumber(ctx, r.writer, number, "OrderRepository.GetByNumberFromWriter")
}

func (r *Repository) getByNumber(ctx context.Context, db *bun.DB, number, spanName string) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, spanName, trace.WithAttributes(attribute.String("order.number", number)))
	defer span.End()

	order := new(entity.Order)
	err := db.NewSelect().Model(order).Where("number = ?", number).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fail(span, err, "select failed")
	}
	return order, nil
}

// TransitionStatus moves an order from one status to the next with a single
// conditional write. It reports false when the stored status no longer equals
// from, meaning another reconciler already applied a change.
func (r *Repository) TransitionStatus(ctx context.Context, id int64, from, to payment.Status, transactionID string, now time.Time) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.TransitionStatus", trace.WithAttributes(
		attribute.Int64("order.id", id),
		attribute.String("status.from", from.String()),
		attribute.String("status.to", to.String()),
	))
	defer span.End()

	q := r.writer.NewUpdate().
		Model((*entity.Order)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", from)
	if transactionID != "" {
		q = q.Set("gateway_transaction_id = ?", transactionID)
	}
	if to.IsSuccessful() {
		q = q.Set("paid_at = COALESCE(paid_at, ?)", now)
	}
	if to.IsSuccessful() && !from.IsSuccessful() {
		// The winner of the crossing owns the first fulfillment attempt.
		q = q.Set("fulfillment_claimed_at = ?", now)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return false, fail(span, err, "update failed")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fail(span, err, "rows affected")
	}
	span.SetAttributes(attribute.Bool("status.applied", affected > 0))
	return affected > 0, nil
}

// ClaimFulfillment takes the fulfillment lease on a paid order that has not
// been fulfilled. A claim older than lease is considered abandoned and may be
// taken over. It reports false when another caller holds the lease or the
// order no longer awaits fulfillment.
func (r *Repository) ClaimFulfillment(ctx context.Context, id int64, now time.Time, lease time.Duration) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ClaimFulfillment", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	res, err := r.writer.NewUpdate().
		Model((*entity.Order)(nil)).
		Set("fulfillment_claimed_at = ?", now).
		Where("id = ?", id).
		Where("fulfilled_at IS NULL").
		Where("status IN (?)", bun.In(payment.SuccessfulStatuses())).
		WhereGroup(" AND ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.Where("fulfillment_claimed_at IS NULL").
				WhereOr("fulfillment_claimed_at <= ?", now.Add(-lease))
		}).
		Exec(ctx)
	if err != nil {
		return false, fail(span, err, "update failed")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fail(span, err, "rows affected")
	}
	span.SetAttributes(attribute.Bool("fulfillment.claimed", affected > 0))
	return affected > 0, nil
}

// ReleaseFulfillment drops the lease after a failed attempt so the next
// retry does not wait for it to expire.
func (r *Repository) ReleaseFulfillment(ctx context.Context, id int64) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ReleaseFulfillment", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	_, err := r.writer.NewUpdate().
		Model((*entity.Order)(nil)).
		Set("fulfillment_claimed_at = NULL").
		Where("id = ?", id).
		Where("fulfilled_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fail(span, err, "update failed")
	}
	return nil
}

// MarkFulfilled records that the confirmation has been delivered. The first
// recorded instant wins.
func (r *Repository) MarkFulfilled(ctx context.Context, id int64, now time.Time) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.MarkFulfilled", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	_, err := r.writer.NewUpdate().
		Model((*entity.Order)(nil)).
		Set("fulfilled_at = COALESCE(fulfilled_at, ?)", now).
		Set("fulfillment_claimed_at = NULL").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fail(span, err, "update failed")
	}
	return nil
}

// ListAwaitingFulfillment returns unlocked paid orders whose confirmation was
// never delivered, oldest first.
func (r *Repository) ListAwaitingFulfillment(ctx context.Context, limit int) ([]entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ListAwaitingFulfillment")
	defer span.End()

	var orders []entity.Order
	q := r.writer.NewSelect().
		Model(&orders).
		Where("status IN (?)", bun.In(payment.SuccessfulStatuses())).
		Where("fulfilled_at IS NULL").
		Where("sync_locked = ?", false).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fail(span, err, "select failed")
	}
	span.SetAttributes(attribute.Int("orders.count", len(orders)))
	return orders, nil
}

// SetSyncLock flags or clears the manual-override lock on an order.
func (r *Repository) SetSyncLock(ctx context.Context, number string, locked bool, reason string, now time.Time) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.SetSyncLock", trace.WithAttributes(
		attribute.String("order.number", number),
		attribute.Bool("order.sync_locked", locked),
	))
	defer span.End()

	if !locked {
		reason = ""
	}
	res, err := r.writer.NewUpdate().
		Model((*entity.Order)(nil)).
		Set("sync_locked = ?", locked).
		Set("sync_lock_reason = ?", nullString(reason)).
		Set("updated_at = ?", now).
		Where("number = ?", number).
		Exec(ctx)
	if err != nil {
		return nil, fail(span, err, "update failed")
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	return r.GetByNumberFromWriter(ctx, number)
}

// SyncFilter narrows the orders considered by a batch reconciliation.
type SyncFilter struct {
	// CreatedSince keeps orders created at or after the instant.
	CreatedSince time.Time
	// ActiveSince keeps orders created or updated at or after the instant.
	ActiveSince time.Time
	// NonFinalOnly drops orders already in a final status.
	NonFinalOnly bool
	Limit        int
}

// ListForSync returns candidate orders for batch reconciliation, newest first.
func (r *Repository) ListForSync(ctx context.Context, filter SyncFilter) ([]entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ListForSync", trace.WithAttributes(
		attribute.Bool("filter.non_final", filter.NonFinalOnly),
		attribute.Int("filter.limit", filter.Limit),
	))
	defer span.End()

	var orders []entity.Order
	q := r.writer.NewSelect().Model(&orders).Order("id DESC")
	if !filter.CreatedSince.IsZero() {
		q = q.Where("created_at >= ?", filter.CreatedSince)
	}
	if !filter.ActiveSince.IsZero() {
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("created_at >= ?", filter.ActiveSince).
				WhereOr("updated_at >= ?", filter.ActiveSince)
		})
	}
	if filter.NonFinalOnly {
		q = q.Where("status NOT IN (?)", bun.In(payment.FinalStatuses()))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fail(span, err, "select failed")
	}
	span.SetAttributes(attribute.Int("orders.count", len(orders)))
	return orders, nil
}

// ListAbandoned returns unlocked pending orders created before cutoff.
func (r *Repository) ListAbandoned(ctx context.Context, cutoff time.Time, limit int) ([]entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ListAbandoned")
	defer span.End()

	var orders []entity.Order
	q := r.writer.NewSelect().
		Model(&orders).
		Where("status = ?", payment.StatusPending).
		Where("sync_locked = ?", false).
		Where("created_at < ?", cutoff).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fail(span, err, "select failed")
	}
	return orders, nil
}

// DeleteAbandoned removes a pending order and its tickets. It refuses, and
// reports false, when the order has left pending, was locked, is newer than
// cutoff or owns a valid or used ticket.
func (r *Repository) DeleteAbandoned(ctx context.Context, id int64, cutoff time.Time) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.DeleteAbandoned", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	deleted := false
	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		sold, err := tx.NewSelect().
			Model((*entity.Ticket)(nil)).
			Where("order_id = ?", id).
			Where("status IN (?)", bun.In([]entity.TicketStatus{entity.TicketValid, entity.TicketUsed})).
			Exists(ctx)
		if err != nil || sold {
			return err
		}

		res, err := tx.NewDelete().
			Model((*entity.Order)(nil)).
			Where("id = ?", id).
			Where("status = ?", payment.StatusPending).
			Where("sync_locked = ?", false).
			Where("created_at < ?", cutoff).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil || affected == 0 {
			return err
		}

		if _, err := tx.NewDelete().Model((*entity.Ticket)(nil)).Where("order_id = ?", id).Exec(ctx); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, fail(span, err, "delete failed")
	}
	span.SetAttributes(attribute.Bool("order.deleted", deleted))
	return deleted, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func fail(span trace.Span, err error, msg string) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	return err
}
