package discount

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
)

var repoTracer = otel.Tracer("github.com/Kwazak/umnfestival2026-sub004/repository/discount")

// ErrNotFound is returned when a discount code is missing.
var ErrNotFound = errors.New("discount code not found")

// Outcome describes what a redemption attempt did.
type Outcome int

const (
	// Redeemed means used_count was incremented for this order.
	Redeemed Outcome = iota
	// AlreadyCounted means an earlier attempt already accounted this order.
	AlreadyCounted
	// QuotaExhausted means the code had no remaining quota; the order is
	// still marked as accounted so retries do not try again.
	QuotaExhausted
)

func (o Outcome) String() string {
	switch o {
	case Redeemed:
		return "redeemed"
	case AlreadyCounted:
		return "already_counted"
	case QuotaExhausted:
		return "quota_exhausted"
	default:
		return "unknown"
	}
}

// Repository encapsulates discount code access.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a discount repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{writer: conns.Writer, reader: conns.Reader}
}

// Create inserts a discount code.
func (r *Repository) Create(ctx context.Context, code *entity.DiscountCode) error {
	_, err := r.writer.NewInsert().Model(code).Exec(ctx)
	return err
}

// GetByID fetches a discount code.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.DiscountCode, error) {
	code := new(entity.DiscountCode)
	err := r.writer.NewSelect().Model(code).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return code, nil
}

// Redeem accounts one use of discountID for orderID. The order claim and the
// quota-bounded increment commit together, so repeated calls for the same
// order never count twice and used_count never exceeds quota.
func (r *Repository) Redeem(ctx context.Context, orderID, discountID int64, now time.Time) (Outcome, error) {
	ctx, span := repoTracer.Start(ctx, "DiscountRepository.Redeem", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.Int64("discount.id", discountID),
	))
	defer span.End()

	outcome := Redeemed
	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*entity.Order)(nil)).
			Set("discount_counted_at = ?", now).
			Where("id = ?", orderID).
			Where("discount_counted_at IS NULL").
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			outcome = AlreadyCounted
			return nil
		}

		res, err = tx.NewUpdate().
			Model((*entity.DiscountCode)(nil)).
			Set("used_count = used_count + 1").
			Set("updated_at = ?", now).
			Where("id = ?", discountID).
			Where("used_count < quota").
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			outcome = QuotaExhausted
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "redeem failed")
		return 0, err
	}
	span.SetAttributes(attribute.String("discount.outcome", outcome.String()))
	return outcome, nil
}
