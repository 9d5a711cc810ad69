package referral

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Kwazak/umnfestival2026-sub004/internal/database"
	"github.com/Kwazak/umnfestival2026-sub004/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Kwazak/umnfestival2026-sub004/repository/referral")

// ErrNotFound is returned when a referral code is missing.
var ErrNotFound = errors.New("referral code not found")

// Repository encapsulates referral code access.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a referral repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{writer: conns.Writer, reader: conns.Reader}
}

// Create inserts a referral code.
func (r *Repository) Create(ctx context.Context, code *entity.ReferralCode) error {
	_, err := r.writer.NewInsert().Model(code).Exec(ctx)
	return err
}

// GetByCode fetches a referral code by its public code.
func (r *Repository) GetByCode(ctx context.Context, code string) (*entity.ReferralCode, error) {
	ref := new(entity.ReferralCode)
	err := r.reader.NewSelect().Model(ref).Where("code = ?", code).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return ref, nil
}

type soldCount struct {
	ReferralCodeID int64 `bun:"referral_code_id"`
	Sold           int   `bun:"sold"`
}

// Recompute sets uses to the number of valid or used tickets across orders
// referencing each code. An empty code recomputes every referral code. It
// returns the codes whose uses changed.
func (r *Repository) Recompute(ctx context.Context, code string, now time.Time) ([]entity.ReferralCode, error) {
	ctx, span := repoTracer.Start(ctx, "ReferralRepository.Recompute")
	defer span.End()

	var refs []entity.ReferralCode
	q := r.writer.NewSelect().Model(&refs).Order("id ASC")
	if code != "" {
		q = q.Where("code = ?", code)
	}
	if err := q.Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select codes failed")
		return nil, err
	}
	if code != "" && len(refs) == 0 {
		return nil, ErrNotFound
	}

	var counts []soldCount
	err := r.writer.NewSelect().
		TableExpr("tickets AS t").
		Join("JOIN orders AS o ON o.id = t.order_id").
		ColumnExpr("o.referral_code_id AS referral_code_id").
		ColumnExpr("COUNT(*) AS sold").
		Where("o.referral_code_id IS NOT NULL").
		Where("t.status IN (?)", bun.In([]entity.TicketStatus{entity.TicketValid, entity.TicketUsed})).
		GroupExpr("o.referral_code_id").
		Scan(ctx, &counts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "count tickets failed")
		return nil, err
	}
	sold := make(map[int64]int, len(counts))
	for _, c := range counts {
		sold[c.ReferralCodeID] = c.Sold
	}

	var changed []entity.ReferralCode
	for i := range refs {
		ref := &refs[i]
		uses := sold[ref.ID]
		if ref.Uses == uses {
			continue
		}
		ref.Uses = uses
		ref.UpdatedAt = now
		if _, err := r.writer.NewUpdate().Model(ref).Column("uses", "updated_at").WherePK().Exec(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "update failed")
			return nil, err
		}
		changed = append(changed, *ref)
	}
	span.SetAttributes(attribute.Int("referral.changed", len(changed)))
	return changed, nil
}
