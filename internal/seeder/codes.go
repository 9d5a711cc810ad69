package seeder

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/Kwazak/umnfestival2026-sub004/internal/database"
	"github.com/Kwazak/umnfestival2026-sub004/internal/entity"
)

// Codes upserts promo and referral codes for seeding.
type Codes struct {
	db *bun.DB
}

// NewCodes wires Codes against the writer connection.
func NewCodes(conns *database.Connections) *Codes {
	return &Codes{db: conns.Writer}
}

// InsertDiscount inserts code unless one with the same code exists, then
// loads the stored row into code.
func (c *Codes) InsertDiscount(ctx context.Context, code *entity.DiscountCode) error {
	if _, err := c.db.NewInsert().Model(code).Ignore().Exec(ctx); err != nil {
		return err
	}
	return c.db.NewSelect().Model(code).Where("code = ?", code.Code).Scan(ctx)
}

// InsertReferral inserts code unless one with the same code exists, then
// loads the stored row into code.
func (c *Codes) InsertReferral(ctx context.Context, code *entity.ReferralCode) error {
	if _, err := c.db.NewInsert().Model(code).Ignore().Exec(ctx); err != nil {
		return err
	}
	return c.db.NewSelect().Model(code).Where("code = ?", code.Code).Scan(ctx)
}
