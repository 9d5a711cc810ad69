package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// DiscountCode is a promo code with a hard redemption quota.
type DiscountCode struct {
	bun.BaseModel `bun:"table:discount_codes"`

	ID        int64     `bun:",pk,autoincrement"`
	Code      string    `bun:"code,notnull,unique"`
	Quota     int       `bun:"quota,notnull"`
	UsedCount int       `bun:"used_count,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `bun:"updated_at,nullzero"`
}

// ReferralCode attributes sales to a promoter. Uses is derived from sold
// tickets and only refreshed by an explicit recompute.
type ReferralCode struct {
	bun.BaseModel `bun:"table:referral_codes"`

	ID        int64     `bun:",pk,autoincrement"`
	Code      string    `bun:"code,notnull,unique"`
	OwnerName string    `bun:"owner_name,notnull"`
	Uses      int       `bun:"uses,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `bun:"updated_at,nullzero"`
}
