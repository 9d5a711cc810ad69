package entity

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/Kwazak/umnfestival2026-sub004/internal/payment"
)

// Order is a ticket purchase whose payment is settled by the gateway.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID                   int64          `bun:",pk,autoincrement"`
	Number               string         `bun:"number,notnull,unique"`
	Status               payment.Status `bun:"status,notnull"`
	Amount               int64          `bun:"amount,notnull"`
	FinalAmount          int64          `bun:"final_amount,notnull"`
	CustomerName         string         `bun:"customer_name,notnull"`
	CustomerEmail        string         `bun:"customer_email,notnull"`
	DiscountCodeID       *int64         `bun:"discount_code_id"`
	ReferralCodeID       *int64         `bun:"referral_code_id"`
	GatewayTransactionID string         `bun:"gateway_transaction_id,nullzero"`
	PaidAt               time.Time      `bun:"paid_at,nullzero"`
	DiscountCountedAt    time.Time      `bun:"discount_counted_at,nullzero"`
	FulfilledAt          time.Time      `bun:"fulfilled_at,nullzero"`
	FulfillmentClaimedAt time.Time      `bun:"fulfillment_claimed_at,nullzero"`
	SyncLocked           bool           `bun:"sync_locked,notnull"`
	SyncLockReason       string         `bun:"sync_lock_reason,nullzero"`
	CreatedAt            time.Time      `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time      `bun:"updated_at,nullzero"`

	Tickets []*Ticket `bun:"rel:has-many,join:id=order_id"`
}

// IsPaid reports whether the order has ever been recorded as paid.
func (o *Order) IsPaid() bool {
	return !o.PaidAt.IsZero()
}

// AwaitingFulfillment reports whether the order is paid but its confirmation
// has not been delivered yet.
func (o *Order) AwaitingFulfillment() bool {
	return o.Status.IsSuccessful() && o.FulfilledAt.IsZero()
}
