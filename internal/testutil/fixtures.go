package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Kwazak/umnfestival2026-sub004/internal/database"
	"github.com/Kwazak/umnfestival2026-sub004/internal/entity"
	"github.com/Kwazak/umnfestival2026-sub004/internal/payment"
)

// OrderFixture describes an order inserted by InsertOrder. Zero fields get
// sensible defaults.
type OrderFixture struct {
	Number         string
	Status         payment.Status
	Tickets        int
	TicketStatus   entity.TicketStatus
	DiscountCodeID *int64
	ReferralCodeID *int64
	Locked         bool
	LockReason     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	// Unfulfilled leaves a successful order without a delivered confirmation.
	Unfulfilled bool
}

// InsertOrder writes an order and its tickets directly, bypassing services.
func InsertOrder(t testing.TB, conns *database.Connections, f OrderFixture) *entity.Order {
	t.Helper()
	ctx := context.Background()

	if f.Number == "" {
		f.Number = "ORD-" + uuid.NewString()[:8]
	}
	if f.Status == "" {
		f.Status = payment.StatusPending
	}
	if f.TicketStatus == "" {
		f.TicketStatus = entity.TicketPending
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	if f.UpdatedAt.IsZero() {
		f.UpdatedAt = f.CreatedAt
	}

	order := &entity.Order{
		Number:         f.Number,
		Status:         f.Status,
		Amount:         150000,
		FinalAmount:    150000,
		CustomerName:   "Raka Pratama",
		CustomerEmail:  "raka@example.com",
		DiscountCodeID: f.DiscountCodeID,
		ReferralCodeID: f.ReferralCodeID,
		SyncLocked:     f.Locked,
		SyncLockReason: f.LockReason,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
	}
	if f.Status.IsSuccessful() {
		order.PaidAt = f.CreatedAt
		if !f.Unfulfilled {
			order.FulfilledAt = f.CreatedAt
		}
	}
	_, err := conns.Writer.NewInsert().Model(order).Exec(ctx)
	require.NoError(t, err)

	for i := 0; i < f.Tickets; i++ {
		ticket := &entity.Ticket{
			OrderID:    order.ID,
			Code:       fmt.Sprintf("%s-T%d", order.Number, i+1),
			Category:   "regular",
			HolderName: order.CustomerName,
			Status:     f.TicketStatus,
			CreatedAt:  f.CreatedAt,
			UpdatedAt:  f.CreatedAt,
		}
		_, err := conns.Writer.NewInsert().Model(ticket).Exec(ctx)
		require.NoError(t, err)
		order.Tickets = append(order.Tickets, ticket)
	}
	return order
}

// InsertDiscount writes a discount code with the given quota and usage.
func InsertDiscount(t testing.TB, conns *database.Connections, code string, quota, used int) *entity.DiscountCode {
	t.Helper()
	dc := &entity.DiscountCode{Code: code, Quota: quota, UsedCount: used, CreatedAt: time.Now().UTC()}
	_, err := conns.Writer.NewInsert().Model(dc).Exec(context.Background())
	require.NoError(t, err)
	return dc
}

// InsertReferral writes a referral code with a stale uses value.
func InsertReferral(t testing.TB, conns *database.Connections, code string, uses int) *entity.ReferralCode {
	t.Helper()
	ref := &entity.ReferralCode{Code: code, OwnerName: "BEM UMN", Uses: uses, CreatedAt: time.Now().UTC()}
	_, err := conns.Writer.NewInsert().Model(ref).Exec(context.Background())
	require.NoError(t, err)
	return ref
}

// ReloadOrder reads the order row back from the primary.
func ReloadOrder(t testing.TB, conns *database.Connections, id int64) *entity.Order {
	t.Helper()
	order := new(entity.Order)
	require.NoError(t, conns.Writer.NewSelect().Model(order).Where("id = ?", id).Scan(context.Background()))
	return order
}

// ReloadTickets reads an order's tickets back from the primary.
func ReloadTickets(t testing.TB, conns *database.Connections, orderID int64) []*entity.Ticket {
	t.Helper()
	var tickets []*entity.Ticket
	require.NoError(t, conns.Writer.NewSelect().Model(&tickets).Where("order_id = ?", orderID).Order("id ASC").Scan(context.Background()))
	return tickets
}

// ReloadDiscount reads a discount code back from the primary.
func ReloadDiscount(t testing.TB, conns *database.Connections, id int64) *entity.DiscountCode {
	t.Helper()
	dc := new(entity.DiscountCode)
	require.NoError(t, conns.Writer.NewSelect().Model(dc).Where("id = ?", id).Scan(context.Background()))
	return dc
}
