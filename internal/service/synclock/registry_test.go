package synclock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/entity"
	"github.com/Kwazak/umnfestival2026-sub004/internal/payment"
	orderrepo "github.com/Kwazak/umnfestival2026-sub004/internal/repository/order"
	"github.com/Kwazak/umnfestival2026-sub004/internal/testutil"
	"github.com/Kwazak/umnfestival2026-sub004/pkg/errorbank"
)

func TestLockAndUnlock(t *testing.T) {
	conns := testutil.NewDB(t)
	reg := NewRegistry(orderrepo.NewRepository(conns), zap.NewNop())
	order := testutil.InsertOrder(t, conns, testutil.OrderFixture{Number: "ORD-9"})

	locked, err := reg.Lock(context.Background(), "ORD-9", "  paid by bank transfer ")
	require.NoError(t, err)
	assert.True(t, locked.SyncLocked)
	assert.Equal(t, "paid by bank transfer", locked.SyncLockReason)

	unlocked, err := reg.Unlock(context.Background(), "ORD-9")
	require.NoError(t, err)
	assert.False(t, unlocked.SyncLocked)
	assert.Empty(t, testutil.ReloadOrder(t, conns, order.ID).SyncLockReason)
}

func TestLockErrors(t *testing.T) {
	conns := testutil.NewDB(t)
	reg := NewRegistry(orderrepo.NewRepository(conns), zap.NewNop())

	_, err := reg.Lock(context.Background(), "ORD-9", " ")
	assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))

	_, err = reg.Lock(context.Background(), "ORD-MISSING", "manual")
	assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))
}

func TestCreateOfflineOrder(t *testing.T) {
	conns := testutil.NewDB(t)
	reg := NewRegistry(orderrepo.NewRepository(conns), zap.NewNop())

	order, err := reg.CreateOfflineOrder(context.Background(), OfflineOrder{
		CustomerName: "Sekar Ayu",
		Amount:       300000,
		Tickets: []OfflineTicket{
			{Category: "vip", HolderName: "Sekar Ayu"},
			{},
		},
	})
	require.NoError(t, err)

	assert.Contains(t, order.Number, "OTS-")
	assert.Equal(t, payment.StatusSettlement, order.Status)
	assert.True(t, order.SyncLocked)
	assert.Equal(t, DefaultOfflineReason, order.SyncLockReason)
	assert.False(t, order.PaidAt.IsZero())

	tickets := testutil.ReloadTickets(t, conns, order.ID)
	require.Len(t, tickets, 2)
	for _, ticket := range tickets {
		assert.Equal(t, entity.TicketValid, ticket.Status)
		assert.Contains(t, ticket.Code, "UMNF-")
	}
	assert.Equal(t, "regular", tickets[1].Category)
	assert.Equal(t, "Sekar Ayu", tickets[1].HolderName)

	_, err = reg.CreateOfflineOrder(context.Background(), OfflineOrder{
		Number:       order.Number,
		CustomerName: "Sekar Ayu",
		Tickets:      []OfflineTicket{{}},
	})
	assert.True(t, errorbank.IsKind(err, errorbank.KindConflict))
}

func TestCreateOfflineOrderValidation(t *testing.T) {
	conns := testutil.NewDB(t)
	reg := NewRegistry(orderrepo.NewRepository(conns), zap.NewNop())

	cases := []OfflineOrder{
		{CustomerName: "A", Status: "bogus", Tickets: []OfflineTicket{{}}},
		{Tickets: []OfflineTicket{{}}},
		{CustomerName: "A", Amount: -1, Tickets: []OfflineTicket{{}}},
		{CustomerName: "A"},
	}
	for _, in := range cases {
		_, err := reg.CreateOfflineOrder(context.Background(), in)
		assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest), "%+v", in)
	}
}
