package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/entity"
	"github.com/Kwazak/umnfestival2026-sub004/internal/metrics"
	"github.com/Kwazak/umnfestival2026-sub004/internal/payment"
	orderrepo "github.com/Kwazak/umnfestival2026-sub004/internal/repository/order"
	"github.com/Kwazak/umnfestival2026-sub004/internal/testutil"
)

func TestSweeperDeletesOnlyAbandonedOrders(t *testing.T) {
	conns := testutil.NewDB(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	old := now.Add(-7 * time.Hour)

	abandoned := testutil.InsertOrder(t, conns, testutil.OrderFixture{Number: "ORD-OLD", CreatedAt: old, Tickets: 2})
	fresh := testutil.InsertOrder(t, conns, testutil.OrderFixture{Number: "ORD-NEW", CreatedAt: now.Add(-time.Hour)})
	paid := testutil.InsertOrder(t, conns, testutil.OrderFixture{Number: "ORD-PAID", Status: payment.StatusSettlement, CreatedAt: old})
	locked := testutil.InsertOrder(t, conns, testutil.OrderFixture{Number: "ORD-LOCK", CreatedAt: old, Locked: true, LockReason: "OTS"})
	sold := testutil.InsertOrder(t, conns, testutil.OrderFixture{Number: "ORD-SOLD", CreatedAt: old, Tickets: 1, TicketStatus: entity.TicketValid})

	sweeper := New(orderrepo.NewRepository(conns), 6*time.Hour, metrics.Get(), zap.NewNop())
	sweeper.now = func() time.Time { return now }

	deleted, err := sweeper.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	remaining, err := conns.Writer.NewSelect().Model((*entity.Order)(nil)).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, remaining)

	exists, err := conns.Writer.NewSelect().Model((*entity.Order)(nil)).Where("id = ?", abandoned.ID).Exists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Empty(t, testutil.ReloadTickets(t, conns, abandoned.ID))

	for _, id := range []int64{fresh.ID, paid.ID, locked.ID, sold.ID} {
		testutil.ReloadOrder(t, conns, id)
	}
}

func TestSweeperCustomThreshold(t *testing.T) {
	conns := testutil.NewDB(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	testutil.InsertOrder(t, conns, testutil.OrderFixture{CreatedAt: now.Add(-2 * time.Hour)})

	sweeper := New(orderrepo.NewRepository(conns), 6*time.Hour, nil, zap.NewNop())
	sweeper.now = func() time.Time { return now }

	deleted, err := sweeper.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	deleted, err = sweeper.Run(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.Equal(t, 6*time.Hour, sweeper.DefaultThreshold())
}
