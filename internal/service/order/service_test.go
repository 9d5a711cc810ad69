package order

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/cache"
	"github.com/Kwazak/umnfestival2026-sub004/internal/config"
	"github.com/Kwazak/umnfestival2026-sub004/internal/entity"
	"github.com/Kwazak/umnfestival2026-sub004/internal/payment"
	repo "github.com/Kwazak/umnfestival2026-sub004/internal/repository/order"
	ticketrepo "github.com/Kwazak/umnfestival2026-sub004/internal/repository/ticket"
	"github.com/Kwazak/umnfestival2026-sub004/internal/testutil"
	"github.com/Kwazak/umnfestival2026-sub004/pkg/errorbank"
)

func TestStatusReturnsViewAndCachesIt(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	conns := testutil.NewDB(t)
	cfg := config.Config{}
	cfg.Cache.StatusTTL = 5 * time.Second
	cfg.Cache.KeyPrefix = "fest"
	svc := NewService(Params{
		Repository: repo.NewRepository(conns),
		Tickets:    ticketrepo.NewRepository(conns),
		Cache:      cache.NewRedisStore(client, time.Minute),
		Config:     cfg,
		Logger:     zap.NewNop(),
	})

	order := testutil.InsertOrder(t, conns, testutil.OrderFixture{
		Number:       "ORD-77",
		Status:       payment.StatusSettlement,
		Tickets:      2,
		TicketStatus: entity.TicketValid,
	})

	view, err := svc.Status(context.Background(), "ORD-77")
	require.NoError(t, err)
	assert.True(t, view.Paid)
	assert.True(t, view.Final)
	require.NotNil(t, view.PaidAt)
	assert.Len(t, view.Tickets, 2)

	assert.True(t, mr.Exists("fest:order-status:ORD-77"))
	assert.Equal(t, 5*time.Second, mr.TTL("fest:order-status:ORD-77"))

	_, err = conns.Writer.NewDelete().Model((*entity.Ticket)(nil)).Where("order_id = ?", order.ID).Exec(context.Background())
	require.NoError(t, err)

	cached, err := svc.Status(context.Background(), "ORD-77")
	require.NoError(t, err)
	assert.Len(t, cached.Tickets, 2)

	svc.Invalidate(context.Background(), "ORD-77")
	assert.False(t, mr.Exists("fest:order-status:ORD-77"))

	fresh, err := svc.Status(context.Background(), "ORD-77")
	require.NoError(t, err)
	assert.Empty(t, fresh.Tickets)
}

func TestStatusErrors(t *testing.T) {
	conns := testutil.NewDB(t)
	svc := NewService(Params{
		Repository: repo.NewRepository(conns),
		Tickets:    ticketrepo.NewRepository(conns),
		Cache:      cache.NewNoopStore(),
		Logger:     zap.NewNop(),
	})

	_, err := svc.Status(context.Background(), "")
	assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))

	_, err = svc.Status(context.Background(), "ORD-404")
	assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))
}

func TestNewStatusViewPendingOrder(t *testing.T) {
	view := NewStatusView(&entity.Order{Number: "ORD-1", Status: payment.StatusPending}, nil)
	assert.False(t, view.Paid)
	assert.False(t, view.Final)
	assert.Nil(t, view.PaidAt)
	assert.NotNil(t, view.Tickets)
}
