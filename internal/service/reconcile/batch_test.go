package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Kwazak/umnfestival2026-sub004/internal/gateway"
	"github.com/Kwazak/umnfestival2026-sub004/internal/payment"
	"github.com/Kwazak/umnfestival2026-sub004/internal/testutil"
)

func TestReconcileBatchIsolatesFailures(t *testing.T) {
	h := newHarness(t)
	testutil.InsertOrder(t, h.conns, testutil.OrderFixture{Number: "ORD-A"})
	testutil.InsertOrder(t, h.conns, testutil.OrderFixture{Number: "ORD-B"})
	testutil.InsertOrder(t, h.conns, testutil.OrderFixture{Number: "ORD-C"})
	testutil.InsertOrder(t, h.conns, testutil.OrderFixture{Number: "ORD-LOCKED", Locked: true, LockReason: "manual"})
	testutil.InsertOrder(t, h.conns, testutil.OrderFixture{Number: "ORD-DONE", Status: payment.StatusSettlement})

	h.gateway.On("GetStatus", mock.Anything, "ORD-A").Return(gatewayStatus("settlement", ""), nil)
	h.gateway.On("GetStatus", mock.Anything, "ORD-B").Return(nil, gateway.ErrUnavailable)
	h.gateway.On("GetStatus", mock.Anything, "ORD-C").Return(gatewayStatus("pending", ""), nil)

	report, err := h.svc.ReconcileBatch(context.Background(), Pending(7), SourceScheduler)
	require.NoError(t, err)

	assert.Equal(t, "pending(7d)", report.Selector)
	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 1, report.Unchanged)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0], "ORD-B")
	h.gateway.AssertNotCalled(t, "GetStatus", mock.Anything, "ORD-LOCKED")
	h.gateway.AssertNotCalled(t, "GetStatus", mock.Anything, "ORD-DONE")
}

func TestReconcileBatchRecentForcesFinalOrders(t *testing.T) {
	h := newHarness(t)
	order := testutil.InsertOrder(t, h.conns, testutil.OrderFixture{Number: "ORD-SETTLED", Status: payment.StatusSettlement})
	testutil.InsertOrder(t, h.conns, testutil.OrderFixture{
		Number:    "ORD-OLD",
		CreatedAt: time.Now().UTC().AddDate(0, 0, -30),
	})
	h.gateway.On("GetStatus", mock.Anything, "ORD-SETTLED").Return(gatewayStatus("refund", ""), nil)

	report, err := h.svc.ReconcileBatch(context.Background(), Recent(3), SourceAdmin)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Total)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, payment.StatusRefund, testutil.ReloadOrder(t, h.conns, order.ID).Status)
	h.gateway.AssertNotCalled(t, "GetStatus", mock.Anything, "ORD-OLD")
}

func TestReconcileBatchStopsWhenContextEnds(t *testing.T) {
	h := newHarness(t)
	testutil.InsertOrder(t, h.conns, testutil.OrderFixture{Number: "ORD-1"})
	testutil.InsertOrder(t, h.conns, testutil.OrderFixture{Number: "ORD-2"})
	h.gateway.On("GetStatus", mock.Anything, mock.Anything).Return(gatewayStatus("pending", ""), nil)

	ctx, cancel := context.WithCancel(context.Background())
	h.svc.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	report, err := h.svc.ReconcileBatch(ctx, All(), SourceCLI)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, report.Total)
}

func TestSelectorPlan(t *testing.T) {
	cfg := testConfig()
	cfg.InterOrderDelay = 200 * time.Millisecond
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	filter, force, delay, err := All().plan(cfg, now)
	require.NoError(t, err)
	assert.True(t, force)
	assert.Equal(t, 500, filter.Limit)
	assert.Equal(t, 200*time.Millisecond, delay)

	filter, force, _, err = Recent(0).plan(cfg, now)
	require.NoError(t, err)
	assert.True(t, force)
	assert.Equal(t, now.AddDate(0, 0, -7), filter.ActiveSince)

	filter, force, _, err = Pending(2).plan(cfg, now)
	require.NoError(t, err)
	assert.False(t, force)
	assert.True(t, filter.NonFinalOnly)
	assert.Equal(t, now.AddDate(0, 0, -2), filter.CreatedSince)

	filter, force, delay, err = Window(0, 0).plan(cfg, now)
	require.NoError(t, err)
	assert.False(t, force)
	assert.Zero(t, delay)
	assert.Equal(t, 20, filter.Limit)
	assert.Equal(t, now.Add(-30*time.Minute), filter.ActiveSince)

	_, _, _, err = Selector{Kind: "everything"}.plan(cfg, now)
	assert.Error(t, err)
}
