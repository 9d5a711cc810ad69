package referral_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kwazak/umnfestival2026-sub004/internal/entity"
	"github.com/Kwazak/umnfestival2026-sub004/internal/payment"
	"github.com/Kwazak/umnfestival2026-sub004/internal/repository/referral"
	"github.com/Kwazak/umnfestival2026-sub004/internal/testutil"
)

func TestRecomputeCountsSoldTickets(t *testing.T) {
	ctx := context.Background()
	conns := testutil.NewDB(t)
	repo := referral.NewRepository(conns)

	ref := testutil.InsertReferral(t, conns, "BEM2026", 0)
	other := testutil.InsertReferral(t, conns, "HIMA", 7)

	testutil.InsertOrder(t, conns, testutil.OrderFixture{Status: payment.StatusSettlement, Tickets: 3, TicketStatus: entity.TicketValid, ReferralCodeID: &ref.ID})
	testutil.InsertOrder(t, conns, testutil.OrderFixture{Status: payment.StatusSettlement, Tickets: 1, TicketStatus: entity.TicketUsed, ReferralCodeID: &ref.ID})
	testutil.InsertOrder(t, conns, testutil.OrderFixture{Tickets: 2, ReferralCodeID: &ref.ID})

	changed, err := repo.Recompute(ctx, "", time.Now().UTC())
	require.NoError(t, err)
	assert.Len(t, changed, 2)

	got, err := repo.GetByCode(ctx, ref.Code)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Uses)

	got, err = repo.GetByCode(ctx, other.Code)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Uses)

	changed, err = repo.Recompute(ctx, ref.Code, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, changed)

	_, err = repo.Recompute(ctx, "NOPE", time.Now().UTC())
	assert.ErrorIs(t, err, referral.ErrNotFound)
}

func TestRecomputeIgnoresPendingAndCancelledTickets(t *testing.T) {
	ctx := context.Background()
	conns := testutil.NewDB(t)
	repo := referral.NewRepository(conns)

	ref := testutil.InsertReferral(t, conns, "REF1", 9)
	order := testutil.InsertOrder(t, conns, testutil.OrderFixture{Status: payment.StatusSettlement, Tickets: 5, ReferralCodeID: &ref.ID})

	statuses := []entity.TicketStatus{entity.TicketValid, entity.TicketValid, entity.TicketUsed, entity.TicketPending, entity.TicketCancelled}
	for i, ticket := range order.Tickets {
		_, err := conns.Writer.NewUpdate().Model((*entity.Ticket)(nil)).
			Set("status = ?", statuses[i]).
			Where("id = ?", ticket.ID).
			Exec(ctx)
		require.NoError(t, err)
	}

	changed, err := repo.Recompute(ctx, "REF1", time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, 3, changed[0].Uses)

	got, err := repo.GetByCode(ctx, "REF1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Uses)
}
