package referral

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/entity"
	"github.com/Kwazak/umnfestival2026-sub004/internal/payment"
	refrepo "github.com/Kwazak/umnfestival2026-sub004/internal/repository/referral"
	"github.com/Kwazak/umnfestival2026-sub004/internal/testutil"
	"github.com/Kwazak/umnfestival2026-sub004/pkg/errorbank"
)

func TestRecomputeSingleCode(t *testing.T) {
	conns := testutil.NewDB(t)
	svc := NewService(refrepo.NewRepository(conns), zap.NewNop())
	ref := testutil.InsertReferral(t, conns, "REF1", 10)
	testutil.InsertOrder(t, conns, testutil.OrderFixture{
		Status:         payment.StatusSettlement,
		Tickets:        2,
		TicketStatus:   entity.TicketValid,
		ReferralCodeID: &ref.ID,
	})

	changed, err := svc.Recompute(context.Background(), " REF1 ")
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, 2, changed[0].Uses)

	_, err = svc.Recompute(context.Background(), "MISSING")
	assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))
}
