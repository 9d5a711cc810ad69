package ticket_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kwazak/umnfestival2026-sub004/internal/entity"
	"github.com/Kwazak/umnfestival2026-sub004/internal/repository/ticket"
	"github.com/Kwazak/umnfestival2026-sub004/internal/testutil"
)

func TestActivate(t *testing.T) {
	ctx := context.Background()
	conns := testutil.NewDB(t)
	repo := ticket.NewRepository(conns)
	o := testutil.InsertOrder(t, conns, testutil.OrderFixture{Tickets: 2})

	tickets, err := repo.ListByOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, tickets, 2)

	now := time.Now().UTC()
	activated, err := repo.Activate(ctx, tickets[0].ID, now)
	require.NoError(t, err)
	assert.True(t, activated)

	activated, err = repo.Activate(ctx, tickets[0].ID, now)
	require.NoError(t, err)
	assert.False(t, activated, "valid tickets are left alone")

	reloaded := testutil.ReloadTickets(t, conns, o.ID)
	assert.Equal(t, entity.TicketValid, reloaded[0].Status)
	assert.False(t, reloaded[0].ActivatedAt.IsZero())
	assert.Equal(t, entity.TicketPending, reloaded[1].Status)
}

func TestActivateSkipsUsedAndRevivesCancelled(t *testing.T) {
	ctx := context.Background()
	conns := testutil.NewDB(t)
	repo := ticket.NewRepository(conns)

	used := testutil.InsertOrder(t, conns, testutil.OrderFixture{Tickets: 1, TicketStatus: entity.TicketUsed})
	cancelled := testutil.InsertOrder(t, conns, testutil.OrderFixture{Tickets: 1, TicketStatus: entity.TicketCancelled})

	activated, err := repo.Activate(ctx, used.Tickets[0].ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, activated)
	assert.Equal(t, entity.TicketUsed, testutil.ReloadTickets(t, conns, used.ID)[0].Status)

	activated, err = repo.Activate(ctx, cancelled.Tickets[0].ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, activated)
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	conns := testutil.NewDB(t)
	repo := ticket.NewRepository(conns)

	valid := testutil.InsertOrder(t, conns, testutil.OrderFixture{Tickets: 1, TicketStatus: entity.TicketValid})
	used := testutil.InsertOrder(t, conns, testutil.OrderFixture{Tickets: 1, TicketStatus: entity.TicketUsed})

	revoked, err := repo.Revoke(ctx, valid.Tickets[0].ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Equal(t, entity.TicketCancelled, testutil.ReloadTickets(t, conns, valid.ID)[0].Status)

	revoked, err = repo.Revoke(ctx, used.Tickets[0].ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, revoked)
}
