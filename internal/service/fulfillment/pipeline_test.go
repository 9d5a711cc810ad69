package fulfillment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/database"
	"github.com/Kwazak/umnfestival2026-sub004/internal/entity"
	"github.com/Kwazak/umnfestival2026-sub004/internal/mail"
	"github.com/Kwazak/umnfestival2026-sub004/internal/metrics"
	"github.com/Kwazak/umnfestival2026-sub004/internal/payment"
	"github.com/Kwazak/umnfestival2026-sub004/internal/repository/discount"
	orderrepo "github.com/Kwazak/umnfestival2026-sub004/internal/repository/order"
	ticketrepo "github.com/Kwazak/umnfestival2026-sub004/internal/repository/ticket"
	"github.com/Kwazak/umnfestival2026-sub004/internal/testutil"
)

type mockDocuments struct{ mock.Mock }

func (m *mockDocuments) Generate(ctx context.Context, order *entity.Order, tickets []*entity.Ticket) ([]string, error) {
	args := m.Called(ctx, order, tickets)
	paths, _ := args.Get(0).([]string)
	return paths, args.Error(1)
}

type mockMailer struct{ mock.Mock }

func (m *mockMailer) Send(ctx context.Context, msg mail.Message) error {
	return m.Called(ctx, msg).Error(0)
}

type recordingHook struct {
	name  string
	err   error
	calls int
}

func (h *recordingHook) Name() string { return h.name }

func (h *recordingHook) OrderPaid(context.Context, *entity.Order, []*entity.Ticket) error {
	h.calls++
	return h.err
}

type fixture struct {
	conns    *database.Connections
	docs     *mockDocuments
	mailer   *mockMailer
	hooks    []*recordingHook
	pipeline *Pipeline
}

func newFixture(t *testing.T, hooks ...*recordingHook) *fixture {
	t.Helper()
	conns := testutil.NewDB(t)
	f := &fixture{conns: conns, docs: new(mockDocuments), mailer: new(mockMailer), hooks: hooks}

	analytics := make([]Hook, 0, len(hooks))
	for _, h := range hooks {
		analytics = append(analytics, h)
	}
	f.pipeline = New(Dependencies{
		Orders:    orderrepo.NewRepository(conns),
		Tickets:   ticketrepo.NewRepository(conns),
		Discounts: discount.NewRepository(conns),
		Documents: f.docs,
		Mailer:    f.mailer,
		Analytics: analytics,
	}, true, metrics.Get(), zap.NewNop())
	return f
}

func TestOnSuccessActivatesTicketsAndSendsConfirmation(t *testing.T) {
	hook := &recordingHook{name: "test"}
	f := newFixture(t, hook)
	order := testutil.InsertOrder(t, f.conns, testutil.OrderFixture{Status: payment.StatusSettlement, Tickets: 2})

	f.docs.On("Generate", mock.Anything, order, mock.Anything).Return([]string{"a.png", "b.png"}, nil).Once()
	f.mailer.On("Send", mock.Anything, mock.MatchedBy(func(msg mail.Message) bool {
		return msg.Template == mail.TemplatePaymentSuccess &&
			msg.To == order.CustomerEmail &&
			len(msg.Data.Tickets) == 2 &&
			len(msg.Attachments) == 2 &&
			msg.Data.Amount == "Rp150.000"
	})).Return(nil).Once()

	require.NoError(t, f.pipeline.OnSuccess(context.Background(), order))

	for _, ticket := range testutil.ReloadTickets(t, f.conns, order.ID) {
		assert.Equal(t, entity.TicketValid, ticket.Status)
		assert.False(t, ticket.ActivatedAt.IsZero())
	}
	assert.Equal(t, 1, hook.calls)
	f.docs.AssertExpectations(t)
	f.mailer.AssertExpectations(t)
}

func TestOnSuccessFinalizesNonSuccessfulOrder(t *testing.T) {
	f := newFixture(t)
	order := testutil.InsertOrder(t, f.conns, testutil.OrderFixture{Status: payment.StatusPending, Tickets: 1})
	f.docs.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, f.pipeline.OnSuccess(context.Background(), order))

	stored := testutil.ReloadOrder(t, f.conns, order.ID)
	assert.Equal(t, payment.StatusSettlement, stored.Status)
	assert.False(t, stored.PaidAt.IsZero())
}

func TestOnSuccessIsSafeToRerun(t *testing.T) {
	f := newFixture(t)
	dc := testutil.InsertDiscount(t, f.conns, "EARLYBIRD", 10, 0)
	order := testutil.InsertOrder(t, f.conns, testutil.OrderFixture{Status: payment.StatusSettlement, Tickets: 2, DiscountCodeID: &dc.ID})

	f.docs.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(errors.New("smtp down")).Once()
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil).Once()

	err := f.pipeline.OnSuccess(context.Background(), order)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notification")

	require.NoError(t, f.pipeline.OnSuccess(context.Background(), order))

	assert.Equal(t, 1, testutil.ReloadDiscount(t, f.conns, dc.ID).UsedCount)
	for _, ticket := range testutil.ReloadTickets(t, f.conns, order.ID) {
		assert.Equal(t, entity.TicketValid, ticket.Status)
	}
	f.mailer.AssertNumberOfCalls(t, "Send", 2)
}

func TestOnSuccessQuotaExhaustedStillFulfills(t *testing.T) {
	f := newFixture(t)
	dc := testutil.InsertDiscount(t, f.conns, "SOLDOUT", 1, 1)
	order := testutil.InsertOrder(t, f.conns, testutil.OrderFixture{Status: payment.StatusCapture, Tickets: 1, DiscountCodeID: &dc.ID})
	f.docs.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, f.pipeline.OnSuccess(context.Background(), order))

	assert.Equal(t, 1, testutil.ReloadDiscount(t, f.conns, dc.ID).UsedCount)
	assert.Equal(t, entity.TicketValid, testutil.ReloadTickets(t, f.conns, order.ID)[0].Status)
}

func TestOnSuccessHookFailureIsNotFatal(t *testing.T) {
	broken := &recordingHook{name: "broken", err: errors.New("boom")}
	after := &recordingHook{name: "after"}
	f := newFixture(t, broken, after)
	order := testutil.InsertOrder(t, f.conns, testutil.OrderFixture{Status: payment.StatusSettlement, Tickets: 1})
	f.docs.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, f.pipeline.OnSuccess(context.Background(), order))
	assert.Equal(t, 1, broken.calls)
	assert.Equal(t, 1, after.calls)
}

func TestOnSuccessDocumentFailureStopsBeforeEmail(t *testing.T) {
	f := newFixture(t)
	order := testutil.InsertOrder(t, f.conns, testutil.OrderFixture{Status: payment.StatusSettlement, Tickets: 1})
	f.docs.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("disk full"))

	err := f.pipeline.OnSuccess(context.Background(), order)
	require.Error(t, err)
	f.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	assert.Equal(t, entity.TicketValid, testutil.ReloadTickets(t, f.conns, order.ID)[0].Status)
}

func TestOnFailureSendsNoticeAndSwallowsErrors(t *testing.T) {
	f := newFixture(t)
	order := testutil.InsertOrder(t, f.conns, testutil.OrderFixture{Status: payment.StatusExpire})
	f.mailer.On("Send", mock.Anything, mock.MatchedBy(func(msg mail.Message) bool {
		return msg.Template == mail.TemplatePaymentFailed && msg.Data.Status == "expire"
	})).Return(errors.New("smtp down")).Once()

	f.pipeline.OnFailure(context.Background(), order, payment.StatusPending, payment.StatusExpire)
	f.mailer.AssertExpectations(t)
}

func TestOnRevokedCancelsValidTickets(t *testing.T) {
	f := newFixture(t)
	order := testutil.InsertOrder(t, f.conns, testutil.OrderFixture{Status: payment.StatusRefund, Tickets: 2, TicketStatus: entity.TicketValid})

	require.NoError(t, f.pipeline.OnRevoked(context.Background(), order))

	for _, ticket := range testutil.ReloadTickets(t, f.conns, order.ID) {
		assert.Equal(t, entity.TicketCancelled, ticket.Status)
	}
}

func TestFormatRupiah(t *testing.T) {
	assert.Equal(t, "Rp0", FormatRupiah(0))
	assert.Equal(t, "Rp999", FormatRupiah(999))
	assert.Equal(t, "Rp150.000", FormatRupiah(150000))
	assert.Equal(t, "Rp1.250.000", FormatRupiah(1250000))
	assert.Equal(t, "-Rp5.000", FormatRupiah(-5000))
}
