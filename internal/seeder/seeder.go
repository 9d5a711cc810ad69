package seeder

import (
	"context"
	"errors"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/entity"
	"github.com/Kwazak/umnfestival2026-sub004/internal/payment"
	orderrepo "github.com/Kwazak/umnfestival2026-sub004/internal/repository/order"
	"github.com/Kwazak/umnfestival2026-sub004/internal/service/synclock"
	"github.com/Kwazak/umnfestival2026-sub004/pkg/errorbank"
)

// Module provides the seeder to Fx.
var Module = fx.Provide(New, NewCodes)

// OrderCreator persists an order with its tickets.
type OrderCreator interface {
	Create(ctx context.Context, order *entity.Order, tickets []*entity.Ticket) error
}

// CodeCreator inserts discount and referral codes, ignoring ones that exist.
type CodeCreator interface {
	InsertDiscount(ctx context.Context, code *entity.DiscountCode) error
	InsertReferral(ctx context.Context, code *entity.ReferralCode) error
}

// OfflineCreator stores locked on-site orders.
type OfflineCreator interface {
	CreateOfflineOrder(ctx context.Context, in synclock.OfflineOrder) (*entity.Order, error)
}

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	orders  OrderCreator
	codes   CodeCreator
	offline OfflineCreator
	logger  *zap.Logger
	now     func() time.Time
}

// New constructs a Seeder over the order repository and lock registry.
func New(orders *orderrepo.Repository, codes *Codes, locks *synclock.Registry, logger *zap.Logger) *Seeder {
	return NewWith(orders, codes, locks, logger)
}

// NewWith builds a Seeder from explicit collaborators.
func NewWith(orders OrderCreator, codes CodeCreator, offline OfflineCreator, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{orders: orders, codes: codes, offline: offline, logger: logger, now: time.Now}
}

// Run seeds promo codes, gateway orders in several states and one locked
// on-site order. Existing rows are left alone so the command can be rerun.
func (s *Seeder) Run(ctx context.Context) error {
	discount := &entity.DiscountCode{Code: "FEST10", Quota: 100}
	if err := s.codes.InsertDiscount(ctx, discount); err != nil {
		return err
	}
	referral := &entity.ReferralCode{Code: "HIMA-UMN", OwnerName: "Himpunan Mahasiswa"}
	if err := s.codes.InsertReferral(ctx, referral); err != nil {
		return err
	}

	created := 0
	for _, sample := range s.samples(discount, referral) {
		err := s.orders.Create(ctx, sample.order, sample.tickets)
		switch {
		case errors.Is(err, orderrepo.ErrDuplicateNumber):
			continue
		case err != nil:
			return err
		}
		created++
	}

	_, err := s.offline.CreateOfflineOrder(ctx, synclock.OfflineOrder{
		Number:        "OTS-SEED0001",
		CustomerName:  "Walk-in Guest",
		CustomerEmail: "walkin@umnfestival.test",
		Amount:        150000,
		Tickets:       []synclock.OfflineTicket{{Category: "regular"}},
	})
	switch {
	case errorbank.IsKind(err, errorbank.KindConflict):
	case err != nil:
		return err
	default:
		created++
	}

	s.logger.Info("seeded orders", zap.Int("count", created))
	return nil
}

type sample struct {
	order   *entity.Order
	tickets []*entity.Ticket
}

func (s *Seeder) samples(discount *entity.DiscountCode, referral *entity.ReferralCode) []sample {
	now := s.now().UTC()
	ticket := func(code, holder string, status entity.TicketStatus) *entity.Ticket {
		t := &entity.Ticket{Code: code, Category: "regular", HolderName: holder, Status: status, CreatedAt: now, UpdatedAt: now}
		if status == entity.TicketValid {
			t.ActivatedAt = now
		}
		return t
	}

	var discountID, referralID *int64
	if discount.ID != 0 {
		discountID = &discount.ID
	}
	if referral.ID != 0 {
		referralID = &referral.ID
	}

	return []sample{
		{
			order: &entity.Order{
				Number: "ORD-SEED0001", Status: payment.StatusPending,
				Amount: 300000, FinalAmount: 270000,
				CustomerName: "Rina Putri", CustomerEmail: "rina@umnfestival.test",
				DiscountCodeID: discountID, ReferralCodeID: referralID,
				CreatedAt: now, UpdatedAt: now,
			},
			tickets: []*entity.Ticket{
				ticket("UMNF-SEED00000001", "Rina Putri", entity.TicketPending),
				ticket("UMNF-SEED00000002", "Andi Saputra", entity.TicketPending),
			},
		},
		{
			order: &entity.Order{
				Number: "ORD-SEED0002", Status: payment.StatusPending,
				Amount: 150000, FinalAmount: 150000,
				CustomerName: "Budi Hartono", CustomerEmail: "budi@umnfestival.test",
				CreatedAt: now.Add(-72 * time.Hour), UpdatedAt: now.Add(-72 * time.Hour),
			},
			tickets: []*entity.Ticket{ticket("UMNF-SEED00000003", "Budi Hartono", entity.TicketPending)},
		},
		{
			order: &entity.Order{
				Number: "ORD-SEED0003", Status: payment.StatusSettlement,
				Amount: 150000, FinalAmount: 150000,
				CustomerName: "Sari Dewi", CustomerEmail: "sari@umnfestival.test",
				ReferralCodeID: referralID, GatewayTransactionID: "seed-trx-0003",
				PaidAt: now, FulfilledAt: now, CreatedAt: now, UpdatedAt: now,
			},
			tickets: []*entity.Ticket{ticket("UMNF-SEED00000004", "Sari Dewi", entity.TicketValid)},
		},
	}
}
