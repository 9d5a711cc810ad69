package fulfillment

import (
	"context"

	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/entity"
)

// ReferralAttribution logs the sale against its referral code for the
// marketing team. Uses counters are only changed by an explicit recompute.
type ReferralAttribution struct {
	logger *zap.Logger
}

// NewReferralAttribution builds the referral analytics hook.
func NewReferralAttribution(logger *zap.Logger) *ReferralAttribution {
	return &ReferralAttribution{logger: logger}
}

func (h *ReferralAttribution) Name() string { return "referral_attribution" }

func (h *ReferralAttribution) OrderPaid(_ context.Context, order *entity.Order, tickets []*entity.Ticket) error {
	if order.ReferralCodeID == nil {
		return nil
	}
	h.logger.Info("referral sale",
		zap.String("order.number", order.Number),
		zap.Int64("referral.id", *order.ReferralCodeID),
		zap.Int("tickets", len(tickets)),
		zap.Int64("amount", order.FinalAmount),
	)
	return nil
}
