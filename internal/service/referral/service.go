// Package referral refreshes the derived usage counters of referral codes.
package referral

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/entity"
	refrepo "github.com/Kwazak/umnfestival2026-sub004/internal/repository/referral"
	"github.com/Kwazak/umnfestival2026-sub004/pkg/errorbank"
)

// Module provides the referral service to Fx.
var Module = fx.Provide(NewService)

// Service recomputes referral uses on demand.
type Service struct {
	repo   *refrepo.Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewService wires the service.
func NewService(repo *refrepo.Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Recompute sets uses of code, or of every code when code is empty, to the
// number of valid or used tickets sold under it. It returns the codes that
// changed.
func (s *Service) Recompute(ctx context.Context, code string) ([]entity.ReferralCode, error) {
	code = strings.TrimSpace(code)
	changed, err := s.repo.Recompute(ctx, code, s.now().UTC())
	if err != nil {
		if errors.Is(err, refrepo.ErrNotFound) {
			return nil, errorbank.NotFound("referral code not found")
		}
		return nil, errorbank.Internal("failed to recompute referral uses", errorbank.WithCause(err))
	}
	scope := code
	if scope == "" {
		scope = "*"
	}
	s.logger.Info("referral uses recomputed", zap.String("referral.code", scope), zap.Int("changed", len(changed)))
	return changed, nil
}
