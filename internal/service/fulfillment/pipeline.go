// Package fulfillment runs the side effects owed when an order's payment
// succeeds, fails or is reversed.
package fulfillment

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/config"
	"github.com/Kwazak/umnfestival2026-sub004/internal/entity"
	"github.com/Kwazak/umnfestival2026-sub004/internal/logger"
	"github.com/Kwazak/umnfestival2026-sub004/internal/mail"
	"github.com/Kwazak/umnfestival2026-sub004/internal/metrics"
	"github.com/Kwazak/umnfestival2026-sub004/internal/payment"
	"github.com/Kwazak/umnfestival2026-sub004/internal/repository/discount"
	orderrepo "github.com/Kwazak/umnfestival2026-sub004/internal/repository/order"
	ticketrepo "github.com/Kwazak/umnfestival2026-sub004/internal/repository/ticket"
	"github.com/Kwazak/umnfestival2026-sub004/internal/tickets/document"
)

var tracer = otel.Tracer("github.com/Kwazak/umnfestival2026-sub004/service/fulfillment")

// OrderStore persists the finalize step.
type OrderStore interface {
	TransitionStatus(ctx context.Context, id int64, from, to payment.Status, transactionID string, now time.Time) (bool, error)
}

// TicketStore activates and revokes tickets one at a time.
type TicketStore interface {
	ListByOrder(ctx context.Context, orderID int64) ([]*entity.Ticket, error)
	Activate(ctx context.Context, ticketID int64, now time.Time) (bool, error)
	Revoke(ctx context.Context, ticketID int64, now time.Time) (bool, error)
}

// DiscountStore accounts discount redemptions against the quota.
type DiscountStore interface {
	Redeem(ctx context.Context, orderID, discountID int64, now time.Time) (discount.Outcome, error)
}

// DocumentGenerator renders ticket documents and returns their file paths.
type DocumentGenerator interface {
	Generate(ctx context.Context, order *entity.Order, tickets []*entity.Ticket) ([]string, error)
}

// Mailer delivers templated notifications.
type Mailer interface {
	Send(ctx context.Context, msg mail.Message) error
}

// Hook is a best-effort collaborator notified after a paid order is
// fulfilled. Its errors are logged and never fail the pipeline.
type Hook interface {
	Name() string
	OrderPaid(ctx context.Context, order *entity.Order, tickets []*entity.Ticket) error
}

// Module provides the pipeline to Fx. Analytics and integration hooks are
// collected from the "fulfillment.analytics" and "fulfillment.integrations" groups.
var Module = fx.Options(
	fx.Provide(NewPipeline),
	fx.Provide(
		fx.Annotate(NewReferralAttribution, fx.As(new(Hook)), fx.ResultTags(`group:"fulfillment.analytics"`)),
	),
)

// Dependencies are the collaborators of a Pipeline.
type Dependencies struct {
	Orders       OrderStore
	Tickets      TicketStore
	Discounts    DiscountStore
	Documents    DocumentGenerator
	Mailer       Mailer
	Analytics    []Hook
	Integrations []Hook
}

// Params defines dependencies for constructing Pipeline through Fx.
type Params struct {
	fx.In

	Orders       *orderrepo.Repository
	Tickets      *ticketrepo.Repository
	Discounts    *discount.Repository
	Documents    *document.QRGenerator
	Mailer       *mail.SMTPMailer
	Analytics    []Hook `group:"fulfillment.analytics"`
	Integrations []Hook `group:"fulfillment.integrations"`
	Config       config.Config
	Metrics      *metrics.PaymentMetrics
	Logger       *zap.Logger
}

// Pipeline executes fulfillment steps in a fixed order.
type Pipeline struct {
	deps           Dependencies
	notifyFailures bool
	metrics        *metrics.PaymentMetrics
	logger         *zap.Logger
	audit          *zap.Logger
	now            func() time.Time
}

// NewPipeline wires a pipeline from Fx-provided concrete collaborators.
func NewPipeline(p Params) *Pipeline {
	return New(Dependencies{
		Orders:       p.Orders,
		Tickets:      p.Tickets,
		Discounts:    p.Discounts,
		Documents:    p.Documents,
		Mailer:       p.Mailer,
		Analytics:    p.Analytics,
		Integrations: p.Integrations,
	}, p.Config.Mail.NotifyFailures, p.Metrics, p.Logger)
}

// New builds a pipeline from explicit collaborators.
func New(deps Dependencies, notifyFailures bool, m *metrics.PaymentMetrics, log *zap.Logger) *Pipeline {
	return &Pipeline{
		deps:           deps,
		notifyFailures: notifyFailures,
		metrics:        m,
		logger:         log,
		audit:          logger.Audit(log),
		now:            time.Now,
	}
}

// OnSuccess fulfills a paid order:
//  1. finalize the status if it is not successful yet;
//  2. activate each pending or cancelled ticket;
//  3. account the discount code against its quota;
//  4. render ticket documents and email them;
//  5. notify analytics hooks;
//  6. notify integration hooks.
//
// Steps 1 to 4 return their errors so the caller can retry the whole
// pipeline. Every step tolerates being re-run after a partial failure;
// only the email may be sent more than once.
func (p *Pipeline) OnSuccess(ctx context.Context, order *entity.Order) error {
	ctx, span := tracer.Start(ctx, "Pipeline.OnSuccess", trace.WithAttributes(attribute.String("order.number", order.Number)))
	defer span.End()

	now := p.now().UTC()
	log := p.logger.With(zap.String("order.number", order.Number))

	if err := p.finalize(ctx, order, now); err != nil {
		return p.fail(span, "finalize", err)
	}

	tickets, err := p.activateTickets(ctx, order, now, log)
	if err != nil {
		return p.fail(span, "tickets", err)
	}

	if err := p.accountDiscount(ctx, order, now); err != nil {
		return p.fail(span, "discount", err)
	}

	if err := p.sendConfirmation(ctx, order, tickets); err != nil {
		return p.fail(span, "notification", err)
	}

	p.runHooks(ctx, "analytics", p.deps.Analytics, order, tickets, log)
	p.runHooks(ctx, "integration", p.deps.Integrations, order, tickets, log)

	log.Info("order fulfilled", zap.Int("tickets", len(tickets)))
	return nil
}

// OnFailure records a failed payment and, when enabled, tells the buyer.
// It never returns an error.
func (p *Pipeline) OnFailure(ctx context.Context, order *entity.Order, old, next payment.Status) {
	p.logger.Warn("order payment failed",
		zap.String("order.number", order.Number),
		zap.String("status.old", old.String()),
		zap.String("status.new", next.String()),
	)
	if !p.notifyFailures || p.deps.Mailer == nil {
		return
	}
	err := p.deps.Mailer.Send(ctx, mail.Message{
		To:       order.CustomerEmail,
		Template: mail.TemplatePaymentFailed,
		Data: mail.OrderData{
			CustomerName: order.CustomerName,
			OrderNumber:  order.Number,
			Status:       next.String(),
			Amount:       FormatRupiah(order.FinalAmount),
		},
	})
	p.countEmail(mail.TemplatePaymentFailed, err)
	if err != nil {
		p.logger.Warn("failure notice not sent", zap.String("order.number", order.Number), zap.Error(err))
	}
}

// OnRevoked cancels the valid tickets of an order that left the successful
// set, e.g. after a refund or chargeback.
func (p *Pipeline) OnRevoked(ctx context.Context, order *entity.Order) error {
	tickets, err := p.deps.Tickets.ListByOrder(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("list tickets: %w", err)
	}
	now := p.now().UTC()
	revoked := 0
	for _, ticket := range tickets {
		if ticket.Status != entity.TicketValid {
			continue
		}
		ok, err := p.deps.Tickets.Revoke(ctx, ticket.ID, now)
		if err != nil {
			return fmt.Errorf("revoke ticket %s: %w", ticket.Code, err)
		}
		if ok {
			revoked++
		}
	}
	p.audit.Warn("tickets revoked after payment reversal",
		zap.String("order.number", order.Number),
		zap.String("status", order.Status.String()),
		zap.Int("tickets", revoked),
	)
	return nil
}

func (p *Pipeline) finalize(ctx context.Context, order *entity.Order, now time.Time) error {
	if order.Status.IsSuccessful() {
		return nil
	}
	applied, err := p.deps.Orders.TransitionStatus(ctx, order.ID, order.Status, payment.StatusSettlement, "", now)
	if err != nil {
		return err
	}
	if applied {
		order.Status = payment.StatusSettlement
		if order.PaidAt.IsZero() {
			order.PaidAt = now
		}
	}
	return nil
}

func (p *Pipeline) activateTickets(ctx context.Context, order *entity.Order, now time.Time, log *zap.Logger) ([]*entity.Ticket, error) {
	tickets, err := p.deps.Tickets.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}

	issued := make([]*entity.Ticket, 0, len(tickets))
	for _, ticket := range tickets {
		if ticket.Status.Redeemable() {
			issued = append(issued, ticket)
			continue
		}
		ok, err := p.deps.Tickets.Activate(ctx, ticket.ID, now)
		if err != nil {
			return nil, fmt.Errorf("activate ticket %s: %w", ticket.Code, err)
		}
		if !ok {
			// Changed underneath us; a concurrent activation or a gate scan.
			continue
		}
		ticket.Status = entity.TicketValid
		ticket.ActivatedAt = now
		issued = append(issued, ticket)
		if p.metrics != nil {
			p.metrics.TicketsActivated.Inc()
		}
		log.Info("ticket activated", zap.String("ticket.code", ticket.Code), zap.String("ticket.category", ticket.Category))
	}
	return issued, nil
}

func (p *Pipeline) accountDiscount(ctx context.Context, order *entity.Order, now time.Time) error {
	if order.DiscountCodeID == nil {
		return nil
	}
	outcome, err := p.deps.Discounts.Redeem(ctx, order.ID, *order.DiscountCodeID, now)
	if err != nil {
		return err
	}
	if outcome == discount.QuotaExhausted {
		if p.metrics != nil {
			p.metrics.QuotaExhaustedTotal.Inc()
		}
		p.audit.Warn("quota exhausted",
			zap.String("order.number", order.Number),
			zap.Int64("discount.id", *order.DiscountCodeID),
		)
	}
	return nil
}

func (p *Pipeline) sendConfirmation(ctx context.Context, order *entity.Order, tickets []*entity.Ticket) error {
	attachments, err := p.deps.Documents.Generate(ctx, order, tickets)
	if err != nil {
		return fmt.Errorf("generate documents: %w", err)
	}

	lines := make([]mail.TicketLine, 0, len(tickets))
	for _, ticket := range tickets {
		lines = append(lines, mail.TicketLine{Code: ticket.Code, Category: ticket.Category, HolderName: ticket.HolderName})
	}
	err = p.deps.Mailer.Send(ctx, mail.Message{
		To:       order.CustomerEmail,
		Template: mail.TemplatePaymentSuccess,
		Data: mail.OrderData{
			CustomerName: order.CustomerName,
			OrderNumber:  order.Number,
			Status:       order.Status.String(),
			Amount:       FormatRupiah(order.FinalAmount),
			Tickets:      lines,
		},
		Attachments: attachments,
	})
	p.countEmail(mail.TemplatePaymentSuccess, err)
	if err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}
	return nil
}

func (p *Pipeline) runHooks(ctx context.Context, kind string, hooks []Hook, order *entity.Order, tickets []*entity.Ticket, log *zap.Logger) {
	for _, hook := range hooks {
		if err := hook.OrderPaid(ctx, order, tickets); err != nil {
			if p.metrics != nil {
				p.metrics.SideEffectFailures.WithLabelValues(kind + ":" + hook.Name()).Inc()
			}
			log.Warn("fulfillment hook failed", zap.String("hook", hook.Name()), zap.String("kind", kind), zap.Error(err))
		}
	}
}

func (p *Pipeline) countEmail(template string, err error) {
	if p.metrics == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	p.metrics.EmailsTotal.WithLabelValues(template, result).Inc()
}

func (p *Pipeline) fail(span trace.Span, step string, err error) error {
	if p.metrics != nil {
		p.metrics.SideEffectFailures.WithLabelValues(step).Inc()
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, step)
	return fmt.Errorf("%s: %w", step, err)
}
