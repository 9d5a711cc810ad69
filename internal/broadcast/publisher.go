// Package broadcast announces order status changes to downstream consumers.
package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/config"
	"github.com/Kwazak/umnfestival2026-sub004/internal/entity"
	"github.com/Kwazak/umnfestival2026-sub004/internal/messaging"
	"github.com/Kwazak/umnfestival2026-sub004/internal/payment"
)

// Module provides the status change publisher to Fx.
var Module = fx.Provide(NewPublisher)

// StatusChangedEvent is published after every persisted status change.
type StatusChangedEvent struct {
	EventID     string         `json:"event_id"`
	OrderID     int64          `json:"order_id"`
	OrderNumber string         `json:"order_number"`
	OldStatus   payment.Status `json:"old_status"`
	NewStatus   payment.Status `json:"new_status"`
	Transition  string         `json:"transition"`
	Source      string         `json:"source"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// Publisher writes StatusChangedEvent messages keyed by order number so
// consumers see one order's changes in order.
type Publisher struct {
	client messaging.Client
	topic  string
	logger *zap.Logger
}

// NewPublisher wires the publisher to the configured status topic.
func NewPublisher(client messaging.Client, cfg config.Config, logger *zap.Logger) *Publisher {
	return &Publisher{client: client, topic: cfg.Messaging.Kafka.StatusTopic, logger: logger}
}

// StatusChanged publishes the change. The caller treats errors as non-fatal.
func (p *Publisher) StatusChanged(ctx context.Context, order *entity.Order, old, next payment.Status, source string) error {
	event := StatusChangedEvent{
		EventID:     uuid.NewString(),
		OrderID:     order.ID,
		OrderNumber: order.Number,
		OldStatus:   old,
		NewStatus:   next,
		Transition:  payment.Classify(old, next).String(),
		Source:      source,
		OccurredAt:  time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.topic, []byte(order.Number), payload); err != nil {
		return err
	}
	p.logger.Debug("status change broadcast",
		zap.String("order.number", order.Number),
		zap.String("event.id", event.EventID),
	)
	return nil
}
