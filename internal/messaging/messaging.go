package messaging

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/config"
)

// Message represents a message consumed from the bus.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
	Offset  int64
	Time    time.Time
}

// Handler processes an inbound message.
type Handler func(context.Context, Message) error

// Client is the pluggable messaging abstraction.
type Client interface {
	Publish(ctx context.Context, topic string, key []byte, value []byte) error
	// Consume blocks, delivering messages from the subscribed topics until ctx ends.
	Consume(ctx context.Context, handler Handler) error
	Topics() []string
}

// Module wires the messaging client.
var Module = fx.Provide(NewClient)

// ErrDisabled is returned to callers that need a message to actually travel
// while messaging is switched off.
var ErrDisabled = errors.New("messaging: disabled")

// noopClient is used when messaging is disabled.
type noopClient struct {
	topics []string
}

func (n noopClient) Publish(context.Context, string, []byte, []byte) error { return nil }
func (n noopClient) Consume(ctx context.Context, handler Handler) error {
	<-ctx.Done()
	return ctx.Err()
}
func (n noopClient) Topics() []string { return n.topics }

// NewNoopClient returns a client that drops published messages.
func NewNoopClient() Client {
	return noopClient{}
}

// Dead-letter headers name where a parked message came from and why.
const (
	HeaderOriginalTopic  = "x-original-topic"
	HeaderOriginalOffset = "x-original-offset"
	HeaderError          = "x-error"
)

const maxDeadLetterBackoff = 30 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// kafkaClient implements the Client via kafka-go.
type kafkaClient struct {
	writer          messageWriter
	reader          messageReader
	topics          []string
	deadLetterTopic string
	maxAttempts     int
	retryBackoff    time.Duration
	logger          *zap.Logger
}

// Publish writes one message. Messages with the same key land on the same
// partition, so jobs for one order are consumed in order. The caller's trace
// context travels in the headers.
func (k *kafkaClient) Publish(ctx context.Context, topic string, key []byte, value []byte) error {
	msg := kafka.Message{Topic: topic, Key: key, Value: value, Headers: injectTrace(ctx)}
	return k.writer.WriteMessages(ctx, msg)
}

func (k *kafkaClient) Consume(ctx context.Context, handler Handler) error {
	for {
		msg, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			k.logger.Error("kafka fetch failed", zap.Error(err))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		wrapped := fromKafka(msg)
		msgCtx := extractTrace(ctx, wrapped.Headers)

		err = Deliver(msgCtx, handler, wrapped, k.maxAttempts, k.retryBackoff)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if err := k.settle(ctx, msg, err); err != nil {
			return err
		}
	}
}

// settle commits msg once it is handled. A message whose handler gave up is
// parked on the dead-letter topic first; it is only committed after the
// dead letter is written, so a failure is never dropped silently.
func (k *kafkaClient) settle(ctx context.Context, msg kafka.Message, handlerErr error) error {
	if handlerErr != nil {
		k.logger.Error("message handler gave up",
			zap.Error(handlerErr),
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempts", k.maxAttempts),
		)
		if err := k.deadLetter(ctx, msg, handlerErr); err != nil {
			return err
		}
	}
	if err := k.reader.CommitMessages(ctx, msg); err != nil {
		k.logger.Warn("commit failed", zap.Error(err))
	}
	return nil
}

// deadLetter writes msg to the dead-letter topic, retrying until the write
// succeeds or ctx ends. The partition stalls meanwhile.
func (k *kafkaClient) deadLetter(ctx context.Context, msg kafka.Message, cause error) error {
	if k.deadLetterTopic == "" {
		k.logger.Warn("no dead-letter topic configured; dropping message", zap.String("topic", msg.Topic), zap.Int64("offset", msg.Offset))
		return nil
	}
	headers := make([]kafka.Header, 0, len(msg.Headers)+3)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: HeaderOriginalTopic, Value: []byte(msg.Topic)},
		kafka.Header{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: HeaderError, Value: []byte(cause.Error())},
	)
	parked := kafka.Message{Topic: k.deadLetterTopic, Key: msg.Key, Value: msg.Value, Headers: headers}

	backoff := k.retryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	for {
		err := k.writer.WriteMessages(ctx, parked)
		if err == nil {
			k.logger.Warn("message dead-lettered", zap.String("topic", msg.Topic), zap.String("dead_letter_topic", k.deadLetterTopic), zap.Int64("offset", msg.Offset))
			return nil
		}
		k.logger.Error("dead-letter write failed", zap.Error(err), zap.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxDeadLetterBackoff)
	}
}

func (k *kafkaClient) Topics() []string { return k.topics }

// Deliver runs handler until it succeeds, attempts are exhausted or ctx
// ends, doubling the pause between attempts.
func Deliver(ctx context.Context, handler Handler, msg Message, attempts int, backoff time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = handler(ctx, msg); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

// Enabled reports whether published messages reach a broker.
func Enabled(cfg config.Config) bool {
	return cfg.Messaging.Enabled && cfg.Messaging.Driver != "noop"
}

// NewClient builds a messaging client based on configuration.
func NewClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Client, error) {
	topics := []string{cfg.Messaging.Kafka.ReconcileTopic}
	if !Enabled(cfg) {
		logger.Info("messaging disabled; using noop client")

		return noopClient{topics: topics}, nil
	}

	switch cfg.Messaging.Driver {
	case "kafka":
		return newKafkaClient(lc, cfg, topics, logger)
	default:
		return nil, fmt.Errorf("unsupported messaging driver: %s", cfg.Messaging.Driver)
	}
}

func newKafkaClient(lc fx.Lifecycle, cfg config.Config, topics []string, logger *zap.Logger) (Client, error) {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Messaging.Kafka.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		Logger:       kafkaLogger{logger: logger},
		ErrorLogger:  kafkaLogger{logger: logger},
	}

	readerConfig := kafka.ReaderConfig{
		Brokers:        cfg.Messaging.Kafka.Brokers,
		GroupID:        cfg.Messaging.ConsumerGroup,
		GroupTopics:    topics,
		MinBytes:       cfg.Messaging.Kafka.MinBytes,
		MaxBytes:       cfg.Messaging.Kafka.MaxBytes,
		CommitInterval: cfg.Messaging.Kafka.CommitInterval,
		Dialer: &kafka.Dialer{
			Timeout:  cfg.Messaging.Kafka.ConnectTimeout,
			ClientID: cfg.Messaging.Kafka.ClientID,
		},
	}

	reader := kafka.NewReader(readerConfig)

	client := &kafkaClient{
		writer:          writer,
		reader:          reader,
		topics:          topics,
		deadLetterTopic: cfg.Messaging.Kafka.DeadLetterTopic,
		maxAttempts:     cfg.Messaging.Workers.MaxAttempts,
		retryBackoff:    cfg.Messaging.Workers.RetryBackoff,
		logger:          logger,
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("closing kafka client")

			if err := writer.Close(); err != nil {
				return err
			}
			return reader.Close()
		},
	})

	return client, nil
}

type kafkaLogger struct {
	logger *zap.Logger
}

func (k kafkaLogger) Printf(msg string, args ...interface{}) {
	k.logger.Sugar().Debugf(msg, args...)
}
