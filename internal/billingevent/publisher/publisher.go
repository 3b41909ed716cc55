package publisher

import (
	"context"
	"errors"
	"time"

	"github.com/digiurban/billing/internal/config"
	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Message is one billing event on its way to the broker.
type Message struct {
	ID          string
	Type        string
	AggregateID string
	OccurredAt  time.Time
	Body        []byte
}

type Publisher interface {
	Publish(ctx context.Context, msgs ...Message) error
}

// Provide returns a kafka publisher when brokers are configured and a
// logging publisher otherwise.
func Provide(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Publisher {
	if !cfg.Kafka.Enabled() {
		log.Info("kafka brokers not configured, billing events will only be logged")
		return NewLogPublisher(log)
	}

	pub := NewKafka(cfg.Kafka, log)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return pub.Close()
		},
	})
	return pub
}

type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

func NewKafka(cfg config.KafkaConfig, log *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.InvoiceTopic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireAll,
		Transport: &kafka.Transport{
			ClientID: cfg.ClientID,
		},
	}
	return &KafkaPublisher{
		writer: writer,
		log:    log.Named("events.kafka"),
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, toKafkaMessages(msgs)...); err != nil {
		var writeErrs kafka.WriteErrors
		if errors.As(err, &writeErrs) {
			p.log.Warn("kafka partial write failure", zap.Int("failed", writeErrs.Count()), zap.Int("total", len(msgs)))
		}
		return err
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// toKafkaMessages keys messages by aggregate so events of one invoice keep
// their order on a single partition.
func toKafkaMessages(msgs []Message) []kafka.Message {
	out := make([]kafka.Message, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, kafka.Message{
			Key:   []byte(msg.AggregateID),
			Value: msg.Body,
			Time:  msg.OccurredAt,
			Headers: []kafka.Header{
				{Key: "event_id", Value: []byte(msg.ID)},
				{Key: "event_type", Value: []byte(msg.Type)},
			},
		})
	}
	return out
}

type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log.Named("events.log")}
}

func (p *LogPublisher) Publish(ctx context.Context, msgs ...Message) error {
	for _, msg := range msgs {
		p.log.Info("billing event",
			zap.String("event_id", msg.ID),
			zap.String("event_type", msg.Type),
			zap.String("aggregate_id", msg.AggregateID),
		)
	}
	return nil
}
