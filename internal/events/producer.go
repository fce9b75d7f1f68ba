package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/homequest/realestate-search/internal/config"
	"github.com/homequest/realestate-search/internal/models"
)

// Producer publishes search and click events to Kafka for downstream
// consumers. Delivery is best-effort; the JSONL store stays authoritative.
type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewProducer(cfg config.KafkaConfig, logger *zap.Logger) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicEvents,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		MaxAttempts:  cfg.MaxRetries,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
	}

	logger.Info("event producer created",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.TopicEvents),
	)

	return &Producer{
		writer: w,
		logger: logger,
	}
}

func (p *Producer) PublishSearch(ctx context.Context, ev *models.SearchEvent) error {
	return p.publish(ctx, "search", ev.QueryID, ev)
}

func (p *Producer) PublishClick(ctx context.Context, ev *models.ClickEvent) error {
	return p.publish(ctx, "click", ev.QueryID, ev)
}

func (p *Producer) publish(ctx context.Context, kind, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", kind, err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event_kind", Value: []byte(kind)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing %s event: %w", kind, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
