package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/airshedlab/airward/internal/config"
	"github.com/airshedlab/airward/internal/domain"
)

// Writer produces governance decisions to the enforcement and accountability
// topics. It implements domain.Dispatcher.
type Writer struct {
	enforcement    *kafkago.Writer
	accountability *kafkago.Writer
	logger         *slog.Logger
}

// NewWriter creates the producer pair for the configured decision topics.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	newTopicWriter := func(topic string) *kafkago.Writer {
		return &kafkago.Writer{
			Addr:         kafkago.TCP(cfg.KafkaBrokers...),
			Topic:        topic,
			Balancer:     &kafkago.LeastBytes{},
			RequiredAcks: kafkago.RequireAll,
		}
	}
	return &Writer{
		enforcement:    newTopicWriter(cfg.KafkaEnforcementTopic),
		accountability: newTopicWriter(cfg.KafkaAccountabilityTopic),
		logger:         logger,
	}
}

// DispatchEnforcement publishes an enforcement order. Keyed by cycle ID, so
// a retried dispatch of the same order lands on the same partition.
func (w *Writer) DispatchEnforcement(ctx context.Context, order domain.EnforcementOrder) error {
	msg, err := serializeEnforcement(order)
	if err != nil {
		return err
	}
	return w.enforcement.WriteMessages(ctx, msg)
}

// DispatchAccountability publishes an investigation request.
func (w *Writer) DispatchAccountability(ctx context.Context, req domain.AccountabilityRequest) error {
	msg, err := serializeAccountability(req)
	if err != nil {
		return err
	}
	return w.accountability.WriteMessages(ctx, msg)
}

func (w *Writer) Close() error {
	if err := w.enforcement.Close(); err != nil {
		return err
	}
	return w.accountability.Close()
}

// serializeEnforcement marshals an enforcement order into a Kafka message.
func serializeEnforcement(order domain.EnforcementOrder) (kafkago.Message, error) {
	data, err := json.Marshal(order)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize enforcement order: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(order.CycleID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "decision_type", Value: []byte("enforcement")},
			{Key: "issued_at", Value: []byte(order.IssuedAt.Format(time.RFC3339))},
		},
	}, nil
}

// serializeAccountability marshals an accountability request into a Kafka
// message.
func serializeAccountability(req domain.AccountabilityRequest) (kafkago.Message, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize accountability request: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(req.CycleID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "decision_type", Value: []byte("accountability")},
			{Key: "issued_at", Value: []byte(req.IssuedAt.Format(time.RFC3339))},
		},
	}, nil
}
