// Package kafka adapts the telemetry and decision topics to the domain
// ports: a draining consumer for raw telemetry and a producer pair for the
// downstream action pipelines.
package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/airshedlab/airward/internal/config"
	"github.com/airshedlab/airward/internal/domain"
)

// Reader consumes the raw telemetry topic. It implements domain.Fetcher:
// each FetchAll drains whatever the collectors published since the last
// cycle, up to the configured record cap.
type Reader struct {
	reader      *kafkago.Reader
	logger      *slog.Logger
	maxRecords  int
	pollTimeout time.Duration
}

// NewReader creates a Kafka consumer for the telemetry topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaTelemetryTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	return &Reader{
		reader:      r,
		logger:      logger,
		maxRecords:  cfg.FetchMaxRecords,
		pollTimeout: cfg.FetchPollTimeout,
	}
}

// FetchAll reads messages until the topic stops yielding within the poll
// timeout or the record cap is reached, then commits the batch. An empty
// topic is not an error; it yields an empty batch.
func (r *Reader) FetchAll(ctx context.Context) (domain.RawBatch, error) {
	var (
		records []domain.RawRecord
		fetched []kafkago.Message
	)

	for len(records) < r.maxRecords {
		pollCtx, cancel := context.WithTimeout(ctx, r.pollTimeout)
		msg, err := r.reader.FetchMessage(pollCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				break // topic drained for this cycle
			}
			if ctx.Err() != nil {
				return domain.RawBatch{}, ctx.Err()
			}
			return domain.RawBatch{}, err
		}
		records = append(records, mapMessageToRawRecord(msg))
		fetched = append(fetched, msg)
	}

	if len(fetched) > 0 {
		if err := r.reader.CommitMessages(ctx, fetched...); err != nil {
			return domain.RawBatch{}, err
		}
	}

	r.logger.Debug("telemetry fetched", "records", len(records))
	return domain.RawBatch{Records: records}, nil
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

// mapMessageToRawRecord converts a Kafka message into a raw telemetry
// record. The collector's source tag travels in the "source" header; absent
// means the normalizer infers it from the payload shape.
func mapMessageToRawRecord(msg kafkago.Message) domain.RawRecord {
	rec := domain.RawRecord{Payload: msg.Value}
	for _, h := range msg.Headers {
		if h.Key == "source" {
			rec.Source = string(h.Value)
			break
		}
	}
	return rec
}
