//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/airshedlab/airward/internal/adapter/blobstore"
	"github.com/airshedlab/airward/internal/adapter/kafka"
	"github.com/airshedlab/airward/internal/config"
	"github.com/airshedlab/airward/internal/correlate"
	"github.com/airshedlab/airward/internal/domain"
	"github.com/airshedlab/airward/internal/observability"
	"github.com/airshedlab/airward/internal/predict"
	"github.com/airshedlab/airward/internal/scheduler"
)

const (
	testTelemetryTopic      = "test-raw-telemetry"
	testEnforcementTopic    = "test-enforcement-orders"
	testAccountabilityTopic = "test-accountability-requests"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka launches a single-node Kafka container and returns its broker
// address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	ctr, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	brokers, err := ctr.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	ctrlConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrlConn.Close()

	require.NoError(t, ctrlConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:             []string{broker},
		KafkaTelemetryTopic:      testTelemetryTopic,
		KafkaEnforcementTopic:    testEnforcementTopic,
		KafkaAccountabilityTopic: testAccountabilityTopic,
		KafkaGroupID:             group,
		FetchMaxRecords:          5000,
		FetchPollTimeout:         5 * time.Second,
	}
}

// telemetryMessage builds one collector message with the source header set.
func telemetryMessage(t *testing.T, source string, payload any) kafkago.Message {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return kafkago.Message{
		Value:   data,
		Headers: []kafkago.Header{{Key: "source", Value: []byte(source)}},
	}
}

// severeTelemetry publishes an episode that trips both dispatch gates.
func severeTelemetry(t *testing.T, now time.Time) []kafkago.Message {
	t.Helper()
	ts := now.Add(-time.Hour).Format(time.RFC3339)

	msgs := []kafkago.Message{
		telemetryMessage(t, "cpcb", map[string]any{
			"station": "Alipur", "pm25": 450.0, "timestamp": ts,
			"lat": 28.7967, "lon": 77.1367,
		}),
		telemetryMessage(t, "dss", map[string]any{
			"category": "stubble_burning", "percentage": 25.0, "timestamp": ts,
		}),
		telemetryMessage(t, "imd", map[string]any{"speed_kmh": 5.0, "timestamp": ts}),
	}
	for i := 0; i < 320; i++ {
		msgs = append(msgs, telemetryMessage(t, "firms", map[string]any{
			"latitude":  29.5 + float64(i%10)*0.01,
			"longitude": 76.3 + float64(i%10)*0.01,
			"region":    "Punjab",
			"acq_date":  now.Add(-time.Hour).Format("2006-01-02"),
			"acq_time":  "0530",
		}))
	}
	return msgs
}

// readDecision reads a single decision message from a topic.
func readDecision(ctx context.Context, t *testing.T, broker, topic string) kafkago.Message {
	t.Helper()

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       topic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read decision from %s", topic)
	return msg
}

func headerValue(msg kafkago.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// TestKafkaReaderWriter verifies the adapter layer: the reader drains the
// telemetry topic into tagged raw records and the writer publishes decisions
// with the expected key and headers.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTelemetryTopic)
	createTopic(t, broker, testEnforcementTopic)
	createTopic(t, broker, testAccountabilityTopic)

	cfg := testConfig(broker, fmt.Sprintf("test-reader-%d", time.Now().UnixNano()))

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testTelemetryTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx,
		telemetryMessage(t, "cpcb", map[string]any{"station": "Alipur", "pm25": 412.0}),
		telemetryMessage(t, "firms", map[string]any{"latitude": 30.1, "longitude": 75.8}),
	))

	// Retry because the consumer group may need time to rebalance before
	// partitions are assigned and messages become available.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch domain.RawBatch
	for {
		var err error
		batch, err = reader.FetchAll(ctx)
		require.NoError(t, err)
		if len(batch.Records) > 0 {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for telemetry")
		}
	}
	require.Len(t, batch.Records, 2)
	assert.Equal(t, "cpcb", batch.Records[0].Source)
	assert.JSONEq(t, `{"station":"Alipur","pm25":412.0}`, string(batch.Records[0].Payload))
	assert.Equal(t, "firms", batch.Records[1].Source)

	// Dispatch a decision and read it back.
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	order := domain.EnforcementOrder{
		CycleID:   "cycle-integration",
		IssuedAt:  time.Now().UTC().Truncate(time.Second),
		Reasoning: "fire count 320 above 300",
		Prediction: domain.Prediction{
			Category:  domain.CategorySevere,
			Threshold: 400,
		},
	}
	require.NoError(t, writer.DispatchEnforcement(ctx, order))

	msg := readDecision(ctx, t, broker, testEnforcementTopic)
	assert.Equal(t, []byte("cycle-integration"), msg.Key)
	assert.Equal(t, "enforcement", headerValue(msg, "decision_type"))
	_, err := time.Parse(time.RFC3339, headerValue(msg, "issued_at"))
	assert.NoError(t, err)

	var decoded domain.EnforcementOrder
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, order.CycleID, decoded.CycleID)
	assert.Equal(t, domain.CategorySevere, decoded.Prediction.Category)
}

// TestGovernanceCycleEndToEnd runs one full cycle against real Kafka: severe
// telemetry in, enforcement order and accountability request out.
func TestGovernanceCycleEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTelemetryTopic)
	createTopic(t, broker, testEnforcementTopic)
	createTopic(t, broker, testAccountabilityTopic)

	cfg := testConfig(broker, fmt.Sprintf("test-cycle-%d", time.Now().UnixNano()))

	now := time.Now().UTC()
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testTelemetryTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, severeTelemetry(t, now)...))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	store := blobstore.NewMemory()
	engine := predict.New(predict.Config{
		FireCountHigh:      300,
		FireCountModerate:  100,
		WindLowKmh:         10,
		WindModerateKmh:    15,
		StubbleHighPct:     20,
		StubbleModeratePct: 15,
		SevereAQI:          400,
		VeryPoorAQI:        300,
		BaseRateAQIPerHour: 10,
		GraceHours:         6,
	}, discardLogger())

	s := scheduler.New(reader, store, engine, writer, nil,
		discardLogger(), observability.NewMetricsForTesting(), clockwork.NewRealClock(),
		scheduler.Config{
			Interval:       0,
			MaxRetries:     3,
			BackoffBase:    time.Second,
			BorderStations: []string{"Alipur", "Bawana", "Narela", "Mundka", "Najafgarh", "Ghazipur"},
			Reference:      domain.Geo{Lat: 28.6139, Lon: 77.2090},
			Correlate: correlate.Config{
				SurgeAQI:              300,
				RadiusKm:              200,
				WindowHours:           72,
				HighContributionCount: 100,
				LowFireCount:          50,
				MediumDistanceKm:      150,
			},
		})

	require.NoError(t, s.Run(ctx))

	// Enforcement order on the Severe prediction.
	enfMsg := readDecision(ctx, t, broker, testEnforcementTopic)
	var order domain.EnforcementOrder
	require.NoError(t, json.Unmarshal(enfMsg.Value, &order))
	assert.Equal(t, domain.CategorySevere, order.Prediction.Category)
	assert.NotEmpty(t, order.CycleID)
	assert.Len(t, order.Hotspots, 320)

	// Accountability request on the border surge.
	accMsg := readDecision(ctx, t, broker, testAccountabilityTopic)
	var req domain.AccountabilityRequest
	require.NoError(t, json.Unmarshal(accMsg.Value, &req))
	assert.Equal(t, order.CycleID, req.CycleID)
	require.Len(t, req.Stations, 1)
	assert.Equal(t, "Alipur", req.Stations[0].Station)

	// The cycle persisted its snapshot, prediction, and correlation.
	for _, prefix := range []string{"snapshots/", "predictions/", "correlations/"} {
		keys, err := store.List(ctx, prefix)
		require.NoError(t, err)
		assert.Len(t, keys, 1, "expected one blob under %s", prefix)
	}
}
