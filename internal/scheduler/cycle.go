// Package scheduler drives the governance cycle: ingest telemetry, predict
// air quality, and conditionally dispatch enforcement and accountability
// actions, on a fixed cadence with bounded per-step retries.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/airshedlab/airward/internal/correlate"
	"github.com/airshedlab/airward/internal/dispatch"
	"github.com/airshedlab/airward/internal/domain"
	"github.com/airshedlab/airward/internal/observability"
	"github.com/airshedlab/airward/internal/predict"
)

// Step names used in logs and metric labels.
const (
	stepIngestion      = "ingestion"
	stepPrediction     = "prediction"
	stepEnforcement    = "enforcement"
	stepAccountability = "accountability"
)

const (
	snapshotPrefix    = "snapshots/"
	predictionPrefix  = "predictions/"
	correlationPrefix = "correlations/"

	// keyTimeLayout sorts lexicographically, so the newest snapshot is
	// always the last List result after sorting.
	keyTimeLayout = "20060102_150405"
)

// Config carries the scheduler's cadence, retry policy, and the correlation
// settings it evaluates each cycle. A zero Interval runs exactly one cycle.
type Config struct {
	Interval       time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
	BorderStations []string
	Reference      domain.Geo
	Correlate      correlate.Config
}

// Scheduler owns the cycle state. It is the single writer; readers get
// copies through Status.
type Scheduler struct {
	fetcher    domain.Fetcher
	store      domain.BlobStore
	engine     *predict.Engine
	dispatcher domain.Dispatcher
	resolver   domain.RegionResolver
	logger     *slog.Logger
	metrics    *observability.Metrics
	clock      clockwork.Clock
	cfg        Config

	ready atomic.Bool

	mu                sync.RWMutex
	state             domain.CycleState
	latestPrediction  *domain.Prediction
	latestCorrelation []domain.CorrelationResult
	latestScore       *float64
}

// New creates a Scheduler. The resolver may be nil, in which case fire events
// keep whatever region the telemetry carried.
func New(fetcher domain.Fetcher, store domain.BlobStore, engine *predict.Engine, dispatcher domain.Dispatcher, resolver domain.RegionResolver, logger *slog.Logger, metrics *observability.Metrics, clk clockwork.Clock, cfg Config) *Scheduler {
	return &Scheduler{
		fetcher:    fetcher,
		store:      store,
		engine:     engine,
		dispatcher: dispatcher,
		resolver:   resolver,
		logger:     logger,
		metrics:    metrics,
		clock:      clk,
		cfg:        cfg,
	}
}

// CheckReadiness returns nil once at least one governance cycle has run to
// completion.
func (s *Scheduler) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("no governance cycle has completed yet")
	}
	return nil
}

// Run executes governance cycles until the context is cancelled. The pause
// between cycle starts is Interval minus the cycle's own duration, floored at
// zero so slow cycles restart immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("governance scheduler started",
		"interval", s.cfg.Interval,
		"max_retries", s.cfg.MaxRetries,
		"border_stations", len(s.cfg.BorderStations),
	)
	s.metrics.SchedulerRunning.Set(1)
	defer s.metrics.SchedulerRunning.Set(0)

	for {
		start := s.clock.Now()
		s.runCycle(ctx)

		if s.cfg.Interval == 0 {
			s.logger.Info("single-cycle mode, scheduler exiting")
			return nil
		}
		if ctx.Err() != nil {
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		}

		sleep := s.cfg.Interval - s.clock.Since(start)
		if sleep < 0 {
			sleep = 0
		}
		if sleep > 0 {
			select {
			case <-ctx.Done():
				s.logger.Info("scheduler stopping", "reason", ctx.Err())
				return nil
			case <-s.clock.After(sleep):
			}
		}
	}
}

// cycleContext accumulates one cycle's intermediate results as the four steps
// hand off to each other.
type cycleContext struct {
	id      string
	stamp   string
	records domain.RecordSet
	wind    []domain.WindEntry
	quality domain.DataQuality

	// fallback marks that ingestion failed and records came from the most
	// recent stored snapshot.
	fallback bool

	prediction *domain.Prediction
	surges     []domain.StationReading
	results    []domain.CorrelationResult
	score      float64
}

// runCycle executes the four governance steps in order. A failed step never
// aborts the cycle; later steps work with whatever earlier steps produced.
func (s *Scheduler) runCycle(ctx context.Context) {
	start := s.clock.Now()
	cyc := &cycleContext{
		id:    uuid.NewString(),
		stamp: start.UTC().Format(keyTimeLayout),
	}
	s.logger.Info("cycle started", "cycle_id", cyc.id)

	s.runIngestion(ctx, cyc)
	s.runPrediction(ctx, cyc)
	s.runEnforcement(ctx, cyc)
	s.runAccountability(ctx, cyc)

	elapsed := s.clock.Since(start)

	s.mu.Lock()
	s.state.LastCycleAt = s.clock.Now()
	s.state.LastCycleDuration = elapsed
	s.mu.Unlock()

	s.metrics.CyclesCompleted.Inc()
	s.metrics.CycleDuration.Observe(elapsed.Seconds())
	s.ready.Store(true)

	s.logger.Info("cycle completed",
		"cycle_id", cyc.id,
		"duration", elapsed,
		"ingestion_fallback", cyc.fallback,
	)
}

// runIngestion fetches and normalizes the cycle's telemetry and persists the
// snapshot. When every attempt fails, the most recent stored snapshot stands
// in so downstream steps still run; LastIngestion is not advanced in that
// case.
func (s *Scheduler) runIngestion(ctx context.Context, cyc *cycleContext) {
	err := s.withRetry(ctx, stepIngestion, func(ctx context.Context) error {
		batch, err := s.fetcher.FetchAll(ctx)
		if err != nil {
			return err
		}

		wind, records := domain.SplitWind(batch.Records)
		wind = append(wind, batch.Wind...)

		rs := domain.Normalize(records, s.cfg.Reference)
		s.resolveRegions(ctx, rs.Fires)

		snap := cycleSnapshot{Records: rs, Wind: wind, CapturedAt: s.clock.Now().UTC()}
		if err := s.putJSON(ctx, snapshotPrefix+cyc.stamp, snap); err != nil {
			return fmt.Errorf("persist snapshot: %w", err)
		}

		cyc.records = rs
		cyc.wind = wind
		return nil
	})

	if err != nil {
		s.logger.Error("ingestion exhausted retries, falling back to stored snapshot", "error", err)
		snap, fallbackErr := s.latestSnapshot(ctx)
		if fallbackErr != nil {
			s.logger.Error("no stored snapshot available, cycle proceeds with empty data", "error", fallbackErr)
		} else {
			cyc.records = snap.Records
			cyc.wind = snap.Wind
			cyc.fallback = true
		}
	} else {
		s.mu.Lock()
		s.state.LastIngestion = s.clock.Now()
		s.mu.Unlock()
	}

	cyc.quality = domain.AssessQuality(cyc.records)
	s.logger.Info("ingestion step done",
		"stations", len(cyc.records.Stations),
		"fires", len(cyc.records.Fires),
		"attributions", len(cyc.records.Attributions),
		"wind_entries", len(cyc.wind),
		"completeness", cyc.quality.Completeness,
		"age_hours", cyc.quality.AgeHours,
	)
}

// runPrediction evaluates the rule cascade and the surge correlation, and
// persists both outputs.
func (s *Scheduler) runPrediction(ctx context.Context, cyc *cycleContext) {
	err := s.withRetry(ctx, stepPrediction, func(ctx context.Context) error {
		pred := s.engine.Predict(cyc.records, cyc.wind, cyc.quality)
		pred.GeneratedAt = s.clock.Now().UTC()

		surges := correlate.DetectSurges(cyc.records.Stations, s.cfg.BorderStations, s.cfg.Correlate.SurgeAQI)
		results := correlate.CorrelateWith(surges, cyc.records.Fires, s.cfg.Correlate)
		score := correlate.Score(results,
			len(cyc.records.Fires) > 0,
			len(cyc.records.Attributions) > 0,
			s.cfg.Correlate)

		if err := s.putJSON(ctx, predictionPrefix+cyc.stamp, pred); err != nil {
			return fmt.Errorf("persist prediction: %w", err)
		}
		record := correlationRecord{CycleID: cyc.id, Surges: surges, Results: results, Score: score}
		if err := s.putJSON(ctx, correlationPrefix+cyc.stamp, record); err != nil {
			return fmt.Errorf("persist correlation: %w", err)
		}

		cyc.prediction = &pred
		cyc.surges = surges
		cyc.results = results
		cyc.score = score
		return nil
	})
	if err != nil {
		s.logger.Error("prediction exhausted retries", "error", err)
		return
	}

	s.mu.Lock()
	s.state.LastPrediction = s.clock.Now()
	s.latestPrediction = cyc.prediction
	s.latestCorrelation = cyc.results
	score := cyc.score
	s.latestScore = &score
	s.mu.Unlock()

	s.metrics.PredictionConfidence.Set(cyc.prediction.Confidence)
	s.metrics.SurgeStations.Set(float64(len(cyc.surges)))

	s.logger.Info("prediction step done",
		"category", cyc.prediction.Category,
		"confidence", cyc.prediction.Confidence,
		"estimated_hours", cyc.prediction.EstimatedHours,
		"surge_stations", len(cyc.surges),
		"correlation_score", cyc.score,
	)
}

// runEnforcement dispatches an enforcement order when the gate opens.
func (s *Scheduler) runEnforcement(ctx context.Context, cyc *cycleContext) {
	if cyc.prediction == nil {
		s.logger.Warn("skipping enforcement, no prediction this cycle")
		return
	}

	ok, order := dispatch.ShouldEnforce(*cyc.prediction, correlatedEvents(cyc.results))
	if !ok {
		s.logger.Debug("enforcement gate closed", "category", cyc.prediction.Category)
		return
	}
	order.CycleID = cyc.id
	order.IssuedAt = s.clock.Now().UTC()

	err := s.withRetry(ctx, stepEnforcement, func(ctx context.Context) error {
		return s.dispatcher.DispatchEnforcement(ctx, order)
	})
	if err != nil {
		s.logger.Error("enforcement dispatch exhausted retries", "error", err)
		return
	}

	s.mu.Lock()
	s.state.LastEnforcement = s.clock.Now()
	s.mu.Unlock()
	s.metrics.EnforcementDispatches.Inc()
	s.logger.Info("enforcement order dispatched", "cycle_id", cyc.id, "hotspots", len(order.Hotspots))
}

// runAccountability dispatches an investigation request when border stations
// surged this cycle.
func (s *Scheduler) runAccountability(ctx context.Context, cyc *cycleContext) {
	ok, req := dispatch.ShouldInvestigate(cyc.surges)
	if !ok {
		s.logger.Debug("accountability gate closed, no surging border stations")
		return
	}
	req.CycleID = cyc.id
	req.IssuedAt = s.clock.Now().UTC()

	err := s.withRetry(ctx, stepAccountability, func(ctx context.Context) error {
		return s.dispatcher.DispatchAccountability(ctx, req)
	})
	if err != nil {
		s.logger.Error("accountability dispatch exhausted retries", "error", err)
		return
	}

	s.mu.Lock()
	s.state.LastAccountability = s.clock.Now()
	s.mu.Unlock()
	s.metrics.AccountabilityDispatches.Inc()
	s.logger.Info("accountability request dispatched", "cycle_id", cyc.id, "stations", len(req.Stations))
}

// withRetry runs fn up to MaxRetries times with exponential backoff between
// attempts (BackoffBase, doubled each retry). Returns the last error when all
// attempts fail.
func (s *Scheduler) withRetry(ctx context.Context, step string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 1 {
				s.logger.Info("step recovered after retry", "step", step, "attempt", attempt)
			}
			return nil
		}

		s.logger.Warn("step attempt failed",
			"step", step,
			"attempt", attempt,
			"max_retries", s.cfg.MaxRetries,
			"error", lastErr,
		)
		if attempt == s.cfg.MaxRetries {
			break
		}
		s.metrics.StepRetries.WithLabelValues(step).Inc()

		wait := s.cfg.BackoffBase << (attempt - 1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(wait):
		}
	}

	s.metrics.StepFailures.WithLabelValues(step).Inc()
	return lastErr
}

// resolveRegions fills the region of fire events that arrived without one.
// Resolution failures are non-fatal; the event keeps an empty region and
// correlation buckets it under Unknown.
func (s *Scheduler) resolveRegions(ctx context.Context, fires []domain.FireEvent) {
	if s.resolver == nil {
		return
	}
	for i := range fires {
		if fires[i].Region != "" || fires[i].Geo == (domain.Geo{}) {
			continue
		}
		info, err := s.resolver.Resolve(ctx, fires[i].Geo.Lat, fires[i].Geo.Lon)
		if err != nil {
			s.logger.Debug("region resolution failed",
				"lat", fires[i].Geo.Lat, "lon", fires[i].Geo.Lon, "error", err)
			continue
		}
		fires[i].Region = info.Region
		fires[i].District = info.District
	}
}

// cycleSnapshot is the persisted form of one ingestion pass.
type cycleSnapshot struct {
	Records    domain.RecordSet   `json:"records"`
	Wind       []domain.WindEntry `json:"wind,omitempty"`
	CapturedAt time.Time          `json:"captured_at"`
}

// correlationRecord is the persisted form of one cycle's surge correlation.
type correlationRecord struct {
	CycleID string                     `json:"cycle_id"`
	Surges  []domain.StationReading    `json:"surges,omitempty"`
	Results []domain.CorrelationResult `json:"results,omitempty"`
	Score   float64                    `json:"score"`
}

func (s *Scheduler) putJSON(ctx context.Context, key string, v any) error {
	blob, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, key, blob)
}

// latestSnapshot loads the most recent stored ingestion snapshot.
func (s *Scheduler) latestSnapshot(ctx context.Context) (cycleSnapshot, error) {
	keys, err := s.store.List(ctx, snapshotPrefix)
	if err != nil {
		return cycleSnapshot{}, err
	}
	if len(keys) == 0 {
		return cycleSnapshot{}, errors.New("no stored snapshots")
	}
	sort.Strings(keys)

	raw, err := s.store.Get(ctx, keys[len(keys)-1])
	if err != nil {
		return cycleSnapshot{}, err
	}
	var snap cycleSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return cycleSnapshot{}, fmt.Errorf("decode snapshot %s: %w", keys[len(keys)-1], err)
	}
	return snap, nil
}

// correlatedEvents flattens the per-region results into the hotspot list an
// enforcement order carries.
func correlatedEvents(results []domain.CorrelationResult) []domain.FireEvent {
	var events []domain.FireEvent
	for _, r := range results {
		events = append(events, r.Events...)
	}
	return events
}
