package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/airshedlab/airward/internal/adapter/blobstore"
	"github.com/airshedlab/airward/internal/adapter/geocode"
	httpadapter "github.com/airshedlab/airward/internal/adapter/http"
	kafkaadapter "github.com/airshedlab/airward/internal/adapter/kafka"
	"github.com/airshedlab/airward/internal/config"
	"github.com/airshedlab/airward/internal/correlate"
	"github.com/airshedlab/airward/internal/domain"
	"github.com/airshedlab/airward/internal/observability"
	"github.com/airshedlab/airward/internal/predict"
	"github.com/airshedlab/airward/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Region resolution is feature-flagged via GEOCODE_ENABLED.
	var resolver domain.RegionResolver
	if cfg.GeocodeEnabled {
		client := geocode.NewClient(cfg.GeocodeBaseURL, cfg.GeocodeTimeout, logger, metrics)
		resolver = geocode.NewCachedResolver(client, cfg.GeocodeCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("region resolution enabled", "base_url", cfg.GeocodeBaseURL, "cache_size", cfg.GeocodeCacheSize)
	} else {
		logger.Info("region resolution disabled")
	}

	// Blob store: Postgres when a DSN is configured, in-memory otherwise.
	var store domain.BlobStore
	if cfg.PostgresDSN != "" {
		pg, err := blobstore.NewPostgres(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			logger.Error("failed to connect blob store", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		store = pg
		logger.Info("postgres blob store connected")
	} else {
		store = blobstore.NewMemory()
		logger.Warn("no POSTGRES_DSN set, snapshots are kept in memory only")
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)

	engine := predict.New(predict.Config{
		FireCountHigh:      cfg.Thresholds.FireCountHigh,
		FireCountModerate:  cfg.Thresholds.FireCountModerate,
		WindLowKmh:         cfg.Thresholds.WindLowKmh,
		WindModerateKmh:    cfg.Thresholds.WindModerateKmh,
		StubbleHighPct:     cfg.Thresholds.StubbleHighPct,
		StubbleModeratePct: cfg.Thresholds.StubbleModeratePct,
		SevereAQI:          cfg.Thresholds.SevereAQI,
		VeryPoorAQI:        cfg.Thresholds.VeryPoorAQI,
		BaseRateAQIPerHour: cfg.Thresholds.BaseRateAQIPerHour,
		GraceHours:         cfg.Thresholds.GraceHours,
	}, logger)

	s := scheduler.New(reader, store, engine, writer, resolver, logger, metrics, clockwork.NewRealClock(), scheduler.Config{
		Interval:       cfg.CycleInterval,
		MaxRetries:     cfg.MaxRetries,
		BackoffBase:    cfg.BackoffBase,
		BorderStations: cfg.BorderStations,
		Reference:      domain.Geo{Lat: cfg.ReferenceLat, Lon: cfg.ReferenceLon},
		Correlate: correlate.Config{
			SurgeAQI:              cfg.Thresholds.SurgeAQI,
			RadiusKm:              cfg.Thresholds.RadiusKm,
			WindowHours:           cfg.Thresholds.WindowHours,
			HighContributionCount: cfg.Thresholds.HighContributionCount,
			LowFireCount:          cfg.Thresholds.LowFireCount,
			MediumDistanceKm:      cfg.Thresholds.MediumDistanceKm,
		},
	})

	srv := httpadapter.NewServer(cfg.HTTPAddr, s, s, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start the governance loop.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := s.Run(ctx); err != nil {
			logger.Error("scheduler error", "error", err)
		}
	}()

	select {
	case <-ctx.Done():
	case <-done:
		// Single-cycle mode finished; begin shutdown without a signal.
		stop()
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	<-done
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}
