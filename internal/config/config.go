package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all service settings, populated from environment variables
// with an optional YAML thresholds file.
type Config struct {
	KafkaBrokers             []string
	KafkaTelemetryTopic      string
	KafkaEnforcementTopic    string
	KafkaAccountabilityTopic string
	KafkaGroupID             string
	HTTPAddr                 string
	LogLevel                 string
	LogFormat                string
	ShutdownTimeout          time.Duration

	// PostgresDSN selects the blob-store backend; empty keeps snapshots in
	// memory.
	PostgresDSN string

	// Cycle cadence and retry policy. A zero interval disables looping:
	// the scheduler runs exactly one cycle and returns.
	CycleInterval time.Duration
	MaxRetries    int
	BackoffBase   time.Duration

	// Telemetry fetch bounds.
	FetchMaxRecords  int
	FetchPollTimeout time.Duration

	// Region-resolution enrichment (reverse geocoding).
	GeocodeEnabled   bool
	GeocodeBaseURL   string
	GeocodeTimeout   time.Duration
	GeocodeCacheSize int

	// Border stations registered for surge detection and the reference
	// point fire distances are measured against.
	BorderStations []string
	ReferenceLat   float64
	ReferenceLon   float64

	Thresholds Thresholds
}

// Thresholds carries every empirically chosen constant of the prediction and
// correlation engines. The values are operational constants carried over
// from field calibration; the engines never re-derive them.
type Thresholds struct {
	FireCountHigh      int     `yaml:"fireCountHigh"`
	FireCountModerate  int     `yaml:"fireCountModerate"`
	WindLowKmh         float64 `yaml:"windLowKmh"`
	WindModerateKmh    float64 `yaml:"windModerateKmh"`
	StubbleHighPct     float64 `yaml:"stubbleHighPct"`
	StubbleModeratePct float64 `yaml:"stubbleModeratePct"`
	SevereAQI          float64 `yaml:"severeAQI"`
	VeryPoorAQI        float64 `yaml:"veryPoorAQI"`
	BaseRateAQIPerHour float64 `yaml:"baseRateAQIPerHour"`
	GraceHours         float64 `yaml:"graceHours"`

	SurgeAQI              float64 `yaml:"surgeAQI"`
	RadiusKm              float64 `yaml:"radiusKm"`
	WindowHours           float64 `yaml:"windowHours"`
	HighContributionCount int     `yaml:"highContributionCount"`
	LowFireCount          int     `yaml:"lowFireCount"`
	MediumDistanceKm      float64 `yaml:"mediumDistanceKm"`
}

// DefaultThresholds returns the documented operating defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
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

		SurgeAQI:              300,
		RadiusKm:              200,
		WindowHours:           72,
		HighContributionCount: 100,
		LowFireCount:          50,
		MediumDistanceKm:      150,
	}
}

// Load reads configuration from environment variables, applying defaults
// where unset, and merges the optional THRESHOLDS_FILE on top of the
// threshold defaults.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	cycleSeconds, err := parseIntEnv("CYCLE_INTERVAL_SECONDS", 3600)
	if err != nil {
		return nil, err
	}
	if cycleSeconds < 0 {
		return nil, errors.New("CYCLE_INTERVAL_SECONDS must not be negative")
	}
	maxRetries, err := parseIntEnv("MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	if maxRetries < 1 {
		return nil, errors.New("MAX_RETRIES must be at least 1")
	}
	backoffBase, err := parseDurationEnv("RETRY_BACKOFF_BASE", 2*time.Second)
	if err != nil {
		return nil, err
	}
	fetchMax, err := parseIntEnv("FETCH_MAX_RECORDS", 5000)
	if err != nil {
		return nil, err
	}
	fetchPoll, err := parseDurationEnv("FETCH_POLL_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	geocodeTimeout, err := parseDurationEnv("GEOCODE_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	geocodeCache, err := parseIntEnv("GEOCODE_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	refLat, err := parseFloatEnv("REFERENCE_LAT", 28.6139)
	if err != nil {
		return nil, err
	}
	refLon, err := parseFloatEnv("REFERENCE_LON", 77.2090)
	if err != nil {
		return nil, err
	}

	thresholds, err := loadThresholds(os.Getenv("THRESHOLDS_FILE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:             splitList(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTelemetryTopic:      envOrDefault("KAFKA_TELEMETRY_TOPIC", "raw-telemetry"),
		KafkaEnforcementTopic:    envOrDefault("KAFKA_ENFORCEMENT_TOPIC", "enforcement-orders"),
		KafkaAccountabilityTopic: envOrDefault("KAFKA_ACCOUNTABILITY_TOPIC", "accountability-requests"),
		KafkaGroupID:             envOrDefault("KAFKA_GROUP_ID", "airward-core"),
		HTTPAddr:                 envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:                 envOrDefault("LOG_LEVEL", "info"),
		LogFormat:                envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:          shutdownTimeout,

		PostgresDSN: os.Getenv("POSTGRES_DSN"),

		CycleInterval: time.Duration(cycleSeconds) * time.Second,
		MaxRetries:    maxRetries,
		BackoffBase:   backoffBase,

		FetchMaxRecords:  fetchMax,
		FetchPollTimeout: fetchPoll,

		GeocodeEnabled:   os.Getenv("GEOCODE_ENABLED") == "true",
		GeocodeBaseURL:   envOrDefault("GEOCODE_BASE_URL", "https://nominatim.openstreetmap.org"),
		GeocodeTimeout:   geocodeTimeout,
		GeocodeCacheSize: geocodeCache,

		BorderStations: splitList(envOrDefault("BORDER_STATIONS", "Alipur,Bawana,Narela,Mundka,Najafgarh,Ghazipur")),
		ReferenceLat:   refLat,
		ReferenceLon:   refLon,

		Thresholds: thresholds,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaTelemetryTopic == "" {
		return nil, errors.New("KAFKA_TELEMETRY_TOPIC is required")
	}
	if len(cfg.BorderStations) == 0 {
		return nil, errors.New("BORDER_STATIONS is required")
	}

	return cfg, nil
}

// loadThresholds merges a YAML thresholds file over the defaults. Only keys
// present in the file override.
func loadThresholds(path string) (Thresholds, error) {
	thresholds := DefaultThresholds()
	if path == "" {
		return thresholds, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return thresholds, fmt.Errorf("read THRESHOLDS_FILE: %w", err)
	}
	if err := yaml.Unmarshal(raw, &thresholds); err != nil {
		return thresholds, fmt.Errorf("parse THRESHOLDS_FILE: %w", err)
	}

	if thresholds.SevereAQI <= thresholds.VeryPoorAQI {
		return thresholds, errors.New("THRESHOLDS_FILE: severeAQI must exceed veryPoorAQI")
	}
	if thresholds.RadiusKm <= 0 || thresholds.WindowHours <= 0 {
		return thresholds, errors.New("THRESHOLDS_FILE: radiusKm and windowHours must be positive")
	}
	return thresholds, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseIntEnv(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseFloatEnv(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return f, nil
}
