package domain

import (
	"encoding/json"
	"time"
)

// RawRecord is one unprocessed telemetry record. Source is the explicit
// discriminator ("cpcb", "firms", "dss", "imd") when the collector tagged the
// record; empty means the source must be inferred from the payload shape.
type RawRecord struct {
	Source  string          `json:"source,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// RawBatch is everything one ingestion pass fetched: telemetry records plus
// the wind forecast, which is replaced wholesale each cycle.
type RawBatch struct {
	Records []RawRecord `json:"records"`
	Wind    []WindEntry `json:"wind,omitempty"`
}

// Geo is a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// StationReading is one normalized air-quality observation. AQI is the
// derived proxy (PM2.5 preferred over PM10). A nil Geo marks the reading as
// non-georeferenceable.
type StationReading struct {
	Station   string     `json:"station"`
	AQI       float64    `json:"aqi"`
	PM25      *float64   `json:"pm25,omitempty"`
	PM10      *float64   `json:"pm10,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Geo       *Geo       `json:"geo,omitempty"`
}

// FireEvent is one normalized active-fire detection. DistanceKm is the
// haversine distance to the configured reference point, computed during
// normalization. A zero-value Geo marks a detection whose coordinates did
// not parse; consumers test Geo == (Geo{}) before using it.
type FireEvent struct {
	Geo        Geo        `json:"geo"`
	Brightness *float64   `json:"brightness,omitempty"`
	Confidence *float64   `json:"confidence,omitempty"` // detection confidence, 0-100
	AcquiredAt *time.Time `json:"acquired_at,omitempty"`
	Region     string     `json:"region,omitempty"`
	District   string     `json:"district,omitempty"`
	DistanceKm float64    `json:"distance_km"`
}

// AttributionCategory enumerates the DSS source-attribution buckets.
type AttributionCategory string

const (
	SourceStubble    AttributionCategory = "stubble_burning"
	SourceTransport  AttributionCategory = "transport"
	SourceIndustrial AttributionCategory = "industrial"
	SourceDust       AttributionCategory = "dust"
	SourceOther      AttributionCategory = "other"
)

// SourceAttribution is the share of the PM2.5 load attributed to one source
// category. Within a cycle, later values for the same category overwrite
// earlier ones.
type SourceAttribution struct {
	Category  AttributionCategory `json:"category"`
	Percent   float64             `json:"percentage"`
	Timestamp *time.Time          `json:"timestamp,omitempty"`
}

// WindEntry is one forecast step of the IMD wind feed.
type WindEntry struct {
	Timestamp    *time.Time `json:"timestamp,omitempty"`
	SpeedKmh     float64    `json:"speed_kmh"`
	DirectionDeg *float64   `json:"direction_deg,omitempty"`
}

// RecordSet holds the three canonical record categories produced by
// normalization. Any of the slices may be empty.
type RecordSet struct {
	Stations     []StationReading    `json:"stations"`
	Fires        []FireEvent         `json:"fires"`
	Attributions []SourceAttribution `json:"attributions"`
}

// DataQuality describes how trustworthy a record set is: the fraction of
// expected source categories present and the age of the freshest timestamp.
type DataQuality struct {
	Completeness float64 `json:"completeness"` // 0..1
	AgeHours     float64 `json:"age_hours"`    // >= 0
}

// Category is a predicted air-quality outcome: the CPCB AQI bands plus the
// trend outcomes Improving and Stable, and Unknown for insufficient data.
type Category string

const (
	CategoryGood         Category = "Good"
	CategorySatisfactory Category = "Satisfactory"
	CategoryModerate     Category = "Moderate"
	CategoryPoor         Category = "Poor"
	CategoryVeryPoor     Category = "VeryPoor"
	CategorySevere       Category = "Severe"
	CategoryImproving    Category = "Improving"
	CategoryStable       Category = "Stable"
	CategoryUnknown      Category = "Unknown"
)

// PredictionMetrics records the inputs a prediction was actually computed
// from, for auditability. Nil pointers mean the metric was unavailable.
type PredictionMetrics struct {
	CurrentAQI     *float64 `json:"current_aqi,omitempty"`
	FireCount      int      `json:"fire_count"`
	AvgWindKmh     *float64 `json:"avg_wind_kmh,omitempty"`
	AvgWindDeg     *float64 `json:"avg_wind_deg,omitempty"`
	StubblePercent *float64 `json:"stubble_percent,omitempty"`
	Completeness   float64  `json:"completeness"`
	AgeHours       float64  `json:"age_hours"`
}

// Prediction is one forecast-cycle output. Threshold is the AQI value the
// forecast is measured against (0 when no threshold applies), EstimatedHours
// the time to cross it (1-24, or 0 when undefined), Confidence a 0-100 score.
// A prediction is never mutated; the next cycle supersedes it.
type Prediction struct {
	Category       Category          `json:"category"`
	Threshold      int               `json:"threshold"`
	EstimatedHours int               `json:"estimated_hours"`
	Confidence     float64           `json:"confidence"`
	Justification  string            `json:"justification"`
	Metrics        PredictionMetrics `json:"metrics"`
	GeneratedAt    time.Time         `json:"generated_at"`
}

// CorrelationResult groups the fire events plausibly contributing to a
// pollution surge by source region. FireCount always equals len(Events).
type CorrelationResult struct {
	Region           string      `json:"region"`
	FireCount        int         `json:"fire_count"`
	Districts        []string    `json:"districts,omitempty"`
	AvgDistanceKm    float64     `json:"avg_distance_km"`
	HighContribution bool        `json:"high_contribution"`
	Events           []FireEvent `json:"events"`
}

// CycleState tracks when each governance step last succeeded. Written only
// by the scheduler; readers receive copies.
type CycleState struct {
	LastIngestion      time.Time     `json:"last_ingestion"`
	LastPrediction     time.Time     `json:"last_prediction"`
	LastEnforcement    time.Time     `json:"last_enforcement"`
	LastAccountability time.Time     `json:"last_accountability"`
	LastCycleAt        time.Time     `json:"last_cycle_at"`
	LastCycleDuration  time.Duration `json:"last_cycle_duration"`
}

// EnforcementOrder is the payload handed to the enforcement pipeline when a
// Severe prediction fires the dispatch gate.
type EnforcementOrder struct {
	CycleID    string      `json:"cycle_id"`
	IssuedAt   time.Time   `json:"issued_at"`
	Reasoning  string      `json:"reasoning"`
	Hotspots   []FireEvent `json:"hotspots,omitempty"`
	Prediction Prediction  `json:"prediction"`
}

// AccountabilityRequest asks the accountability pipeline to investigate a
// border-station surge. The pipeline re-reads correlated evidence itself, so
// only the flagged stations travel with the request.
type AccountabilityRequest struct {
	CycleID  string           `json:"cycle_id"`
	IssuedAt time.Time        `json:"issued_at"`
	Stations []StationReading `json:"stations"`
}
