// Command validate performs data integrity checks over the mock telemetry
// fixtures: it re-runs normalization over the raw fixture, compares it with
// the normalized snapshot, and verifies the prediction and correlation
// invariants on the result.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -raw data/mock/telemetry_251103_raw.json \
//	  -normalized data/mock/telemetry_251103_normalized.json
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/airshedlab/airward/internal/config"
	"github.com/airshedlab/airward/internal/correlate"
	"github.com/airshedlab/airward/internal/domain"
	"github.com/airshedlab/airward/internal/predict"
)

var episodeTime = time.Date(2025, time.November, 3, 6, 0, 0, 0, time.UTC)

var delhi = domain.Geo{Lat: 28.6139, Lon: 77.2090}

var borderStations = []string{"Alipur", "Bawana", "Narela", "Mundka", "Najafgarh", "Ghazipur"}

// snapshot mirrors the persisted ingestion snapshot shape.
type snapshot struct {
	Records    domain.RecordSet   `json:"records"`
	Wind       []domain.WindEntry `json:"wind,omitempty"`
	CapturedAt time.Time          `json:"captured_at"`
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	rawPath := flag.String("raw", "", "path to the raw telemetry fixture")
	normalizedPath := flag.String("normalized", "", "path to the normalized snapshot fixture")
	flag.Parse()

	if *rawPath == "" || *normalizedPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*rawPath, *normalizedPath); code != 0 {
		os.Exit(code)
	}
}

func run(rawPath, normalizedPath string) int {
	// Fixed clock matching genmock so quality assessment reproduces.
	domain.SetClock(clockwork.NewFakeClockAt(episodeTime))
	defer domain.SetClock(nil)

	fmt.Println("=== Telemetry Fixture Integrity Validation ===")
	fmt.Println()

	var raw []domain.RawRecord
	if err := loadJSON(rawPath, &raw); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load raw fixture: %v\n", err)
		return 1
	}
	var snap snapshot
	if err := loadJSON(normalizedPath, &snap); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load normalized fixture: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateNormalization(raw, snap),
		validateRecordInvariants(snap.Records),
		validatePrediction(snap),
		validateCorrelation(snap.Records),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
		for _, e := range p.errors {
			fmt.Printf("    - %s\n", e)
		}
	}

	fmt.Println()
	if !allPassed {
		fmt.Println("validation FAILED")
		return 1
	}
	fmt.Println("validation passed")
	return 0
}

// validateNormalization re-runs the normalizer over the raw fixture and
// checks it reproduces the snapshot, and that normalization is idempotent.
func validateNormalization(raw []domain.RawRecord, snap snapshot) *phase {
	p := &phase{name: "normalization reproducibility"}

	wind, rest := domain.SplitWind(raw)
	rs := domain.Normalize(rest, delhi)

	first, err := json.Marshal(rs)
	if err != nil {
		p.errorf("marshal normalized set: %v", err)
		return p
	}
	second, err := json.Marshal(domain.Normalize(rest, delhi))
	if err != nil {
		p.errorf("marshal re-normalized set: %v", err)
		return p
	}
	if !bytes.Equal(first, second) {
		p.errorf("normalization is not idempotent: outputs differ")
	}

	expected, err := json.Marshal(snap.Records)
	if err != nil {
		p.errorf("marshal snapshot records: %v", err)
		return p
	}
	if !bytes.Equal(first, expected) {
		p.errorf("re-normalized output differs from normalized fixture")
	}
	if len(wind) != len(snap.Wind) {
		p.errorf("wind entries: got %d, fixture has %d", len(wind), len(snap.Wind))
	}

	fmt.Printf("normalization: %d stations, %d fires, %d attributions, %d wind entries\n",
		len(rs.Stations), len(rs.Fires), len(rs.Attributions), len(wind))
	return p
}

// validateRecordInvariants checks the per-record bounds the normalizer
// guarantees.
func validateRecordInvariants(rs domain.RecordSet) *phase {
	p := &phase{name: "record invariants"}

	for _, s := range rs.Stations {
		if s.AQI < 0 {
			p.errorf("station %s: negative AQI proxy %.1f", s.Station, s.AQI)
		}
	}

	for i, f := range rs.Fires {
		if f.DistanceKm < 0 {
			p.errorf("fire %d: negative distance %.1f", i, f.DistanceKm)
		}
		if f.Geo != (domain.Geo{}) {
			want := domain.HaversineKm(f.Geo, delhi)
			if math.Abs(want-f.DistanceKm) > 0.01 {
				p.errorf("fire %d: distance %.2f does not match haversine %.2f", i, f.DistanceKm, want)
			}
		}
		if f.Confidence != nil && (*f.Confidence < 0 || *f.Confidence > 100) {
			p.errorf("fire %d: confidence %.1f out of range", i, *f.Confidence)
		}
	}

	seen := map[domain.AttributionCategory]bool{}
	for _, a := range rs.Attributions {
		if a.Percent < 0 || a.Percent > 100 {
			p.errorf("attribution %s: percent %.1f out of range", a.Category, a.Percent)
		}
		if seen[a.Category] {
			p.errorf("attribution %s: duplicate category", a.Category)
		}
		seen[a.Category] = true
	}
	return p
}

// validatePrediction runs the rule cascade with the default thresholds and
// checks the output bounds.
func validatePrediction(snap snapshot) *phase {
	p := &phase{name: "prediction invariants"}

	th := config.DefaultThresholds()
	engine := predict.New(predict.Config{
		FireCountHigh:      th.FireCountHigh,
		FireCountModerate:  th.FireCountModerate,
		WindLowKmh:         th.WindLowKmh,
		WindModerateKmh:    th.WindModerateKmh,
		StubbleHighPct:     th.StubbleHighPct,
		StubbleModeratePct: th.StubbleModeratePct,
		SevereAQI:          th.SevereAQI,
		VeryPoorAQI:        th.VeryPoorAQI,
		BaseRateAQIPerHour: th.BaseRateAQIPerHour,
		GraceHours:         th.GraceHours,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	quality := domain.AssessQuality(snap.Records)
	pred := engine.Predict(snap.Records, snap.Wind, quality)

	if pred.Confidence < 0 || pred.Confidence > 100 {
		p.errorf("confidence %.1f out of range", pred.Confidence)
	}
	switch pred.Category {
	case domain.CategoryStable:
		if pred.EstimatedHours != 24 {
			p.errorf("stable prediction has %d estimated hours, want 24", pred.EstimatedHours)
		}
	case domain.CategoryImproving, domain.CategoryUnknown:
		if pred.EstimatedHours != 0 {
			p.errorf("%s prediction has %d estimated hours, want 0", pred.Category, pred.EstimatedHours)
		}
	default:
		if pred.EstimatedHours < 1 || pred.EstimatedHours > 24 {
			p.errorf("estimated hours %d out of range", pred.EstimatedHours)
		}
	}
	if pred.Category != domain.CategoryUnknown && pred.Justification == "" {
		p.errorf("non-degenerate prediction has empty justification")
	}

	fmt.Printf("prediction: %s (threshold %d, %dh, confidence %.1f)\n",
		pred.Category, pred.Threshold, pred.EstimatedHours, pred.Confidence)
	return p
}

// validateCorrelation runs surge correlation with the default thresholds and
// checks the grouping invariants.
func validateCorrelation(rs domain.RecordSet) *phase {
	p := &phase{name: "correlation invariants"}

	th := config.DefaultThresholds()
	cfg := correlate.Config{
		SurgeAQI:              th.SurgeAQI,
		RadiusKm:              th.RadiusKm,
		WindowHours:           th.WindowHours,
		HighContributionCount: th.HighContributionCount,
		LowFireCount:          th.LowFireCount,
		MediumDistanceKm:      th.MediumDistanceKm,
	}

	surges := correlate.DetectSurges(rs.Stations, borderStations, cfg.SurgeAQI)
	results := correlate.CorrelateWith(surges, rs.Fires, cfg)

	total := 0
	for _, r := range results {
		if r.FireCount != len(r.Events) {
			p.errorf("region %s: FireCount %d != len(Events) %d", r.Region, r.FireCount, len(r.Events))
		}
		if r.AvgDistanceKm < 0 {
			p.errorf("region %s: negative mean distance", r.Region)
		}
		total += r.FireCount
	}
	if total > len(rs.Fires) {
		p.errorf("correlated %d fires but only %d exist", total, len(rs.Fires))
	}

	score := correlate.Score(results, len(rs.Fires) > 0, len(rs.Attributions) > 0, cfg)
	if score < 30 || score > 100 {
		p.errorf("correlation score %.1f out of range", score)
	}

	fmt.Printf("correlation: %d surging stations, %d regions, %d fires, score %.1f\n",
		len(surges), len(results), total, score)
	return p
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
