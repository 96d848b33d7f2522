package predict

import (
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airshedlab/airward/internal/domain"
)

func testConfig() Config {
	return Config{
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
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine() *Engine {
	return New(testConfig(), discardLogger())
}

func stationsAt(aqi float64) []domain.StationReading {
	return []domain.StationReading{{Station: "Alipur", AQI: aqi}}
}

func fires(n int) []domain.FireEvent {
	out := make([]domain.FireEvent, n)
	for i := range out {
		out[i] = domain.FireEvent{Geo: domain.Geo{Lat: 29.5, Lon: 76.2}, DistanceKm: 120}
	}
	return out
}

func stubbleAttr(pct float64) []domain.SourceAttribution {
	return []domain.SourceAttribution{{Category: domain.SourceStubble, Percent: pct}}
}

func windAt(speed float64) []domain.WindEntry {
	return []domain.WindEntry{{SpeedKmh: speed}}
}

func fullQuality() domain.DataQuality {
	return domain.DataQuality{Completeness: 1.0}
}

func TestPredict_SevereEpisode(t *testing.T) {
	// Scenario: heavy burning into stagnant air with a high stubble share.
	rs := domain.RecordSet{
		Stations:     stationsAt(380),
		Fires:        fires(450),
		Attributions: stubbleAttr(22),
	}

	pred := newTestEngine().Predict(rs, windAt(8), fullQuality())

	assert.Equal(t, domain.CategorySevere, pred.Category)
	assert.Equal(t, 400, pred.Threshold)
	assert.GreaterOrEqual(t, pred.EstimatedHours, 1)
	assert.LessOrEqual(t, pred.EstimatedHours, 24)
	assert.Equal(t, 100.0, pred.Confidence, "all sources present and fresh")
	assert.Contains(t, pred.Justification, "fire count 450")
	assert.Contains(t, pred.Justification, "stubble share 22%")
}

func TestPredict_VeryPoorOnModerateFires(t *testing.T) {
	rs := domain.RecordSet{
		Stations: stationsAt(250),
		Fires:    fires(150),
	}

	pred := newTestEngine().Predict(rs, windAt(12), fullQuality())

	assert.Equal(t, domain.CategoryVeryPoor, pred.Category)
	assert.Equal(t, 300, pred.Threshold)
	assert.NotContains(t, pred.Justification, "stubble", "absent metric must not appear in justification")
}

func TestPredict_PoorOnStubbleShare(t *testing.T) {
	rs := domain.RecordSet{
		Stations:     stationsAt(180),
		Attributions: stubbleAttr(18),
	}

	pred := newTestEngine().Predict(rs, windAt(12), fullQuality())

	assert.Equal(t, domain.CategoryPoor, pred.Category)
	assert.Equal(t, 200, pred.Threshold)
}

func TestPredict_StableOnDispersiveWind(t *testing.T) {
	// For any wind at or above the moderate threshold with AQI below the
	// VeryPoor floor, the outcome is Stable with a 24h horizon.
	for _, speed := range []float64{15, 18, 25, 40} {
		pred := newTestEngine().Predict(domain.RecordSet{Stations: stationsAt(250)}, windAt(speed), fullQuality())
		assert.Equal(t, domain.CategoryStable, pred.Category, "wind %.0f", speed)
		assert.Equal(t, 24, pred.EstimatedHours, "wind %.0f", speed)
		assert.Zero(t, pred.Threshold)
	}
}

func TestPredict_ImprovingWhenAlreadyVeryPoor(t *testing.T) {
	pred := newTestEngine().Predict(domain.RecordSet{Stations: stationsAt(350)}, windAt(20), fullQuality())

	assert.Equal(t, domain.CategoryImproving, pred.Category)
	assert.Zero(t, pred.EstimatedHours)
	assert.Contains(t, pred.Justification, "wind 20.0 km/h")
}

func TestPredict_FallbackBand(t *testing.T) {
	cases := []struct {
		aqi  float64
		want domain.Category
	}{
		{40, domain.CategoryGood},
		{80, domain.CategorySatisfactory},
		{150, domain.CategoryModerate},
		{250, domain.CategoryPoor},
		{380, domain.CategoryVeryPoor},
		{450, domain.CategorySevere},
	}
	for _, tc := range cases {
		pred := newTestEngine().Predict(domain.RecordSet{Stations: stationsAt(tc.aqi)}, nil, fullQuality())
		assert.Equal(t, tc.want, pred.Category, "aqi %.0f", tc.aqi)
	}
}

func TestPredict_InsufficientData(t *testing.T) {
	pred := newTestEngine().Predict(domain.RecordSet{}, nil, domain.DataQuality{})

	assert.Equal(t, domain.CategoryUnknown, pred.Category)
	assert.Zero(t, pred.Threshold)
	assert.Zero(t, pred.EstimatedHours)
	assert.Contains(t, pred.Justification, "insufficient data")
}

func TestPredict_StationsOnlyConfidence(t *testing.T) {
	// Only CPCB present: completeness 1/3, wind/fire/attribution penalties
	// apply, and the category falls back to the direct AQI band.
	rs := domain.RecordSet{Stations: stationsAt(380)}
	quality := domain.DataQuality{Completeness: 1.0 / 3.0}

	pred := newTestEngine().Predict(rs, nil, quality)

	assert.Equal(t, domain.CategoryVeryPoor, pred.Category)
	assert.Less(t, pred.Confidence, 50.0)
	assert.Greater(t, pred.Confidence, 0.0)
	assert.True(t, strings.HasPrefix(pred.Justification, "AQI proxy 380"))
}

func TestPredict_ConfidenceMonotonicity(t *testing.T) {
	e := newTestEngine()
	rng := rand.New(rand.NewSource(7))

	build := func(hasFires, hasAttr, hasWind bool, completeness, age float64) float64 {
		rs := domain.RecordSet{Stations: stationsAt(300)}
		if hasFires {
			rs.Fires = fires(50)
		}
		if hasAttr {
			rs.Attributions = stubbleAttr(10)
		}
		var w []domain.WindEntry
		if hasWind {
			w = windAt(12)
		}
		return e.Predict(rs, w, domain.DataQuality{Completeness: completeness, AgeHours: age}).Confidence
	}

	for i := 0; i < 200; i++ {
		hasFires := rng.Intn(2) == 0
		hasAttr := rng.Intn(2) == 0
		hasWind := rng.Intn(2) == 0
		completeness := rng.Float64()
		age := rng.Float64() * 30

		base := build(hasFires, hasAttr, hasWind, completeness, age)

		assert.GreaterOrEqual(t, base, build(hasFires, hasAttr, hasWind, completeness*rng.Float64(), age),
			"lower completeness must not raise confidence")
		assert.GreaterOrEqual(t, base, build(hasFires, hasAttr, hasWind, completeness, age+rng.Float64()*20),
			"older data must not raise confidence")
		assert.GreaterOrEqual(t, base, build(false, hasAttr, hasWind, completeness, age),
			"losing fire data must not raise confidence")
		assert.GreaterOrEqual(t, base, build(hasFires, false, hasWind, completeness, age),
			"losing attribution must not raise confidence")
		assert.GreaterOrEqual(t, base, build(hasFires, hasAttr, false, completeness, age),
			"losing wind must not raise confidence")
	}
}

func TestPredict_AgePenalty(t *testing.T) {
	e := newTestEngine()
	rs := domain.RecordSet{
		Stations:     stationsAt(380),
		Fires:        fires(10),
		Attributions: stubbleAttr(5),
	}

	fresh := e.Predict(rs, windAt(5), domain.DataQuality{Completeness: 1, AgeHours: 2}).Confidence
	assert.Equal(t, 100.0, fresh, "within grace period")

	eightHours := e.Predict(rs, windAt(5), domain.DataQuality{Completeness: 1, AgeHours: 8}).Confidence
	assert.InDelta(t, 90.0, eightHours, 1e-9, "5% per hour beyond the 6h grace")

	ancient := e.Predict(rs, windAt(5), domain.DataQuality{Completeness: 1, AgeHours: 100}).Confidence
	assert.InDelta(t, 50.0, ancient, 1e-9, "age penalty capped at 50 percent")
}

func TestEstimateHours_AlreadyAtThreshold(t *testing.T) {
	e := newTestEngine()
	assert.Equal(t, 1, e.estimateHours(420, 400, 450, nil, nil))
}

func TestEstimateHours_Clamped(t *testing.T) {
	e := newTestEngine()

	// Tiny gap, strong trend: clamps at the bottom.
	fast := e.estimateHours(395, 400, 450, floatPtr(5), floatPtr(30))
	assert.Equal(t, 1, fast)

	// Huge gap, everything absent (all factors floored at 0.5): clamps at 24.
	slow := e.estimateHours(50, 400, 0, nil, nil)
	assert.Equal(t, 24, slow)
}

func TestLatestAverageAQI_LastWriteWins(t *testing.T) {
	early := time.Date(2025, 11, 3, 5, 0, 0, 0, time.UTC)
	late := time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC)

	stations := []domain.StationReading{
		{Station: "Alipur", AQI: 300, Timestamp: &early},
		{Station: "Alipur", AQI: 420, Timestamp: &late},
		{Station: "Bawana", AQI: 380, Timestamp: &early},
	}

	avg := latestAverageAQI(stations)
	require.NotNil(t, avg)
	assert.InDelta(t, 400, *avg, 1e-9, "(420+380)/2: stale Alipur reading superseded")
}

func TestAverageWind_CircularMean(t *testing.T) {
	wind := []domain.WindEntry{
		{SpeedKmh: 6, DirectionDeg: floatPtr(350)},
		{SpeedKmh: 10, DirectionDeg: floatPtr(10)},
	}

	speed, dir := AverageWind(wind)
	require.NotNil(t, speed)
	assert.InDelta(t, 8, *speed, 1e-9)
	require.NotNil(t, dir)
	// Circular mean of 350 and 10 is north, not 180.
	assert.True(t, *dir < 1 || *dir > 359, "got %.2f", *dir)
}

func TestAverageWind_WindowLimit(t *testing.T) {
	wind := make([]domain.WindEntry, 48)
	for i := range wind {
		speed := 10.0
		if i >= 24 {
			speed = 100.0 // beyond the 24-entry window, must be ignored
		}
		wind[i] = domain.WindEntry{SpeedKmh: speed}
	}

	speed, dir := AverageWind(wind)
	require.NotNil(t, speed)
	assert.InDelta(t, 10, *speed, 1e-9)
	assert.Nil(t, dir)
}

func floatPtr(f float64) *float64 { return &f }
