// Package predict derives a forward-looking air-quality prediction from the
// current cycle's telemetry: an ordered, first-match rule cascade over fire
// activity, wind, and source attribution, plus a time-to-threshold estimate
// and a data-quality-driven confidence score.
package predict

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/airshedlab/airward/internal/domain"
)

// Config carries the empirically chosen rule thresholds. The defaults in
// internal/config are operational constants, not derived values; the engine
// never second-guesses them.
type Config struct {
	FireCountHigh      int     // rule 1: fire detections indicating a major burning episode
	FireCountModerate  int     // rule 2
	WindLowKmh         float64 // rule 1: stagnant air
	WindModerateKmh    float64 // rules 2-4: dispersive wind
	StubbleHighPct     float64 // rule 1
	StubbleModeratePct float64 // rule 3
	SevereAQI          float64 // Severe band floor, the enforcement threshold
	VeryPoorAQI        float64 // VeryPoor band floor
	BaseRateAQIPerHour float64 // baseline AQI growth rate for hour estimates
	GraceHours         float64 // data age before the confidence penalty starts
}

// Engine evaluates the prediction rule cascade.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a prediction engine.
func New(cfg Config, logger *slog.Logger) *Engine {
	return &Engine{cfg: cfg, logger: logger}
}

// Predict applies the rule cascade to the cycle's record set, wind forecast,
// and data quality. Rules are mutually exclusive by construction and
// evaluated in order; the first match wins. When no AQI proxy is available
// at all it returns the degenerate insufficient-data prediction instead of
// failing.
func (e *Engine) Predict(rs domain.RecordSet, wind []domain.WindEntry, quality domain.DataQuality) domain.Prediction {
	currentAQI := latestAverageAQI(rs.Stations)
	windSpeed, windDir := AverageWind(wind)
	stubble := dominantStubblePercent(rs.Attributions)
	fireCount := len(rs.Fires)

	metrics := domain.PredictionMetrics{
		CurrentAQI:     currentAQI,
		FireCount:      fireCount,
		AvgWindKmh:     windSpeed,
		AvgWindDeg:     windDir,
		StubblePercent: stubble,
		Completeness:   quality.Completeness,
		AgeHours:       quality.AgeHours,
	}

	confidence := e.confidence(rs, wind, quality)

	if currentAQI == nil {
		e.logger.Warn("no AQI proxy available, returning insufficient-data prediction")
		return domain.Prediction{
			Category:      domain.CategoryUnknown,
			Justification: "insufficient data: no station telemetry with a usable AQI proxy",
			Confidence:    confidence,
			Metrics:       metrics,
		}
	}

	category, threshold, clauses := e.cascade(*currentAQI, fireCount, windSpeed, stubble)

	pred := domain.Prediction{
		Category:      category,
		Threshold:     threshold,
		Confidence:    confidence,
		Justification: strings.Join(clauses, "; "),
		Metrics:       metrics,
	}

	switch category {
	case domain.CategoryStable:
		pred.EstimatedHours = 24
	case domain.CategoryImproving:
		pred.EstimatedHours = 0 // not heading toward a threshold
	default:
		pred.EstimatedHours = e.estimateHours(*currentAQI, float64(threshold), fireCount, windSpeed, stubble)
	}

	return pred
}

// cascade evaluates the ordered rules and returns the matched category, its
// AQI threshold, and the justification clauses for conditions that actually
// held. Absent metrics never produce a clause.
func (e *Engine) cascade(currentAQI float64, fireCount int, windSpeed, stubble *float64) (domain.Category, int, []string) {
	calm := windSpeed != nil && *windSpeed < e.cfg.WindLowKmh
	slow := windSpeed != nil && *windSpeed < e.cfg.WindModerateKmh
	dispersive := windSpeed != nil && *windSpeed >= e.cfg.WindModerateKmh

	// Rule 1: major burning episode into stagnant air.
	if fireCount > e.cfg.FireCountHigh && calm && stubble != nil && *stubble >= e.cfg.StubbleHighPct {
		return domain.CategorySevere, int(e.cfg.SevereAQI), []string{
			fmt.Sprintf("fire count %d above %d", fireCount, e.cfg.FireCountHigh),
			fmt.Sprintf("wind %.1f km/h below %.1f km/h", *windSpeed, e.cfg.WindLowKmh),
			fmt.Sprintf("stubble share %.0f%% at or above %.0f%%", *stubble, e.cfg.StubbleHighPct),
		}
	}

	// Rule 2: elevated burning with weak dispersion.
	if fireCount > e.cfg.FireCountModerate && slow {
		return domain.CategoryVeryPoor, int(e.cfg.VeryPoorAQI), []string{
			fmt.Sprintf("fire count %d above %d", fireCount, e.cfg.FireCountModerate),
			fmt.Sprintf("wind %.1f km/h below %.1f km/h", *windSpeed, e.cfg.WindModerateKmh),
		}
	}

	// Rule 3: attribution says burning matters and the wind will not clear it.
	if stubble != nil && *stubble >= e.cfg.StubbleModeratePct && slow {
		return domain.CategoryPoor, int(poorBandFloor), []string{
			fmt.Sprintf("stubble share %.0f%% at or above %.0f%%", *stubble, e.cfg.StubbleModeratePct),
			fmt.Sprintf("wind %.1f km/h below %.1f km/h", *windSpeed, e.cfg.WindModerateKmh),
		}
	}

	// Rule 4: dispersive wind dominates.
	if dispersive {
		clause := fmt.Sprintf("wind %.1f km/h at or above %.1f km/h", *windSpeed, e.cfg.WindModerateKmh)
		if currentAQI >= e.cfg.VeryPoorAQI {
			return domain.CategoryImproving, 0, []string{
				clause,
				fmt.Sprintf("current AQI proxy %.0f at or above %.0f", currentAQI, e.cfg.VeryPoorAQI),
			}
		}
		return domain.CategoryStable, 0, []string{clause}
	}

	// Rule 5: fall back to the current AQI band.
	category := bandFor(currentAQI)
	return category, bandFloor(category), []string{
		fmt.Sprintf("AQI proxy %.0f in %s band", currentAQI, category),
	}
}

// estimateHours returns the estimated hours until the AQI proxy crosses the
// target threshold: gap / (baseRate x trendFactor), clamped to [1, 24].
// Already at or above the target means 1.
func (e *Engine) estimateHours(current, target float64, fireCount int, windSpeed, stubble *float64) int {
	if target <= 0 || current >= target {
		return 1
	}

	trend := (e.fireFactor(fireCount) + e.windFactor(windSpeed) + e.stubbleFactor(stubble)) / 3
	hours := int(math.Round((target - current) / (e.cfg.BaseRateAQIPerHour * trend)))

	if hours < 1 {
		return 1
	}
	if hours > 24 {
		return 24
	}
	return hours
}

// Trend sub-factors: each normalized against its moderate threshold, capped
// at 2.0, and floored at 0.5 when the underlying metric is absent or zero.

func (e *Engine) fireFactor(count int) float64 {
	if count <= 0 {
		return 0.5
	}
	return math.Min(float64(count)/float64(e.cfg.FireCountModerate), 2.0)
}

func (e *Engine) windFactor(speed *float64) float64 {
	if speed == nil || *speed <= 0 {
		return 0.5
	}
	return math.Min(e.cfg.WindModerateKmh / *speed, 2.0)
}

func (e *Engine) stubbleFactor(pct *float64) float64 {
	if pct == nil || *pct <= 0 {
		return 0.5
	}
	return math.Min(*pct/e.cfg.StubbleModeratePct, 2.0)
}

// Fixed multiplicative penalties for missing upstream sources.
const (
	penaltyNoStations     = 0.5 // CPCB readings absent
	penaltyNoWind         = 0.7 // meteorological forecast absent
	penaltyNoFires        = 0.8 // NASA FIRMS detections absent
	penaltyNoAttributions = 0.9 // DSS attribution absent

	agePenaltyPerHour = 0.05
	agePenaltyCap     = 0.5
)

// confidence scores how defensible the prediction is: completeness scales
// the base, stale data beyond the grace period erodes it at 5%/hour (capped
// at a 50% reduction), and each missing source applies its fixed penalty.
// The result is clamped to [0, 100] and is monotonically non-increasing in
// every degradation.
func (e *Engine) confidence(rs domain.RecordSet, wind []domain.WindEntry, quality domain.DataQuality) float64 {
	conf := 100 * quality.Completeness

	if quality.AgeHours > e.cfg.GraceHours {
		penalty := math.Min((quality.AgeHours-e.cfg.GraceHours)*agePenaltyPerHour, agePenaltyCap)
		conf *= 1 - penalty
	}

	if len(rs.Stations) == 0 {
		conf *= penaltyNoStations
	}
	if len(wind) == 0 {
		conf *= penaltyNoWind
	}
	if len(rs.Fires) == 0 {
		conf *= penaltyNoFires
	}
	if len(rs.Attributions) == 0 {
		conf *= penaltyNoAttributions
	}

	return math.Min(math.Max(conf, 0), 100)
}

// latestAverageAQI groups readings by station, keeps the most recent reading
// per station (last write wins when timestamps tie or are absent), and
// averages their AQI proxies. Nil when there are no stations.
func latestAverageAQI(stations []domain.StationReading) *float64 {
	if len(stations) == 0 {
		return nil
	}

	latest := map[string]domain.StationReading{}
	for _, s := range stations {
		prev, seen := latest[s.Station]
		if !seen || newer(s.Timestamp, prev.Timestamp) {
			latest[s.Station] = s
		}
	}

	var sum float64
	for _, s := range latest {
		sum += s.AQI
	}
	avg := sum / float64(len(latest))
	return &avg
}

func newer(candidate, current *time.Time) bool {
	if candidate == nil {
		return current == nil
	}
	if current == nil {
		return true
	}
	return !candidate.Before(*current)
}

// dominantStubblePercent returns the stubble-burning attribution share, the
// metric the cascade reasons about. Nil when the DSS feed is absent.
func dominantStubblePercent(attrs []domain.SourceAttribution) *float64 {
	for _, a := range attrs {
		if a.Category == domain.SourceStubble {
			pct := a.Percent
			return &pct
		}
	}
	return nil
}

// windowEntries is how much of the forecast the averages cover.
const windowEntries = 24

// AverageWind averages speed arithmetically and direction with a circular
// mean over the first 24 forecast entries. Direction is nil when no entry
// carries one.
func AverageWind(wind []domain.WindEntry) (speed, direction *float64) {
	if len(wind) == 0 {
		return nil, nil
	}
	window := wind
	if len(window) > windowEntries {
		window = window[:windowEntries]
	}

	var speedSum, sinSum, cosSum float64
	directions := 0
	for _, w := range window {
		speedSum += w.SpeedKmh
		if w.DirectionDeg != nil {
			rad := *w.DirectionDeg * math.Pi / 180
			sinSum += math.Sin(rad)
			cosSum += math.Cos(rad)
			directions++
		}
	}

	avgSpeed := speedSum / float64(len(window))
	speed = &avgSpeed

	if directions > 0 {
		deg := math.Atan2(sinSum, cosSum) * 180 / math.Pi
		if deg < 0 {
			deg += 360
		}
		direction = &deg
	}
	return speed, direction
}

// CPCB AQI band floors.
const (
	satisfactoryBandFloor = 50
	moderateBandFloor     = 100
	poorBandFloor         = 200
	veryPoorBandFloor     = 300
	severeBandFloor       = 400
)

func bandFor(aqi float64) domain.Category {
	switch {
	case aqi <= satisfactoryBandFloor:
		return domain.CategoryGood
	case aqi <= moderateBandFloor:
		return domain.CategorySatisfactory
	case aqi <= poorBandFloor:
		return domain.CategoryModerate
	case aqi <= veryPoorBandFloor:
		return domain.CategoryPoor
	case aqi <= severeBandFloor:
		return domain.CategoryVeryPoor
	default:
		return domain.CategorySevere
	}
}

func bandFloor(c domain.Category) int {
	switch c {
	case domain.CategoryGood:
		return 0
	case domain.CategorySatisfactory:
		return satisfactoryBandFloor
	case domain.CategoryModerate:
		return moderateBandFloor
	case domain.CategoryPoor:
		return poorBandFloor
	case domain.CategoryVeryPoor:
		return veryPoorBandFloor
	case domain.CategorySevere:
		return severeBandFloor
	default:
		return 0
	}
}
