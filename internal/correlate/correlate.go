// Package correlate attributes a border-station pollution surge to remote
// fire activity: it filters fire events by distance and recency against the
// surging stations, groups the survivors by source region, and scores how
// defensible the attribution is.
package correlate

import (
	"sort"
	"time"

	"github.com/airshedlab/airward/internal/domain"
)

// Config carries the correlation thresholds. Defaults live in
// internal/config and are operational constants.
type Config struct {
	SurgeAQI              float64 // AQI proxy at or above which a border station counts as surging
	RadiusKm              float64 // maximum fire-to-surge-station distance
	WindowHours           float64 // trailing window before the earliest surge
	HighContributionCount int     // fires per region marking a high-contribution group
	LowFireCount          int     // total fires below which confidence is penalized
	MediumDistanceKm      float64 // mean distance beyond which confidence is penalized
}

// DetectSurges groups station readings by name, keeps only the
// pre-registered border stations, and returns those whose latest AQI proxy
// is at or above the surge threshold. Latest is decided by timestamp;
// untimestamped readings never displace timestamped ones, and ties go to
// the later arrival.
func DetectSurges(stations []domain.StationReading, borderStations []string, surgeAQI float64) []domain.StationReading {
	border := make(map[string]bool, len(borderStations))
	for _, name := range borderStations {
		border[name] = true
	}

	latest := map[string]domain.StationReading{}
	order := []string{}
	for _, s := range stations {
		if !border[s.Station] {
			continue
		}
		prev, seen := latest[s.Station]
		if !seen {
			order = append(order, s.Station)
		}
		if !seen || supersedes(s.Timestamp, prev.Timestamp) {
			latest[s.Station] = s
		}
	}

	var surges []domain.StationReading
	for _, name := range order {
		if s := latest[name]; s.AQI >= surgeAQI {
			surges = append(surges, s)
		}
	}
	return surges
}

// supersedes reports whether a reading with the candidate timestamp replaces
// the stored one. Same rule the prediction engine applies when averaging.
func supersedes(candidate, current *time.Time) bool {
	if candidate == nil {
		return current == nil
	}
	if current == nil {
		return true
	}
	return !candidate.Before(*current)
}

// Correlate matches fire events to the surging stations. An event survives
// when its minimum haversine distance to any georeferenced surge station is
// within radiusKm (its precomputed reference distance stands in when no
// surge station carries coordinates) and its timestamp is not older than the
// earliest surge timestamp minus the window. Survivors are grouped by region
// ("Unknown" when absent); every surviving event lands in exactly one group.
// Results are rebuilt from scratch on every call.
func Correlate(surges []domain.StationReading, fires []domain.FireEvent, radiusKm, windowHours float64) []domain.CorrelationResult {
	if len(surges) == 0 || len(fires) == 0 {
		return nil
	}

	cutoff := windowCutoff(surges, windowHours)

	type group struct {
		events    []domain.FireEvent
		districts map[string]bool
		distSum   float64
	}
	groups := map[string]*group{}

	for _, fire := range fires {
		dist := minDistanceKm(fire, surges)
		if dist > radiusKm {
			continue
		}
		// An event with no resolvable timestamp is not "earlier than the
		// cutoff"; absence degrades confidence, not the match itself.
		if cutoff != nil && fire.AcquiredAt != nil && fire.AcquiredAt.Before(*cutoff) {
			continue
		}

		region := fire.Region
		if region == "" {
			region = "Unknown"
		}
		g, ok := groups[region]
		if !ok {
			g = &group{districts: map[string]bool{}}
			groups[region] = g
		}
		g.events = append(g.events, fire)
		g.distSum += dist
		if fire.District != "" {
			g.districts[fire.District] = true
		}
	}

	results := make([]domain.CorrelationResult, 0, len(groups))
	for region, g := range groups {
		results = append(results, domain.CorrelationResult{
			Region:           region,
			FireCount:        len(g.events),
			Districts:        sortedKeys(g.districts),
			AvgDistanceKm:    g.distSum / float64(len(g.events)),
			HighContribution: len(g.events) >= highContributionDefault,
			Events:           g.events,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Region < results[j].Region })
	return results
}

// CorrelateWith is Correlate with a configurable high-contribution cutoff.
func CorrelateWith(surges []domain.StationReading, fires []domain.FireEvent, cfg Config) []domain.CorrelationResult {
	results := Correlate(surges, fires, cfg.RadiusKm, cfg.WindowHours)
	for i := range results {
		results[i].HighContribution = results[i].FireCount >= cfg.HighContributionCount
	}
	return results
}

const highContributionDefault = 100

// Confidence scoring penalties.
const (
	scoreStart           = 100.0
	penaltyNoFireData    = 20.0
	penaltyNoAttribution = 15.0
	penaltyLowFireCount  = 15.0
	penaltyDistantFires  = 10.0
	scoreFloor           = 30.0
)

// Score rates the produced correlation groups. Pure over its inputs: fixed
// deductions for each missing upstream source, for a thin fire count, and
// for groups whose mean distance suggests a weak causal link; floored at 30.
func Score(results []domain.CorrelationResult, fireDataPresent, attributionPresent bool, cfg Config) float64 {
	score := scoreStart

	if !fireDataPresent {
		score -= penaltyNoFireData
	}
	if !attributionPresent {
		score -= penaltyNoAttribution
	}

	total := 0
	var distSum float64
	// Mean distance is weighted by fire count, so the distance penalty
	// reflects where the events actually are rather than how the regions
	// happen to partition them.
	for _, r := range results {
		total += r.FireCount
		distSum += r.AvgDistanceKm * float64(r.FireCount)
	}
	if total < cfg.LowFireCount {
		score -= penaltyLowFireCount
	}
	if total > 0 && distSum/float64(total) > cfg.MediumDistanceKm {
		score -= penaltyDistantFires
	}

	if score < scoreFloor {
		return scoreFloor
	}
	return score
}

// minDistanceKm returns the smallest distance from the fire to any
// georeferenced surge station, falling back to the fire's precomputed
// reference distance when none carries coordinates.
func minDistanceKm(fire domain.FireEvent, surges []domain.StationReading) float64 {
	min := -1.0
	for _, s := range surges {
		if s.Geo == nil {
			continue
		}
		d := domain.HaversineKm(fire.Geo, *s.Geo)
		if min < 0 || d < min {
			min = d
		}
	}
	if min < 0 {
		return fire.DistanceKm
	}
	return min
}

// windowCutoff derives the earliest admissible event time from the surge
// timestamps. Nil disables the time filter when no surge reading carries a
// timestamp.
func windowCutoff(surges []domain.StationReading, windowHours float64) *time.Time {
	var earliest *time.Time
	for _, s := range surges {
		if s.Timestamp == nil {
			continue
		}
		if earliest == nil || s.Timestamp.Before(*earliest) {
			earliest = s.Timestamp
		}
	}
	if earliest == nil {
		return nil
	}
	cutoff := earliest.Add(-time.Duration(windowHours * float64(time.Hour)))
	return &cutoff
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
