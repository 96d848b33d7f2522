// Command genmock generates deterministic mock telemetry fixtures for the
// test suites and local runs. It uses the actual domain package for
// normalization so fixtures match real pipeline behavior.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -scenario severe \
//	  -raw-out data/mock/telemetry_251103_raw.json \
//	  -normalized-out data/mock/telemetry_251103_normalized.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/airshedlab/airward/internal/domain"
)

// episodeTime is the frozen reference instant of the mock episode.
var episodeTime = time.Date(2025, time.November, 3, 6, 0, 0, 0, time.UTC)

var delhi = domain.Geo{Lat: 28.6139, Lon: 77.2090}

type mockStation struct {
	name string
	geo  domain.Geo
}

// borderStations lists the pre-registered border monitoring stations in a
// fixed order so fixtures reproduce byte for byte.
var borderStations = []mockStation{
	{"Alipur", domain.Geo{Lat: 28.7967, Lon: 77.1367}},
	{"Bawana", domain.Geo{Lat: 28.7762, Lon: 77.0469}},
	{"Narela", domain.Geo{Lat: 28.8527, Lon: 77.0920}},
	{"Mundka", domain.Geo{Lat: 28.6846, Lon: 77.0305}},
	{"Najafgarh", domain.Geo{Lat: 28.6090, Lon: 76.9855}},
	{"Ghazipur", domain.Geo{Lat: 28.6233, Lon: 77.3276}},
}

var innerStations = []mockStation{
	{"AnandVihar", domain.Geo{Lat: 28.6468, Lon: 77.3152}},
	{"RKPuram", domain.Geo{Lat: 28.5632, Lon: 77.1867}},
	{"Dwarka", domain.Geo{Lat: 28.5729, Lon: 77.0712}},
	{"Rohini", domain.Geo{Lat: 28.7326, Lon: 77.1199}},
}

// snapshot mirrors the persisted ingestion snapshot shape.
type snapshot struct {
	Records    domain.RecordSet   `json:"records"`
	Wind       []domain.WindEntry `json:"wind,omitempty"`
	CapturedAt time.Time          `json:"captured_at"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	rawOut := flag.String("raw-out", "", "output path for the raw telemetry fixture")
	normalizedOut := flag.String("normalized-out", "", "output path for the normalized snapshot fixture")
	scenario := flag.String("scenario", "severe", "episode to generate: severe or calm")
	seed := flag.Int64("seed", 20251103, "random seed for reproducible jitter")
	flag.Parse()

	if *rawOut == "" || *normalizedOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -raw-out, -normalized-out")
	}

	// Fix the clock so quality assessment and any future run produce the
	// same fixture byte for byte.
	domain.SetClock(clockwork.NewFakeClockAt(episodeTime))
	defer domain.SetClock(nil)

	rng := rand.New(rand.NewSource(*seed))

	var records []domain.RawRecord
	switch *scenario {
	case "severe":
		records = severeScenario(rng)
	case "calm":
		records = calmScenario(rng)
	default:
		return fmt.Errorf("unknown scenario %q", *scenario)
	}

	wind, rest := domain.SplitWind(records)
	rs := domain.Normalize(rest, delhi)

	if err := writeJSON(*rawOut, records); err != nil {
		return fmt.Errorf("writing raw fixture: %w", err)
	}
	log.Printf("wrote raw fixture: %s (%d records)", *rawOut, len(records))

	snap := snapshot{Records: rs, Wind: wind, CapturedAt: episodeTime}
	if err := writeJSON(*normalizedOut, snap); err != nil {
		return fmt.Errorf("writing normalized fixture: %w", err)
	}
	log.Printf("wrote normalized fixture: %s", *normalizedOut)

	printStats(rs, wind)
	return nil
}

// severeScenario models a peak stubble-burning episode: border stations well
// past the surge threshold, a large Punjab fire cluster, stagnant wind, and
// stubble burning dominating the attribution mix.
func severeScenario(rng *rand.Rand) []domain.RawRecord {
	var records []domain.RawRecord

	for _, st := range borderStations {
		records = append(records, rawStation(st.name, 380+rng.Float64()*90, st.geo))
	}
	for _, st := range innerStations {
		records = append(records, rawStation(st.name, 340+rng.Float64()*70, st.geo))
	}

	// Punjab cluster: dense burning around Sangrur and Bathinda.
	for i := 0; i < 280; i++ {
		records = append(records, rawFire(
			30.0+rng.Float64()*0.8, 75.2+rng.Float64()*0.9,
			"Punjab", pick(rng, "Sangrur", "Bathinda", "Patiala", "Moga"),
			rng,
		))
	}
	// Haryana cluster: lighter activity around Karnal.
	for i := 0; i < 70; i++ {
		records = append(records, rawFire(
			29.4+rng.Float64()*0.5, 76.6+rng.Float64()*0.6,
			"Haryana", pick(rng, "Karnal", "Kaithal", "Kurukshetra"),
			rng,
		))
	}

	records = append(records,
		rawAttribution("stubble_burning", 22),
		rawAttribution("transport", 18),
		rawAttribution("industrial", 12),
		rawAttribution("dust", 8),
		rawAttribution("other", 5),
	)

	for h := 0; h < 24; h++ {
		records = append(records, rawWind(h, 4+rng.Float64()*4, 290+rng.Float64()*30))
	}
	return records
}

// calmScenario models a post-monsoon clear spell: moderate readings, no fire
// activity, dispersive wind.
func calmScenario(rng *rand.Rand) []domain.RawRecord {
	var records []domain.RawRecord

	for _, st := range borderStations {
		records = append(records, rawStation(st.name, 90+rng.Float64()*70, st.geo))
	}
	for _, st := range innerStations {
		records = append(records, rawStation(st.name, 100+rng.Float64()*60, st.geo))
	}

	records = append(records,
		rawAttribution("transport", 35),
		rawAttribution("dust", 20),
		rawAttribution("industrial", 15),
	)

	for h := 0; h < 24; h++ {
		records = append(records, rawWind(h, 18+rng.Float64()*8, 260+rng.Float64()*40))
	}
	return records
}

func rawStation(name string, pm25 float64, geo domain.Geo) domain.RawRecord {
	return mustRecord("cpcb", map[string]any{
		"station":   name,
		"pm25":      round1(pm25),
		"lat":       geo.Lat,
		"lon":       geo.Lon,
		"timestamp": episodeTime.Add(-time.Hour).Format(time.RFC3339),
	})
}

func rawFire(lat, lon float64, region, district string, rng *rand.Rand) domain.RawRecord {
	return mustRecord("firms", map[string]any{
		"latitude":   round4(lat),
		"longitude":  round4(lon),
		"brightness": round1(310 + rng.Float64()*60),
		"confidence": float64(60 + rng.Intn(40)),
		"region":     region,
		"district":   district,
		"acq_date":   episodeTime.Add(-time.Hour).Format("2006-01-02"),
		"acq_time":   fmt.Sprintf("%02d%02d", 4+rng.Intn(2), rng.Intn(60)),
	})
}

func rawAttribution(category string, pct float64) domain.RawRecord {
	return mustRecord("dss", map[string]any{
		"category":   category,
		"percentage": pct,
		"timestamp":  episodeTime.Add(-2 * time.Hour).Format(time.RFC3339),
	})
}

func rawWind(hoursAhead int, speed, direction float64) domain.RawRecord {
	return mustRecord("imd", map[string]any{
		"speed_kmh":     round1(speed),
		"direction_deg": round1(direction),
		"timestamp":     episodeTime.Add(time.Duration(hoursAhead) * time.Hour).Format(time.RFC3339),
	})
}

func mustRecord(source string, payload map[string]any) domain.RawRecord {
	b, err := json.Marshal(payload)
	if err != nil {
		log.Fatalf("marshal %s payload: %v", source, err)
	}
	return domain.RawRecord{Source: source, Payload: b}
}

func pick(rng *rand.Rand, options ...string) string {
	return options[rng.Intn(len(options))]
}

func round1(v float64) float64 { return float64(int(v*10)) / 10 }
func round4(v float64) float64 { return float64(int(v*10000)) / 10000 }

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

func printStats(rs domain.RecordSet, wind []domain.WindEntry) {
	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Stations: %d, Fires: %d, Attributions: %d, Wind entries: %d\n",
		len(rs.Stations), len(rs.Fires), len(rs.Attributions), len(wind))

	border := map[string]bool{}
	for _, st := range borderStations {
		border[st.name] = true
	}

	var aqiSum float64
	surging := 0
	for _, s := range rs.Stations {
		aqiSum += s.AQI
		if border[s.Station] && s.AQI >= 300 {
			surging++
		}
	}
	if len(rs.Stations) > 0 {
		fmt.Printf("Average AQI proxy: %.1f\n", aqiSum/float64(len(rs.Stations)))
	}
	fmt.Printf("Border stations at or above surge threshold: %d\n", surging)

	regionCounts := map[string]int{}
	for _, f := range rs.Fires {
		regionCounts[f.Region]++
	}
	for _, region := range sortedKeys(regionCounts) {
		fmt.Printf("Fires in %s: %d\n", region, regionCounts[region])
	}

	for _, a := range rs.Attributions {
		fmt.Printf("Attribution %s: %.0f%%\n", a.Category, a.Percent)
	}
}
