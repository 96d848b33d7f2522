package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Source discriminator values accepted on RawRecord.Source and in payloads.
const (
	sourceCPCB  = "cpcb"
	sourceFIRMS = "firms"
	sourceDSS   = "dss"
	sourceIMD   = "imd"
)

// timestampLayouts is the ordered list of formats attempted when parsing a
// telemetry timestamp. RFC 3339 first, then the locale forms the upstream
// scrapers are known to emit.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-01-2006 15:04",
	"02/01/2006",
}

// rawProbe is the superset of fields across all telemetry payload shapes.
// Decoding into it both reads the data and, when the source tag is missing,
// tells the shapes apart.
type rawProbe struct {
	Source string `json:"source"`

	// CPCB station fields.
	Station string   `json:"station"`
	PM25    *float64 `json:"pm25"`
	PM10    *float64 `json:"pm10"`
	AQI     *float64 `json:"aqi"`

	// FIRMS fire fields.
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	Brightness *float64 `json:"brightness"`
	Confidence *float64 `json:"confidence"`
	AcqDate    string   `json:"acq_date"`
	AcqTime    string   `json:"acq_time"`
	AcqEpoch   *int64   `json:"acq_epoch"`
	Region     string   `json:"region"`
	State      string   `json:"state"`
	District   string   `json:"district"`

	// DSS attribution fields.
	Category string   `json:"category"`
	Percent  *float64 `json:"percentage"`

	// IMD wind fields.
	SpeedKmh     *float64 `json:"speed_kmh"`
	DirectionDeg *float64 `json:"direction_deg"`

	// Shared.
	Timestamp string   `json:"timestamp"`
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
}

// Normalize converts a heterogeneous batch of raw records into the three
// canonical record sets. It is a pure function of its input: unknown shapes
// are skipped, unparsable timestamps become nil, records without coordinates
// are kept with a nil Geo, and calling it twice on the same input yields
// identical output. ref is the reference point fire distances are measured
// against.
func Normalize(records []RawRecord, ref Geo) RecordSet {
	rs := RecordSet{}
	attributions := map[AttributionCategory]SourceAttribution{}

	for _, rec := range records {
		var p rawProbe
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			continue
		}

		switch classify(rec.Source, p) {
		case sourceCPCB:
			if station, ok := normalizeStation(p); ok {
				rs.Stations = append(rs.Stations, station)
			}
		case sourceFIRMS:
			if fire, ok := normalizeFire(p, ref); ok {
				rs.Fires = append(rs.Fires, fire)
			}
		case sourceDSS:
			if attr, ok := normalizeAttribution(p); ok {
				attributions[attr.Category] = attr
			}
		}
	}

	// Emit at most one attribution per category, in a fixed order so equal
	// inputs serialize identically.
	for _, cat := range []AttributionCategory{SourceStubble, SourceTransport, SourceIndustrial, SourceDust, SourceOther} {
		if attr, ok := attributions[cat]; ok {
			rs.Attributions = append(rs.Attributions, attr)
		}
	}

	return rs
}

// SplitWind separates IMD wind entries from the rest of a raw batch. Wind is
// a forecast input rather than a canonical record category, so it bypasses
// Normalize.
func SplitWind(records []RawRecord) ([]WindEntry, []RawRecord) {
	var wind []WindEntry
	rest := make([]RawRecord, 0, len(records))

	for _, rec := range records {
		var p rawProbe
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			rest = append(rest, rec)
			continue
		}
		if classify(rec.Source, p) != sourceIMD {
			rest = append(rest, rec)
			continue
		}
		wind = append(wind, WindEntry{
			Timestamp:    ParseTimestamp(p.Timestamp),
			SpeedKmh:     clampNonNegative(deref(p.SpeedKmh)),
			DirectionDeg: p.DirectionDeg,
		})
	}

	return wind, rest
}

// classify resolves a record's source: the explicit tag wins, then the tag
// embedded in the payload, then shape inference.
func classify(explicit string, p rawProbe) string {
	if s := strings.ToLower(strings.TrimSpace(explicit)); s != "" {
		return s
	}
	if s := strings.ToLower(strings.TrimSpace(p.Source)); s != "" {
		return s
	}

	switch {
	case p.Station != "":
		return sourceCPCB
	case p.AcqDate != "" || p.Brightness != nil || p.AcqEpoch != nil:
		return sourceFIRMS
	case p.Category != "" && p.Percent != nil:
		return sourceDSS
	case p.SpeedKmh != nil:
		return sourceIMD
	default:
		return ""
	}
}

func normalizeStation(p rawProbe) (StationReading, bool) {
	if p.Station == "" {
		return StationReading{}, false
	}

	// AQI proxy: PM2.5 preferred over PM10, explicit AQI as last resort.
	var aqi float64
	switch {
	case p.PM25 != nil:
		aqi = *p.PM25
	case p.PM10 != nil:
		aqi = *p.PM10
	case p.AQI != nil:
		aqi = *p.AQI
	default:
		return StationReading{}, false
	}

	return StationReading{
		Station:   p.Station,
		AQI:       clampNonNegative(aqi),
		PM25:      p.PM25,
		PM10:      p.PM10,
		Timestamp: ParseTimestamp(p.Timestamp),
		Geo:       coordinates(p),
	}, true
}

func normalizeFire(p rawProbe, ref Geo) (FireEvent, bool) {
	geo := coordinates(p)
	fire := FireEvent{
		Brightness: p.Brightness,
		Confidence: clampPercent(p.Confidence),
		AcquiredAt: fireTimestamp(p),
		Region:     firstNonEmpty(p.Region, p.State),
		District:   p.District,
	}
	if geo != nil {
		fire.Geo = *geo
		fire.DistanceKm = HaversineKm(*geo, ref)
	}
	return fire, true
}

func normalizeAttribution(p rawProbe) (SourceAttribution, bool) {
	if p.Percent == nil {
		return SourceAttribution{}, false
	}
	pct := *p.Percent
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return SourceAttribution{
		Category:  normalizeCategory(p.Category),
		Percent:   pct,
		Timestamp: ParseTimestamp(p.Timestamp),
	}, true
}

// normalizeCategory folds the spellings the DSS scraper produces into the
// canonical attribution buckets.
func normalizeCategory(value string) AttributionCategory {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(value), "-", "_")) {
	case "stubble_burning", "stubble", "biomass_burning":
		return SourceStubble
	case "transport", "vehicular":
		return SourceTransport
	case "industrial", "industry":
		return SourceIndustrial
	case "dust", "road_dust":
		return SourceDust
	default:
		return SourceOther
	}
}

// ParseTimestamp attempts the ordered layout list against a timestamp string.
// Returns nil when no layout matches; never an error.
func ParseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// fireTimestamp resolves a fire event's instant with the FIRMS preference
// order: acq_date+acq_time, then any ISO timestamp string, then epoch.
func fireTimestamp(p rawProbe) *time.Time {
	if t := combineAcqDateTime(p.AcqDate, p.AcqTime); t != nil {
		return t
	}
	if t := ParseTimestamp(p.Timestamp); t != nil {
		return t
	}
	if p.AcqEpoch != nil && *p.AcqEpoch > 0 {
		t := time.Unix(*p.AcqEpoch, 0).UTC()
		return &t
	}
	return nil
}

// combineAcqDateTime merges a FIRMS acquisition date with an HHMM time
// string (e.g. "612" or "0612" → 06:12 UTC). A missing or malformed time
// yields midnight of the acquisition date.
func combineAcqDateTime(date, hhmm string) *time.Time {
	base := ParseTimestamp(date)
	if base == nil {
		return nil
	}

	hhmm = strings.TrimSpace(hhmm)
	if len(hhmm) < 3 {
		return base
	}
	if len(hhmm) == 3 {
		hhmm = "0" + hhmm
	}

	hour, errH := strconv.Atoi(hhmm[:2])
	mins, errM := strconv.Atoi(hhmm[2:])
	if errH != nil || errM != nil || hour < 0 || hour > 23 || mins < 0 || mins > 59 {
		return base
	}

	t := time.Date(base.Year(), base.Month(), base.Day(), hour, mins, 0, 0, time.UTC)
	return &t
}

func coordinates(p rawProbe) *Geo {
	lat, lon := p.Lat, p.Lon
	if lat == nil {
		lat = p.Latitude
	}
	if lon == nil {
		lon = p.Longitude
	}
	if lat == nil || lon == nil {
		return nil
	}
	if *lat < -90 || *lat > 90 || *lon < -180 || *lon > 180 {
		return nil
	}
	return &Geo{Lat: *lat, Lon: *lon}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func clampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func clampPercent(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return &v
}
