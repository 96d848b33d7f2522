// Package domain models the telemetry consumed by the airshed governance
// cycle and the decisions it produces.
//
// # Data Sources
//
// Four upstream feeds are merged into each governance cycle:
//
//   - CPCB continuous ambient air-quality stations (PM2.5/PM10 readings,
//     station name, coordinates).
//   - NASA FIRMS active-fire detections (VIIRS/MODIS), one record per
//     detection with brightness, detection confidence, and an acquisition
//     date plus an HHMM acquisition time in UTC.
//   - DSS source-attribution shares: the estimated percentage of Delhi's
//     PM2.5 load attributable to stubble burning, transport, industry, dust,
//     or other sources.
//   - IMD hourly wind forecast entries (speed km/h, direction degrees).
//
// The collectors for these feeds live outside this repository; they publish
// flat JSON records onto the telemetry topic, optionally tagged with a
// "source" discriminator ("cpcb", "firms", "dss", "imd"). Untagged records
// are classified by shape during normalization.
//
// # Conventions
//
// AQI proxy:
//
//	A station's AQI proxy is its PM2.5 concentration when present, else its
//	PM10 concentration, else an explicit "aqi" field. PM2.5 wins whenever
//	both pollutants are reported.
//
// Timestamps:
//
//	Upstream feeds disagree on formats. Parsing tries an ordered list of
//	layouts (RFC 3339 first, then common locale forms); a value no layout
//	accepts yields a nil timestamp, never an error. FIRMS records carry a
//	separate acq_date (YYYY-MM-DD) and acq_time (HHMM, zero-padded from
//	three digits) which are combined into one UTC instant; an acq_epoch
//	field is accepted as a last resort.
//
// Geolocation:
//
//	Records without usable coordinates are retained with a nil Geo rather
//	than dropped; downstream confidence scoring absorbs the gap. Fire
//	events additionally carry their haversine distance to the configured
//	reference point (Delhi by default), computed once at normalization.
//
// Categories:
//
//	Prediction categories follow the CPCB AQI bands (Good through Severe)
//	extended with Improving, Stable, and Unknown for trend and degenerate
//	outcomes.
package domain
