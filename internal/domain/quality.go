package domain

import "time"

// expectedCategories is the number of canonical record categories a fully
// populated cycle carries: stations, fires, attributions.
const expectedCategories = 3

// AssessQuality computes completeness and staleness for a record set.
// Completeness is the fraction of non-empty canonical categories; age is the
// hours since the freshest parseable timestamp, or 0 when no record carries
// one. Total absence of data yields the worst case (0, 0) rather than an
// error.
func AssessQuality(rs RecordSet) DataQuality {
	present := 0
	if len(rs.Stations) > 0 {
		present++
	}
	if len(rs.Fires) > 0 {
		present++
	}
	if len(rs.Attributions) > 0 {
		present++
	}

	return DataQuality{
		Completeness: float64(present) / expectedCategories,
		AgeHours:     ageHours(rs),
	}
}

func ageHours(rs RecordSet) float64 {
	freshest := freshestTimestamp(rs)
	if freshest == nil {
		return 0
	}
	age := clock.Now().Sub(*freshest).Hours()
	if age < 0 {
		return 0
	}
	return age
}

func freshestTimestamp(rs RecordSet) (freshest *time.Time) {
	consider := func(t *time.Time) {
		if t == nil {
			return
		}
		if freshest == nil || t.After(*freshest) {
			freshest = t
		}
	}
	for _, s := range rs.Stations {
		consider(s.Timestamp)
	}
	for _, f := range rs.Fires {
		consider(f.AcquiredAt)
	}
	for _, a := range rs.Attributions {
		consider(a.Timestamp)
	}
	return freshest
}
