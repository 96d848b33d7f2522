package domain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestAssessQuality_Empty(t *testing.T) {
	q := AssessQuality(RecordSet{})
	assert.Zero(t, q.Completeness)
	assert.Zero(t, q.AgeHours)
}

func TestAssessQuality_Completeness(t *testing.T) {
	onlyStations := RecordSet{Stations: []StationReading{{Station: "Alipur", AQI: 380}}}
	assert.InDelta(t, 1.0/3.0, AssessQuality(onlyStations).Completeness, 1e-9)

	all := RecordSet{
		Stations:     []StationReading{{Station: "Alipur", AQI: 380}},
		Fires:        []FireEvent{{}},
		Attributions: []SourceAttribution{{Category: SourceStubble, Percent: 22}},
	}
	assert.Equal(t, 1.0, AssessQuality(all).Completeness)
}

func TestAssessQuality_AgeFromFreshestTimestamp(t *testing.T) {
	now := time.Date(2025, time.November, 3, 12, 0, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { SetClock(nil) })

	old := now.Add(-10 * time.Hour)
	fresh := now.Add(-2 * time.Hour)

	rs := RecordSet{
		Stations: []StationReading{{Station: "Alipur", AQI: 380, Timestamp: &old}},
		Fires:    []FireEvent{{AcquiredAt: &fresh}},
	}

	q := AssessQuality(rs)
	assert.InDelta(t, 2.0, q.AgeHours, 1e-9, "age measured from freshest record")
}

func TestAssessQuality_NoParseableTimestamps(t *testing.T) {
	rs := RecordSet{Stations: []StationReading{{Station: "Bawana", AQI: 300}}}
	assert.Zero(t, AssessQuality(rs).AgeHours)
}
