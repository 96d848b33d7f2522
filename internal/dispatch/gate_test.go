package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airshedlab/airward/internal/domain"
)

func TestShouldEnforce(t *testing.T) {
	hotspots := []domain.FireEvent{{Region: "Punjab"}}

	severe := domain.Prediction{
		Category:      domain.CategorySevere,
		Justification: "fire count 450 above 300",
	}
	ok, order := ShouldEnforce(severe, hotspots)
	require.True(t, ok)
	assert.Equal(t, "fire count 450 above 300", order.Reasoning)
	assert.Equal(t, hotspots, order.Hotspots)
	assert.Equal(t, severe, order.Prediction)

	for _, cat := range []domain.Category{
		domain.CategoryGood, domain.CategoryPoor, domain.CategoryVeryPoor,
		domain.CategoryImproving, domain.CategoryStable, domain.CategoryUnknown,
	} {
		ok, _ := ShouldEnforce(domain.Prediction{Category: cat}, hotspots)
		assert.False(t, ok, "category %s must not enforce", cat)
	}
}

func TestShouldInvestigate(t *testing.T) {
	ok, _ := ShouldInvestigate(nil)
	assert.False(t, ok)

	surges := []domain.StationReading{{Station: "Alipur", AQI: 450}}
	ok, req := ShouldInvestigate(surges)
	require.True(t, ok)
	assert.Equal(t, surges, req.Stations)
}
