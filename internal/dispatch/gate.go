// Package dispatch holds the pure predicates deciding whether a governance
// cycle triggers downstream action pipelines, and builds their payloads.
package dispatch

import "github.com/airshedlab/airward/internal/domain"

// ShouldEnforce reports whether a prediction warrants the enforcement
// pipeline: only the most severe tier fires. The returned order carries the
// prediction's reasoning and the fire hotspots backing it.
func ShouldEnforce(pred domain.Prediction, hotspots []domain.FireEvent) (bool, domain.EnforcementOrder) {
	if pred.Category != domain.CategorySevere {
		return false, domain.EnforcementOrder{}
	}
	return true, domain.EnforcementOrder{
		Reasoning:  pred.Justification,
		Hotspots:   hotspots,
		Prediction: pred,
	}
}

// ShouldInvestigate reports whether a border-station surge warrants the
// accountability pipeline. The request carries only the flagged stations;
// the accountability pipeline re-reads correlated evidence itself.
func ShouldInvestigate(surges []domain.StationReading) (bool, domain.AccountabilityRequest) {
	if len(surges) == 0 {
		return false, domain.AccountabilityRequest{}
	}
	return true, domain.AccountabilityRequest{Stations: surges}
}
