package scheduler

import (
	"time"

	"github.com/airshedlab/airward/internal/domain"
)

// Service states derived from the time since the last completed cycle.
const (
	StateOperational = "operational" // last cycle under an hour ago
	StateIdle        = "idle"        // last cycle under a day ago
	StateInactive    = "inactive"    // no recent cycle
)

const (
	operationalWindow  = time.Hour
	availabilityWindow = 24 * time.Hour
)

// AgentStatus reports one governance step's last successful run. Available
// means it succeeded within the last 24 hours.
type AgentStatus struct {
	Name      string    `json:"name"`
	LastRun   time.Time `json:"last_run"`
	Available bool      `json:"available"`
}

// StatusReport is the snapshot served on the status endpoint.
type StatusReport struct {
	State             string                     `json:"state"`
	LastCycleAt       time.Time                  `json:"last_cycle_at"`
	LastCycleDuration string                     `json:"last_cycle_duration,omitempty"`
	Agents            []AgentStatus              `json:"agents"`
	Prediction        *domain.Prediction         `json:"prediction,omitempty"`
	Correlation       []domain.CorrelationResult `json:"correlation,omitempty"`
	CorrelationScore  *float64                   `json:"correlation_score,omitempty"`
}

// Status returns a copy of the current cycle state. Safe to call from any
// goroutine.
func (s *Scheduler) Status() StatusReport {
	s.mu.RLock()
	state := s.state
	pred := s.latestPrediction
	// The scheduler replaces the correlation slice wholesale each cycle, so
	// a shallow copy is a stable snapshot.
	corr := append([]domain.CorrelationResult(nil), s.latestCorrelation...)
	score := s.latestScore
	s.mu.RUnlock()

	now := s.clock.Now()

	report := StatusReport{
		State:       serviceState(now, state.LastCycleAt),
		LastCycleAt: state.LastCycleAt,
		Agents: []AgentStatus{
			agentStatus(now, stepIngestion, state.LastIngestion),
			agentStatus(now, stepPrediction, state.LastPrediction),
			agentStatus(now, stepEnforcement, state.LastEnforcement),
			agentStatus(now, stepAccountability, state.LastAccountability),
		},
		Prediction:       pred,
		Correlation:      corr,
		CorrelationScore: score,
	}
	if state.LastCycleDuration > 0 {
		report.LastCycleDuration = state.LastCycleDuration.String()
	}
	return report
}

// State returns a copy of the raw cycle timestamps.
func (s *Scheduler) State() domain.CycleState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func serviceState(now, lastCycle time.Time) string {
	if lastCycle.IsZero() {
		return StateInactive
	}
	switch since := now.Sub(lastCycle); {
	case since < operationalWindow:
		return StateOperational
	case since < availabilityWindow:
		return StateIdle
	default:
		return StateInactive
	}
}

func agentStatus(now time.Time, name string, lastRun time.Time) AgentStatus {
	return AgentStatus{
		Name:      name,
		LastRun:   lastRun,
		Available: !lastRun.IsZero() && now.Sub(lastRun) < availabilityWindow,
	}
}
