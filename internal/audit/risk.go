package audit

import (
	"strings"
	"time"
)

// RiskConfig holds the region-specific heuristics behind the risk score.
// The defaults are reference values kept for compatibility; deployments
// override them through configuration, not code.
type RiskConfig struct {
	LargeAmount  float64
	MediumAmount float64
	SmallAmount  float64

	AllowedCountries []string

	AfterHoursStart int
	AfterHoursEnd   int
}

// DefaultRiskConfig returns the reference scoring thresholds.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		LargeAmount:      50000,
		MediumAmount:     10000,
		SmallAmount:      1000,
		AllowedCountries: []string{"ID", "SG", "MY"},
		AfterHoursStart:  22,
		AfterHoursEnd:    6,
	}
}

var severityBase = map[Severity]int{
	SeverityLow:      10,
	SeverityMedium:   30,
	SeverityHigh:     60,
	SeverityCritical: 90,
}

// RiskScore derives the 0-100 risk figure for an event recorded at the given
// time. The model is additive and clamped; see the individual bumps below.
func RiskScore(cfg RiskConfig, ev Event, at time.Time) int {
	score := severityBase[ev.Severity]

	if ev.Security {
		score += 20
	}

	switch {
	case ev.Amount > cfg.LargeAmount:
		score += 25
	case ev.Amount > cfg.MediumAmount:
		score += 15
	case ev.Amount > cfg.SmallAmount:
		score += 5
	}

	if ev.Operation == OperationDelete {
		score += 15
	}
	if ev.Operation == OperationApprove && ev.EntityType == "vendor" {
		score += 10
	}

	switch ev.ActorType {
	case ActorAPIClient:
		score += 10
	case ActorSystem:
		if strings.Contains(ev.Action, "bulk") {
			score += 8
		}
	}

	if ev.Country != "" && !countryAllowed(cfg.AllowedCountries, ev.Country) {
		score += 5
	}

	hour := at.UTC().Hour()
	if hour < cfg.AfterHoursEnd || hour > cfg.AfterHoursStart {
		score += 5
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

func countryAllowed(allowed []string, country string) bool {
	for _, c := range allowed {
		if strings.EqualFold(c, country) {
			return true
		}
	}
	return false
}
