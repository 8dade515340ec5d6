package scoring

import (
	"math"

	"safewalk-api/models"
)

const maxVerificationMultiplier = 2.0

// SeverityBreakdown counts incidents per severity tier.
type SeverityBreakdown struct {
	Fine      int `json:"fine"`
	Moderate  int `json:"moderate"`
	Dangerous int `json:"dangerous"`
}

type IncidentScore struct {
	Score      int               `json:"score"`
	Count      int               `json:"count"`
	BySeverity SeverityBreakdown `json:"by_severity"`
}

// SeverityPenalty is the base deduction for one incident. Unknown severities
// are charged as fine.
func SeverityPenalty(s models.Severity) float64 {
	switch s {
	case models.SeverityDangerous:
		return 25
	case models.SeverityModerate:
		return 15
	default:
		return 5
	}
}

// VerificationMultiplier grows by 0.2 per independent confirmation, capped at 2.
func VerificationMultiplier(verifications int) float64 {
	if verifications < 0 {
		verifications = 0
	}
	return math.Min(1+0.2*float64(verifications), maxVerificationMultiplier)
}

func ScoreIncidents(incidents []models.IncidentRecord) IncidentScore {
	var out IncidentScore
	score := 100.0

	for _, inc := range incidents {
		score -= SeverityPenalty(inc.Severity) * VerificationMultiplier(inc.VerificationCount)

		switch inc.Severity {
		case models.SeverityDangerous:
			out.BySeverity.Dangerous++
		case models.SeverityModerate:
			out.BySeverity.Moderate++
		default:
			out.BySeverity.Fine++
		}
	}

	out.Count = len(incidents)
	out.Score = clampScore(score)
	return out
}

func clampScore(v float64) int {
	return int(math.Round(math.Max(0, math.Min(100, v))))
}
