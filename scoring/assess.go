// Package scoring turns incidents, lighting, traffic and weather into a single
// 0-100 safety score for a route. Every function here is pure: the caller
// supplies the as-of time, so identical inputs always score identically.
package scoring

import (
	"math"
	"time"

	"safewalk-api/models"
	"safewalk-api/signals"
)

type Level string

const (
	LevelExcellent Level = "excellent"
	LevelGood      Level = "good"
	LevelModerate  Level = "moderate"
	LevelPoor      Level = "poor"
	LevelDangerous Level = "dangerous"
)

// Input is everything one assessment needs. Missing context is expressed as
// empty slices or None options and falls back to neutral defaults.
type Input struct {
	Incidents []models.IncidentRecord
	Lighting  []models.LightingReport
	Traffic   signals.Option[signals.TrafficSignal]
	Weather   signals.Option[signals.WeatherSignal]
	AsOf      time.Time
}

type Components struct {
	Incident    IncidentScore    `json:"incident"`
	Lighting    LightingScore    `json:"lighting"`
	Congestion  CongestionScore  `json:"congestion"`
	Walkability WalkabilityScore `json:"walkability"`
}

type Metadata struct {
	TimeOfDay    string    `json:"time_of_day"`
	IsDarkHours  bool      `json:"is_dark_hours"`
	CalculatedAt time.Time `json:"calculated_at"`
}

type Assessment struct {
	OverallScore int        `json:"overall_score"`
	SafetyLevel  Level      `json:"safety_level"`
	Color        string     `json:"color"`
	Components   Components `json:"components"`
	Weights      Weights    `json:"weights"`
	Metadata     Metadata   `json:"metadata"`
}

// ClassifyScore maps an overall score to its level and display color.
func ClassifyScore(score int) (Level, string) {
	switch {
	case score >= 80:
		return LevelExcellent, "#16a34a"
	case score >= 65:
		return LevelGood, "#65a30d"
	case score >= 50:
		return LevelModerate, "#eab308"
	case score >= 35:
		return LevelPoor, "#ea580c"
	default:
		return LevelDangerous, "#dc2626"
	}
}

// Assess always returns a complete assessment.
func Assess(in Input) Assessment {
	hour := in.AsOf.Hour()

	c := Components{
		Incident:    ScoreIncidents(in.Incidents),
		Lighting:    ScoreLighting(in.Lighting, hour),
		Congestion:  ScoreCongestion(in.Traffic),
		Walkability: ScoreWalkability(in.Traffic, in.Weather),
	}
	w := NormalizedWeights(c.Lighting.Weight)

	overall := float64(c.Incident.Score)*w.Incident +
		float64(c.Lighting.Score)*w.Lighting +
		float64(c.Congestion.Score)*w.Congestion +
		float64(c.Walkability.Score)*w.Walkability
	score := clampScore(math.Round(overall))
	level, color := ClassifyScore(score)

	return Assessment{
		OverallScore: score,
		SafetyLevel:  level,
		Color:        color,
		Components:   c,
		Weights:      w,
		Metadata: Metadata{
			TimeOfDay:    TimeOfDay(hour),
			IsDarkHours:  IsDarkHours(hour),
			CalculatedAt: in.AsOf,
		},
	}
}
