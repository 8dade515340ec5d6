package scoring

import (
	"gonum.org/v1/gonum/stat"

	"safewalk-api/models"
)

const (
	darkHoursDefault = 50
	daylightDefault  = 80
	// fallbackLux stands in for the average when no report carries a reading.
	fallbackLux = 70.0
)

type LightingScore struct {
	Score       int      `json:"score"`
	Weight      float64  `json:"weight"`
	Description string   `json:"description"`
	ReportCount int      `json:"report_count"`
	AverageLux  *float64 `json:"average_lux,omitempty"`
}

// IsDarkHours is true from 20:00 until 06:00.
func IsDarkHours(hour int) bool {
	return hour >= 20 || hour < 6
}

// TimeOfDay labels an hour as night, evening (17-20) or day.
func TimeOfDay(hour int) string {
	switch {
	case IsDarkHours(hour):
		return "night"
	case hour >= 17:
		return "evening"
	default:
		return "day"
	}
}

// LightingWeight is how much lighting matters at the given hour.
func LightingWeight(hour int) float64 {
	switch TimeOfDay(hour) {
	case "night":
		return 1.0
	case "evening":
		return 0.7
	default:
		return 0.1
	}
}

func ScoreLighting(reports []models.LightingReport, hour int) LightingScore {
	out := LightingScore{
		Weight:      LightingWeight(hour),
		ReportCount: len(reports),
	}

	if len(reports) == 0 {
		if IsDarkHours(hour) {
			out.Score = darkHoursDefault
			out.Description = "No lighting reports; assuming limited lighting after dark"
		} else {
			out.Score = daylightDefault
			out.Description = "No lighting reports; daylight conditions assumed"
		}
		return out
	}

	lux := make([]float64, 0, len(reports))
	for _, r := range reports {
		if r.LuxEstimate != nil {
			lux = append(lux, *r.LuxEstimate)
		}
	}

	avg := fallbackLux
	if len(lux) > 0 {
		avg = stat.Mean(lux, nil)
	}
	out.AverageLux = &avg
	out.Score, out.Description = luxBand(avg)
	return out
}

func luxBand(lux float64) (int, string) {
	switch {
	case lux < 10:
		return 20, "Very poorly lit"
	case lux < 50:
		return 40, "Poorly lit"
	case lux < 100:
		return 60, "Moderately lit"
	case lux < 300:
		return 80, "Well lit"
	default:
		return 95, "Very well lit"
	}
}
