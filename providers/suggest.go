package providers

import (
	"context"
	"fmt"

	"safewalk-api/ranking"
	"safewalk-api/scoring"
)

// TemplateSuggester writes a one-line tip aimed at the weakest part of an
// assessment.
type TemplateSuggester struct{}

func (TemplateSuggester) Suggest(ctx context.Context, route ranking.RouteCandidate, a scoring.Assessment) (string, error) {
	c := a.Components

	weakest, score := "incident", c.Incident.Score
	if c.Lighting.Score < score {
		weakest, score = "lighting", c.Lighting.Score
	}
	if c.Walkability.Score < score {
		weakest, score = "walkability", c.Walkability.Score
	}

	if score >= 80 {
		return fmt.Sprintf("Looks good: %s safety level along %.1f km.", a.SafetyLevel, route.DistanceMeters/1000), nil
	}

	switch weakest {
	case "incident":
		return fmt.Sprintf("%d recent incident(s) reported near this route; stay on busy streets and share your trip.", c.Incident.Count), nil
	case "lighting":
		if a.Metadata.IsDarkHours {
			return "Poorly lit stretches ahead; prefer main roads and keep a light handy.", nil
		}
		return "Some stretches are poorly lit after dark; plan to finish before nightfall.", nil
	default:
		if len(c.Walkability.Penalties) > 0 {
			return fmt.Sprintf("Walking conditions are rough (%s); allow extra time.", c.Walkability.Penalties[0]), nil
		}
		return "Walking conditions are rough; allow extra time.", nil
	}
}
