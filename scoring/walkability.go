package scoring

import (
	"safewalk-api/signals"
)

type WalkabilityScore struct {
	Score     int      `json:"score"`
	Penalties []string `json:"penalties,omitempty"`
}

type penalty struct {
	points float64
	reason string
}

func trafficSpeedPenalty(speed float64) (penalty, bool) {
	switch {
	case speed > 50:
		return penalty{30, "fast adjacent traffic (>50 km/h)"}, true
	case speed > 30:
		return penalty{15, "adjacent traffic above 30 km/h"}, true
	}
	return penalty{}, false
}

// conditionPenalty uses OpenWeather condition-code groups.
func conditionPenalty(code int) (penalty, bool) {
	switch {
	case code >= 200 && code < 300:
		return penalty{40, "thunderstorm"}, true
	case code >= 300 && code < 400, code >= 500 && code < 600:
		return penalty{25, "rain"}, true
	case code >= 600 && code < 700:
		return penalty{30, "snow"}, true
	}
	return penalty{}, false
}

func temperaturePenalty(celsius float64) (penalty, bool) {
	switch {
	case celsius < 0:
		return penalty{20, "freezing temperature"}, true
	case celsius < 10:
		return penalty{10, "cold temperature"}, true
	case celsius > 35:
		return penalty{20, "extreme heat"}, true
	case celsius > 30:
		return penalty{10, "hot temperature"}, true
	}
	return penalty{}, false
}

// ScoreWalkability starts at 100 and stacks every applicable penalty.
func ScoreWalkability(traffic signals.Option[signals.TrafficSignal], weather signals.Option[signals.WeatherSignal]) WalkabilityScore {
	var applied []penalty

	if t, ok := traffic.Get(); ok {
		if p, hit := trafficSpeedPenalty(t.CurrentSpeed); hit {
			applied = append(applied, p)
		}
	}
	if w, ok := weather.Get(); ok {
		if p, hit := conditionPenalty(w.ConditionCode); hit {
			applied = append(applied, p)
		}
		if p, hit := temperaturePenalty(w.Temperature); hit {
			applied = append(applied, p)
		}
	}

	score := 100.0
	out := WalkabilityScore{}
	for _, p := range applied {
		score -= p.points
		out.Penalties = append(out.Penalties, p.reason)
	}
	out.Score = clampScore(score)
	return out
}
