package scoring

import (
	"safewalk-api/signals"
)

// defaultCongestionScore assumes moderate traffic when no flow data exists.
const defaultCongestionScore = 75

type CongestionLevel string

const (
	CongestionFreeFlow CongestionLevel = "free_flow"
	CongestionLight    CongestionLevel = "light"
	CongestionModerate CongestionLevel = "moderate"
	CongestionHeavy    CongestionLevel = "heavy"
	CongestionSevere   CongestionLevel = "severe"
	CongestionUnknown  CongestionLevel = "unknown"
)

type CongestionScore struct {
	Score int             `json:"score"`
	Level CongestionLevel `json:"level"`
	Ratio *float64        `json:"ratio,omitempty"`
}

// ClassifyCongestion maps a current/free-flow speed ratio to a display level.
func ClassifyCongestion(ratio float64) CongestionLevel {
	switch {
	case ratio >= 0.9:
		return CongestionFreeFlow
	case ratio >= 0.7:
		return CongestionLight
	case ratio >= 0.5:
		return CongestionModerate
	case ratio >= 0.3:
		return CongestionHeavy
	default:
		return CongestionSevere
	}
}

func ScoreCongestion(traffic signals.Option[signals.TrafficSignal]) CongestionScore {
	t, ok := traffic.Get()
	if !ok {
		return CongestionScore{Score: defaultCongestionScore, Level: CongestionUnknown}
	}
	ratio, ok := t.Ratio()
	if !ok {
		return CongestionScore{Score: defaultCongestionScore, Level: CongestionUnknown}
	}
	return CongestionScore{
		Score: clampScore(100 * ratio),
		Level: ClassifyCongestion(ratio),
		Ratio: &ratio,
	}
}
