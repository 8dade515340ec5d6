package scoring

import (
	"gonum.org/v1/gonum/floats"
)

const (
	baseIncidentWeight    = 0.35
	baseLightingWeight    = 0.25
	baseCongestionWeight  = 0.15
	baseWalkabilityWeight = 0.25
	// walkability cedes this share per unit of lighting weight
	walkabilityYield = 0.15
)

type Weights struct {
	Incident    float64 `json:"incident"`
	Lighting    float64 `json:"lighting"`
	Congestion  float64 `json:"congestion"`
	Walkability float64 `json:"walkability"`
}

func (w Weights) Sum() float64 {
	return w.Incident + w.Lighting + w.Congestion + w.Walkability
}

// NormalizedWeights shifts budget from walkability to lighting as lightingWeight
// grows, then rescales the four weights to sum to 1.
func NormalizedWeights(lightingWeight float64) Weights {
	raw := []float64{
		baseIncidentWeight,
		lightingWeight * baseLightingWeight,
		baseCongestionWeight,
		baseWalkabilityWeight - lightingWeight*walkabilityYield,
	}
	floats.Scale(1/floats.Sum(raw), raw)
	return Weights{
		Incident:    raw[0],
		Lighting:    raw[1],
		Congestion:  raw[2],
		Walkability: raw[3],
	}
}
