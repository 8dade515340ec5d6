// Package signals holds the typed contextual inputs consumed by scoring and
// forecasting. A provider that has nothing to say returns None rather than a
// zero value, so "no data" never leaks into the arithmetic as a real reading.
package signals

import (
	"encoding/json"
)

type Option[T any] struct {
	value T
	valid bool
}

func Some[T any](v T) Option[T] {
	return Option[T]{value: v, valid: true}
}

func None[T any]() Option[T] {
	return Option[T]{}
}

func (o Option[T]) Get() (T, bool) {
	return o.value, o.valid
}

func (o Option[T]) Valid() bool {
	return o.valid
}

func (o Option[T]) MarshalJSON() ([]byte, error) {
	if !o.valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// TrafficSignal is a flow reading with speeds in km/h.
type TrafficSignal struct {
	CurrentSpeed  float64 `json:"current_speed"`
	FreeFlowSpeed float64 `json:"free_flow_speed"`
}

// Ratio is CurrentSpeed/FreeFlowSpeed. ok is false when the free-flow speed
// is not positive, in which case the reading carries no usable ratio.
func (t TrafficSignal) Ratio() (ratio float64, ok bool) {
	if t.FreeFlowSpeed <= 0 {
		return 0, false
	}
	return t.CurrentSpeed / t.FreeFlowSpeed, true
}

// WeatherSignal uses OpenWeather condition codes and metric units.
type WeatherSignal struct {
	ConditionCode            int     `json:"condition_code"`
	Temperature              float64 `json:"temperature"`
	PrecipitationProbability float64 `json:"precipitation_probability"`
	WindSpeed                float64 `json:"wind_speed"`
}
