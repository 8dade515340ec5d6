package signals

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOption(t *testing.T) {
	some := Some(TrafficSignal{CurrentSpeed: 20, FreeFlowSpeed: 40})
	v, ok := some.Get()
	require.True(t, ok)
	assert.Equal(t, 20.0, v.CurrentSpeed)

	none := None[WeatherSignal]()
	_, ok = none.Get()
	assert.False(t, ok)
	assert.False(t, none.Valid())
}

func TestOptionMarshalJSON(t *testing.T) {
	payload := struct {
		Traffic Option[TrafficSignal] `json:"traffic"`
		Weather Option[WeatherSignal] `json:"weather"`
	}{
		Traffic: Some(TrafficSignal{CurrentSpeed: 12, FreeFlowSpeed: 30}),
		Weather: None[WeatherSignal](),
	}

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"traffic":{"current_speed":12,"free_flow_speed":30},"weather":null}`, string(data))
}

func TestTrafficRatio(t *testing.T) {
	r, ok := TrafficSignal{CurrentSpeed: 19, FreeFlowSpeed: 20}.Ratio()
	require.True(t, ok)
	assert.InDelta(t, 0.95, r, 1e-9)

	_, ok = TrafficSignal{CurrentSpeed: 19}.Ratio()
	assert.False(t, ok, "zero free-flow speed has no ratio")
}
