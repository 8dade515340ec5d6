package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"safewalk-api/geo"
	"safewalk-api/signals"
)

// OpenWeatherClient reads the nearest 3-hour forecast slot, which carries the
// precipitation probability the current-conditions endpoint lacks.
type OpenWeatherClient struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
}

type openWeatherForecast struct {
	List []struct {
		Weather []struct {
			ID int `json:"id"`
		} `json:"weather"`
		Main struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
		Pop float64 `json:"pop"`
	} `json:"list"`
}

func NewOpenWeatherClient(baseURL, apiKey string) *OpenWeatherClient {
	return &OpenWeatherClient{
		HTTPClient: newHTTPClient(),
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
	}
}

func (c *OpenWeatherClient) Weather(ctx context.Context, p geo.Point) (signals.Option[signals.WeatherSignal], error) {
	if c.APIKey == "" {
		return signals.None[signals.WeatherSignal](), nil
	}

	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%f", p.Lat))
	q.Set("lon", fmt.Sprintf("%f", p.Lon))
	q.Set("cnt", "1")
	q.Set("units", "metric")
	q.Set("appid", c.APIKey)

	var body openWeatherForecast
	if err := getJSON(ctx, c.HTTPClient, c.BaseURL+"/data/2.5/forecast?"+q.Encode(), "weather", &body); err != nil {
		return signals.None[signals.WeatherSignal](), err
	}
	if len(body.List) == 0 {
		return signals.None[signals.WeatherSignal](), nil
	}

	slot := body.List[0]
	w := signals.WeatherSignal{
		Temperature:              slot.Main.Temp,
		PrecipitationProbability: slot.Pop,
		WindSpeed:                slot.Wind.Speed,
	}
	if len(slot.Weather) > 0 {
		w.ConditionCode = slot.Weather[0].ID
	}
	return signals.Some(w), nil
}
