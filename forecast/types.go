package forecast

import (
	"context"
	"time"

	"safewalk-api/geo"
	"safewalk-api/models"
	"safewalk-api/signals"
)

// SentinelScore is reported at every offset when there is no usable history.
const SentinelScore = 85

// Offsets of the fixed time series, in minutes from the as-of time.
var Offsets = []int{0, 30, 120, 480}

type IncidentSource interface {
	QueryIncidents(ctx context.Context, bbox geo.BoundingBox, since time.Duration) ([]models.IncidentRecord, error)
}

// CongestionSource returns one congestion reading for the area in whatever
// scale the provider uses. ok is false when the provider has no reading.
type CongestionSource interface {
	CongestionIndex(ctx context.Context, bbox geo.BoundingBox) (value float64, ok bool, err error)
}

type WeatherSource interface {
	Weather(ctx context.Context, p geo.Point) (signals.Option[signals.WeatherSignal], error)
}

type ForecastPoint struct {
	OffsetMinutes int       `json:"offset_minutes"`
	At            time.Time `json:"at"`
	Hour          int       `json:"hour"`
	Score         int       `json:"score"`
}

// Snapshot records the raw signals a forecast was computed from.
type Snapshot struct {
	SampledPoints  int      `json:"sampled_points"`
	QueriedPoints  int      `json:"queried_points"`
	FailedQueries  int      `json:"failed_queries"`
	IncidentCount  int      `json:"incident_count"`
	HourlyCounts   [24]int  `json:"hourly_counts"`
	PeakHour       *int     `json:"peak_hour"`
	Congestion     *float64 `json:"congestion"`
	WeatherPenalty float64  `json:"weather_penalty"`
}

type RiskForecast struct {
	PredictionTimestamp time.Time       `json:"prediction_timestamp"`
	Now                 int             `json:"now"`
	In30Min             int             `json:"in_30_min"`
	After22             int             `json:"after_22"`
	TimeSeries          []ForecastPoint `json:"time_series"`
	Explanation         string          `json:"explanation"`
	Signals             Snapshot        `json:"signals"`
	NoData              bool            `json:"no_data"`
}
