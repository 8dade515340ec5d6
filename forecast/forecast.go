// Package forecast projects a walking-safety score forward in time from the
// hour-of-day distribution of past incidents near a route, nudged by current
// congestion and weather.
package forecast

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"safewalk-api/geo"
	"safewalk-api/metrics"
	"safewalk-api/models"
	"safewalk-api/signals"
)

const (
	component = "forecast"

	hourWeight       = 0.7
	congestionWeight = 0.25
	weatherWeight    = 0.2

	weatherPenalty       = 0.1
	rainProbabilityLimit = 0.4
	windSpeedLimit       = 12.0
	lateNightHour        = 22
	lateNightPessimism   = 0.12
)

type Config struct {
	MaxSamples     int
	MaxQueryPoints int
	SampleBufferKm float64
	Lookback       time.Duration
	CallTimeout    time.Duration
	Location       *time.Location
}

func (c Config) withDefaults() Config {
	if c.MaxSamples <= 0 {
		c.MaxSamples = 50
	}
	if c.MaxQueryPoints <= 0 {
		c.MaxQueryPoints = 12
	}
	if c.SampleBufferKm <= 0 {
		c.SampleBufferKm = 0.2
	}
	if c.Lookback <= 0 {
		c.Lookback = 365 * 24 * time.Hour
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 5 * time.Second
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	return c
}

type Forecaster struct {
	cfg        Config
	incidents  IncidentSource
	congestion CongestionSource
	weather    WeatherSource
	now        func() time.Time
	log        *zap.Logger
}

type Option func(*Forecaster)

func WithClock(now func() time.Time) Option {
	return func(f *Forecaster) { f.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(f *Forecaster) { f.log = l }
}

// NewForecaster builds a forecaster. congestion and weather may be nil.
func NewForecaster(cfg Config, incidents IncidentSource, congestion CongestionSource, weather WeatherSource, opts ...Option) *Forecaster {
	f := &Forecaster{
		cfg:        cfg.withDefaults(),
		incidents:  incidents,
		congestion: congestion,
		weather:    weather,
		now:        time.Now,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// gathered is what one forecast fetched from its sources.
type gathered struct {
	incidents  []models.IncidentRecord
	failed     int
	congestion signals.Option[float64]
	weather    signals.Option[signals.WeatherSignal]
}

// ForecastRisk never fails. With no usable points or no readable incident
// history it returns the sentinel forecast with NoData set. A zero asOf
// means now.
func (f *Forecaster) ForecastRisk(ctx context.Context, points []geo.Point, asOf time.Time) RiskForecast {
	start := time.Now()
	defer func() { metrics.ForecastDuration.Observe(time.Since(start).Seconds()) }()

	if asOf.IsZero() {
		asOf = f.now()
	}
	asOf = asOf.In(f.cfg.Location)

	samples := geo.Sample(points, f.cfg.MaxSamples)
	if len(samples) == 0 {
		return f.sentinel(asOf, "no data: no usable points to forecast for")
	}
	queried := geo.Sample(samples, f.cfg.MaxQueryPoints)

	g := f.gather(ctx, samples, queried)
	if g.failed == len(queried) {
		return f.sentinel(asOf, "no data: incident history unavailable")
	}

	snap := Snapshot{
		SampledPoints: len(samples),
		QueriedPoints: len(queried),
		FailedQueries: g.failed,
		IncidentCount: len(g.incidents),
		HourlyCounts:  HourlyCounts(g.incidents, f.cfg.Location),
	}
	snap.PeakHour = peakHour(snap.HourlyCounts)

	congestion := 0.0
	if v, ok := g.congestion.Get(); ok {
		congestion = NormalizeCongestion(v)
		snap.Congestion = &congestion
	}
	if w, ok := g.weather.Get(); ok {
		snap.WeatherPenalty = WeatherPenalty(w)
	}

	model := newHourModel(snap.HourlyCounts, congestion, snap.WeatherPenalty)

	out := RiskForecast{
		PredictionTimestamp: asOf,
		Now:                 model.score(asOf.Hour()),
		In30Min:             model.score(asOf.Add(30 * time.Minute).Hour()),
		After22:             safety(math.Min(1, model.risk(lateNightHour)+lateNightPessimism)),
		Signals:             snap,
	}
	for _, off := range Offsets {
		at := asOf.Add(time.Duration(off) * time.Minute)
		out.TimeSeries = append(out.TimeSeries, ForecastPoint{
			OffsetMinutes: off,
			At:            at,
			Hour:          at.Hour(),
			Score:         model.score(at.Hour()),
		})
	}
	out.Explanation = explain(out, f.cfg.Lookback)

	metrics.Forecasts.WithLabelValues("computed").Inc()
	f.log.Debug("risk forecast computed",
		zap.Int("incidents", snap.IncidentCount),
		zap.Int("failed_queries", snap.FailedQueries),
		zap.Int("now", out.Now),
		zap.Int("after_22", out.After22),
	)
	return out
}

// gather runs every incident query plus the congestion and weather reads side
// by side. Each call has its own timeout and degrades on its own.
func (f *Forecaster) gather(ctx context.Context, samples, queried []geo.Point) gathered {
	var (
		g       errgroup.Group
		out     gathered
		results = make([][]models.IncidentRecord, len(queried))
		failed  = make([]bool, len(queried))
	)

	for i, p := range queried {
		i, p := i, p
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, f.cfg.CallTimeout)
			defer cancel()

			rows, err := f.incidents.QueryIncidents(callCtx, geo.Around(p, f.cfg.SampleBufferKm), f.cfg.Lookback)
			if err != nil {
				f.degraded("incidents", err)
				failed[i] = true
				return nil
			}
			results[i] = rows
			return nil
		})
	}

	bbox, _ := geo.BoundsOf(samples, f.cfg.SampleBufferKm)
	if f.congestion != nil {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, f.cfg.CallTimeout)
			defer cancel()

			v, ok, err := f.congestion.CongestionIndex(callCtx, bbox)
			if err != nil {
				f.degraded("congestion", err)
				return nil
			}
			if ok {
				out.congestion = signals.Some(v)
			}
			return nil
		})
	}
	if f.weather != nil {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, f.cfg.CallTimeout)
			defer cancel()

			w, err := f.weather.Weather(callCtx, bbox.Center())
			if err != nil {
				f.degraded("weather", err)
				return nil
			}
			out.weather = w
			return nil
		})
	}
	_ = g.Wait()

	for i := range queried {
		if failed[i] {
			out.failed++
		}
	}
	out.incidents = dedupe(results)
	return out
}

func (f *Forecaster) sentinel(asOf time.Time, reason string) RiskForecast {
	metrics.Forecasts.WithLabelValues("no_data").Inc()
	f.log.Info("risk forecast fell back to sentinel", zap.String("reason", reason))
	return Sentinel(asOf, reason)
}

func (f *Forecaster) degraded(source string, err error) {
	metrics.DegradedSources.WithLabelValues(component, source).Inc()
	f.log.Warn("upstream unavailable, using default", zap.String("source", source), zap.Error(err))
}

// Sentinel is the neutral forecast: SentinelScore at every offset and NoData
// set so it can never be mistaken for a computed 85.
func Sentinel(asOf time.Time, reason string) RiskForecast {
	out := RiskForecast{
		PredictionTimestamp: asOf,
		Now:                 SentinelScore,
		In30Min:             SentinelScore,
		After22:             SentinelScore,
		Explanation:         reason,
		NoData:              true,
	}
	for _, off := range Offsets {
		at := asOf.Add(time.Duration(off) * time.Minute)
		out.TimeSeries = append(out.TimeSeries, ForecastPoint{
			OffsetMinutes: off,
			At:            at,
			Hour:          at.Hour(),
			Score:         SentinelScore,
		})
	}
	return out
}

// dedupe merges per-point results keeping the first copy of each record.
// Overlapping sample boxes return the same incident more than once.
func dedupe(batches [][]models.IncidentRecord) []models.IncidentRecord {
	seen := make(map[uuid.UUID]struct{})
	var out []models.IncidentRecord
	for _, batch := range batches {
		for _, inc := range batch {
			if _, ok := seen[inc.ID]; ok {
				continue
			}
			seen[inc.ID] = struct{}{}
			out = append(out, inc)
		}
	}
	return out
}

// HourlyCounts buckets incidents by the hour of day they were reported, read
// in loc.
func HourlyCounts(incidents []models.IncidentRecord, loc *time.Location) [24]int {
	var counts [24]int
	for _, inc := range incidents {
		counts[inc.CreatedAt.In(loc).Hour()]++
	}
	return counts
}

// peakHour is the busiest hour, earliest on ties, or nil with no incidents.
func peakHour(counts [24]int) *int {
	best := -1
	for h, c := range counts {
		if c > 0 && (best < 0 || c > counts[best]) {
			best = h
		}
	}
	if best < 0 {
		return nil
	}
	return &best
}

// NormalizeCongestion maps a reading onto 0-100. Values up to 1 are treated
// as a ratio, up to 10 as a 0-10 scale, anything larger as already 0-100.
func NormalizeCongestion(v float64) float64 {
	switch {
	case v <= 1:
		v *= 100
	case v <= 10:
		v *= 10
	}
	return math.Max(0, math.Min(100, v))
}

func WeatherPenalty(w signals.WeatherSignal) float64 {
	if w.PrecipitationProbability > rainProbabilityLimit || w.WindSpeed > windSpeedLimit {
		return weatherPenalty
	}
	return 0
}

type hourModel struct {
	hourScore  [24]float64
	congestion float64
	weather    float64
}

// newHourModel rates each hour against the area's own hourly average: an hour
// with twice the average count or more saturates at 1.
func newHourModel(counts [24]int, congestion, weather float64) hourModel {
	m := hourModel{congestion: congestion, weather: weather}

	values := make([]float64, len(counts))
	for h, c := range counts {
		values[h] = float64(c)
	}
	avgPerHour := stat.Mean(values, nil)
	if avgPerHour <= 0 {
		return m
	}
	for h, c := range values {
		m.hourScore[h] = math.Min(1, c/(2*avgPerHour))
	}
	return m
}

func (m hourModel) risk(hour int) float64 {
	r := m.hourScore[hour]*hourWeight + (m.congestion/100)*congestionWeight + m.weather*weatherWeight
	return math.Min(1, r)
}

func (m hourModel) score(hour int) int {
	return safety(m.risk(hour))
}

func safety(risk float64) int {
	s := math.Round((1 - risk) * 100)
	return int(math.Max(0, math.Min(100, s)))
}

func explain(f RiskForecast, lookback time.Duration) string {
	var b strings.Builder
	s := f.Signals

	days := int(lookback.Hours() / 24)
	fmt.Fprintf(&b, "%d incident(s) reported nearby in the last %d days", s.IncidentCount, days)
	if s.PeakHour != nil {
		fmt.Fprintf(&b, ", most often around %02d:00", *s.PeakHour)
	}
	b.WriteString(".")
	if s.Congestion != nil {
		fmt.Fprintf(&b, " Current congestion %.0f/100.", *s.Congestion)
	}
	if s.WeatherPenalty > 0 {
		b.WriteString(" Rain or strong wind expected.")
	}
	if s.FailedQueries > 0 {
		fmt.Fprintf(&b, " History incomplete: %d of %d lookups failed.", s.FailedQueries, s.QueriedPoints)
	}
	fmt.Fprintf(&b, " Late-night outlook %d/100.", f.After22)
	return b.String()
}
