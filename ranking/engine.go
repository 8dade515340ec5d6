// Package ranking scores every candidate route between two points and orders
// them by the caller's preference.
package ranking

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"safewalk-api/geo"
	"safewalk-api/metrics"
	"safewalk-api/models"
	"safewalk-api/scoring"
	"safewalk-api/signals"
)

const component = "ranking"

type Config struct {
	BufferKm       float64
	IncidentWindow time.Duration
	LightingWindow time.Duration
	CallTimeout    time.Duration
	Alternatives   int
	Location       *time.Location
}

func (c Config) withDefaults() Config {
	if c.BufferKm <= 0 {
		c.BufferKm = 0.5
	}
	if c.IncidentWindow <= 0 {
		c.IncidentWindow = 30 * 24 * time.Hour
	}
	if c.LightingWindow <= 0 {
		c.LightingWindow = 90 * 24 * time.Hour
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 5 * time.Second
	}
	if c.Alternatives <= 0 {
		c.Alternatives = 3
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	return c
}

type Engine struct {
	cfg       Config
	routing   RoutingProvider
	traffic   TrafficProvider
	weather   WeatherProvider
	signals   SignalRepository
	poi       POIProvider
	suggester SuggestionProvider
	now       func() time.Time
	log       *zap.Logger
}

type Option func(*Engine)

func WithPOIProvider(p POIProvider) Option {
	return func(e *Engine) { e.poi = p }
}

func WithSuggestionProvider(s SuggestionProvider) Option {
	return func(e *Engine) { e.suggester = s }
}

// WithClock fixes the as-of time source used for day/night weighting.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func NewEngine(cfg Config, routing RoutingProvider, traffic TrafficProvider, weather WeatherProvider, repo SignalRepository, opts ...Option) *Engine {
	e := &Engine{
		cfg:     cfg.withDefaults(),
		routing: routing,
		traffic: traffic,
		weather: weather,
		signals: repo,
		now:     time.Now,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// context shared by every candidate of one request
type sharedContext struct {
	traffic signals.Option[signals.TrafficSignal]
	weather signals.Option[signals.WeatherSignal]
}

// RankRoutes returns every candidate annotated with its assessment, ordered by
// pref. Only invalid input, a failing routing provider and an empty candidate
// list are returned as errors; every other upstream failure degrades.
func (e *Engine) RankRoutes(ctx context.Context, origin, destination geo.Point, pref Preference) ([]RankedRoute, error) {
	start := time.Now()
	defer func() { metrics.RankDuration.Observe(time.Since(start).Seconds()) }()

	pref, err := validate(origin, destination, pref)
	if err != nil {
		metrics.RankRequests.WithLabelValues("unknown", "invalid").Inc()
		return nil, err
	}

	asOf := e.now().In(e.cfg.Location)

	candidates, err := e.computeRoutes(ctx, origin, destination)
	if err != nil {
		metrics.RankRequests.WithLabelValues(string(pref), "routing_error").Inc()
		return nil, fmt.Errorf("compute routes: %w", err)
	}
	if len(candidates) == 0 {
		metrics.RankRequests.WithLabelValues(string(pref), "no_routes").Inc()
		return nil, ErrNoRoutes
	}

	shared := e.fetchSharedContext(ctx, candidates[0], origin)

	results := make([]RankedRoute, len(candidates))
	var g errgroup.Group
	for i, candidate := range candidates {
		i, candidate := i, candidate
		g.Go(func() error {
			results[i] = e.scoreCandidate(ctx, candidate, shared, asOf)
			return nil
		})
	}
	_ = g.Wait()

	if err := SortRoutes(results, pref); err != nil {
		return nil, err
	}

	metrics.RankRequests.WithLabelValues(string(pref), "ok").Inc()
	e.log.Info("routes ranked",
		zap.String("preference", string(pref)),
		zap.Int("candidates", len(results)),
		zap.Int("top_score", results[0].Assessment.OverallScore),
		zap.Duration("elapsed", time.Since(start)),
	)
	return results, nil
}

func validate(origin, destination geo.Point, pref Preference) (Preference, error) {
	if !origin.Valid() {
		return "", fmt.Errorf("%w: origin %v is not a valid coordinate", ErrInvalidInput, origin)
	}
	if !destination.Valid() {
		return "", fmt.Errorf("%w: destination %v is not a valid coordinate", ErrInvalidInput, destination)
	}
	return ParsePreference(string(pref))
}

func (e *Engine) computeRoutes(ctx context.Context, origin, destination geo.Point) ([]RouteCandidate, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	return e.routing.ComputeRoutes(callCtx, origin, destination, RoutingOptions{
		Alternatives: e.cfg.Alternatives,
		Profile:      "foot",
	})
}

// fetchSharedContext reads traffic and weather once per request around the
// first candidate. The two calls are independent and run side by side.
func (e *Engine) fetchSharedContext(ctx context.Context, first RouteCandidate, origin geo.Point) sharedContext {
	var shared sharedContext

	bbox, ok := geo.BoundsOf(first.Points, e.cfg.BufferKm)
	weatherAt := origin
	if ok {
		weatherAt = bbox.Center()
	}

	var g errgroup.Group
	if ok {
		g.Go(func() error {
			shared.traffic = e.fetchTraffic(ctx, bbox)
			return nil
		})
	}
	g.Go(func() error {
		shared.weather = e.fetchWeather(ctx, weatherAt)
		return nil
	})
	_ = g.Wait()

	return shared
}

func (e *Engine) fetchTraffic(ctx context.Context, bbox geo.BoundingBox) signals.Option[signals.TrafficSignal] {
	if e.traffic == nil {
		return signals.None[signals.TrafficSignal]()
	}
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	flow, err := e.traffic.Flow(callCtx, bbox)
	if err != nil {
		e.degraded("traffic", err)
		return signals.None[signals.TrafficSignal]()
	}
	return flow
}

func (e *Engine) fetchWeather(ctx context.Context, p geo.Point) signals.Option[signals.WeatherSignal] {
	if e.weather == nil {
		return signals.None[signals.WeatherSignal]()
	}
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	w, err := e.weather.Weather(callCtx, p)
	if err != nil {
		e.degraded("weather", err)
		return signals.None[signals.WeatherSignal]()
	}
	return w
}

func (e *Engine) scoreCandidate(ctx context.Context, route RouteCandidate, shared sharedContext, asOf time.Time) RankedRoute {
	in := scoring.Input{
		Traffic: shared.traffic,
		Weather: shared.weather,
		AsOf:    asOf,
	}

	bbox, ok := geo.BoundsOf(route.Points, e.cfg.BufferKm)
	if ok {
		in.Incidents, in.Lighting = e.fetchSignals(ctx, bbox)
	}

	assessment := scoring.Assess(in)
	metrics.RoutesScored.Inc()

	ranked := RankedRoute{
		Route:         route,
		Assessment:    assessment,
		BalancedScore: BalancedScore(assessment.OverallScore, route.TravelTimeSeconds),
	}
	if ok {
		ranked.SafePlaces = e.safePlaces(ctx, bbox)
	}
	ranked.Suggestion = e.suggestion(ctx, route, assessment)
	return ranked
}

// fetchSignals reads incidents and lighting concurrently. A failed read is
// treated as no reports.
func (e *Engine) fetchSignals(ctx context.Context, bbox geo.BoundingBox) ([]models.IncidentRecord, []models.LightingReport) {
	if e.signals == nil {
		return nil, nil
	}

	var (
		incidents []models.IncidentRecord
		lighting  []models.LightingReport
		g         errgroup.Group
	)
	g.Go(func() error {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()

		rows, err := e.signals.QueryIncidents(callCtx, bbox, e.cfg.IncidentWindow)
		if err != nil {
			e.degraded("incidents", err)
			return nil
		}
		incidents = rows
		return nil
	})
	g.Go(func() error {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()

		rows, err := e.signals.QueryLighting(callCtx, bbox, e.cfg.LightingWindow)
		if err != nil {
			e.degraded("lighting", err)
			return nil
		}
		lighting = rows
		return nil
	})
	_ = g.Wait()

	return incidents, lighting
}

func (e *Engine) safePlaces(ctx context.Context, bbox geo.BoundingBox) []SafePlace {
	if e.poi == nil {
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	places, err := e.poi.NearbySafePlaces(callCtx, bbox)
	if err != nil {
		e.enrichmentFailed("poi", err)
		return nil
	}
	return places
}

func (e *Engine) suggestion(ctx context.Context, route RouteCandidate, a scoring.Assessment) string {
	if e.suggester == nil {
		return ""
	}
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	text, err := e.suggester.Suggest(callCtx, route, a)
	if err != nil {
		e.enrichmentFailed("suggestion", err)
		return ""
	}
	return text
}

func (e *Engine) degraded(source string, err error) {
	metrics.DegradedSources.WithLabelValues(component, source).Inc()
	e.log.Warn("upstream unavailable, using default", zap.String("source", source), zap.Error(err))
}

func (e *Engine) enrichmentFailed(provider string, err error) {
	metrics.EnrichmentFailures.WithLabelValues(provider).Inc()
	e.log.Warn("enrichment omitted", zap.String("provider", provider), zap.Error(err))
}
