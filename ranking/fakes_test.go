package ranking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"safewalk-api/geo"
	"safewalk-api/models"
	"safewalk-api/scoring"
	"safewalk-api/signals"
)

var errUpstream = errors.New("upstream unavailable")

type fakeRouting struct {
	routes []RouteCandidate
	err    error
	calls  int
	mu     sync.Mutex
}

func (f *fakeRouting) ComputeRoutes(ctx context.Context, origin, destination geo.Point, opts RoutingOptions) ([]RouteCandidate, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]RouteCandidate, len(f.routes))
	copy(out, f.routes)
	return out, nil
}

type fakeTraffic struct {
	signal signals.Option[signals.TrafficSignal]
	err    error
	block  bool
}

func (f *fakeTraffic) Flow(ctx context.Context, bbox geo.BoundingBox) (signals.Option[signals.TrafficSignal], error) {
	if f.block {
		<-ctx.Done()
		return signals.None[signals.TrafficSignal](), ctx.Err()
	}
	return f.signal, f.err
}

type fakeWeather struct {
	signal signals.Option[signals.WeatherSignal]
	err    error
}

func (f *fakeWeather) Weather(ctx context.Context, p geo.Point) (signals.Option[signals.WeatherSignal], error) {
	return f.signal, f.err
}

// fakeSignals answers queries from in-memory reports filtered by bbox.
type fakeSignals struct {
	incidents   []models.IncidentRecord
	lighting    []models.LightingReport
	incidentErr error
	lightingErr error

	// barrier, when set, holds every incident query until expected queries
	// are in flight at once.
	barrier  chan struct{}
	expected int
	inFlight int
	mu       sync.Mutex
}

func (f *fakeSignals) QueryIncidents(ctx context.Context, bbox geo.BoundingBox, since time.Duration) ([]models.IncidentRecord, error) {
	if f.barrier != nil {
		f.mu.Lock()
		f.inFlight++
		if f.inFlight == f.expected {
			close(f.barrier)
		}
		f.mu.Unlock()

		select {
		case <-f.barrier:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.incidentErr != nil {
		return nil, f.incidentErr
	}
	var out []models.IncidentRecord
	for _, inc := range f.incidents {
		if bbox.Contains(geo.Point{Lat: inc.Lat, Lon: inc.Lon}) {
			out = append(out, inc)
		}
	}
	return out, nil
}

func (f *fakeSignals) QueryLighting(ctx context.Context, bbox geo.BoundingBox, since time.Duration) ([]models.LightingReport, error) {
	if f.lightingErr != nil {
		return nil, f.lightingErr
	}
	var out []models.LightingReport
	for _, r := range f.lighting {
		if bbox.Contains(geo.Point{Lat: r.Lat, Lon: r.Lon}) {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakePOI struct {
	places []SafePlace
	err    error
}

func (f *fakePOI) NearbySafePlaces(ctx context.Context, bbox geo.BoundingBox) ([]SafePlace, error) {
	return f.places, f.err
}

type fakeSuggester struct {
	err error
}

func (f *fakeSuggester) Suggest(ctx context.Context, route RouteCandidate, a scoring.Assessment) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "stay on lit streets", nil
}

func dangerousAt(p geo.Point) models.IncidentRecord {
	return models.IncidentRecord{
		ID:       uuid.New(),
		Lat:      p.Lat,
		Lon:      p.Lon,
		Severity: models.SeverityDangerous,
		Status:   models.IncidentActive,
	}
}

// straight builds a short north-south route starting at lat,lon.
func straight(lat, lon float64, travel float64) RouteCandidate {
	return RouteCandidate{
		Points:            []geo.Point{{Lat: lat, Lon: lon}, {Lat: lat + 0.002, Lon: lon}, {Lat: lat + 0.004, Lon: lon}},
		DistanceMeters:    450,
		TravelTimeSeconds: travel,
	}
}
