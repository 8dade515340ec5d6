package ranking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"safewalk-api/geo"
	"safewalk-api/models"
	"safewalk-api/scoring"
	"safewalk-api/signals"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnknownPreference = errors.New("unknown preference")
	ErrNoRoutes          = errors.New("no routes found")
)

type Preference string

const (
	PreferSafest   Preference = "safest"
	PreferFastest  Preference = "fastest"
	PreferBalanced Preference = "balanced"
)

func ParsePreference(s string) (Preference, error) {
	switch p := Preference(strings.ToLower(strings.TrimSpace(s))); p {
	case PreferSafest, PreferFastest, PreferBalanced:
		return p, nil
	}
	return "", fmt.Errorf("%w: %w %q", ErrInvalidInput, ErrUnknownPreference, s)
}

// RouteCandidate is one path returned by the routing provider.
type RouteCandidate struct {
	Points            []geo.Point `json:"points"`
	DistanceMeters    float64     `json:"distance_meters"`
	TravelTimeSeconds float64     `json:"travel_time_seconds"`
	Summary           string      `json:"summary,omitempty"`
}

type RoutingOptions struct {
	Alternatives int
	Profile      string
}

type SafePlace struct {
	Name     string    `json:"name"`
	Category string    `json:"category"`
	Location geo.Point `json:"location"`
}

type RankedRoute struct {
	Rank          int                `json:"rank"`
	Route         RouteCandidate     `json:"route"`
	Assessment    scoring.Assessment `json:"assessment"`
	BalancedScore float64            `json:"balanced_score"`
	SafePlaces    []SafePlace        `json:"safe_places,omitempty"`
	Suggestion    string             `json:"suggestion,omitempty"`
}

type RoutingProvider interface {
	ComputeRoutes(ctx context.Context, origin, destination geo.Point, opts RoutingOptions) ([]RouteCandidate, error)
}

type TrafficProvider interface {
	Flow(ctx context.Context, bbox geo.BoundingBox) (signals.Option[signals.TrafficSignal], error)
}

type WeatherProvider interface {
	Weather(ctx context.Context, p geo.Point) (signals.Option[signals.WeatherSignal], error)
}

type SignalRepository interface {
	QueryIncidents(ctx context.Context, bbox geo.BoundingBox, since time.Duration) ([]models.IncidentRecord, error)
	QueryLighting(ctx context.Context, bbox geo.BoundingBox, since time.Duration) ([]models.LightingReport, error)
}

// POIProvider and SuggestionProvider are optional enrichment. Their failures
// never touch the assessment.
type POIProvider interface {
	NearbySafePlaces(ctx context.Context, bbox geo.BoundingBox) ([]SafePlace, error)
}

type SuggestionProvider interface {
	Suggest(ctx context.Context, route RouteCandidate, assessment scoring.Assessment) (string, error)
}
