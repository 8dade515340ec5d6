package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"safewalk-api/geo"
	"safewalk-api/ranking"
)

// OSRMClient asks an OSRM server for walking routes.
type OSRMClient struct {
	HTTPClient *http.Client
	BaseURL    string
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
		Legs []struct {
			Summary string `json:"summary"`
		} `json:"legs"`
	} `json:"routes"`
}

func NewOSRMClient(baseURL string) *OSRMClient {
	return &OSRMClient{
		HTTPClient: newHTTPClient(),
		BaseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// ComputeRoutes returns the primary route plus any alternatives the server
// offers. An OSRM "NoRoute" answer is an empty result, not an error.
func (c *OSRMClient) ComputeRoutes(ctx context.Context, origin, destination geo.Point, opts ranking.RoutingOptions) ([]ranking.RouteCandidate, error) {
	profile := opts.Profile
	if profile == "" {
		profile = "foot"
	}

	q := url.Values{}
	q.Set("overview", "full")
	q.Set("geometries", "geojson")
	if opts.Alternatives > 1 {
		q.Set("alternatives", fmt.Sprint(opts.Alternatives-1))
	} else {
		q.Set("alternatives", "false")
	}

	u := fmt.Sprintf("%s/route/v1/%s/%f,%f;%f,%f?%s",
		c.BaseURL, profile, origin.Lon, origin.Lat, destination.Lon, destination.Lat, q.Encode())

	var body osrmResponse
	if err := getJSON(ctx, c.HTTPClient, u, "routing", &body); err != nil {
		return nil, err
	}

	switch body.Code {
	case "Ok":
	case "NoRoute":
		return []ranking.RouteCandidate{}, nil
	default:
		return nil, fmt.Errorf("routing returned %s: %s", body.Code, body.Message)
	}

	out := make([]ranking.RouteCandidate, 0, len(body.Routes))
	for _, r := range body.Routes {
		points := make([]geo.Point, 0, len(r.Geometry.Coordinates))
		for _, coord := range r.Geometry.Coordinates {
			points = append(points, geo.Point{Lat: coord[1], Lon: coord[0]})
		}
		var summary []string
		for _, leg := range r.Legs {
			if leg.Summary != "" {
				summary = append(summary, leg.Summary)
			}
		}
		out = append(out, ranking.RouteCandidate{
			Points:            points,
			DistanceMeters:    r.Distance,
			TravelTimeSeconds: r.Duration,
			Summary:           strings.Join(summary, "; "),
		})
	}
	return out, nil
}
