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

const defaultPlacesLimit = 20

// OverpassClient finds places a walker can step into for help: police,
// hospitals, pharmacies and fire stations mapped in OpenStreetMap.
type OverpassClient struct {
	HTTPClient *http.Client
	BaseURL    string
	Limit      int
}

type overpassResponse struct {
	Elements []struct {
		Lat  float64           `json:"lat"`
		Lon  float64           `json:"lon"`
		Tags map[string]string `json:"tags"`
	} `json:"elements"`
}

func NewOverpassClient(baseURL string) *OverpassClient {
	return &OverpassClient{
		HTTPClient: newHTTPClient(),
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Limit:      defaultPlacesLimit,
	}
}

func overpassQuery(bbox geo.BoundingBox, limit int) string {
	return fmt.Sprintf(
		`[out:json][timeout:5];node["amenity"~"^(police|hospital|pharmacy|fire_station)$"](%f,%f,%f,%f);out %d;`,
		bbox.MinLat, bbox.MinLon, bbox.MaxLat, bbox.MaxLon, limit,
	)
}

func (c *OverpassClient) NearbySafePlaces(ctx context.Context, bbox geo.BoundingBox) ([]ranking.SafePlace, error) {
	form := url.Values{}
	form.Set("data", overpassQuery(bbox, c.Limit))

	req, err := http.NewRequest(http.MethodPost, c.BaseURL+"/api/interpreter", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create places request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var body overpassResponse
	if err := doJSON(ctx, c.HTTPClient, req, "places", &body); err != nil {
		return nil, err
	}

	places := make([]ranking.SafePlace, 0, len(body.Elements))
	for _, el := range body.Elements {
		name := el.Tags["name"]
		if name == "" {
			name = strings.ReplaceAll(el.Tags["amenity"], "_", " ")
		}
		places = append(places, ranking.SafePlace{
			Name:     name,
			Category: el.Tags["amenity"],
			Location: geo.Point{Lat: el.Lat, Lon: el.Lon},
		})
	}
	return places, nil
}
