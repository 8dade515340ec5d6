package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safewalk-api/geo"
	"safewalk-api/ranking"
	"safewalk-api/scoring"
)

var (
	origin      = geo.Point{Lat: 48.8566, Lon: 2.3522}
	destination = geo.Point{Lat: 48.8606, Lon: 2.3376}
	box         = geo.BoundingBox{MinLat: 48.85, MaxLat: 48.87, MinLon: 2.33, MaxLon: 2.36}
)

func TestOSRMComputeRoutes(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":"Ok","routes":[
			{"distance":1450.2,"duration":1040,"geometry":{"coordinates":[[2.3522,48.8566],[2.3450,48.8590],[2.3376,48.8606]]},"legs":[{"summary":"Rue de Rivoli"}]},
			{"distance":1600,"duration":1180,"geometry":{"coordinates":[[2.3522,48.8566],[2.3376,48.8606]]},"legs":[{"summary":""}]}
		]}`))
	}))
	defer srv.Close()

	c := NewOSRMClient(srv.URL + "/")
	routes, err := c.ComputeRoutes(context.Background(), origin, destination, ranking.RoutingOptions{Alternatives: 3})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(gotPath, "/route/v1/foot/2.352200,48.856600;2.337600,48.860600"), gotPath)
	assert.Contains(t, gotQuery, "alternatives=2")
	assert.Contains(t, gotQuery, "geometries=geojson")

	require.Len(t, routes, 2)
	assert.Equal(t, 1450.2, routes[0].DistanceMeters)
	assert.Equal(t, 1040.0, routes[0].TravelTimeSeconds)
	assert.Equal(t, "Rue de Rivoli", routes[0].Summary)
	assert.Equal(t, geo.Point{Lat: 48.8590, Lon: 2.3450}, routes[0].Points[1])
	assert.Empty(t, routes[1].Summary)
}

func TestOSRMNoRouteIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"NoRoute","message":"Impossible route","routes":[]}`))
	}))
	defer srv.Close()

	routes, err := NewOSRMClient(srv.URL).ComputeRoutes(context.Background(), origin, destination, ranking.RoutingOptions{})
	require.NoError(t, err)
	assert.Empty(t, routes)
}

func TestOSRMErrors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := NewOSRMClient(srv.URL).ComputeRoutes(context.Background(), origin, destination, ranking.RoutingOptions{})
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
	})

	t.Run("invalid query", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"code":"InvalidQuery","message":"Query string malformed"}`))
		}))
		defer srv.Close()

		_, err := NewOSRMClient(srv.URL).ComputeRoutes(context.Background(), origin, destination, ranking.RoutingOptions{})
		assert.ErrorContains(t, err, "InvalidQuery")
	})

	t.Run("context deadline", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := NewOSRMClient(srv.URL).ComputeRoutes(ctx, origin, destination, ranking.RoutingOptions{})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestOpenWeather(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		assert.Equal(t, "/data/2.5/forecast", r.URL.Path)
		_, _ = w.Write([]byte(`{"list":[{"weather":[{"id":501}],"main":{"temp":7.5},"wind":{"speed":13.2},"pop":0.65}]}`))
	}))
	defer srv.Close()

	got, err := NewOpenWeatherClient(srv.URL, "k3y").Weather(context.Background(), origin)
	require.NoError(t, err)

	w, ok := got.Get()
	require.True(t, ok)
	assert.Equal(t, 501, w.ConditionCode)
	assert.Equal(t, 7.5, w.Temperature)
	assert.Equal(t, 0.65, w.PrecipitationProbability)
	assert.Equal(t, 13.2, w.WindSpeed)
	assert.Contains(t, gotQuery, "appid=k3y")
	assert.Contains(t, gotQuery, "cnt=1")
	assert.Contains(t, gotQuery, "units=metric")
}

func TestOpenWeatherNoData(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"list":[]}`))
	}))
	defer srv.Close()

	got, err := NewOpenWeatherClient(srv.URL, "").Weather(context.Background(), origin)
	require.NoError(t, err)
	assert.False(t, got.Valid())
	assert.Zero(t, calls, "no key means no request")

	got, err = NewOpenWeatherClient(srv.URL, "k3y").Weather(context.Background(), origin)
	require.NoError(t, err)
	assert.False(t, got.Valid())
}

func TestOverpassNearbySafePlaces(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		query = r.PostForm.Get("data")
		_, _ = w.Write([]byte(`{"elements":[
			{"lat":48.857,"lon":2.35,"tags":{"amenity":"police","name":"Commissariat 4e"}},
			{"lat":48.858,"lon":2.34,"tags":{"amenity":"fire_station"}}
		]}`))
	}))
	defer srv.Close()

	places, err := NewOverpassClient(srv.URL).NearbySafePlaces(context.Background(), box)
	require.NoError(t, err)

	assert.Contains(t, query, "(48.850000,2.330000,48.870000,2.360000)")
	assert.Contains(t, query, "out 20;")
	require.Len(t, places, 2)
	assert.Equal(t, ranking.SafePlace{Name: "Commissariat 4e", Category: "police", Location: geo.Point{Lat: 48.857, Lon: 2.35}}, places[0])
	assert.Equal(t, "fire station", places[1].Name)
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *float64:
			*p = r.values[i].(float64)
		case *int64:
			*p = r.values[i].(int64)
		}
	}
	return nil
}

type fakeQuerier struct {
	row  fakeRow
	args []any
}

func (q *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	q.args = args
	return q.row
}

func TestSensorTrafficFlow(t *testing.T) {
	q := &fakeQuerier{row: fakeRow{values: []any{22.5, 45.0, int64(12)}}}
	store := NewSensorTrafficStore(q, 0)
	fixed := time.Date(2025, 3, 14, 14, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	got, err := store.Flow(context.Background(), box)
	require.NoError(t, err)

	flow, ok := got.Get()
	require.True(t, ok)
	assert.Equal(t, 22.5, flow.CurrentSpeed)
	assert.Equal(t, 45.0, flow.FreeFlowSpeed)
	assert.Equal(t, []any{fixed.Add(-15 * time.Minute), 48.85, 48.87, 2.33, 2.36}, q.args)
}

func TestSensorTrafficNoReadings(t *testing.T) {
	q := &fakeQuerier{row: fakeRow{values: []any{0.0, 0.0, 0.0, int64(0)}}}
	store := NewSensorTrafficStore(q, time.Minute)

	_, ok, err := store.CongestionIndex(context.Background(), box)
	require.NoError(t, err)
	assert.False(t, ok)

	q.row = fakeRow{values: []any{0.0, 0.0, int64(0)}}
	flow, err := store.Flow(context.Background(), box)
	require.NoError(t, err)
	assert.False(t, flow.Valid())
}

func TestSensorTrafficQueryError(t *testing.T) {
	boom := errors.New("connection reset")
	store := NewSensorTrafficStore(&fakeQuerier{row: fakeRow{err: boom}}, 0)

	_, err := store.Flow(context.Background(), box)
	assert.ErrorIs(t, err, boom)

	_, _, err = store.CongestionIndex(context.Background(), box)
	assert.ErrorIs(t, err, boom)
}

func TestSensorTrafficCongestionIndex(t *testing.T) {
	q := &fakeQuerier{row: fakeRow{values: []any{45.0, 0.5, 60.0, int64(30)}}}

	got, ok, err := NewSensorTrafficStore(q, 0).CongestionIndex(context.Background(), box)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.5, got, 0.001)
}

func TestComputeCongestionScore(t *testing.T) {
	tests := []struct {
		name    string
		speed   float64
		occ     float64
		flow    float64
		wantMin float64
		wantMax float64
	}{
		{"free flow", 80.0, 0.1, 20.0, 0.0, 0.15},
		{"heavy congestion", 10.0, 0.9, 100.0, 0.85, 1.0},
		{"moderate", 45.0, 0.5, 60.0, 0.3, 0.6},
		{"zero values", 0.0, 0.0, 0.0, 0.4, 0.4},
		{"max speed", maxSpeed, 0.0, 0.0, 0.0, 0.01},
		{"clamped high", 0, 1.5, 200.0, 1.0, 1.0},
		{"clamped low", 200, 0, 0, 0.0, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeCongestionScore(tt.speed, tt.occ, tt.flow)
			assert.GreaterOrEqual(t, got, tt.wantMin)
			assert.LessOrEqual(t, got, tt.wantMax)
		})
	}
}

func TestTemplateSuggester(t *testing.T) {
	route := ranking.RouteCandidate{DistanceMeters: 1400}

	good := scoring.Assessment{SafetyLevel: scoring.LevelExcellent}
	good.Components.Incident.Score = 100
	good.Components.Lighting.Score = 95
	good.Components.Walkability.Score = 90
	text, err := TemplateSuggester{}.Suggest(context.Background(), route, good)
	require.NoError(t, err)
	assert.Contains(t, text, "1.4 km")

	dark := good
	dark.Metadata.IsDarkHours = true
	dark.Components.Lighting.Score = 20
	text, err = TemplateSuggester{}.Suggest(context.Background(), route, dark)
	require.NoError(t, err)
	assert.Contains(t, text, "Poorly lit")

	risky := good
	risky.Components.Incident.Score = 50
	risky.Components.Incident.Count = 2
	text, err = TemplateSuggester{}.Suggest(context.Background(), route, risky)
	require.NoError(t, err)
	assert.Contains(t, text, "2 recent incident(s)")
}
