package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"safewalk-api/forecast"
	"safewalk-api/geo"
	"safewalk-api/models"
	"safewalk-api/services"
)

var asOf = time.Date(2025, 6, 15, 21, 45, 0, 0, time.UTC)

type fakeZones struct {
	zones []models.WatchZone
	err   error
}

func (f fakeZones) ListZones(ctx context.Context) ([]models.WatchZone, error) {
	return f.zones, f.err
}

// fakeForecaster answers by the latitude of the first point.
type fakeForecaster struct {
	byLat map[float64]forecast.RiskForecast
}

func (f fakeForecaster) ForecastRisk(ctx context.Context, points []geo.Point, at time.Time) forecast.RiskForecast {
	if fc, ok := f.byLat[points[0].Lat]; ok {
		fc.PredictionTimestamp = at
		return fc
	}
	return forecast.Sentinel(at, "no data: test")
}

type fakeDB struct {
	mu       sync.Mutex
	sqls     []string
	failWith string
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sqls = append(f.sqls, sql)
	if f.failWith != "" && strings.Contains(sql, f.failWith) {
		return pgconn.CommandTag{}, errors.New("insert failed")
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) count(table string) int {
	n := 0
	for _, s := range f.sqls {
		if strings.Contains(s, "INSERT INTO "+table) {
			n++
		}
	}
	return n
}

type fakePublisher struct {
	mu       sync.Mutex
	channels map[string]int
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.channels == nil {
		f.channels = map[string]int{}
	}
	f.channels[channel]++
	return nil
}

func newTestWorker(zones zoneLister, fc riskForecaster, db *fakeDB, pub *fakePublisher) *worker {
	return &worker{
		zones:        zones,
		forecaster:   fc,
		db:           db,
		pub:          pub,
		threshold:    50,
		modelVersion: "hourly-risk-v1",
		log:          zap.NewNop(),
		now:          func() time.Time { return asOf },
	}
}

func testZones() []models.WatchZone {
	return []models.WatchZone{
		{ZoneID: "z-quiet", Label: "Canal", Lat: 48.87, Lng: 2.36},
		{ZoneID: "z-risky", Label: "Station", Lat: 48.88, Lng: 2.35},
		{ZoneID: "z-empty", Lat: 48.89, Lng: 2.34},
	}
}

func testForecasts() fakeForecaster {
	peak := 22
	return fakeForecaster{byLat: map[float64]forecast.RiskForecast{
		48.87: {Now: 100, In30Min: 96, After22: 88},
		48.88: {Now: 100, In30Min: 30, After22: 18, Signals: forecast.Snapshot{PeakHour: &peak}},
	}}
}

func TestBuildAdvisory(t *testing.T) {
	zone := models.WatchZone{ZoneID: "z1", Label: "Gare du Nord"}
	peak := 23

	tests := []struct {
		name string
		fc   forecast.RiskForecast
		want bool
	}{
		{"below threshold", forecast.RiskForecast{After22: 42}, true},
		{"at threshold", forecast.RiskForecast{After22: 50}, false},
		{"above threshold", forecast.RiskForecast{After22: 77}, false},
		{"no data never alerts", forecast.RiskForecast{After22: 10, NoData: true}, false},
		{"with peak hour", forecast.RiskForecast{After22: 18, Signals: forecast.Snapshot{PeakHour: &peak}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adv, ok := buildAdvisory(zone, tt.fc, 50)
			if ok != tt.want {
				t.Fatalf("buildAdvisory() ok = %v, want %v", ok, tt.want)
			}
			if !ok {
				return
			}
			if adv.ZoneID != "z1" || adv.Threshold != 50 || adv.ScoreAfter22 != tt.fc.After22 {
				t.Errorf("unexpected advisory: %+v", adv)
			}
			if !strings.Contains(adv.Reason, "Gare du Nord") {
				t.Errorf("reason should name the zone, got %q", adv.Reason)
			}
		})
	}
}

func TestBuildAdvisoryPeakHour(t *testing.T) {
	peak := 3
	adv, ok := buildAdvisory(models.WatchZone{ZoneID: "z9"}, forecast.RiskForecast{After22: 5, Signals: forecast.Snapshot{PeakHour: &peak}}, 50)
	if !ok {
		t.Fatal("expected advisory")
	}
	if !strings.Contains(adv.Reason, "z9") || !strings.Contains(adv.Reason, "03:00") {
		t.Errorf("reason = %q", adv.Reason)
	}
	if adv.PeakHour == nil || *adv.PeakHour != 3 {
		t.Errorf("PeakHour = %v, want 3", adv.PeakHour)
	}
}

func TestToRecord(t *testing.T) {
	fc := forecast.Sentinel(asOf, "no data: nothing nearby")
	rec := toRecord(models.WatchZone{ZoneID: "z1"}, fc, "v2")

	if !rec.NoData || rec.ScoreNow != forecast.SentinelScore || rec.ScoreAfter22 != forecast.SentinelScore {
		t.Errorf("sentinel forecast should be stored as no-data 85s, got %+v", rec)
	}
	if !rec.TS.Equal(asOf) || rec.ModelVersion != "v2" {
		t.Errorf("unexpected record metadata: %+v", rec)
	}
}

func TestRunCycle(t *testing.T) {
	db := &fakeDB{}
	pub := &fakePublisher{}
	w := newTestWorker(fakeZones{zones: testZones()}, testForecasts(), db, pub)

	got := w.runCycle(context.Background())

	want := cycleResult{Zones: 3, Stored: 3, Advisories: 1}
	if got != want {
		t.Errorf("runCycle() = %+v, want %+v", got, want)
	}
	if n := db.count("risk_forecasts"); n != 3 {
		t.Errorf("forecast inserts = %d, want 3", n)
	}
	if n := db.count("risk_advisories"); n != 1 {
		t.Errorf("advisory inserts = %d, want 1", n)
	}
	if pub.channels[services.ForecastsChannel] != 3 || pub.channels[services.AdvisoriesChannel] != 1 {
		t.Errorf("published = %v", pub.channels)
	}
}

func TestRunCycleZoneLoadFailure(t *testing.T) {
	db := &fakeDB{}
	w := newTestWorker(fakeZones{err: errors.New("relation does not exist")}, testForecasts(), db, &fakePublisher{})

	if got := w.runCycle(context.Background()); got != (cycleResult{}) {
		t.Errorf("runCycle() = %+v, want empty result", got)
	}
	if len(db.sqls) != 0 {
		t.Errorf("no inserts expected, got %d", len(db.sqls))
	}
}

func TestRunCycleStoreFailureSkipsAdvisory(t *testing.T) {
	db := &fakeDB{failWith: "risk_forecasts"}
	pub := &fakePublisher{}
	w := newTestWorker(fakeZones{zones: testZones()}, testForecasts(), db, pub)

	got := w.runCycle(context.Background())

	if got.Stored != 0 || got.Advisories != 0 {
		t.Errorf("runCycle() = %+v, want nothing stored", got)
	}
	if len(pub.channels) != 0 {
		t.Errorf("nothing should be published, got %v", pub.channels)
	}
}

func TestRunCycleWritesThroughPool(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	peak := 22
	mockPool.ExpectExec(`INSERT INTO risk_forecasts`).
		WithArgs(asOf, "z-risky", 100, 30, 18, false, pgxmock.AnyArg(), "hourly-risk-v1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockPool.ExpectExec(`INSERT INTO risk_advisories`).
		WithArgs(asOf, "z-risky", pgxmock.AnyArg(), 18, 50, &peak).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	w := newTestWorker(fakeZones{zones: testZones()[1:2]}, testForecasts(), nil, &fakePublisher{})
	w.db = mockPool

	got := w.runCycle(context.Background())

	assert.Equal(t, cycleResult{Zones: 1, Stored: 1, Advisories: 1}, got)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
