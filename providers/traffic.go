package providers

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"safewalk-api/geo"
	"safewalk-api/signals"
)

const (
	maxSpeed = 90.0
	maxFlow  = 120.0

	defaultLiveWindow = 15 * time.Minute
)

// Querier is the subset of pgxpool.Pool the sensor store reads through.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SensorTrafficStore answers flow and congestion questions from the raw
// sensor readings the collector writes to traffic_raw.
type SensorTrafficStore struct {
	db     Querier
	window time.Duration
	now    func() time.Time
}

func NewSensorTrafficStore(db Querier, window time.Duration) *SensorTrafficStore {
	if window <= 0 {
		window = defaultLiveWindow
	}
	return &SensorTrafficStore{db: db, window: window, now: time.Now}
}

// Flow averages recent readings inside bbox. A reading without a free-flow
// speed still reports its current speed.
func (s *SensorTrafficStore) Flow(ctx context.Context, bbox geo.BoundingBox) (signals.Option[signals.TrafficSignal], error) {
	var (
		speed, freeFlow float64
		samples         int64
	)
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(AVG(speed_kmh), 0), COALESCE(AVG(NULLIF(free_flow_kmh, 0)), 0), COUNT(*)
		FROM traffic_raw
		WHERE ts >= $1
		  AND lat BETWEEN $2 AND $3
		  AND lon BETWEEN $4 AND $5
	`, s.since(), bbox.MinLat, bbox.MaxLat, bbox.MinLon, bbox.MaxLon).Scan(&speed, &freeFlow, &samples)
	if err != nil {
		return signals.None[signals.TrafficSignal](), fmt.Errorf("query traffic flow: %w", err)
	}
	if samples == 0 {
		return signals.None[signals.TrafficSignal](), nil
	}
	return signals.Some(signals.TrafficSignal{CurrentSpeed: speed, FreeFlowSpeed: freeFlow}), nil
}

// CongestionIndex returns a 0-1 congestion estimate for bbox.
func (s *SensorTrafficStore) CongestionIndex(ctx context.Context, bbox geo.BoundingBox) (float64, bool, error) {
	var (
		avgSpeed, avgOccupancy, avgFlow float64
		samples                         int64
	)
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(AVG(speed_kmh), 0), COALESCE(AVG(occupancy), 0), COALESCE(AVG(flow_rate), 0), COUNT(*)
		FROM traffic_raw
		WHERE ts >= $1
		  AND lat BETWEEN $2 AND $3
		  AND lon BETWEEN $4 AND $5
	`, s.since(), bbox.MinLat, bbox.MaxLat, bbox.MinLon, bbox.MaxLon).Scan(&avgSpeed, &avgOccupancy, &avgFlow, &samples)
	if err != nil {
		return 0, false, fmt.Errorf("query congestion: %w", err)
	}
	if samples == 0 {
		return 0, false, nil
	}
	return ComputeCongestionScore(avgSpeed, avgOccupancy, avgFlow), true, nil
}

func (s *SensorTrafficStore) since() time.Time {
	return s.now().UTC().Add(-s.window)
}

// ComputeCongestionScore blends slowness, occupancy and flow into [0,1].
func ComputeCongestionScore(avgSpeed, avgOccupancy, avgFlow float64) float64 {
	speedScore := 1.0 - (avgSpeed / maxSpeed)
	occupancyScore := avgOccupancy
	flowScore := avgFlow / maxFlow

	score := 0.4*speedScore + 0.4*occupancyScore + 0.2*flowScore

	return math.Max(0.0, math.Min(1.0, score))
}
