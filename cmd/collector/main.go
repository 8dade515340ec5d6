package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"safewalk-api/config"
	"safewalk-api/geo"
	"safewalk-api/observability"
	"safewalk-api/services"
)

const (
	kindTraffic  = "traffic"
	kindLighting = "lighting"
)

// TrafficPayload is one reading from a roadside speed sensor.
type TrafficPayload struct {
	TS          string  `json:"ts"`
	SensorID    string  `json:"sensor_id"`
	RoadID      string  `json:"road_id"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	SpeedKMH    float64 `json:"speed_kmh"`
	FreeFlowKMH float64 `json:"free_flow_kmh"`
	FlowRate    float64 `json:"flow_rate"`
	Occupancy   float64 `json:"occupancy"`
}

// LightingPayload is one reading from a street-light lux meter.
type LightingPayload struct {
	TS       string   `json:"ts"`
	SensorID string   `json:"sensor_id"`
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	Lux      *float64 `json:"lux"`
}

var (
	msgsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safewalk_collector_messages_received_total",
		Help: "Total number of MQTT messages received by collector.",
	}, []string{"kind"})
	msgsStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safewalk_collector_messages_stored_total",
		Help: "Total number of messages successfully inserted into the database.",
	}, []string{"kind"})
	msgsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safewalk_collector_messages_failed_total",
		Help: "Total number of messages rejected or failed to store.",
	}, []string{"kind"})
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type publisher interface {
	Publish(ctx context.Context, channel string, message any) error
}

type collector struct {
	db  execer
	pub publisher
	log *zap.Logger
	now func() time.Time
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	observability.InitializeLogger(cfg.Log)
	defer observability.Sync()
	log := observability.GetLogger()

	dbPool, err := pgxpool.New(ctx, cfg.Database.URL())
	if err != nil {
		log.Fatal("db pool init failed", zap.Error(err))
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal("db ping failed", zap.Error(err))
	}

	// live republishing is best effort
	cache, err := services.NewCacheService(cfg.Redis, log)
	if err != nil {
		log.Warn("redis unavailable, skipping live republish", zap.Error(err))
	}
	defer cache.Close()

	go serveHTTP(cfg.Server.MetricsAddr, log)

	c := &collector{db: dbPool, pub: cache, log: log, now: time.Now}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.URL)
	opts.SetClientID("collector-" + time.Now().Format("20060102150405"))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.OnConnect = func(client mqtt.Client) {
		subscribe(client, cfg.MQTT.TrafficTopic, log, func(payload []byte) { c.handleTraffic(ctx, payload) })
		subscribe(client, cfg.MQTT.LightingTopic, log, func(payload []byte) { c.handleLighting(ctx, payload) })
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		log.Warn("mqtt connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if token.Error() != nil {
		log.Fatal("mqtt connection failed", zap.Error(token.Error()))
	}

	log.Info("collector running", zap.String("mqtt", cfg.MQTT.URL), zap.String("metrics", cfg.Server.MetricsAddr))

	<-ctx.Done()
	log.Info("collector shutting down")
	client.Disconnect(250)
}

func subscribe(client mqtt.Client, topic string, log *zap.Logger, handle func([]byte)) {
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		handle(msg.Payload())
	})
	token.Wait()
	if token.Error() != nil {
		log.Error("mqtt subscribe error", zap.String("topic", topic), zap.Error(token.Error()))
		return
	}
	log.Info("collector subscribed", zap.String("topic", topic))
}

func serveHTTP(addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info("metrics server listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("metrics server failed", zap.Error(err))
	}
}

// readingTime uses the payload timestamp when it parses, else now.
func readingTime(ts string, now time.Time) time.Time {
	if ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			return parsed.UTC()
		}
	}
	return now.UTC()
}

func parseTraffic(raw []byte) (TrafficPayload, error) {
	var p TrafficPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("invalid payload: %w", err)
	}
	if p.SensorID == "" || p.RoadID == "" {
		return p, errors.New("missing sensor_id or road_id")
	}
	if !(geo.Point{Lat: p.Lat, Lon: p.Lon}).Valid() {
		return p, fmt.Errorf("invalid location %f,%f", p.Lat, p.Lon)
	}
	if p.SpeedKMH < 0 || p.FreeFlowKMH < 0 {
		return p, errors.New("negative speed")
	}
	return p, nil
}

func parseLighting(raw []byte) (LightingPayload, error) {
	var p LightingPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("invalid payload: %w", err)
	}
	if p.SensorID == "" {
		return p, errors.New("missing sensor_id")
	}
	if !(geo.Point{Lat: p.Lat, Lon: p.Lon}).Valid() {
		return p, fmt.Errorf("invalid location %f,%f", p.Lat, p.Lon)
	}
	if p.Lux != nil && *p.Lux < 0 {
		return p, errors.New("negative lux")
	}
	return p, nil
}

func (c *collector) handleTraffic(ctx context.Context, raw []byte) {
	msgsReceived.WithLabelValues(kindTraffic).Inc()

	p, err := parseTraffic(raw)
	if err != nil {
		c.reject(kindTraffic, err)
		return
	}
	ts := readingTime(p.TS, c.now())

	_, err = c.db.Exec(ctx, `
		INSERT INTO traffic_raw (ts, sensor_id, road_id, lat, lon, speed_kmh, free_flow_kmh, flow_rate, occupancy)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (ts, sensor_id) DO NOTHING
	`, ts, p.SensorID, p.RoadID, p.Lat, p.Lon, p.SpeedKMH, p.FreeFlowKMH, p.FlowRate, p.Occupancy)
	if err != nil {
		c.reject(kindTraffic, fmt.Errorf("db insert failed: %w", err))
		return
	}
	msgsStored.WithLabelValues(kindTraffic).Inc()

	p.TS = ts.Format(time.RFC3339)
	c.republish(ctx, kindTraffic, p)
}

func (c *collector) handleLighting(ctx context.Context, raw []byte) {
	msgsReceived.WithLabelValues(kindLighting).Inc()

	p, err := parseLighting(raw)
	if err != nil {
		c.reject(kindLighting, err)
		return
	}
	ts := readingTime(p.TS, c.now())

	_, err = c.db.Exec(ctx, `
		INSERT INTO lighting_reports (id, lat, lon, lux_estimate, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New(), p.Lat, p.Lon, p.Lux, "sensor:"+p.SensorID, ts)
	if err != nil {
		c.reject(kindLighting, fmt.Errorf("db insert failed: %w", err))
		return
	}
	msgsStored.WithLabelValues(kindLighting).Inc()

	p.TS = ts.Format(time.RFC3339)
	c.republish(ctx, kindLighting, p)
}

func (c *collector) reject(kind string, err error) {
	msgsFailed.WithLabelValues(kind).Inc()
	c.log.Warn("message rejected", zap.String("kind", kind), zap.Error(err))
}

func (c *collector) republish(ctx context.Context, kind string, reading any) {
	msg := map[string]any{"type": kind, "data": reading}
	if err := c.pub.Publish(ctx, services.LiveChannel, msg); err != nil {
		c.log.Debug("live republish failed", zap.String("kind", kind), zap.Error(err))
	}
}
