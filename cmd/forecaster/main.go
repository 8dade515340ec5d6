package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"safewalk-api/config"
	"safewalk-api/forecast"
	"safewalk-api/geo"
	"safewalk-api/models"
	"safewalk-api/observability"
	"safewalk-api/providers"
	"safewalk-api/repository"
	"safewalk-api/services"
)

const zoneConcurrency = 4

var (
	forecastsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "safewalk_forecaster_forecasts_stored_total",
		Help: "Total number of zone forecasts stored in DB.",
	})
	forecastsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "safewalk_forecaster_failures_total",
		Help: "Total number of zone forecast store or load failures.",
	})
	advisoriesRaised = promauto.NewCounter(prometheus.CounterOpts{
		Name: "safewalk_forecaster_advisories_raised_total",
		Help: "Total number of late-night advisories raised.",
	})
	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "safewalk_forecaster_cycle_duration_seconds",
		Help:    "Duration of a full forecast cycle.",
		Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
	})
)

type zoneLister interface {
	ListZones(ctx context.Context) ([]models.WatchZone, error)
}

type riskForecaster interface {
	ForecastRisk(ctx context.Context, points []geo.Point, asOf time.Time) forecast.RiskForecast
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type publisher interface {
	Publish(ctx context.Context, channel string, message any) error
}

type gormZones struct {
	db *gorm.DB
}

func (z gormZones) ListZones(ctx context.Context) ([]models.WatchZone, error) {
	var zones []models.WatchZone
	err := z.db.WithContext(ctx).Order("zone_id").Find(&zones).Error
	return zones, err
}

type worker struct {
	zones        zoneLister
	forecaster   riskForecaster
	db           execer
	pub          publisher
	threshold    int
	modelVersion string
	log          *zap.Logger
	now          func() time.Time
}

type cycleResult struct {
	Zones      int
	Stored     int
	Advisories int
}

type zoneOutcome struct {
	stored  bool
	advised bool
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

	loc, err := cfg.Scoring.Location()
	if err != nil {
		log.Fatal("invalid scoring timezone", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.GetDSN()), &gorm.Config{})
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}

	dbPool, err := pgxpool.New(ctx, cfg.Database.URL())
	if err != nil {
		log.Fatal("db pool init failed", zap.Error(err))
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal("db ping failed", zap.Error(err))
	}

	cache, err := services.NewCacheService(cfg.Redis, log)
	if err != nil {
		log.Warn("redis unavailable, forecasts will not be published", zap.Error(err))
	}
	defer cache.Close()

	go serveHTTP(cfg.Server.MetricsAddr, log)

	forecaster := forecast.NewForecaster(forecast.Config{
		SampleBufferKm: cfg.Forecast.SampleBufferKm,
		Lookback:       cfg.Forecast.Lookback,
		CallTimeout:    cfg.Providers.CallTimeout,
		Location:       loc,
	},
		repository.NewSignalRepository(db),
		providers.NewSensorTrafficStore(dbPool, 0),
		providers.NewOpenWeatherClient(cfg.Providers.WeatherURL, cfg.Providers.WeatherAPIKey),
		forecast.WithLogger(log),
	)

	w := &worker{
		zones:        gormZones{db: db},
		forecaster:   forecaster,
		db:           dbPool,
		pub:          cache,
		threshold:    cfg.Forecast.AlertThreshold,
		modelVersion: cfg.Forecast.ModelVersion,
		log:          log,
		now:          time.Now,
	}

	log.Info("forecaster running",
		zap.Duration("interval", cfg.Forecast.Interval),
		zap.Int("threshold", cfg.Forecast.AlertThreshold),
		zap.String("model", cfg.Forecast.ModelVersion),
	)

	// first cycle runs immediately
	w.runCycle(ctx)

	ticker := time.NewTicker(cfg.Forecast.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.runCycle(ctx)
		case <-ctx.Done():
			log.Info("forecaster shutting down")
			return
		}
	}
}

func (w *worker) runCycle(ctx context.Context) cycleResult {
	start := time.Now()
	defer func() {
		cycleDuration.Observe(time.Since(start).Seconds())
	}()

	asOf := w.now().UTC().Truncate(time.Second)

	zones, err := w.zones.ListZones(ctx)
	if err != nil {
		forecastsFailed.Inc()
		w.log.Error("load watch zones failed", zap.Error(err))
		return cycleResult{}
	}
	if len(zones) == 0 {
		w.log.Info("no watch zones configured, skipping")
		return cycleResult{}
	}

	outcomes := make([]zoneOutcome, len(zones))
	var g errgroup.Group
	g.SetLimit(zoneConcurrency)
	for i, zone := range zones {
		i, zone := i, zone
		g.Go(func() error {
			outcomes[i] = w.forecastZone(ctx, zone, asOf)
			return nil
		})
	}
	_ = g.Wait()

	result := cycleResult{Zones: len(zones)}
	for _, o := range outcomes {
		if o.stored {
			result.Stored++
		}
		if o.advised {
			result.Advisories++
		}
	}

	w.log.Info("forecast cycle completed",
		zap.Int("zones", result.Zones),
		zap.Int("stored", result.Stored),
		zap.Int("advisories", result.Advisories),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result
}

func (w *worker) forecastZone(ctx context.Context, zone models.WatchZone, asOf time.Time) zoneOutcome {
	var out zoneOutcome

	fc := w.forecaster.ForecastRisk(ctx, []geo.Point{{Lat: zone.Lat, Lon: zone.Lng}}, asOf)
	record := toRecord(zone, fc, w.modelVersion)

	_, err := w.db.Exec(ctx, `
		INSERT INTO risk_forecasts (ts, zone_id, score_now, score_in_30, score_after_22, no_data, explanation, model_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (ts, zone_id) DO UPDATE SET
			score_now = EXCLUDED.score_now,
			score_in_30 = EXCLUDED.score_in_30,
			score_after_22 = EXCLUDED.score_after_22,
			no_data = EXCLUDED.no_data,
			explanation = EXCLUDED.explanation,
			model_version = EXCLUDED.model_version
	`, record.TS, record.ZoneID, record.ScoreNow, record.ScoreIn30, record.ScoreAfter22, record.NoData, record.Explanation, record.ModelVersion)
	if err != nil {
		forecastsFailed.Inc()
		w.log.Error("store forecast failed", zap.String("zone_id", zone.ZoneID), zap.Error(err))
		return out
	}
	forecastsStored.Inc()
	out.stored = true

	if err := w.pub.Publish(ctx, services.ForecastsChannel, record); err != nil {
		w.log.Warn("publish forecast failed", zap.String("zone_id", zone.ZoneID), zap.Error(err))
	}

	adv, ok := buildAdvisory(zone, fc, w.threshold)
	if !ok {
		return out
	}
	_, err = w.db.Exec(ctx, `
		INSERT INTO risk_advisories (ts, zone_id, reason, score_after_22, threshold, peak_hour)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ts, zone_id) DO NOTHING
	`, adv.TS, adv.ZoneID, adv.Reason, adv.ScoreAfter22, adv.Threshold, adv.PeakHour)
	if err != nil {
		forecastsFailed.Inc()
		w.log.Error("store advisory failed", zap.String("zone_id", zone.ZoneID), zap.Error(err))
		return out
	}
	advisoriesRaised.Inc()
	out.advised = true

	if err := w.pub.Publish(ctx, services.AdvisoriesChannel, adv); err != nil {
		w.log.Warn("publish advisory failed", zap.String("zone_id", zone.ZoneID), zap.Error(err))
	}
	return out
}

func toRecord(zone models.WatchZone, fc forecast.RiskForecast, modelVersion string) models.ForecastRecord {
	return models.ForecastRecord{
		TS:           fc.PredictionTimestamp,
		ZoneID:       zone.ZoneID,
		ScoreNow:     fc.Now,
		ScoreIn30:    fc.In30Min,
		ScoreAfter22: fc.After22,
		NoData:       fc.NoData,
		Explanation:  fc.Explanation,
		ModelVersion: modelVersion,
	}
}

// buildAdvisory raises an advisory when the late-night score falls below
// threshold. A no-data forecast never raises one.
func buildAdvisory(zone models.WatchZone, fc forecast.RiskForecast, threshold int) (models.Advisory, bool) {
	if fc.NoData || fc.After22 >= threshold {
		return models.Advisory{}, false
	}

	label := zone.Label
	if label == "" {
		label = zone.ZoneID
	}
	reason := fmt.Sprintf("late-night safety score %d is below %d near %s", fc.After22, threshold, label)
	if fc.Signals.PeakHour != nil {
		reason += fmt.Sprintf("; incidents peak around %02d:00", *fc.Signals.PeakHour)
	}

	return models.Advisory{
		TS:           fc.PredictionTimestamp,
		ZoneID:       zone.ZoneID,
		Reason:       reason,
		ScoreAfter22: fc.After22,
		Threshold:    threshold,
		PeakHour:     fc.Signals.PeakHour,
	}, true
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
