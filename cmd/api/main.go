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

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"safewalk-api/config"
	"safewalk-api/forecast"
	"safewalk-api/handlers"
	"safewalk-api/middleware"
	"safewalk-api/observability"
	"safewalk-api/providers"
	"safewalk-api/ranking"
	"safewalk-api/repository"
	"safewalk-api/services"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "safewalk-api",
		Short:         "Serve route safety ranking and risk forecasts over HTTP.",
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
	root.AddCommand(newIssueTokenCmd())
	return root
}

func newIssueTokenCmd() *cobra.Command {
	var (
		userID uint
		email  string
		role   string
	)
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Print a bearer token signed with JWT_SECRET for a service account.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			auth := services.NewAuthService(cfg.JWT)
			if !auth.Enabled() {
				return errors.New("JWT_SECRET is not set")
			}
			token, err := auth.GenerateToken(userID, email, role)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().UintVar(&userID, "user-id", 0, "user id claim")
	cmd.Flags().StringVar(&email, "email", "service@safewalk.local", "email claim")
	cmd.Flags().StringVar(&role, "role", "service", "role claim")
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	observability.InitializeLogger(cfg.Log)
	defer observability.Sync()
	log := observability.GetLogger()

	loc, err := cfg.Scoring.Location()
	if err != nil {
		return err
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.GetDSN()), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db handle: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	defer sqlDB.Close()

	pool, err := pgxpool.New(ctx, cfg.Database.URL())
	if err != nil {
		return fmt.Errorf("sensor pool init: %w", err)
	}
	defer pool.Close()

	cache, err := services.NewCacheService(cfg.Redis, log)
	if err != nil {
		log.Warn("redis unavailable, running without cache and live updates", zap.Error(err))
	}
	defer cache.Close()

	repo := repository.NewSignalRepository(db)
	traffic := providers.NewSensorTrafficStore(pool, 0)
	weather := providers.NewOpenWeatherClient(cfg.Providers.WeatherURL, cfg.Providers.WeatherAPIKey)

	engineOpts := []ranking.Option{
		ranking.WithLogger(log),
		ranking.WithSuggestionProvider(providers.TemplateSuggester{}),
	}
	if cfg.Providers.POIURL != "" {
		engineOpts = append(engineOpts, ranking.WithPOIProvider(providers.NewOverpassClient(cfg.Providers.POIURL)))
	}
	engine := ranking.NewEngine(ranking.Config{
		BufferKm:       cfg.Scoring.RouteBufferKm,
		IncidentWindow: cfg.Scoring.IncidentWindow,
		LightingWindow: cfg.Scoring.LightingWindow,
		CallTimeout:    cfg.Providers.CallTimeout,
		Alternatives:   cfg.Providers.Alternatives,
		Location:       loc,
	}, providers.NewOSRMClient(cfg.Providers.RoutingURL), traffic, weather, repo, engineOpts...)

	forecaster := forecast.NewForecaster(forecast.Config{
		SampleBufferKm: cfg.Forecast.SampleBufferKm,
		Lookback:       cfg.Forecast.Lookback,
		CallTimeout:    cfg.Providers.CallTimeout,
		Location:       loc,
	}, repo, traffic, weather, forecast.WithLogger(log))

	router := setupRouter(routerDeps{
		cfg:        cfg,
		log:        log,
		db:         db,
		cache:      cache,
		auth:       services.NewAuthService(cfg.JWT),
		ranker:     engine,
		forecaster: forecaster,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

type routerDeps struct {
	cfg        *config.Config
	log        *zap.Logger
	db         *gorm.DB
	cache      *services.CacheService
	auth       *services.AuthService
	ranker     handlers.RouteRanker
	forecaster handlers.RiskForecaster
}

func setupRouter(d routerDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(d.log), middleware.SetupCORS(d.cfg.CORS))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "UP",
			"message": "Safe-walk API is running",
			"cache":   d.cache.Available(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// websocket handshakes carry their token in the query string
	router.GET("/api/v1/ws/advisories", handlers.AdvisoryWebSocket(d.cache, d.auth, d.cfg.CORS))

	routes := handlers.NewRoutesHandler(d.ranker)
	forecasts := handlers.NewForecastHandler(d.forecaster, d.db, d.cache)
	incidents := handlers.NewIncidentsHandler(d.db, d.cache)
	zones := handlers.NewZonesHandler(d.db, d.cache)
	advisories := handlers.NewAdvisoriesHandler(d.db, d.cache)

	api := router.Group("/api/v1", middleware.RequireAuth(d.auth))
	api.POST("/routes/rank", routes.RankRoutes)
	api.POST("/forecast", forecasts.Forecast)
	api.GET("/forecasts", forecasts.GetHistory)
	api.GET("/incidents", incidents.GetIncidents)
	api.GET("/zones", zones.GetZones)
	api.GET("/advisories", advisories.GetAdvisories)

	return router
}
