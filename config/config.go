package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Scoring   ScoringConfig
	Providers ProvidersConfig
	Forecast  ForecastConfig
	MQTT      MQTTConfig
}

type ServerConfig struct {
	Port        int
	MetricsAddr string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// GetDSN is the keyword/value form gorm's postgres driver expects.
func (d DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// URL is the postgres:// form used by pgxpool.
func (d DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": []string{d.SSLMode}}.Encode(),
	}
	return u.String()
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig verifies bearer tokens minted by the account service. An empty
// secret disables authentication on the API.
type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

type CORSConfig struct {
	AllowedOrigins string
}

// Origins splits AllowedOrigins. Nil means any origin.
func (c CORSConfig) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 1 && origins[0] == "*" {
		return nil
	}
	return origins
}

type LogConfig struct {
	Level   string
	Format  string
	LogFile string
}

type ScoringConfig struct {
	RouteBufferKm  float64
	IncidentWindow time.Duration
	LightingWindow time.Duration
	Timezone       string
}

// Location resolves Timezone; hours of day are read in this location.
func (s ScoringConfig) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}

type ProvidersConfig struct {
	RoutingURL    string
	WeatherURL    string
	WeatherAPIKey string
	POIURL        string
	CallTimeout   time.Duration
	Alternatives  int
}

type ForecastConfig struct {
	Lookback       time.Duration
	SampleBufferKm float64
	Interval       time.Duration
	AlertThreshold int
	ModelVersion   string
}

type MQTTConfig struct {
	URL           string
	TrafficTopic  string
	LightingTopic string
}

func LoadConfig() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	serverPort, err := getIntEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	dbPort, err := getIntEnv("DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	redisPort, err := getIntEnv("REDIS_PORT", 6379)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}

	redisDB, err := getIntEnv("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	jwtExpiry, err := getIntEnv("JWT_EXPIRY_HOURS", 24)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRY_HOURS: %w", err)
	}

	bufferKm, err := getFloatEnv("ROUTE_BUFFER_KM", 0.5)
	if err != nil {
		return nil, fmt.Errorf("invalid ROUTE_BUFFER_KM: %w", err)
	}

	incidentWindow, err := getDurationEnv("INCIDENT_WINDOW", 30*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid INCIDENT_WINDOW: %w", err)
	}

	lightingWindow, err := getDurationEnv("LIGHTING_WINDOW", 90*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid LIGHTING_WINDOW: %w", err)
	}

	callTimeout, err := getDurationEnv("PROVIDER_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid PROVIDER_TIMEOUT: %w", err)
	}

	alternatives, err := getIntEnv("ROUTE_ALTERNATIVES", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid ROUTE_ALTERNATIVES: %w", err)
	}

	lookback, err := getDurationEnv("FORECAST_LOOKBACK", 365*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid FORECAST_LOOKBACK: %w", err)
	}

	sampleBuffer, err := getFloatEnv("FORECAST_SAMPLE_BUFFER_KM", 0.2)
	if err != nil {
		return nil, fmt.Errorf("invalid FORECAST_SAMPLE_BUFFER_KM: %w", err)
	}

	interval, err := getDurationEnv("FORECAST_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid FORECAST_INTERVAL: %w", err)
	}

	threshold, err := getIntEnv("FORECAST_ALERT_THRESHOLD", 50)
	if err != nil {
		return nil, fmt.Errorf("invalid FORECAST_ALERT_THRESHOLD: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:        serverPort,
			MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "safewalk"),
			Password: getEnv("DB_PASSWORD", "safewalk_dev_password"),
			Name:     getEnv("DB_NAME", "safewalk"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     redisPort,
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", ""),
			ExpiryHours: jwtExpiry,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Log: LogConfig{
			Level:   strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format:  getEnv("LOG_FORMAT", "json"),
			LogFile: getEnv("LOG_FILE", ""),
		},
		Scoring: ScoringConfig{
			RouteBufferKm:  bufferKm,
			IncidentWindow: incidentWindow,
			LightingWindow: lightingWindow,
			Timezone:       getEnv("SCORING_TIMEZONE", "Local"),
		},
		Providers: ProvidersConfig{
			RoutingURL:    getEnv("ROUTING_URL", "http://localhost:5000"),
			WeatherURL:    getEnv("WEATHER_URL", "https://api.openweathermap.org"),
			WeatherAPIKey: getEnv("WEATHER_API_KEY", ""),
			POIURL:        getEnv("POI_URL", ""),
			CallTimeout:   callTimeout,
			Alternatives:  alternatives,
		},
		Forecast: ForecastConfig{
			Lookback:       lookback,
			SampleBufferKm: sampleBuffer,
			Interval:       interval,
			AlertThreshold: threshold,
			ModelVersion:   getEnv("MODEL_VERSION", "hourly-risk-v1"),
		},
		MQTT: MQTTConfig{
			URL:           getEnv("MQTT_URL", "tcp://localhost:1883"),
			TrafficTopic:  getEnv("MQTT_TRAFFIC_TOPIC", "safewalk/traffic/+"),
			LightingTopic: getEnv("MQTT_LIGHTING_TOPIC", "safewalk/lighting/+"),
		},
	}

	if _, err := cfg.Scoring.Location(); err != nil {
		return nil, fmt.Errorf("invalid SCORING_TIMEZONE: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getIntEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func getFloatEnv(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(value, 64)
}

func getDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}
