package services

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"safewalk-api/config"
	"safewalk-api/geo"
)

const (
	ForecastsChannel  = "saferoute:forecasts"
	AdvisoriesChannel = "saferoute:advisories"
	LiveChannel       = "saferoute:live"

	pingAttempts = 10
)

// CacheService wraps Redis for the response cache and pub/sub. A service
// without a client behaves as an always-empty cache that drops publishes.
type CacheService struct {
	client *redis.Client
}

func NewCacheService(cfg config.RedisConfig, log *zap.Logger) (*CacheService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// retried to ride out sidecar startup
	var lastErr error
	for i := 0; i < pingAttempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		lastErr = client.Ping(ctx).Err()
		cancel()
		if lastErr == nil {
			return &CacheService{client: client}, nil
		}
		log.Warn("redis ping failed", zap.Int("attempt", i+1), zap.Int("of", pingAttempts), zap.Error(lastErr))
		time.Sleep(2 * time.Second)
	}

	_ = client.Close()
	return &CacheService{}, fmt.Errorf("redis ping failed after %d attempts: %w", pingAttempts, lastErr)
}

func NewCacheServiceFromClient(client *redis.Client) *CacheService {
	return &CacheService{client: client}
}

func (s *CacheService) Client() *redis.Client {
	return s.client
}

func (s *CacheService) Available() bool {
	return s != nil && s.client != nil
}

// GetJSON decodes the value at key into dest. found is false on a miss or
// when no client is configured.
func (s *CacheService) GetJSON(ctx context.Context, key string, dest any) (found bool, err error) {
	if !s.Available() {
		return false, nil
	}
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

func (s *CacheService) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !s.Available() {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

func (s *CacheService) Delete(ctx context.Context, key string) error {
	if !s.Available() {
		return nil
	}
	return s.client.Del(ctx, key).Err()
}

func (s *CacheService) Publish(ctx context.Context, channel string, message any) error {
	if !s.Available() {
		return nil
	}
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, channel, data).Err()
}

// Subscribe returns nil when no client is configured.
func (s *CacheService) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	if !s.Available() {
		return nil
	}
	return s.client.Subscribe(ctx, channels...)
}

func (s *CacheService) Close() error {
	if !s.Available() {
		return nil
	}
	return s.client.Close()
}

// ForecastCacheKey identifies a forecast request. Coordinates are rounded to
// about 10 m and the as-of time to the minute, so near-identical requests
// share an entry.
func ForecastCacheKey(points []geo.Point, asOf time.Time) string {
	var b strings.Builder
	for _, p := range points {
		fmt.Fprintf(&b, "%.4f,%.4f;", p.Lat, p.Lon)
	}
	b.WriteString(asOf.UTC().Truncate(time.Minute).Format(time.RFC3339))

	sum := sha1.Sum([]byte(b.String()))
	return "saferoute:forecast:" + hex.EncodeToString(sum[:])
}
