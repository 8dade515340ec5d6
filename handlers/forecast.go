package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"safewalk-api/forecast"
	"safewalk-api/geo"
	"safewalk-api/models"
	"safewalk-api/observability"
	"safewalk-api/services"
)

const forecastTTL = 30 * time.Second

type RiskForecaster interface {
	ForecastRisk(ctx context.Context, points []geo.Point, asOf time.Time) forecast.RiskForecast
}

type ForecastHandler struct {
	forecaster RiskForecaster
	db         *gorm.DB
	cache      *services.CacheService
	now        func() time.Time

	// identical requests that miss the cache together share one computation
	inflight singleflight.Group
}

func NewForecastHandler(forecaster RiskForecaster, db *gorm.DB, cache *services.CacheService) *ForecastHandler {
	return &ForecastHandler{forecaster: forecaster, db: db, cache: cache, now: time.Now}
}

// ForecastRequest takes either a route (points) or a single point.
type ForecastRequest struct {
	Points []geo.Point `json:"points"`
	Point  *geo.Point  `json:"point"`
	AsOf   *time.Time  `json:"as_of"`
}

// Forecast answers 400 for out-of-range coordinates. An empty request gets
// the no-data forecast rather than an error.
func (h *ForecastHandler) Forecast(c *gin.Context) {
	var req ForecastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid forecast request body"})
		return
	}

	points := req.Points
	if req.Point != nil {
		points = append([]geo.Point{*req.Point}, points...)
	}
	for _, pt := range points {
		if !pt.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("point %v is not a valid coordinate", pt)})
			return
		}
	}

	asOf := h.now()
	if req.AsOf != nil {
		asOf = *req.AsOf
	}

	ctx := c.Request.Context()
	key := services.ForecastCacheKey(points, asOf)

	var cached forecast.RiskForecast
	if found, err := h.cache.GetJSON(ctx, key, &cached); err == nil && found {
		c.Header("X-Cache", "HIT")
		c.JSON(http.StatusOK, cached)
		return
	}

	v, _, _ := h.inflight.Do(key, func() (any, error) {
		return h.forecaster.ForecastRisk(context.WithoutCancel(ctx), points, asOf), nil
	})
	result := v.(forecast.RiskForecast)
	if !result.NoData {
		go func() {
			if err := h.cache.SetJSON(context.Background(), key, result, forecastTTL); err != nil {
				observability.GetLogger().Debug("cache set failed", zap.String("key", key), zap.Error(err))
			}
		}()
	}

	c.Header("X-Cache", "MISS")
	c.JSON(http.StatusOK, result)
}

// GetHistory lists forecasts the worker stored for watch zones.
func (h *ForecastHandler) GetHistory(c *gin.Context) {
	p := ParsePagination(c)
	zoneID := c.Query("zone_id")

	cacheKey := fmt.Sprintf("forecasts:%s:%d:%s", zoneID, p.Limit, p.cursor())

	serveCached(c, h.cache, cacheKey, forecastTTL, func() (any, error) {
		query := h.db.WithContext(c.Request.Context()).
			Model(&models.ForecastRecord{}).
			Limit(p.Limit + 1)
		query = p.keyset(query, "ts", "zone_id")
		if zoneID != "" {
			query = query.Where("zone_id = ?", zoneID)
		}

		rows := []models.ForecastRecord{}
		if err := query.Find(&rows).Error; err != nil {
			return nil, err
		}
		return paginate(rows, p.Limit, func(r models.ForecastRecord) (time.Time, string) { return r.TS, r.ZoneID }), nil
	})
}
