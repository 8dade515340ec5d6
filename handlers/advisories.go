package handlers

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"safewalk-api/models"
	"safewalk-api/services"
)

type AdvisoriesHandler struct {
	db    *gorm.DB
	cache *services.CacheService
}

func NewAdvisoriesHandler(db *gorm.DB, cache *services.CacheService) *AdvisoriesHandler {
	return &AdvisoriesHandler{db: db, cache: cache}
}

func (h *AdvisoriesHandler) GetAdvisories(c *gin.Context) {
	p := ParsePagination(c)
	zoneID := c.Query("zone_id")

	cacheKey := fmt.Sprintf("advisories:%s:%d:%s", zoneID, p.Limit, p.cursor())

	serveCached(c, h.cache, cacheKey, 30*time.Second, func() (any, error) {
		query := h.db.WithContext(c.Request.Context()).
			Model(&models.Advisory{}).
			Limit(p.Limit + 1)
		query = p.keyset(query, "ts", "zone_id")
		if zoneID != "" {
			query = query.Where("zone_id = ?", zoneID)
		}

		rows := []models.Advisory{}
		if err := query.Find(&rows).Error; err != nil {
			return nil, err
		}
		return paginate(rows, p.Limit, func(r models.Advisory) (time.Time, string) { return r.TS, r.ZoneID }), nil
	})
}
