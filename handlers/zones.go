package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"safewalk-api/models"
	"safewalk-api/services"
)

type ZonesHandler struct {
	db    *gorm.DB
	cache *services.CacheService
}

func NewZonesHandler(db *gorm.DB, cache *services.CacheService) *ZonesHandler {
	return &ZonesHandler{db: db, cache: cache}
}

func (h *ZonesHandler) GetZones(c *gin.Context) {
	serveCached(c, h.cache, "zones:all", 60*time.Second, func() (any, error) {
		zones := []models.WatchZone{}
		if err := h.db.WithContext(c.Request.Context()).Order("zone_id").Find(&zones).Error; err != nil {
			return nil, err
		}
		return gin.H{"data": zones}, nil
	})
}
