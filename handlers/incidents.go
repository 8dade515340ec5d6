package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"safewalk-api/geo"
	"safewalk-api/models"
	"safewalk-api/services"
)

type IncidentsHandler struct {
	db    *gorm.DB
	cache *services.CacheService
}

func NewIncidentsHandler(db *gorm.DB, cache *services.CacheService) *IncidentsHandler {
	return &IncidentsHandler{db: db, cache: cache}
}

// parseBBox reads "minLat,minLon,maxLat,maxLon".
func parseBBox(s string) (geo.BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return geo.BoundingBox{}, fmt.Errorf("bbox must be minLat,minLon,maxLat,maxLon")
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geo.BoundingBox{}, fmt.Errorf("bbox value %q is not a number", p)
		}
		v[i] = f
	}
	box := geo.BoundingBox{MinLat: v[0], MinLon: v[1], MaxLat: v[2], MaxLon: v[3]}
	if !(geo.Point{Lat: box.MinLat, Lon: box.MinLon}).Valid() || !(geo.Point{Lat: box.MaxLat, Lon: box.MaxLon}).Valid() {
		return geo.BoundingBox{}, fmt.Errorf("bbox corners must be valid coordinates")
	}
	if box.MinLat > box.MaxLat || box.MinLon > box.MaxLon {
		return geo.BoundingBox{}, fmt.Errorf("bbox minimums must not exceed maximums")
	}
	return box, nil
}

// GetIncidents lists incident reports newest first, optionally limited to a
// bbox, a status and a severity.
func (h *IncidentsHandler) GetIncidents(c *gin.Context) {
	p := ParsePagination(c)
	status := c.DefaultQuery("status", string(models.IncidentActive))
	severity := c.Query("severity")
	bboxStr := c.Query("bbox")

	var box *geo.BoundingBox
	if bboxStr != "" {
		b, err := parseBBox(bboxStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		box = &b
	}

	cacheKey := fmt.Sprintf("incidents:%s:%s:%s:%d:%s", bboxStr, status, severity, p.Limit, p.cursor())

	serveCached(c, h.cache, cacheKey, 5*time.Second, func() (any, error) {
		query := h.db.WithContext(c.Request.Context()).
			Model(&models.IncidentRecord{}).
			Limit(p.Limit + 1)
		query = p.keyset(query, "created_at", "id")

		if status != "all" {
			query = query.Where("status = ?", status)
		}
		if severity != "" {
			query = query.Where("severity = ?", severity)
		}
		if box != nil {
			query = query.
				Where("lat BETWEEN ? AND ?", box.MinLat, box.MaxLat).
				Where("lon BETWEEN ? AND ?", box.MinLon, box.MaxLon)
		}

		rows := []models.IncidentRecord{}
		if err := query.Find(&rows).Error; err != nil {
			return nil, err
		}
		return paginate(rows, p.Limit, func(r models.IncidentRecord) (time.Time, string) { return r.CreatedAt, r.ID.String() }), nil
	})
}
