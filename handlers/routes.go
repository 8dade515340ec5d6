package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"safewalk-api/geo"
	"safewalk-api/observability"
	"safewalk-api/ranking"
)

type RouteRanker interface {
	RankRoutes(ctx context.Context, origin, destination geo.Point, pref ranking.Preference) ([]ranking.RankedRoute, error)
}

type RoutesHandler struct {
	ranker RouteRanker
}

func NewRoutesHandler(ranker RouteRanker) *RoutesHandler {
	return &RoutesHandler{ranker: ranker}
}

type RankRequest struct {
	Origin      *geo.Point `json:"origin" binding:"required"`
	Destination *geo.Point `json:"destination" binding:"required"`
	Preference  string     `json:"preference"`
}

func (h *RoutesHandler) RankRoutes(c *gin.Context) {
	var req RankRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "origin and destination are required"})
		return
	}

	routes, err := h.ranker.RankRoutes(c.Request.Context(), *req.Origin, *req.Destination, ranking.Preference(req.Preference))
	switch {
	case errors.Is(err, ranking.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, ranking.ErrNoRoutes):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		observability.GetLogger().Error("route ranking failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "routing provider unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"routes": routes,
		"count":  len(routes),
	})
}
