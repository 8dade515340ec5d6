package handlers

import (
	"context"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"safewalk-api/config"
	"safewalk-api/observability"
	"safewalk-api/services"
)

// originChecker accepts requests without an Origin header, which only
// non-browser clients send. An empty list accepts every origin.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		return slices.Contains(allowed, origin)
	}
}

var messageTypes = map[string]string{
	services.AdvisoriesChannel: "risk_advisory",
	services.ForecastsChannel:  "risk_forecast",
}

// AdvisoryWebSocket streams advisories and watch-zone forecasts as the worker
// publishes them. Browsers cannot set headers on a websocket handshake, so
// the token travels as a query parameter.
func AdvisoryWebSocket(cache *services.CacheService, authService *services.AuthService, cors config.CORSConfig) gin.HandlerFunc {
	checkOrigin := originChecker(cors.Origins())
	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin}

	return func(c *gin.Context) {
		log := observability.GetLogger()

		if !checkOrigin(c.Request) {
			c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
			return
		}

		if authService.Enabled() {
			tokenStr := c.Query("token")
			if tokenStr == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token query parameter"})
				return
			}
			if _, err := authService.ValidateToken(tokenStr); err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
				return
			}
		}

		if !cache.Available() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live updates unavailable"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		// read pump: detect client disconnect
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		pubsub := cache.Subscribe(ctx, services.AdvisoriesChannel, services.ForecastsChannel)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				err := conn.WriteJSON(gin.H{
					"type": messageTypes[msg.Channel],
					"data": msg.Payload,
				})
				if err != nil {
					log.Debug("ws write error", zap.Error(err))
					return
				}
			}
		}
	}
}
