package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"safewalk-api/config"
)

var (
	allowMethods = []string{"GET", "POST", "OPTIONS"}
	allowHeaders = []string{"Origin", "Content-Type", "Authorization"}
)

func SetupCORS(cfg config.CORSConfig) gin.HandlerFunc {
	allowedOrigins := cfg.Origins()

	if len(allowedOrigins) == 0 {
		return cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     allowMethods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"Content-Length", "X-Cache"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		})
	}

	return cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     allowMethods,
		AllowHeaders:     allowHeaders,
		ExposeHeaders:    []string{"Content-Length", "X-Cache"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}
