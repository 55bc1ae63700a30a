package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/temcen/marketrec/internal/config"
)

func CORS(cfg *config.Config) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowOrigins:  cfg.Security.CORS.AllowedOrigins,
		AllowMethods:  cfg.Security.CORS.AllowedMethods,
		AllowHeaders:  append([]string{RequestIDHeader}, cfg.Security.CORS.AllowedHeaders...),
		ExposeHeaders: []string{RequestIDHeader},
	}
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	}

	return cors.New(corsConfig)
}
