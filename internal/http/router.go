package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"parking-service/internal/config"
	"parking-service/internal/http/middleware"
)

// NewRouter builds the gin engine with the common middleware stack.
// metricsHandler may be nil.
func NewRouter(cfg *config.Config, log zerolog.Logger, metricsHandler http.Handler) *gin.Engine {
	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Recoverer(log))
	r.Use(cors.New(corsConfig(cfg.HTTP.CORSOrigins)))

	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Accept", "Content-Type", middleware.IdempotencyHeader, middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader, middleware.IdempotencyHitHeader, "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	return c
}
