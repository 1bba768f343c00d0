package api

import (
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"delivery-tracking-backend/config"
	"delivery-tracking-backend/internal/engine"
	"delivery-tracking-backend/internal/mw"
	"delivery-tracking-backend/internal/store"
)

// NewRouter creates and configures the Gin router.
func NewRouter(e *engine.Engine, s store.Store, hub *Hub, cfg *config.Config) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(e, s, cfg.Tracking.MaxBatchSize)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)

	cacheTTL := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	cacheStore := gocache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		trips := api.Group("/trips/:trip_id")
		{
			trips.POST("/tracking/start", handler.StartTracking)
			trips.POST("/tracking/stop", handler.StopTracking)
			trips.POST("/tracking/pause", handler.PauseTracking)
			trips.POST("/tracking/resume", handler.ResumeTracking)
			trips.GET("/tracking", handler.GetSession)

			trips.POST("/locations", handler.IngestLocation)
			trips.POST("/locations/batch", handler.IngestLocationBatch)
			trips.GET("/locations/current", handler.GetCurrentLocation)
			trips.GET("/locations/history", caching, handler.GetHistory)

			trips.GET("/geofences", handler.ListGeofences)
			trips.GET("/events", caching, handler.ListEvents)
		}

		api.POST("/geofences", handler.CreateGeofence)
		api.DELETE("/geofences/:id", handler.DeactivateGeofence)

		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
	}

	r.GET("/ws/trips/:trip_id", hub.Serve)

	return r
}
