package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"attendance-backend/config"
	"attendance-backend/internal/mw"
	"attendance-backend/internal/rollover"
	"attendance-backend/internal/service"
)

// NewRouter creates and configures the ops API router.
func NewRouter(svc *service.Service, orch *rollover.Orchestrator, cfg *config.ServerConfig) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(svc, orch)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/health", handler.GetHealth)
		api.GET("/timers", handler.GetTimers)

		api.GET("/groups/:group_id", handler.GetGroup)
		api.PUT("/groups/:group_id", handler.PutGroup)
		api.GET("/groups/:group_id/timers", handler.GetGroupTimers)
		api.GET("/groups/:group_id/anchors", handler.GetGroupAnchors)
		api.GET("/groups/:group_id/records/:date", caching, handler.GetGroupRecords)
		api.GET("/groups/:group_id/monthly/:month", caching, handler.GetGroupMonthly)
		api.POST("/groups/:group_id/reset/hard", handler.PostHardReset)
		api.POST("/groups/:group_id/reset/soft", handler.PostSoftReset)

		api.GET("/activities", handler.GetActivities)
		api.PUT("/activities/:name", handler.PutActivity)
		api.PUT("/fines/:scope", handler.PutFineRule)
	}

	return r
}
