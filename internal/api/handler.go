package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"attendance-backend/internal/rollover"
	"attendance-backend/internal/service"
	"attendance-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	svc   *service.Service
	orch  *rollover.Orchestrator
	store store.Store
}

// NewHandler creates a new API handler.
func NewHandler(svc *service.Service, orch *rollover.Orchestrator) *Handler {
	return &Handler{
		svc:   svc,
		orch:  orch,
		store: svc.Store(),
	}
}

// GetHealth handles GET /api/health.
func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"open_sessions": h.svc.Timers().Count(),
		"tracked_locks": h.svc.Locks().Len(),
	})
}

// groupID parses the group_id path parameter.
func groupID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("group_id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return 0, false
	}
	return id, true
}
