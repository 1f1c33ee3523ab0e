package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"attendance-backend/internal/shift"
	"attendance-backend/internal/timer"
)

// GetTimers handles GET /api/timers: every running session across all
// groups.
func (h *Handler) GetTimers(c *gin.Context) {
	infos := h.svc.Timers().Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"count":    len(infos),
		"sessions": infos,
	})
}

// GetGroupTimers handles GET /api/groups/{group_id}/timers.
func (h *Handler) GetGroupTimers(c *gin.Context) {
	id, ok := groupID(c)
	if !ok {
		return
	}

	var infos []timer.Info
	for _, info := range h.svc.Timers().Snapshot() {
		if info.GroupID == id {
			infos = append(infos, info)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"count":    len(infos),
		"sessions": infos,
	})
}

// GetGroupAnchors handles GET /api/groups/{group_id}/anchors: how many
// shifts are currently open per label.
func (h *Handler) GetGroupAnchors(c *gin.Context) {
	id, ok := groupID(c)
	if !ok {
		return
	}

	day, err := h.store.CountOpenAnchors(c.Request.Context(), id, string(shift.LabelDay))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to count anchors"})
		return
	}
	night, err := h.store.CountOpenAnchors(c.Request.Context(), id, string(shift.LabelNight))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to count anchors"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"day": day, "night": night})
}

// GetGroupRecords handles GET /api/groups/{group_id}/records/{date}:
// the append-only activity rows and clock events of one business date.
func (h *Handler) GetGroupRecords(c *gin.Context) {
	id, ok := groupID(c)
	if !ok {
		return
	}
	date, err := time.Parse("2006-01-02", c.Param("date"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid date, use YYYY-MM-DD"})
		return
	}

	logs, err := h.store.ListActivityLogs(c.Request.Context(), id, date)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve records"})
		return
	}
	events, err := h.store.ListAttendanceEvents(c.Request.Context(), id, date)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"activities": logs,
		"events":     events,
	})
}

// GetGroupMonthly handles GET /api/groups/{group_id}/monthly/{month}:
// month-keyed aggregates, month in YYYY-MM.
func (h *Handler) GetGroupMonthly(c *gin.Context) {
	id, ok := groupID(c)
	if !ok {
		return
	}
	month, err := time.Parse("2006-01", c.Param("month"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid month, use YYYY-MM"})
		return
	}

	stats, err := h.store.ListMonthlyStats(c.Request.Context(), id, month)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve monthly stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}
