package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"attendance-backend/internal/model"
	"attendance-backend/internal/shift"
)

// GetGroup handles GET /api/groups/{group_id}.
func (h *Handler) GetGroup(c *gin.Context) {
	id, ok := groupID(c)
	if !ok {
		return
	}

	g, err := h.store.GetGroup(c.Request.Context(), id)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve group"})
		return
	}
	if g == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}
	c.JSON(http.StatusOK, g)
}

// groupUpdate is the mutable subset of a group's configuration.
type groupUpdate struct {
	Title           *string `json:"title"`
	DualMode        *bool   `json:"dual_mode"`
	DayStart        *string `json:"day_start"`
	DayEnd          *string `json:"day_end"`
	GraceBefore     *int    `json:"grace_before"`
	GraceAfter      *int    `json:"grace_after"`
	EndGraceBefore  *int    `json:"end_grace_before"`
	EndGraceAfter   *int    `json:"end_grace_after"`
	ResetHour       *int    `json:"reset_hour"`
	ResetMinute     *int    `json:"reset_minute"`
	SoftResetHour   *int    `json:"soft_reset_hour"`
	SoftResetMinute *int    `json:"soft_reset_minute"`
}

// PutGroup handles PUT /api/groups/{group_id}: creates or updates a
// group's shift and reset configuration. Absent fields are left as they
// are; the result must still parse as a valid shift config.
func (h *Handler) PutGroup(c *gin.Context) {
	id, ok := groupID(c)
	if !ok {
		return
	}

	var upd groupUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid body"})
		return
	}

	g, err := h.store.GetGroup(c.Request.Context(), id)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve group"})
		return
	}
	if g == nil {
		g = &model.Group{
			ID: id, DayStart: "09:00", DayEnd: "21:00",
			GraceBefore: 120, GraceAfter: 360, EndGraceBefore: 120, EndGraceAfter: 360,
		}
	}

	apply(&g.Title, upd.Title)
	apply(&g.DualMode, upd.DualMode)
	apply(&g.DayStart, upd.DayStart)
	apply(&g.DayEnd, upd.DayEnd)
	apply(&g.GraceBefore, upd.GraceBefore)
	apply(&g.GraceAfter, upd.GraceAfter)
	apply(&g.EndGraceBefore, upd.EndGraceBefore)
	apply(&g.EndGraceAfter, upd.EndGraceAfter)
	apply(&g.ResetHour, upd.ResetHour)
	apply(&g.ResetMinute, upd.ResetMinute)
	apply(&g.SoftResetHour, upd.SoftResetHour)
	apply(&g.SoftResetMinute, upd.SoftResetMinute)

	if _, err := shift.ConfigFromGroup(g); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if g.ResetHour < 0 || g.ResetHour > 23 || g.ResetMinute < 0 || g.ResetMinute > 59 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid reset time"})
		return
	}

	if err := h.store.SaveGroup(c.Request.Context(), g); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to save group"})
		return
	}
	c.JSON(http.StatusOK, g)
}

func apply[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// PostHardReset handles POST /api/groups/{group_id}/reset/hard: a
// manual admin trigger that bypasses the schedule.
func (h *Handler) PostHardReset(c *gin.Context) {
	id, ok := groupID(c)
	if !ok {
		return
	}

	sum, err := h.orch.RunHardReset(c.Request.Context(), id, time.Now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// PostSoftReset handles POST /api/groups/{group_id}/reset/soft.
func (h *Handler) PostSoftReset(c *gin.Context) {
	id, ok := groupID(c)
	if !ok {
		return
	}

	sum, err := h.orch.RunSoftReset(c.Request.Context(), id, time.Now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sum)
}
