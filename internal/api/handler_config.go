package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"attendance-backend/internal/model"
)

// GetActivities handles GET /api/activities: every configured activity
// type with its limit and daily max.
func (h *Handler) GetActivities(c *gin.Context) {
	configs, err := h.store.ListActivityConfigs(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve activities"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"activities": configs})
}

type activityUpdate struct {
	LimitMinutes int `json:"limit_minutes" binding:"required,gt=0"`
	MaxPerDay    int `json:"max_per_day" binding:"gte=0"`
}

// PutActivity handles PUT /api/activities/{name}.
func (h *Handler) PutActivity(c *gin.Context) {
	name := c.Param("name")
	var upd activityUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid body"})
		return
	}

	cfg := &model.ActivityConfig{
		Name:         name,
		LimitMinutes: upd.LimitMinutes,
		MaxPerDay:    upd.MaxPerDay,
	}
	if err := h.store.UpsertActivityConfig(c.Request.Context(), cfg); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to save activity"})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

type fineRuleUpdate struct {
	ThresholdMinutes int             `json:"threshold_minutes" binding:"required,gt=0"`
	Amount           decimal.Decimal `json:"amount"`
}

// PutFineRule handles PUT /api/fines/{scope}: one tier of the scope's
// fine schedule. Scope is an activity name or a clock event type.
func (h *Handler) PutFineRule(c *gin.Context) {
	scope := c.Param("scope")
	var upd fineRuleUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid body"})
		return
	}
	if upd.Amount.IsNegative() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Amount must not be negative"})
		return
	}

	if err := h.store.UpsertFineRule(c.Request.Context(), scope, upd.ThresholdMinutes, upd.Amount); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to save fine rule"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"scope":             scope,
		"threshold_minutes": upd.ThresholdMinutes,
		"amount":            upd.Amount,
	})
}
