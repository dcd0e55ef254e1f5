package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/reviewrelay/reviewrelay/internal/plan"
)

// PlanHandler exposes the plan tier table.
type PlanHandler struct {
	registry *plan.Registry
}

// NewPlanHandler constructs a PlanHandler.
func NewPlanHandler(registry *plan.Registry) *PlanHandler {
	return &PlanHandler{registry: registry}
}

// planEntry is one row of the plan listing.
type planEntry struct {
	Name          plan.Plan `json:"name"`
	DailyRequests int       `json:"daily_requests"`
	RPM           int       `json:"rpm"`
	MaxTokens     int       `json:"max_tokens"`
}

// List returns all registered plans and their limits.
func (h *PlanHandler) List(c *gin.Context) {
	names := h.registry.Plans()
	entries := make([]planEntry, 0, len(names))
	for _, name := range names {
		limits := h.registry.LimitsFor(name)
		entries = append(entries, planEntry{
			Name:          name,
			DailyRequests: limits.DailyRequests,
			RPM:           limits.RPM,
			MaxTokens:     limits.MaxTokens,
		})
	}
	c.JSON(http.StatusOK, gin.H{"plans": entries})
}
