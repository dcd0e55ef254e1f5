package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/reviewrelay/reviewrelay/internal/quota"
	log "github.com/sirupsen/logrus"
)

// QuotaHandler reports the caller's remaining daily quota.
type QuotaHandler struct {
	checker *quota.Checker
}

// NewQuotaHandler constructs a QuotaHandler.
func NewQuotaHandler(checker *quota.Checker) *QuotaHandler {
	return &QuotaHandler{checker: checker}
}

// Get returns the caller's plan, usage, and limit for the current day.
func (h *QuotaHandler) Get(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauth"})
		return
	}

	decision, errCheck := h.checker.CheckQuota(c.Request.Context(), userID)
	if errCheck != nil {
		log.WithError(errCheck).Error("quota: check failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "quota check failed"})
		return
	}
	c.JSON(http.StatusOK, decision)
}
