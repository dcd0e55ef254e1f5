package hooks

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/reviewrelay/reviewrelay/internal/webhook"
	log "github.com/sirupsen/logrus"
)

// maxEventBody bounds how much of a webhook delivery is read.
const maxEventBody = 1 << 20

// RegisterHookRoutes registers webhook intake endpoints.
func RegisterHookRoutes(r *gin.Engine, intake *webhook.Intake) {
	if r == nil || intake == nil {
		return
	}
	handler := NewGitLabHookHandler(intake)
	r.POST("/v0/hooks/gitlab", handler.Handle)
}

// GitLabHookHandler serves the GitLab webhook endpoint.
type GitLabHookHandler struct {
	intake *webhook.Intake
}

// NewGitLabHookHandler constructs a GitLabHookHandler.
func NewGitLabHookHandler(intake *webhook.Intake) *GitLabHookHandler {
	return &GitLabHookHandler{intake: intake}
}

// Handle authenticates and processes one webhook delivery.
func (h *GitLabHookHandler) Handle(c *gin.Context) {
	body, errRead := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBody))
	if errRead != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body failed"})
		return
	}

	result, errHandle := h.intake.Handle(c.Request.Context(), body, c.GetHeader("x-gitlab-token"))
	if errHandle != nil {
		switch {
		case errors.Is(errHandle, webhook.ErrInvalidToken):
			c.String(http.StatusUnauthorized, "Invalid token")
		case errors.Is(errHandle, webhook.ErrMalformedPayload):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		default:
			log.WithError(errHandle).Error("webhook: intake failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "intake failed"})
		}
		return
	}

	if result.Job == nil {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok": true,
		"job": gin.H{
			"id":     result.Job.ID,
			"status": result.Job.Status,
		},
	})
}
