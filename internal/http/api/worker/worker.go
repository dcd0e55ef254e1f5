package worker

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/reviewrelay/reviewrelay/internal/config"
	"github.com/reviewrelay/reviewrelay/internal/jobs"
	"github.com/reviewrelay/reviewrelay/internal/models"
	log "github.com/sirupsen/logrus"
)

// RegisterWorkerRoutes registers the worker job API behind token auth.
func RegisterWorkerRoutes(r *gin.Engine, cfg config.WorkerConfig, store *jobs.Store) {
	if r == nil || store == nil {
		return
	}
	handler := NewJobAPIHandler(store)

	group := r.Group("/v0/worker")
	group.Use(workerAuthMiddleware(cfg.Token))
	group.POST("/jobs/claim", handler.Claim)
	group.POST("/jobs/:id/complete", handler.Complete)
}

// workerAuthMiddleware authenticates workers by shared token. An empty
// configured token rejects every caller.
func workerAuthMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader("x-worker-token")
		if token == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauth"})
			return
		}
		c.Next()
	}
}

// JobAPIHandler serves the worker-facing job lifecycle endpoints.
type JobAPIHandler struct {
	store *jobs.Store
}

// NewJobAPIHandler constructs a JobAPIHandler.
func NewJobAPIHandler(store *jobs.Store) *JobAPIHandler {
	return &JobAPIHandler{store: store}
}

// Claim hands the oldest queued job to the calling worker, moving it to
// running. An empty queue yields 204.
func (h *JobAPIHandler) Claim(c *gin.Context) {
	job, errClaim := h.store.ClaimNext(c.Request.Context())
	if errClaim != nil {
		if errors.Is(errClaim, jobs.ErrNotFound) {
			c.Status(http.StatusNoContent)
			return
		}
		log.WithError(errClaim).Error("worker: claim failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "claim failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":       job.ID,
		"repo_url": job.RepoURL,
		"status":   job.Status,
		"meta":     json.RawMessage(job.Meta),
	})
}

// completeRequest defines the request body for completing a job.
type completeRequest struct {
	Status  string `json:"status"`
	Content string `json:"content"`
}

// Complete moves a running job to a terminal status, attaching the review
// content on success.
func (h *JobAPIHandler) Complete(c *gin.Context) {
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	var body completeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.Status != models.ReviewJobStatusSucceeded && body.Status != models.ReviewJobStatusFailed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be succeeded or failed"})
		return
	}

	errComplete := h.store.Complete(c.Request.Context(), id, body.Status, body.Content)
	if errComplete != nil {
		switch {
		case errors.Is(errComplete, jobs.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		case errors.Is(errComplete, jobs.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": "job is not running"})
		default:
			log.WithError(errComplete).Error("worker: complete failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "complete failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
