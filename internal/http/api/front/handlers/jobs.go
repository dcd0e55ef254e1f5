package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/reviewrelay/reviewrelay/internal/jobs"
	"github.com/reviewrelay/reviewrelay/internal/models"
	log "github.com/sirupsen/logrus"
)

// JobHandler exposes read access to review jobs.
type JobHandler struct {
	store *jobs.Store
}

// NewJobHandler constructs a JobHandler.
func NewJobHandler(store *jobs.Store) *JobHandler {
	return &JobHandler{store: store}
}

// jobView is the API shape of a review job.
type jobView struct {
	ID        uint64 `json:"id"`
	RepoURL   string `json:"repo_url"`
	Status    string `json:"status"`
	Meta      any    `json:"meta,omitempty"`
	Artifact  string `json:"artifact,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toJobView(job models.ReviewJob) jobView {
	view := jobView{
		ID:        job.ID,
		RepoURL:   job.RepoURL,
		Status:    job.Status,
		CreatedAt: job.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		UpdatedAt: job.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if len(job.Meta) > 0 {
		view.Meta = json.RawMessage(job.Meta)
	}
	if job.Artifact != nil {
		view.Artifact = job.Artifact.Content
	}
	return view
}

// Get returns one job by ID, including its artifact when present.
func (h *JobHandler) Get(c *gin.Context) {
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	job, errGet := h.store.Get(c.Request.Context(), id)
	if errGet != nil {
		if errors.Is(errGet, jobs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		log.WithError(errGet).Error("jobs: get failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, toJobView(job))
}

// List returns recent jobs, optionally filtered by provider.
func (h *JobHandler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, errParse := strconv.Atoi(raw)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	rows, errList := h.store.List(c.Request.Context(), c.Query("provider"), limit)
	if errList != nil {
		log.WithError(errList).Error("jobs: list failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}

	views := make([]jobView, 0, len(rows))
	for _, row := range rows {
		views = append(views, toJobView(row))
	}
	c.JSON(http.StatusOK, gin.H{"jobs": views})
}
