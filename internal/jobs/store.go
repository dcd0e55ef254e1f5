package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/reviewrelay/reviewrelay/internal/db"
	"github.com/reviewrelay/reviewrelay/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound indicates the job does not exist.
var ErrNotFound = errors.New("jobs: not found")

// ErrInvalidTransition indicates the job was not in the expected status.
var ErrInvalidTransition = errors.New("jobs: invalid status transition")

// Meta carries job provenance for the downstream worker.
type Meta struct {
	Provider       string `json:"provider"`     // Webhook source identity.
	MergeRequestID int64  `json:"mr,omitempty"` // Merge-request identifier at the source.
	Class          string `json:"class"`        // Scheduling hint, e.g. quick or full.
}

// validTransitions is the job status state machine. Intake creates queued rows;
// everything else belongs to the worker.
var validTransitions = map[string]map[string]bool{
	models.ReviewJobStatusQueued:  {models.ReviewJobStatusRunning: true},
	models.ReviewJobStatusRunning: {models.ReviewJobStatusSucceeded: true, models.ReviewJobStatusFailed: true},
}

// Store persists review jobs and their lifecycle.
type Store struct {
	db *gorm.DB
}

// NewStore constructs a Store.
func NewStore(conn *gorm.DB) *Store {
	return &Store{db: conn}
}

// Create inserts a queued job, or returns the existing one when the
// idempotency key was seen before. The second return value reports whether a
// new row was created.
func (s *Store) Create(ctx context.Context, repoURL string, meta Meta, idempotencyKey string) (models.ReviewJob, bool, error) {
	if s == nil || s.db == nil {
		return models.ReviewJob{}, false, fmt.Errorf("jobs: store not initialized")
	}
	repoURL = strings.TrimSpace(repoURL)
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if repoURL == "" || idempotencyKey == "" {
		return models.ReviewJob{}, false, fmt.Errorf("jobs: missing repo url or idempotency key")
	}

	payload, errMarshal := json.Marshal(meta)
	if errMarshal != nil {
		return models.ReviewJob{}, false, fmt.Errorf("jobs: marshal meta: %w", errMarshal)
	}

	now := time.Now().UTC()
	row := models.ReviewJob{
		RepoURL:        repoURL,
		Status:         models.ReviewJobStatusQueued,
		Meta:           datatypes.JSON(payload),
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return models.ReviewJob{}, false, fmt.Errorf("jobs: create: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return row, true, nil
	}

	var existing models.ReviewJob
	if errFind := s.db.WithContext(ctx).
		Where("idempotency_key = ?", idempotencyKey).
		First(&existing).Error; errFind != nil {
		return models.ReviewJob{}, false, fmt.Errorf("jobs: load existing: %w", errFind)
	}
	return existing, false, nil
}

// Get returns a job with its artifact, if any.
func (s *Store) Get(ctx context.Context, id uint64) (models.ReviewJob, error) {
	if s == nil || s.db == nil {
		return models.ReviewJob{}, fmt.Errorf("jobs: store not initialized")
	}
	var job models.ReviewJob
	if errFind := s.db.WithContext(ctx).Preload("Artifact").First(&job, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.ReviewJob{}, ErrNotFound
		}
		return models.ReviewJob{}, fmt.Errorf("jobs: get: %w", errFind)
	}
	return job, nil
}

// Transition moves a job from one status to the next using compare-and-set, so
// a stale caller can never clobber progress made by another.
func (s *Store) Transition(ctx context.Context, id uint64, from, to string) error {
	return s.transition(ctx, s.db, id, from, to)
}

func (s *Store) transition(ctx context.Context, tx *gorm.DB, id uint64, from, to string) error {
	if s == nil || tx == nil {
		return fmt.Errorf("jobs: store not initialized")
	}
	if !validTransitions[from][to] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	res := tx.WithContext(ctx).
		Model(&models.ReviewJob{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("jobs: transition: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if errCount := tx.WithContext(ctx).Model(&models.ReviewJob{}).Where("id = ?", id).Count(&count).Error; errCount == nil && count == 0 {
			return ErrNotFound
		}
		return fmt.Errorf("%w: job %d is not %s", ErrInvalidTransition, id, from)
	}
	return nil
}

// ClaimNext atomically claims the oldest queued job for a worker, moving it to
// running. ErrNotFound means the queue is empty.
func (s *Store) ClaimNext(ctx context.Context) (models.ReviewJob, error) {
	if s == nil || s.db == nil {
		return models.ReviewJob{}, fmt.Errorf("jobs: store not initialized")
	}

	// Another worker may claim a candidate between the read and the CAS, so
	// retry over the next few queued rows before reporting an empty queue.
	for attempt := 0; attempt < 3; attempt++ {
		var job models.ReviewJob
		errFind := s.db.WithContext(ctx).
			Where("status = ?", models.ReviewJobStatusQueued).
			Order("id ASC").
			First(&job).Error
		if errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return models.ReviewJob{}, ErrNotFound
			}
			return models.ReviewJob{}, fmt.Errorf("jobs: claim: %w", errFind)
		}

		errTransition := s.Transition(ctx, job.ID, models.ReviewJobStatusQueued, models.ReviewJobStatusRunning)
		if errTransition == nil {
			job.Status = models.ReviewJobStatusRunning
			return job, nil
		}
		if !errors.Is(errTransition, ErrInvalidTransition) {
			return models.ReviewJob{}, errTransition
		}
	}
	return models.ReviewJob{}, ErrNotFound
}

// Complete moves a running job to a terminal status, attaching the artifact on
// success in the same transaction.
func (s *Store) Complete(ctx context.Context, id uint64, status, content string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("jobs: store not initialized")
	}
	if status != models.ReviewJobStatusSucceeded && status != models.ReviewJobStatusFailed {
		return fmt.Errorf("%w: terminal status %q", ErrInvalidTransition, status)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errTransition := s.transition(ctx, tx, id, models.ReviewJobStatusRunning, status); errTransition != nil {
			return errTransition
		}
		if status != models.ReviewJobStatusSucceeded {
			return nil
		}
		artifact := models.ReviewArtifact{
			JobID:     id,
			Content:   content,
			CreatedAt: time.Now().UTC(),
		}
		if errCreate := tx.Create(&artifact).Error; errCreate != nil {
			return fmt.Errorf("jobs: attach artifact: %w", errCreate)
		}
		return nil
	})
}

// List returns recent jobs, optionally filtered by meta provider.
func (s *Store) List(ctx context.Context, provider string, limit int) ([]models.ReviewJob, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("jobs: store not initialized")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	q := s.db.WithContext(ctx).Model(&models.ReviewJob{}).Order("id DESC").Limit(limit)
	provider = strings.TrimSpace(provider)
	if provider != "" {
		q = q.Where(db.JSONExtractTextExpr(s.db, "meta", "provider")+" = ?", provider)
	}

	var rows []models.ReviewJob
	if errFind := q.Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("jobs: list: %w", errFind)
	}
	return rows, nil
}
