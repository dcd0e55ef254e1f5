package models

import (
	"time"

	"gorm.io/datatypes"
)

// ReviewJob status values. Intake only ever writes queued; the worker owns all
// later transitions.
const (
	// ReviewJobStatusQueued marks a job waiting for a worker.
	ReviewJobStatusQueued = "queued"
	// ReviewJobStatusRunning marks a job claimed by a worker.
	ReviewJobStatusRunning = "running"
	// ReviewJobStatusSucceeded marks a job completed with an artifact.
	ReviewJobStatusSucceeded = "succeeded"
	// ReviewJobStatusFailed marks a job the worker gave up on.
	ReviewJobStatusFailed = "failed"
)

// ReviewJob is a unit of asynchronous review work created by webhook intake.
type ReviewJob struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	RepoURL string `gorm:"type:text;not null"`        // Repository or merge-request URL.
	Status  string `gorm:"type:varchar(32);not null"` // Lifecycle status.

	Meta datatypes.JSON `gorm:"type:jsonb"` // Provenance: provider, request ID, scheduling class.

	IdempotencyKey string `gorm:"type:varchar(255);not null;uniqueIndex"` // Dedup key for repeated deliveries.

	Artifact *ReviewArtifact `gorm:"foreignKey:JobID"` // Attached artifact, if completed.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// ReviewArtifact holds the worker's review output for a completed job.
type ReviewArtifact struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	JobID uint64 `gorm:"not null;uniqueIndex"` // Owning job ID.

	Content string `gorm:"type:text;not null"` // Rendered review content.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
