package models

import (
	"time"

	"gorm.io/datatypes"
)

// UsageEventKindChatRequest is the metered kind for interactive chat requests.
const UsageEventKindChatRequest = "chat_request"

// UsageEvent records a single metered action. Rows are append-only; nothing in
// this service mutates or deletes them after creation.
type UsageEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index:idx_usage_events_user_kind_created,priority:1"` // Owning user ID.
	Kind   string `gorm:"type:varchar(64);not null;index:idx_usage_events_user_kind_created,priority:2"` // Metered action kind.

	TokensIn  int `gorm:"not null;default:0"` // Input token count.
	TokensOut int `gorm:"not null;default:0"` // Output token count.

	Meta datatypes.JSON `gorm:"type:jsonb"` // Free-form provenance metadata.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index:idx_usage_events_user_kind_created,priority:3"` // Creation timestamp.
}
