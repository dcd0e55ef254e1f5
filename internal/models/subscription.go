package models

import "time"

// Subscription status values written by the billing collaborator.
const (
	// SubscriptionStatusActive marks a paid, current subscription.
	SubscriptionStatusActive = "active"
	// SubscriptionStatusTrialing marks a subscription inside its trial window.
	SubscriptionStatusTrialing = "trialing"
	// SubscriptionStatusPastDue marks a subscription with a failed renewal charge.
	SubscriptionStatusPastDue = "past_due"
	// SubscriptionStatusCanceled marks a terminated subscription.
	SubscriptionStatusCanceled = "canceled"
)

// Subscription records a user's billing plan. Rows are written by the external
// billing system; this service only ever reads them.
type Subscription struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`    // Owning user ID.
	User   User   `gorm:"foreignKey:UserID"` // Owning user record.

	Plan        string `gorm:"type:varchar(64);not null"` // Plan name from the billing system.
	Status      string `gorm:"type:varchar(32);not null"` // Subscription status.
	StripeSubID string `gorm:"type:varchar(255);index"`   // Upstream subscription identifier.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
