package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/reviewrelay/reviewrelay/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Ledger appends and counts metered usage events. It is the only writer of
// UsageEvent rows; rows are never mutated after creation.
type Ledger struct {
	db    *gorm.DB
	loc   *time.Location
	nowFn func() time.Time
}

// NewLedger constructs a Ledger. The location fixes the day boundary used by
// CountToday; nil defaults to UTC.
func NewLedger(db *gorm.DB, loc *time.Location) *Ledger {
	if loc == nil {
		loc = time.UTC
	}
	return &Ledger{db: db, loc: loc, nowFn: time.Now}
}

// WithNowFunc overrides the clock, for tests.
func (l *Ledger) WithNowFunc(nowFn func() time.Time) *Ledger {
	if nowFn != nil {
		l.nowFn = nowFn
	}
	return l
}

// Record appends one usage event. Storage failures are returned, never
// swallowed; nothing is written on error.
func (l *Ledger) Record(ctx context.Context, userID uint64, kind string, tokensIn, tokensOut int, meta map[string]any) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("usage: ledger not initialized")
	}
	kind = strings.TrimSpace(kind)
	if userID == 0 || kind == "" {
		return fmt.Errorf("usage: missing user or kind")
	}

	row := models.UsageEvent{
		UserID:    userID,
		Kind:      kind,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		CreatedAt: l.nowFn().UTC(),
	}
	if len(meta) > 0 {
		payload, errMarshal := json.Marshal(meta)
		if errMarshal != nil {
			return fmt.Errorf("usage: marshal meta: %w", errMarshal)
		}
		row.Meta = datatypes.JSON(payload)
	}

	if errCreate := l.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return fmt.Errorf("usage: record: %w", errCreate)
	}
	return nil
}

// CountToday returns the number of events of the given kind for the user since
// the configured day boundary.
func (l *Ledger) CountToday(ctx context.Context, userID uint64, kind string) (int, error) {
	if l == nil || l.db == nil {
		return 0, fmt.Errorf("usage: ledger not initialized")
	}

	var count int64
	if errCount := l.db.WithContext(ctx).
		Model(&models.UsageEvent{}).
		Where("user_id = ? AND kind = ? AND created_at >= ?", userID, kind, l.DayStart()).
		Count(&count).Error; errCount != nil {
		return 0, fmt.Errorf("usage: count today: %w", errCount)
	}
	return int(count), nil
}

// DayStart returns the start of the current usage day in UTC.
func (l *Ledger) DayStart() time.Time {
	now := l.nowFn().In(l.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, l.loc).UTC()
}
