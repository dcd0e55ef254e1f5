package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/reviewrelay/reviewrelay/internal/models"
	"github.com/reviewrelay/reviewrelay/internal/plan"
	"github.com/reviewrelay/reviewrelay/internal/ratelimit"
	"github.com/reviewrelay/reviewrelay/internal/usage"

	"gorm.io/gorm"
)

// currentStatuses are the subscription statuses that grant a paid plan.
var currentStatuses = []string{
	models.SubscriptionStatusActive,
	models.SubscriptionStatusTrialing,
	models.SubscriptionStatusPastDue,
}

// Decision describes the outcome of a daily-quota admission check.
type Decision struct {
	OK    bool      `json:"ok"`
	Used  int       `json:"used"`
	Limit int       `json:"limit"`
	Plan  plan.Plan `json:"plan"`
}

// Checker evaluates admission predicates for metered requests. Each predicate
// is a pure gate: callers must not perform the metered action, or record usage,
// unless every predicate they consult passes.
//
// CheckQuota and the subsequent usage record are two separate operations, so
// concurrent requests from one user can both pass at the boundary and push
// usage past the limit. The daily quota is a soft limit; callers must not
// assume exactness.
type Checker struct {
	db       *gorm.DB
	registry *plan.Registry
	ledger   *usage.Ledger
	limiter  *ratelimit.Manager
}

// NewChecker constructs a Checker.
func NewChecker(db *gorm.DB, registry *plan.Registry, ledger *usage.Ledger, limiter *ratelimit.Manager) *Checker {
	return &Checker{db: db, registry: registry, ledger: ledger, limiter: limiter}
}

// ResolvePlan returns the user's current plan. The first subscription with a
// current status wins; users without one are on the free tier.
func (c *Checker) ResolvePlan(ctx context.Context, userID uint64) (plan.Plan, error) {
	if c == nil || c.db == nil {
		return plan.PlanFree, fmt.Errorf("quota: checker not initialized")
	}

	var sub models.Subscription
	errFind := c.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, currentStatuses).
		Order("id ASC").
		First(&sub).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return plan.PlanFree, nil
		}
		return plan.PlanFree, fmt.Errorf("quota: resolve plan: %w", errFind)
	}
	return plan.FromSubscription(sub.Plan), nil
}

// CheckQuota evaluates the daily-request predicate for the user.
func (c *Checker) CheckQuota(ctx context.Context, userID uint64) (Decision, error) {
	p, errResolve := c.ResolvePlan(ctx, userID)
	if errResolve != nil {
		return Decision{}, errResolve
	}
	limits := c.registry.LimitsFor(p)

	used, errCount := c.ledger.CountToday(ctx, userID, models.UsageEventKindChatRequest)
	if errCount != nil {
		return Decision{}, errCount
	}

	return Decision{
		OK:    used < limits.DailyRequests,
		Used:  used,
		Limit: limits.DailyRequests,
		Plan:  p,
	}, nil
}

// CheckRate evaluates the per-minute predicate for the user. An allowed call
// consumes one slot in the current window.
func (c *Checker) CheckRate(ctx context.Context, userID uint64, p plan.Plan) (ratelimit.Result, error) {
	limits := c.registry.LimitsFor(p)
	key := ratelimit.KeyForUser(userID, models.UsageEventKindChatRequest)
	return c.limiter.Allow(ctx, key, limits.RPM)
}

// WithinTokenBudget evaluates the max-tokens predicate for the plan.
func (c *Checker) WithinTokenBudget(p plan.Plan, tokens int) bool {
	limits := c.registry.LimitsFor(p)
	if limits.MaxTokens <= 0 {
		return true
	}
	return tokens <= limits.MaxTokens
}
