package plan

import (
	"sort"
	"strings"
)

// Plan names a subscription tier.
type Plan string

// Built-in subscription tiers.
const (
	// PlanFree is the tier users without a current subscription resolve to.
	PlanFree Plan = "free"
	// PlanPro is the default paid tier.
	PlanPro Plan = "pro"
	// PlanEnterprise is the top tier.
	PlanEnterprise Plan = "enterprise"
)

// Limits holds the resource limits attached to a plan.
type Limits struct {
	DailyRequests int // Metered requests allowed per usage day.
	RPM           int // Requests allowed per minute.
	MaxTokens     int // Token budget per request.
}

// defaultLimits is the built-in tier table.
var defaultLimits = map[Plan]Limits{
	PlanFree:       {DailyRequests: 50, RPM: 10, MaxTokens: 2000},
	PlanPro:        {DailyRequests: 500, RPM: 60, MaxTokens: 8000},
	PlanEnterprise: {DailyRequests: 5000, RPM: 120, MaxTokens: 32000},
}

// Registry maps plans to their limits. Loaded once at startup; read-only after.
type Registry struct {
	limits map[Plan]Limits
}

// NewRegistry constructs a Registry with the built-in tier table.
func NewRegistry() *Registry {
	limits := make(map[Plan]Limits, len(defaultLimits))
	for p, l := range defaultLimits {
		limits[p] = l
	}
	return &Registry{limits: limits}
}

// Apply merges configured overrides into the registry. Unknown plan names add
// new tiers; zero fields keep the existing value.
func (r *Registry) Apply(overrides map[string]Limits) {
	for name, override := range overrides {
		p := Plan(strings.ToLower(strings.TrimSpace(name)))
		if p == "" {
			continue
		}
		current := r.limits[p]
		if override.DailyRequests > 0 {
			current.DailyRequests = override.DailyRequests
		}
		if override.RPM > 0 {
			current.RPM = override.RPM
		}
		if override.MaxTokens > 0 {
			current.MaxTokens = override.MaxTokens
		}
		r.limits[p] = current
	}
}

// LimitsFor returns the limits for a plan, falling back to the free tier for
// unknown plans.
func (r *Registry) LimitsFor(p Plan) Limits {
	if limits, ok := r.limits[p]; ok {
		return limits
	}
	return r.limits[PlanFree]
}

// Plans returns all registered plans ordered by daily request limit.
func (r *Registry) Plans() []Plan {
	out := make([]Plan, 0, len(r.limits))
	for p := range r.limits {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		li, lj := r.limits[out[i]], r.limits[out[j]]
		if li.DailyRequests != lj.DailyRequests {
			return li.DailyRequests < lj.DailyRequests
		}
		return out[i] < out[j]
	})
	return out
}

// FromSubscription maps a subscription's plan name to a tier. Enterprise
// subscriptions keep their tier; any other paid subscription maps to pro.
func FromSubscription(planName string) Plan {
	if Plan(strings.ToLower(strings.TrimSpace(planName))) == PlanEnterprise {
		return PlanEnterprise
	}
	return PlanPro
}
