// Package quota enforces the per-user daily request budget and plan gating.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/dynamo-gateway/internal/domain"
	"github.com/ashureev/dynamo-gateway/internal/metrics"
)

// DefaultFreeDailyLimit is the number of requests a Free user may make per day.
const DefaultFreeDailyLimit = 10

// UpgradePrompt is shown to Free users who hit the daily limit.
const UpgradePrompt = "You have used all of today's free Dynamo AI requests. Upgrade to Dynamo Plus for unlimited research, Deep Dive and live web search."

// Store is the persistence the enforcer needs. store.Repository satisfies it.
type Store interface {
	ConsumeQuota(ctx context.Context, userID, day string, freeLimit int) (*domain.UsageRecord, bool, error)
	GetUsage(ctx context.Context, userID string) (*domain.UsageRecord, error)
}

// ExceededError rejects a request before any provider spend.
type ExceededError struct {
	UserID string
	Limit  int
	Used   int
}

func (e *ExceededError) Error() string {
	return UpgradePrompt
}

// Flags are the request modes subject to plan gating.
type Flags struct {
	DeepDive  bool
	UseSearch bool
}

// Decision is the outcome of an admitted request.
type Decision struct {
	Usage domain.UsageRecord
	// Flags are the effective modes after plan gating.
	Flags Flags
	// Downgraded is true when a requested mode was switched off by the plan.
	Downgraded bool
}

// Status describes a user's quota for today.
type Status struct {
	Plan      domain.Plan `json:"plan"`
	QuotaDate string      `json:"quota_date"`
	Used      int         `json:"requests_used_today"`
	// Limit and Remaining are -1 for uncapped plans.
	Limit     int `json:"daily_limit"`
	Remaining int `json:"remaining"`
}

// Enforcer admits or rejects requests against the daily budget.
type Enforcer struct {
	store    Store
	limit    int
	now      func() time.Time
	location *time.Location
}

// Option configures an Enforcer.
type Option func(*Enforcer)

// WithClock overrides the time source used to pick the quota day.
func WithClock(now func() time.Time) Option {
	return func(e *Enforcer) { e.now = now }
}

// WithLocation sets the time zone whose calendar day resets the quota.
func WithLocation(loc *time.Location) Option {
	return func(e *Enforcer) { e.location = loc }
}

// NewEnforcer creates an Enforcer. A non-positive limit uses DefaultFreeDailyLimit.
func NewEnforcer(store Store, freeLimit int, opts ...Option) *Enforcer {
	if freeLimit <= 0 {
		freeLimit = DefaultFreeDailyLimit
	}
	e := &Enforcer{store: store, limit: freeLimit, now: time.Now, location: time.UTC}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Limit returns the Free plan daily limit.
func (e *Enforcer) Limit() int {
	return e.limit
}

// Today returns the current quota day key.
func (e *Enforcer) Today() string {
	return e.now().In(e.location).Format(domain.QuotaDateLayout)
}

// Admit consumes one unit of the user's quota in a single atomic store
// operation. The unit is spent before the provider is called, so a request
// that later fails upstream still counts.
func (e *Enforcer) Admit(ctx context.Context, userID string, flags Flags) (Decision, error) {
	record, allowed, err := e.store.ConsumeQuota(ctx, userID, e.Today(), e.limit)
	if err != nil {
		return Decision{}, fmt.Errorf("consume quota: %w", err)
	}
	if !allowed {
		metrics.QuotaRejections.Inc()
		used := e.limit
		if record != nil {
			used = record.RequestsUsedToday
		}
		return Decision{}, &ExceededError{UserID: userID, Limit: e.limit, Used: used}
	}

	d := Decision{Usage: *record, Flags: flags}
	if record.Plan != domain.PlanPlus {
		d.Downgraded = flags.DeepDive || flags.UseSearch
		d.Flags = Flags{}
	}
	return d, nil
}

// Status reports today's usage without consuming quota.
func (e *Enforcer) Status(ctx context.Context, userID string) (Status, error) {
	today := e.Today()
	record, err := e.store.GetUsage(ctx, userID)
	if err != nil {
		return Status{}, fmt.Errorf("get usage: %w", err)
	}
	if record == nil {
		record = &domain.UsageRecord{UserID: userID, Plan: domain.PlanFree}
	}

	used := record.UsedOn(today)
	st := Status{Plan: record.Plan, QuotaDate: today, Used: used, Limit: -1, Remaining: -1}
	if record.Plan != domain.PlanPlus {
		st.Plan = domain.PlanFree
		st.Limit = e.limit
		st.Remaining = max(e.limit-used, 0)
	}
	return st, nil
}
