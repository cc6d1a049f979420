package domain

import "strings"

// Plan is a user's subscription tier.
type Plan string

const (
	// PlanFree is the default tier: capped daily requests, no search, no deep dive.
	PlanFree Plan = "free"
	// PlanPlus is the paid tier.
	PlanPlus Plan = "plus"
)

// ParsePlan maps a loosely formatted plan name onto a known Plan.
func ParsePlan(s string) (Plan, bool) {
	switch Plan(strings.ToLower(strings.TrimSpace(s))) {
	case PlanFree:
		return PlanFree, true
	case PlanPlus:
		return PlanPlus, true
	default:
		return "", false
	}
}

// QuotaDateLayout is the calendar-day key used for quota resets.
const QuotaDateLayout = "2006-01-02"

// UsageRecord tracks how many requests a user made on QuotaDate.
type UsageRecord struct {
	UserID            string `json:"user_id"`
	Plan              Plan   `json:"plan"`
	QuotaDate         string `json:"quota_date"`
	RequestsUsedToday int    `json:"requests_used_today"`
}

// UsedOn returns the request count for day (formatted with QuotaDateLayout),
// treating a stale QuotaDate as zero usage.
func (u *UsageRecord) UsedOn(day string) int {
	if u.QuotaDate != day {
		return 0
	}
	return u.RequestsUsedToday
}
