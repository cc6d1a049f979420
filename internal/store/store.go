// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/dynamo-gateway/internal/domain"
)

// Repository defines the interface for persisting users and their daily usage.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns nil, nil when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record. The plan and usage
	// counters of an existing user are left untouched.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// SetPlan changes the plan tier of a user, creating the user if needed.
	SetPlan(ctx context.Context, userID string, plan domain.Plan) error

	// GetUsage returns the stored usage record for a user. Returns nil, nil when absent.
	GetUsage(ctx context.Context, userID string) (*domain.UsageRecord, error)

	// ConsumeQuota performs one atomic read-modify-write of the user's usage:
	// the counter is reset when the stored quota date differs from day, a
	// free-plan user already at freeLimit is rejected (allowed=false, record
	// unchanged), and every other request increments the counter by one.
	ConsumeQuota(ctx context.Context, userID, day string, freeLimit int) (record *domain.UsageRecord, allowed bool, err error)

	// Ping verifies connectivity and returns an error if the backend is unreachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
