// Package domain contains core domain types for the Dynamo gateway.
package domain

import (
	"time"
)

// User represents a caller known to the gateway together with its plan tier.
type User struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	Plan       Plan      `json:"plan"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
