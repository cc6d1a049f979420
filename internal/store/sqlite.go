package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/dynamo-gateway/internal/domain"
	"github.com/ashureev/dynamo-gateway/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	retry shared.RetryPolicy
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency. busy_timeout is set
	// per connection so concurrent quota updates wait instead of failing.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, retry: shared.DefaultRetryPolicy()}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		plan TEXT NOT NULL DEFAULT 'free',
		quota_date TEXT NOT NULL DEFAULT '',
		requests_used_today INTEGER NOT NULL DEFAULT 0,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_plan ON users(plan);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, plan, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var plan string
	var lastSeen, createdAt, updatedAt int64

	err := row.Scan(&user.UserID, &user.Username, &plan, &lastSeen, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.Plan = domain.Plan(plan)
	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, plan, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	plan := user.Plan
	if plan == "" {
		plan = domain.PlanFree
	}

	err := shared.Retry(ctx, s.retry, func() error {
		_, err := s.db.ExecContext(ctx, query,
			user.UserID, user.Username, string(plan),
			user.LastSeenAt.Unix(), user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}

	return nil
}

// SetPlan changes the plan tier of a user.
func (s *SQLiteStore) SetPlan(ctx context.Context, userID string, plan domain.Plan) error {
	now := time.Now().Unix()
	query := `
	INSERT INTO users (user_id, username, plan, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		plan = excluded.plan,
		updated_at = excluded.updated_at`

	err := shared.Retry(ctx, s.retry, func() error {
		_, err := s.db.ExecContext(ctx, query, userID, userID, string(plan), now, now, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("set plan: %w", err)
	}
	return nil
}

// GetUsage returns the usage record for a user.
func (s *SQLiteStore) GetUsage(ctx context.Context, userID string) (*domain.UsageRecord, error) {
	query := `SELECT user_id, plan, quota_date, requests_used_today FROM users WHERE user_id = ?`

	var rec domain.UsageRecord
	var plan string
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&rec.UserID, &plan, &rec.QuotaDate, &rec.RequestsUsedToday)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan usage row: %w", err)
	}
	rec.Plan = domain.Plan(plan)
	return &rec, nil
}

// ConsumeQuota applies the daily reset, the cap and the increment in a single
// UPDATE so concurrent requests from one user cannot lose updates. Every plan
// other than plus is capped.
func (s *SQLiteStore) ConsumeQuota(ctx context.Context, userID, day string, freeLimit int) (*domain.UsageRecord, bool, error) {
	now := time.Now().Unix()

	ensure := `
	INSERT INTO users (user_id, username, plan, last_seen_at, created_at, updated_at)
	VALUES (?, ?, 'free', ?, ?, ?)
	ON CONFLICT(user_id) DO NOTHING`

	// SET expressions see the pre-update row, so the CASE reads the old quota_date.
	consume := `
	UPDATE users SET
		requests_used_today = CASE WHEN quota_date = ? THEN requests_used_today + 1 ELSE 1 END,
		quota_date = ?,
		updated_at = ?
	WHERE user_id = ?
	  AND (plan = 'plus' OR quota_date <> ? OR requests_used_today < ?)
	RETURNING user_id, plan, quota_date, requests_used_today`

	var rec domain.UsageRecord
	allowed := true
	err := shared.Retry(ctx, s.retry, func() error {
		if _, err := s.db.ExecContext(ctx, ensure, userID, userID, now, now, now); err != nil {
			return err
		}

		var plan string
		err := s.db.QueryRowContext(ctx, consume, day, day, now, userID, day, freeLimit).
			Scan(&rec.UserID, &plan, &rec.QuotaDate, &rec.RequestsUsedToday)
		if errors.Is(err, sql.ErrNoRows) {
			allowed = false
			return nil
		}
		if err != nil {
			return err
		}
		allowed = true
		rec.Plan = domain.Plan(plan)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("consume quota: %w", err)
	}

	if !allowed {
		current, err := s.GetUsage(ctx, userID)
		if err != nil {
			return nil, false, err
		}
		if current == nil {
			return nil, false, fmt.Errorf("consume quota: user %s disappeared", userID)
		}
		return current, false, nil
	}

	return &rec, true, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
