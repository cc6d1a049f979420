package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ashureev/dynamo-gateway/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds configuration for the Redis connection.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore implements Repository on Redis hashes, one hash per user.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// consumeScript is the Redis counterpart of the SQLite conditional UPDATE.
// KEYS[1] user hash; ARGV: day, free limit, now (unix), user id.
// Returns {allowed, plan, quota_date, used}.
var consumeScript = redis.NewScript(`
local key = KEYS[1]
local day = ARGV[1]
local limit = tonumber(ARGV[2])
local now = ARGV[3]
if redis.call('EXISTS', key) == 0 then
  redis.call('HSET', key, 'user_id', ARGV[4], 'username', ARGV[4], 'plan', 'free',
    'quota_date', '', 'used', 0, 'last_seen_at', now, 'created_at', now, 'updated_at', now)
end
local plan = redis.call('HGET', key, 'plan')
local date = redis.call('HGET', key, 'quota_date')
local used = tonumber(redis.call('HGET', key, 'used') or '0')
if date ~= day then
  used = 0
end
if plan ~= 'plus' and used >= limit then
  return {0, plan, date, tonumber(redis.call('HGET', key, 'used') or '0')}
end
used = used + 1
redis.call('HSET', key, 'quota_date', day, 'used', used, 'updated_at', now)
return {1, plan, day, used}
`)

// NewRedis creates a Redis-backed repository and verifies the connection.
func NewRedis(cfg RedisConfig) (Repository, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "dynamo:user:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}, nil
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + userID
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// GetUser retrieves a user by their user ID.
func (s *RedisStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall user: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return &domain.User{
		UserID:     fields["user_id"],
		Username:   fields["username"],
		Plan:       domain.Plan(fields["plan"]),
		LastSeenAt: unixField(fields["last_seen_at"]),
		CreatedAt:  unixField(fields["created_at"]),
		UpdatedAt:  unixField(fields["updated_at"]),
	}, nil
}

// UpsertUser creates or updates a user hash without touching plan or usage.
func (s *RedisStore) UpsertUser(ctx context.Context, user *domain.User) error {
	key := s.key(user.UserID)
	plan := user.Plan
	if plan == "" {
		plan = domain.PlanFree
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "plan", string(plan))
		pipe.HSetNX(ctx, key, "quota_date", "")
		pipe.HSetNX(ctx, key, "used", 0)
		pipe.HSetNX(ctx, key, "created_at", user.CreatedAt.Unix())
		pipe.HSet(ctx, key,
			"user_id", user.UserID,
			"username", user.Username,
			"last_seen_at", user.LastSeenAt.Unix(),
			"updated_at", user.UpdatedAt.Unix(),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for an existing user.
func (s *RedisStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	key := s.key(userID)
	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}
	if exists == 0 {
		return nil
	}
	if err := s.rdb.HSet(ctx, key, "last_seen_at", lastSeen.Unix(), "updated_at", time.Now().Unix()).Err(); err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}
	return nil
}

// SetPlan changes the plan tier of a user.
func (s *RedisStore) SetPlan(ctx context.Context, userID string, plan domain.Plan) error {
	key := s.key(userID)
	now := time.Now().Unix()
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "user_id", userID)
		pipe.HSetNX(ctx, key, "username", userID)
		pipe.HSetNX(ctx, key, "quota_date", "")
		pipe.HSetNX(ctx, key, "used", 0)
		pipe.HSetNX(ctx, key, "created_at", now)
		pipe.HSetNX(ctx, key, "last_seen_at", now)
		pipe.HSet(ctx, key, "plan", string(plan), "updated_at", now)
		return nil
	})
	if err != nil {
		return fmt.Errorf("set plan: %w", err)
	}
	return nil
}

// GetUsage returns the usage record for a user.
func (s *RedisStore) GetUsage(ctx context.Context, userID string) (*domain.UsageRecord, error) {
	vals, err := s.rdb.HMGet(ctx, s.key(userID), "user_id", "plan", "quota_date", "used").Result()
	if err != nil {
		return nil, fmt.Errorf("hmget usage: %w", err)
	}
	if vals[0] == nil {
		return nil, nil
	}
	used, _ := strconv.Atoi(stringField(vals[3]))
	return &domain.UsageRecord{
		UserID:            stringField(vals[0]),
		Plan:              domain.Plan(stringField(vals[1])),
		QuotaDate:         stringField(vals[2]),
		RequestsUsedToday: used,
	}, nil
}

// ConsumeQuota runs the consume script, which Redis executes atomically.
func (s *RedisStore) ConsumeQuota(ctx context.Context, userID, day string, freeLimit int) (*domain.UsageRecord, bool, error) {
	res, err := consumeScript.Run(ctx, s.rdb, []string{s.key(userID)}, day, freeLimit, time.Now().Unix(), userID).Slice()
	if err != nil {
		return nil, false, fmt.Errorf("consume quota: %w", err)
	}
	if len(res) != 4 {
		return nil, false, errors.New("consume quota: unexpected script reply")
	}

	allowed, _ := res[0].(int64)
	used, _ := res[3].(int64)
	return &domain.UsageRecord{
		UserID:            userID,
		Plan:              domain.Plan(stringField(res[1])),
		QuotaDate:         stringField(res[2]),
		RequestsUsedToday: int(used),
	}, allowed == 1, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	if err := s.rdb.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}

func stringField(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func unixField(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(n, 0)
}
