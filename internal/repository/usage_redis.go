package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const usageKeyPrefix = "quota"

type redisUsageRepository struct {
	client *redis.Client
	loc    *time.Location
}

// NewRedisUsageRepository keeps the daily counters in Redis. Keys expire at
// the end of the day after the one they count.
func NewRedisUsageRepository(client *redis.Client, loc *time.Location) UsageRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &redisUsageRepository{client: client, loc: loc}
}

func usageKey(childID, day string) string {
	return fmt.Sprintf("%s:%s:%s", usageKeyPrefix, childID, day)
}

func (r *redisUsageRepository) Get(ctx context.Context, childID, day string) (int64, error) {
	n, err := r.client.Get(ctx, usageKey(childID, day)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (r *redisUsageRepository) Increment(ctx context.Context, childID, day string) (int64, error) {
	expireAt, err := r.expiry(day)
	if err != nil {
		return 0, err
	}

	key := usageKey(childID, day)
	pipe := r.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireAt(ctx, key, expireAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// IncrementIfBelow increments first and hands the slot back when the new
// count passes the limit, so concurrent callers never both take the last one.
func (r *redisUsageRepository) IncrementIfBelow(ctx context.Context, childID, day string, limit int64) (int64, bool, error) {
	if limit <= 0 {
		used, err := r.Get(ctx, childID, day)
		return used, false, err
	}
	used, err := r.Increment(ctx, childID, day)
	if err != nil {
		return 0, false, err
	}
	if used <= limit {
		return used, true, nil
	}
	if err := r.client.Decr(ctx, usageKey(childID, day)).Err(); err != nil {
		return 0, false, err
	}
	return limit, false, nil
}

func (r *redisUsageRepository) expiry(day string) (time.Time, error) {
	start, err := time.ParseInLocation("2006-01-02", day, r.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse usage day %q: %w", day, err)
	}
	return start.AddDate(0, 0, 2), nil
}
