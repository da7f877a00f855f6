package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// TallyKeyPrefix namespaces the per-day check-in counters maintained
// by the worker. Fields are ISO dates (YYYY-MM-DD).
const TallyKeyPrefix = "gatelog:tally:"

// Redis wraps the redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// IncrDailyTally bumps the check-in counter for one subject type on one day.
func (r *Redis) IncrDailyTally(ctx context.Context, subjectType, date string) error {
	return r.Client.HIncrBy(ctx, TallyKeyPrefix+subjectType, date, 1).Err()
}

// DailyTally reads the counter for one subject type on one day; missing fields read as 0.
func (r *Redis) DailyTally(ctx context.Context, subjectType, date string) (int64, error) {
	val, err := r.Client.HGet(ctx, TallyKeyPrefix+subjectType, date).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}
