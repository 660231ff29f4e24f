package directory

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"recruit-notifier/internal/common/logger"
)

const cachePrefix = "directory:"

// Cached keeps positive user and university lookups in Redis. Role listings
// are never cached since they change with every signup.
type Cached struct {
	next   Source
	rdb    redis.Cmdable
	ttl    time.Duration
	logger logger.Logger
}

func NewCached(next Source, rdb redis.Cmdable, ttl time.Duration, log logger.Logger) *Cached {
	return &Cached{
		next:   next,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.Component(log, "directory-cache"),
	}
}

func (c *Cached) UserIDsByRole(ctx context.Context, role string) ([]string, error) {
	return c.next.UserIDsByRole(ctx, role)
}

func (c *Cached) UserExists(ctx context.Context, userID string) (bool, error) {
	key := cachePrefix + "user:" + userID
	if _, err := c.rdb.Get(ctx, key).Result(); err == nil {
		return true, nil
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("cache read failed", map[string]interface{}{"key": key, "error": err})
	}

	exists, err := c.next.UserExists(ctx, userID)
	if err != nil || !exists {
		return exists, err
	}

	if err := c.rdb.Set(ctx, key, "1", c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", map[string]interface{}{"key": key, "error": err})
	}
	return true, nil
}

func (c *Cached) UniversityName(ctx context.Context, universityID string) (string, error) {
	key := cachePrefix + "university:" + universityID
	name, err := c.rdb.Get(ctx, key).Result()
	if err == nil {
		return name, nil
	}
	if !errors.Is(err, redis.Nil) {
		c.logger.Warn("cache read failed", map[string]interface{}{"key": key, "error": err})
	}

	name, err = c.next.UniversityName(ctx, universityID)
	if err != nil {
		return "", err
	}

	if err := c.rdb.Set(ctx, key, name, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", map[string]interface{}{"key": key, "error": err})
	}
	return name, nil
}
