package dispatcher

import (
	"context"
	stderrors "errors"

	"github.com/redis/go-redis/v9"
)

// LeasePrefix namespaces the per-request send leases.
const LeasePrefix = "dispatch:lease:"

// releaseScript deletes the lease only while the caller still owns it.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// acquireLease claims id for owner until LeaseTTL passes. A request
// announced more than once is only ever sent by the lease holder. The owner
// is the stream entry id, so a reclaimed entry takes its own lease back.
func (d *Dispatcher) acquireLease(ctx context.Context, rdb redis.Cmdable, id, owner string) (bool, error) {
	key := LeasePrefix + id
	ok, err := rdb.SetNX(ctx, key, owner, d.config.LeaseTTL).Result()
	if err != nil || ok {
		return ok, err
	}

	holder, err := rdb.Get(ctx, key).Result()
	if stderrors.Is(err, redis.Nil) {
		// expired between the two calls
		return rdb.SetNX(ctx, key, owner, d.config.LeaseTTL).Result()
	}
	if err != nil {
		return false, err
	}
	if holder != owner {
		return false, nil
	}
	return true, rdb.Expire(ctx, key, d.config.LeaseTTL).Err()
}

func (d *Dispatcher) releaseLease(ctx context.Context, rdb redis.Cmdable, id, owner string) {
	err := rdb.Eval(ctx, releaseScript, []string{LeasePrefix + id}, owner).Err()
	if err != nil && !stderrors.Is(err, redis.Nil) {
		d.logger.Debug("lease release failed", map[string]interface{}{"requestId": id, "error": err})
	}
}
