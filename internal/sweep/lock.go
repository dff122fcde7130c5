package sweep

import (
	"context"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const lockKey = "entitlement:sweep:lock"

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// lock is a best-effort distributed mutex so only one replica runs a
// sweep tick at a time. The sweep itself is safe to run concurrently;
// the lock just avoids wasted duplicate scans.
type lock struct {
	client *redis.Client
	script *redis.Script
	token  string
}

func newLock(client *redis.Client) *lock {
	return &lock{
		client: client,
		script: redis.NewScript(lockReleaseScript),
		token:  uuid.NewString(),
	}
}

// Acquire returns true when the lock is held. With no redis client
// configured it always succeeds.
func (l *lock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	if l.client == nil {
		return true, nil
	}
	return l.client.SetNX(ctx, lockKey, l.token, ttl).Result()
}

// Release deletes the lock only if this instance still owns it.
func (l *lock) Release(ctx context.Context) error {
	if l.client == nil {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{lockKey}, l.token).Err()
}
