/*
Package lock provides a Redis-backed inventory.SweepLock so that only one
engine process runs the hold-expiry sweep at a time.

PURPOSE:
  The sweep is safe to run concurrently (every expiry re-checks the hold
  under the booking lock), but running it once per tick across a fleet
  avoids pointless lock contention and duplicate log noise.

HOW IT WORKS:
  TryLock:  SET key token NX PX ttl. A fresh random token per acquisition.
  Unlock:   compare-and-delete script, so a process whose lease already
            expired never deletes a lease another process now owns.

  The TTL bounds how long a crashed sweeper blocks the others. Choose it
  longer than a sweep pass.

SEE ALSO:
  - inventory/sweeper.go: SweepLock and LocalLock
*/
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/warp/lodging-engine/inventory"
)

const DefaultKey = "lodging:sweep-lock"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// NewClient builds a Redis client with short timeouts. A sweep lock that
// cannot reach Redis fails fast rather than stalling the sweep ticker.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

// RedisLock implements inventory.SweepLock with a leased Redis key.
type RedisLock struct {
	rdb redis.Cmdable
	key string
	ttl time.Duration
}

var _ inventory.SweepLock = (*RedisLock)(nil)

func NewRedisLock(rdb redis.Cmdable, key string, ttl time.Duration) *RedisLock {
	if key == "" {
		key = DefaultKey
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLock{rdb: rdb, key: key, ttl: ttl}
}

func (l *RedisLock) TryLock(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	err := l.rdb.SetArgs(ctx, l.key, token, redis.SetArgs{Mode: "NX", TTL: l.ttl}).Err()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis set %s: %w", l.key, err)
	}
	unlock := func() {
		// the caller's ctx may already be cancelled at shutdown
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.rdb, []string{l.key}, token).Err()
	}
	return unlock, true, nil
}
