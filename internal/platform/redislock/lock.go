// Package redislock provides the coarse advisory lock used to serialize
// high-value operations (one business-plan generation per project) across
// processes. It sits on top of the job-claim protocol, not in place of it.
package redislock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

var ErrNotHeld = errors.New("lock not held")

type Lock interface {
	Key() string
	Unlock(ctx context.Context) error
}

type Locker interface {
	// TryLock returns (lock, true, nil) when acquired and (nil, false, nil)
	// when someone else holds key.
	TryLock(ctx context.Context, key string, ttl time.Duration) (Lock, bool, error)
}

// Key builds "lock:<parts...>".
func Key(parts ...string) string {
	clean := make([]string, 0, len(parts)+1)
	clean = append(clean, "lock")
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			clean = append(clean, p)
		}
	}
	return strings.Join(clean, ":")
}

// ---- Redis ----

// compare-and-delete so a holder whose TTL lapsed cannot release a newer owner's lock
var unlockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLocker struct {
	rdb goredis.UniversalClient
}

func NewRedisLocker(rdb goredis.UniversalClient) Locker {
	return &redisLocker{rdb: rdb}
}

func (l *redisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (Lock, bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLock{rdb: l.rdb, key: key, token: token}, true, nil
}

type redisLock struct {
	rdb   goredis.UniversalClient
	key   string
	token string
}

func (l *redisLock) Key() string { return l.key }

func (l *redisLock) Unlock(ctx context.Context) error {
	n, err := unlockScript.Run(ctx, l.rdb, []string{l.key}, l.token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// ---- in-process ----

type localLocker struct {
	mu    sync.Mutex
	held  map[string]localEntry
	clock func() time.Time
}

type localEntry struct {
	token   string
	expires time.Time
}

// NewLocalLocker is the single-process fallback used when REDIS_ADDR is unset.
func NewLocalLocker() Locker {
	return &localLocker{held: map[string]localEntry{}, clock: time.Now}
}

func (l *localLocker) TryLock(_ context.Context, key string, ttl time.Duration) (Lock, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	if e, ok := l.held[key]; ok && now.Before(e.expires) {
		return nil, false, nil
	}
	token := uuid.NewString()
	l.held[key] = localEntry{token: token, expires: now.Add(ttl)}
	return &localLock{owner: l, key: key, token: token}, true, nil
}

type localLock struct {
	owner *localLocker
	key   string
	token string
}

func (l *localLock) Key() string { return l.key }

func (l *localLock) Unlock(context.Context) error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()
	e, ok := l.owner.held[l.key]
	if !ok || e.token != l.token {
		return ErrNotHeld
	}
	delete(l.owner.held, l.key)
	return nil
}
