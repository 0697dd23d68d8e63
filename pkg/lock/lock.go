// Package lock serializes edits to a device across newtcli processes.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/newtcli/pkg/util"
)

// Locker grants exclusive edit access to a device.
type Locker interface {
	// Acquire fails with util.ErrDeviceLocked when another holder has it.
	Acquire(ctx context.Context, device, holder string, ttl time.Duration) error
	Release(ctx context.Context, device, holder string) error
	// Holder returns the current holder, or "" when the device is free.
	Holder(ctx context.Context, device string) (string, time.Time, error)
}

// acquireScript returns 1 on success, 0 if already locked.
var acquireScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 1 then
	return 0
end
redis.call("HSET", key, "holder", ARGV[1], "acquired", ARGV[2], "ttl", ARGV[3])
redis.call("EXPIRE", key, tonumber(ARGV[3]))
return 1
`)

// releaseScript returns 1 on success, 0 on holder mismatch, -1 if the key
// does not exist.
var releaseScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
	return -1
end
local current = redis.call("HGET", key, "holder")
if current ~= ARGV[1] then
	return 0
end
redis.call("DEL", key)
return 1
`)

// RedisLocker keeps locks as NEWTCLI_LOCK|<device> hashes with a TTL, so a
// crashed holder cannot keep a device locked forever.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker connects to Redis at addr.
func NewRedisLocker(addr string, db int) *RedisLocker {
	return &RedisLocker{client: redis.NewClient(&redis.Options{Addr: addr, DB: db})}
}

// Ping checks the connection.
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func lockKey(device string) string {
	return fmt.Sprintf("NEWTCLI_LOCK|%s", device)
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, device, holder string, ttl time.Duration) error {
	seconds := int(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := acquireScript.Run(ctx, l.client, []string{lockKey(device)},
		holder, now, fmt.Sprintf("%d", seconds)).Int()
	if err != nil {
		return fmt.Errorf("acquiring lock for %s: %w", device, err)
	}
	if result == 0 {
		return fmt.Errorf("%s: %w", device, util.ErrDeviceLocked)
	}
	util.WithDevice(device).Debugf("lock acquired by %s (ttl %ds)", holder, seconds)
	return nil
}

// Release implements Locker. Releasing a lock that has expired is not an
// error.
func (l *RedisLocker) Release(ctx context.Context, device, holder string) error {
	result, err := releaseScript.Run(ctx, l.client, []string{lockKey(device)}, holder).Int()
	if err != nil {
		return fmt.Errorf("releasing lock for %s: %w", device, err)
	}
	if result == 0 {
		return fmt.Errorf("lock holder mismatch for %s", device)
	}
	return nil
}

// Holder implements Locker.
func (l *RedisLocker) Holder(ctx context.Context, device string) (string, time.Time, error) {
	vals, err := l.client.HGetAll(ctx, lockKey(device)).Result()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("getting lock holder for %s: %w", device, err)
	}
	if len(vals) == 0 {
		return "", time.Time{}, nil
	}
	acquired, _ := time.Parse(time.RFC3339, vals["acquired"])
	return vals["holder"], acquired, nil
}

// Close closes the Redis client.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}

// Local is an in-process Locker for single-process use and tests. TTLs
// are honored against the wall clock.
type Local struct {
	mu    sync.Mutex
	locks map[string]localLock
}

type localLock struct {
	holder   string
	acquired time.Time
	expires  time.Time
}

// NewLocal creates an empty in-process locker.
func NewLocal() *Local {
	return &Local{locks: map[string]localLock{}}
}

// Acquire implements Locker.
func (l *Local) Acquire(ctx context.Context, device, holder string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if cur, ok := l.locks[device]; ok && now.Before(cur.expires) {
		return fmt.Errorf("%s: %w", device, util.ErrDeviceLocked)
	}
	l.locks[device] = localLock{holder: holder, acquired: now, expires: now.Add(ttl)}
	return nil
}

// Release implements Locker.
func (l *Local) Release(ctx context.Context, device, holder string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.locks[device]
	if !ok {
		return nil
	}
	if cur.holder != holder {
		return fmt.Errorf("lock holder mismatch for %s", device)
	}
	delete(l.locks, device)
	return nil
}

// Holder implements Locker.
func (l *Local) Holder(ctx context.Context, device string) (string, time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.locks[device]
	if !ok || !time.Now().Before(cur.expires) {
		return "", time.Time{}, nil
	}
	return cur.holder, cur.acquired, nil
}
