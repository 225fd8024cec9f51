package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewClient creates and returns a new Redis client.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		PoolSize:     10,
	})
}

// renewScript extends the lock TTL only if this instance still owns it.
// Atomic so a lapsed leader cannot clobber its successor.
var renewScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	end
	return 0
`)

// LeaderLock elects a single instance per named role (sweeper, ranker) via
// SETNX with a TTL. The periodic services call TryAcquire each tick; losing
// the election just means skipping the tick. Overlap prevention is advisory:
// the sweeps themselves stay safe to duplicate.
type LeaderLock struct {
	client     *redis.Client
	key        string
	instanceID string
	ttl        time.Duration
}

// NewLeaderLock creates a lock for the given role. instanceID must be unique
// per process.
func NewLeaderLock(client *redis.Client, role, instanceID string, ttl time.Duration) *LeaderLock {
	return &LeaderLock{
		client:     client,
		key:        "leader:" + role,
		instanceID: instanceID,
		ttl:        ttl,
	}
}

// TryAcquire attempts to become (or remain) leader. Returns true when this
// instance holds the lock for the coming TTL window.
func (l *LeaderLock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.instanceID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("leader election SetNX for %s: %w", l.key, err)
	}
	if ok {
		return true, nil
	}

	result, err := renewScript.Run(ctx, l.client, []string{l.key}, l.instanceID, l.ttl.Milliseconds()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("leader renewal for %s: %w", l.key, err)
	}
	return result == 1, nil
}

// Release drops the lock if this instance owns it. Called on shutdown so a
// successor does not wait out the TTL.
func (l *LeaderLock) Release(ctx context.Context) error {
	released := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`)
	if err := released.Run(ctx, l.client, []string{l.key}, l.instanceID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("leader release for %s: %w", l.key, err)
	}
	return nil
}
