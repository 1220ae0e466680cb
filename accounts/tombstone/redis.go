package tombstone

import (
	"context"
	"fmt"
	"time"

	apperrors "accountd/pkg/errors"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	leasePrefix     = "DeletedAccountsLease::"
	tombstonePrefix = "DeletedAccounts::"
)

// redisCommander is the narrow slice of *redis.Client the gate needs. It
// exists so tests can supply an in-memory fake instead of a live Redis
// server or a hand-rolled miniredis dependency outside this module's stack.
type redisCommander interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	GetDel(ctx context.Context, key string) (string, bool, error)
	Del(ctx context.Context, keys ...string) error
}

type goRedisCommander struct {
	client *goredis.Client
}

func (c *goRedisCommander) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, value, ttl).Result()
}

func (c *goRedisCommander) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *goRedisCommander) GetDel(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.GetDel(ctx, key).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *goRedisCommander) Del(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

// RedisGate is the go-redis-backed Gate implementation.
type RedisGate struct {
	cmd          redisCommander
	leaseTTL     time.Duration
	tombstoneTTL time.Duration
	pollInterval time.Duration
}

// NewRedisGate constructs a Gate over a live Redis client. leaseTTL bounds
// how long a critical section may run before its lease is considered
// abandoned; tombstoneTTL is how long a deleted account's aci stays
// reclaimable (config.TombstoneTTL, 7 days by default, as DESIGN.md's
// open-question resolution records).
func NewRedisGate(client *goredis.Client, leaseTTL, tombstoneTTL time.Duration) *RedisGate {
	return &RedisGate{
		cmd:          &goRedisCommander{client: client},
		leaseTTL:     leaseTTL,
		tombstoneTTL: tombstoneTTL,
		pollInterval: 25 * time.Millisecond,
	}
}

func leaseKey(number string) string { return leasePrefix + number }
func tombstoneKey(number string) string { return tombstonePrefix + number }

// acquire spins on SetNX until it wins the lease or ctx is canceled. No
// backoff beyond a short fixed poll: contention on a single phone number's
// lease is expected to be rare and brief.
func (g *RedisGate) acquire(ctx context.Context, number string) error {
	key := leaseKey(number)
	for {
		ok, err := g.cmd.SetNX(ctx, key, "1", g.leaseTTL)
		if err != nil {
			return fmt.Errorf("acquire lease for %s: %w", number, err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return apperrors.ErrInterrupted
		case <-time.After(g.pollInterval):
		}
	}
}

func (g *RedisGate) release(ctx context.Context, number string) {
	_ = g.cmd.Del(ctx, leaseKey(number))
}

func (g *RedisGate) LockAndTake(ctx context.Context, number string, fn TakeFn) error {
	if err := g.acquire(ctx, number); err != nil {
		return err
	}
	defer g.release(ctx, number)

	maybeACI, err := g.takeTombstone(ctx, number)
	if err != nil {
		return err
	}
	return fn(ctx, maybeACI)
}

func (g *RedisGate) LockAndPut(ctx context.Context, number string, fn PutFn) error {
	if err := g.acquire(ctx, number); err != nil {
		return err
	}
	defer g.release(ctx, number)

	aci, err := fn(ctx)
	if err != nil {
		return err
	}
	return g.putTombstone(ctx, number, aci)
}

func (g *RedisGate) LockAndPutCrossNumber(ctx context.Context, oldNumber, newNumber string, fn CrossNumberFn) error {
	first, second := oldNumber, newNumber
	if second < first {
		first, second = second, first
	}

	if err := g.acquire(ctx, first); err != nil {
		return err
	}
	defer g.release(ctx, first)

	if err := g.acquire(ctx, second); err != nil {
		return err
	}
	defer g.release(ctx, second)

	deletedNewACI, err := g.takeTombstone(ctx, newNumber)
	if err != nil {
		return err
	}

	displacedACI, err := fn(ctx, deletedNewACI)
	if err != nil {
		return err
	}
	if displacedACI == nil {
		return nil
	}
	return g.putTombstone(ctx, oldNumber, *displacedACI)
}

func (g *RedisGate) takeTombstone(ctx context.Context, number string) (*uuid.UUID, error) {
	val, found, err := g.cmd.GetDel(ctx, tombstoneKey(number))
	if err != nil {
		return nil, fmt.Errorf("read tombstone for %s: %w", number, err)
	}
	if !found {
		return nil, nil
	}
	aci, err := uuid.Parse(val)
	if err != nil {
		return nil, fmt.Errorf("parse tombstone aci for %s: %w", number, err)
	}
	return &aci, nil
}

func (g *RedisGate) putTombstone(ctx context.Context, number string, aci uuid.UUID) error {
	if err := g.cmd.Set(ctx, tombstoneKey(number), aci.String(), g.tombstoneTTL); err != nil {
		return fmt.Errorf("write tombstone for %s: %w", number, err)
	}
	return nil
}
