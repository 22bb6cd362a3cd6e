package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// Backend is the storage behind tenant queues. Every key is scoped by
// hackathon id, so one tenant's backlog can never delay another's.
type Backend interface {
	// PushReady appends a job payload to the tenant's ready list.
	PushReady(ctx context.Context, hackathonID string, payload []byte) error
	// PopReady claims the oldest ready payload into the tenant's processing
	// list, blocking up to timeout. Returns (nil, nil) when the timeout
	// elapses with nothing to claim.
	PopReady(ctx context.Context, hackathonID string, timeout time.Duration) ([]byte, error)
	// Release removes a claimed payload from the processing list once the
	// job has reached a terminal outcome.
	Release(ctx context.Context, hackathonID string, payload []byte) error
	// Reclaim moves abandoned processing payloads back onto the ready list
	// and returns how many were moved. Runs once per worker start, so a job
	// claimed by a crashed worker is re-delivered rather than lost.
	Reclaim(ctx context.Context, hackathonID string) (int, error)
	// PushDelayed parks a payload until readyAt.
	PushDelayed(ctx context.Context, hackathonID string, payload []byte, readyAt time.Time) error
	// PromoteDue moves payloads whose readyAt has passed back onto the
	// ready list and returns how many were promoted.
	PromoteDue(ctx context.Context, hackathonID string, now time.Time) (int, error)
	// PushFailed dead-letters a payload that exhausted its retries.
	PushFailed(ctx context.Context, hackathonID string, payload []byte) error
	// RegisterTenant records the tenant for worker discovery.
	RegisterTenant(ctx context.Context, hackathonID string) error
	// Tenants lists every tenant ever registered.
	Tenants(ctx context.Context) ([]string, error)
}

const tenantSetKey = "notifications:tenants"

// RedisBackend stores tenant queues in Redis: a ready list, a processing
// list holding claimed payloads, a delayed zset scored by promotion time,
// and a failed list per hackathon.
type RedisBackend struct {
	rdb redis.UniversalClient
}

func NewRedisBackend(rdb redis.UniversalClient) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

func queueKey(hackathonID, suffix string) string {
	return "notifications-" + hackathonID + ":" + suffix
}

func (b *RedisBackend) PushReady(ctx context.Context, hackathonID string, payload []byte) error {
	return b.rdb.LPush(ctx, queueKey(hackathonID, "ready"), payload).Err()
}

func (b *RedisBackend) PopReady(ctx context.Context, hackathonID string, timeout time.Duration) ([]byte, error) {
	// Claim into the processing list rather than popping destructively, so
	// a crash between claim and terminal outcome leaves the payload
	// recoverable by Reclaim.
	res, err := b.rdb.BRPopLPush(ctx, queueKey(hackathonID, "ready"), queueKey(hackathonID, "processing"), timeout).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(res), nil
}

func (b *RedisBackend) Release(ctx context.Context, hackathonID string, payload []byte) error {
	return b.rdb.LRem(ctx, queueKey(hackathonID, "processing"), 1, payload).Err()
}

func (b *RedisBackend) Reclaim(ctx context.Context, hackathonID string) (int, error) {
	moved := 0
	for {
		err := b.rdb.RPopLPush(ctx, queueKey(hackathonID, "processing"), queueKey(hackathonID, "ready")).Err()
		if err == redis.Nil {
			return moved, nil
		}
		if err != nil {
			return moved, err
		}
		moved++
	}
}

func (b *RedisBackend) PushDelayed(ctx context.Context, hackathonID string, payload []byte, readyAt time.Time) error {
	return b.rdb.ZAdd(ctx, queueKey(hackathonID, "delayed"), &redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: payload,
	}).Err()
}

func (b *RedisBackend) PromoteDue(ctx context.Context, hackathonID string, now time.Time) (int, error) {
	delayedKey := queueKey(hackathonID, "delayed")
	due, err := b.rdb.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: formatScore(now),
	}).Result()
	if err != nil {
		return 0, err
	}
	promoted := 0
	for _, member := range due {
		// ZRem-then-push so two promoters cannot double-deliver the
		// same payload: only the instance that removes it pushes it.
		removed, err := b.rdb.ZRem(ctx, delayedKey, member).Result()
		if err != nil {
			return promoted, err
		}
		if removed == 0 {
			continue
		}
		if err := b.rdb.LPush(ctx, queueKey(hackathonID, "ready"), member).Err(); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

func (b *RedisBackend) PushFailed(ctx context.Context, hackathonID string, payload []byte) error {
	return b.rdb.LPush(ctx, queueKey(hackathonID, "failed"), payload).Err()
}

func (b *RedisBackend) RegisterTenant(ctx context.Context, hackathonID string) error {
	return b.rdb.SAdd(ctx, tenantSetKey, hackathonID).Err()
}

func (b *RedisBackend) Tenants(ctx context.Context) ([]string, error) {
	return b.rdb.SMembers(ctx, tenantSetKey).Result()
}

func formatScore(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
