package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/store"
)

// RedisLeaseStore implements store.LeaseStore so that several daemons sharing one
// Redis can agree on a single graph writer.
type RedisLeaseStore struct {
	client    *redis.Client
	namespace string
}

var _ store.LeaseStore = (*RedisLeaseStore)(nil)

func NewRedisLeaseStore(client *redis.Client, namespace string) *RedisLeaseStore {
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &RedisLeaseStore{client: client, namespace: namespace}
}

func (s *RedisLeaseStore) makeKey(name string) string {
	return fmt.Sprintf("%s:lease:%s", s.namespace, name)
}

// The epoch lives in its own key so it keeps counting across releases.
func (s *RedisLeaseStore) epochKey(name string) string {
	return fmt.Sprintf("%s:lease:%s:epoch", s.namespace, name)
}

// KEYS[1] lease hash, KEYS[2] epoch counter; ARGV[1] holder, ARGV[2] ttl ms.
var acquireScript = redis.NewScript(`
	local holder = redis.call("HGET", KEYS[1], "holder")
	if holder and holder ~= ARGV[1] then
		return 0
	end
	if not holder then
		local epoch = redis.call("INCR", KEYS[2])
		redis.call("HSET", KEYS[1], "holder", ARGV[1], "epoch", epoch, "version", 0)
	end
	redis.call("HINCRBY", KEYS[1], "version", 1)
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
	return 1
`)

var renewScript = redis.NewScript(`
	if redis.call("HGET", KEYS[1], "holder") == ARGV[1] then
		redis.call("HINCRBY", KEYS[1], "version", 1)
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

var releaseScript = redis.NewScript(`
	if redis.call("HGET", KEYS[1], "holder") == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

func (s *RedisLeaseStore) Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error) {
	res, err := acquireScript.Run(ctx, s.client, []string{s.makeKey(name), s.epochKey(name)}, holderID, ttl.Milliseconds()).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}
	acquired, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected return type from acquire script")
	}
	return acquired == 1, nil
}

func (s *RedisLeaseStore) Renew(ctx context.Context, name, holderID string, ttl time.Duration) error {
	res, err := renewScript.Run(ctx, s.client, []string{s.makeKey(name)}, holderID, ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("failed to execute renew script: %w", err)
	}

	success, ok := res.(int64)
	if !ok {
		return fmt.Errorf("unexpected return type from renew script")
	}
	if success != 1 {
		return store.ErrLeaseLost
	}
	return nil
}

// Release deletes the lease if holderID still holds it. A lease that already
// expired or moved on is left alone and no error is returned.
func (s *RedisLeaseStore) Release(ctx context.Context, name, holderID string) error {
	if _, err := releaseScript.Run(ctx, s.client, []string{s.makeKey(name)}, holderID).Result(); err != nil {
		return fmt.Errorf("failed to execute release script: %w", err)
	}
	return nil
}

func (s *RedisLeaseStore) Get(ctx context.Context, name string) (*store.Lease, error) {
	key := s.makeKey(name)

	var fields struct {
		Holder  string `redis:"holder"`
		Epoch   int64  `redis:"epoch"`
		Version int64  `redis:"version"`
	}
	cmd := s.client.HGetAll(ctx, key)
	if err := cmd.Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lease: %w", err)
	}
	if len(cmd.Val()) == 0 {
		return nil, nil
	}
	if err := cmd.Scan(&fields); err != nil {
		return nil, fmt.Errorf("failed to decode lease: %w", err)
	}

	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get lease ttl: %w", err)
	}

	return &store.Lease{
		Name:      name,
		HolderID:  fields.Holder,
		ExpiresAt: time.Now().UTC().Add(ttl),
		Version:   fields.Version,
		Epoch:     fields.Epoch,
	}, nil
}
