// Package redis shares datamap state between daemon instances through Redis: the
// latest published graph document and the writer lease.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultNamespace = "datamap"

// CachedGraph is a graph document as published to the cache. Generation changes
// whenever the cache is cleared; seqs are only comparable within a generation.
type CachedGraph struct {
	Seq        int64
	Document   []byte
	Generation string
}

// SnapshotCache stores the most recent graph document so that read replicas can
// serve queries without replaying the journal.
type SnapshotCache struct {
	client    *redis.Client
	namespace string
}

func NewSnapshotCache(client *redis.Client, namespace string) *SnapshotCache {
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &SnapshotCache{client: client, namespace: namespace}
}

func (c *SnapshotCache) graphKey() string {
	return fmt.Sprintf("%s:graph", c.namespace)
}

// Channel is the pub/sub channel announcing new journal positions.
func (c *SnapshotCache) Channel() string {
	return fmt.Sprintf("%s:graph:updates", c.namespace)
}

// Only overwrite when the journal position moves forward, so a slow writer can
// never roll the cache back. The first publish into an empty key opens a
// generation; later ones keep it.
var publishScript = redis.NewScript(`
	local current = redis.call("HGET", KEYS[1], "seq")
	if current and tonumber(current) >= tonumber(ARGV[1]) then
		return 0
	end
	redis.call("HSETNX", KEYS[1], "generation", ARGV[3])
	redis.call("HSET", KEYS[1], "seq", ARGV[1], "document", ARGV[2])
	redis.call("PUBLISH", KEYS[2], ARGV[1])
	return 1
`)

// Publish stores doc as the graph at journal position seq. It reports false when
// the cache already holds the same or a newer position.
func (c *SnapshotCache) Publish(ctx context.Context, seq int64, doc []byte) (bool, error) {
	res, err := publishScript.Run(ctx, c.client, []string{c.graphKey(), c.Channel()}, seq, string(doc), uuid.NewString()).Result()
	if err != nil {
		return false, fmt.Errorf("failed to publish graph at seq %d: %w", seq, err)
	}
	stored, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected return type from publish script")
	}
	return stored == 1, nil
}

// Fetch returns the cached graph. ok is false when nothing was published yet.
func (c *SnapshotCache) Fetch(ctx context.Context) (CachedGraph, bool, error) {
	vals, err := c.client.HMGet(ctx, c.graphKey(), "seq", "document", "generation").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return CachedGraph{}, false, nil
		}
		return CachedGraph{}, false, fmt.Errorf("failed to fetch cached graph: %w", err)
	}
	if len(vals) != 3 || vals[0] == nil || vals[1] == nil {
		return CachedGraph{}, false, nil
	}

	seqStr, ok := vals[0].(string)
	if !ok {
		return CachedGraph{}, false, fmt.Errorf("cached graph seq has type %T", vals[0])
	}
	seq, err := strconv.ParseInt(seqStr, 10, 64)
	if err != nil {
		return CachedGraph{}, false, fmt.Errorf("cached graph seq %q: %w", seqStr, err)
	}
	doc, ok := vals[1].(string)
	if !ok {
		return CachedGraph{}, false, fmt.Errorf("cached graph document has type %T", vals[1])
	}
	generation, _ := vals[2].(string)
	return CachedGraph{Seq: seq, Document: []byte(doc), Generation: generation}, true, nil
}

// Subscribe returns a channel of journal positions announced by Publish. The
// channel is closed when ctx is done.
func (c *SnapshotCache) Subscribe(ctx context.Context) (<-chan int64, error) {
	sub := c.client.Subscribe(ctx, c.Channel())
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", c.Channel(), err)
	}

	out := make(chan int64)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				seq, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					continue
				}
				select {
				case out <- seq:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Clear removes the cached graph and starts a new generation, so the next publish
// is accepted at any seq and followers reload it.
func (c *SnapshotCache) Clear(ctx context.Context) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.graphKey())
		pipe.HSet(ctx, c.graphKey(), "generation", uuid.NewString())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear cached graph: %w", err)
	}
	return nil
}
