package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/store"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestSnapshotCache(t *testing.T) {
	_, client := setupMiniredis(t)
	cache := NewSnapshotCache(client, "")
	ctx := context.Background()
	var generation string

	t.Run("Fetch empty", func(t *testing.T) {
		_, ok, err := cache.Fetch(ctx)
		if err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}
		if ok {
			t.Error("Expected an empty cache")
		}
	})

	t.Run("Publish and Fetch", func(t *testing.T) {
		stored, err := cache.Publish(ctx, 3, []byte(`{"rootId":"R"}`))
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
		if !stored {
			t.Fatal("Expected first publish to be stored")
		}

		got, ok, err := cache.Fetch(ctx)
		if err != nil || !ok {
			t.Fatalf("Fetch failed: ok=%v err=%v", ok, err)
		}
		if got.Seq != 3 || string(got.Document) != `{"rootId":"R"}` {
			t.Errorf("Unexpected cached graph: %+v", got)
		}
		if got.Generation == "" {
			t.Error("Expected the first publish to open a generation")
		}
		generation = got.Generation
	})

	t.Run("Stale publish is ignored", func(t *testing.T) {
		stored, err := cache.Publish(ctx, 2, []byte(`{"rootId":"OLD"}`))
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
		if stored {
			t.Error("Expected an older seq to be rejected")
		}
		got, _, _ := cache.Fetch(ctx)
		if got.Seq != 3 {
			t.Errorf("Expected seq 3 to survive, got %d", got.Seq)
		}
		if got.Generation != generation {
			t.Errorf("Expected generation %q to survive, got %q", generation, got.Generation)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		if err := cache.Clear(ctx); err != nil {
			t.Fatalf("Clear failed: %v", err)
		}
		_, ok, _ := cache.Fetch(ctx)
		if ok {
			t.Error("Expected cache to be empty after clear")
		}

		stored, err := cache.Publish(ctx, 1, []byte(`{"rootId":"NEW"}`))
		if err != nil || !stored {
			t.Fatalf("Expected a lower seq to be accepted after clear, got %v %v", stored, err)
		}
		got, ok, _ := cache.Fetch(ctx)
		if !ok || got.Seq != 1 || got.Generation == "" || got.Generation == generation {
			t.Errorf("Expected seq 1 in a new generation, got %+v", got)
		}
	})
}

func TestSnapshotCache_Subscribe(t *testing.T) {
	_, client := setupMiniredis(t)
	cache := NewSnapshotCache(client, "test")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, err := cache.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if _, err := cache.Publish(ctx, 7, []byte(`{}`)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case seq := <-updates:
		if seq != 7 {
			t.Errorf("Expected update for seq 7, got %d", seq)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for update")
	}

	cancel()
	select {
	case _, ok := <-updates:
		if ok {
			t.Error("Expected updates channel to close after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for close")
	}
}

func TestRedisLeaseStore(t *testing.T) {
	mr, client := setupMiniredis(t)
	leases := NewRedisLeaseStore(client, "")
	ctx := context.Background()
	ttl := time.Second

	acquired, err := leases.Acquire(ctx, "datamap-writer", "editor-a", ttl)
	if err != nil || !acquired {
		t.Fatalf("Acquire failed: acquired=%v err=%v", acquired, err)
	}

	l, err := leases.Get(ctx, "datamap-writer")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if l.HolderID != "editor-a" || l.Epoch != 1 || l.Version != 1 {
		t.Errorf("Unexpected lease after acquire: %+v", l)
	}

	// Re-acquire by the holder renews without moving the epoch.
	if acquired, _ := leases.Acquire(ctx, "datamap-writer", "editor-a", ttl); !acquired {
		t.Error("Expected holder to re-acquire")
	}
	l, _ = leases.Get(ctx, "datamap-writer")
	if l.Epoch != 1 || l.Version != 2 {
		t.Errorf("Expected epoch 1 version 2, got %+v", l)
	}

	if acquired, _ := leases.Acquire(ctx, "datamap-writer", "editor-b", ttl); acquired {
		t.Error("Expected a held lease to be refused")
	}

	mr.FastForward(2 * ttl)

	if acquired, _ := leases.Acquire(ctx, "datamap-writer", "editor-b", ttl); !acquired {
		t.Fatal("Expected takeover of an expired lease")
	}
	l, _ = leases.Get(ctx, "datamap-writer")
	if l.HolderID != "editor-b" || l.Epoch != 2 {
		t.Errorf("Expected editor-b at epoch 2, got %+v", l)
	}

	if err := leases.Renew(ctx, "datamap-writer", "editor-a", ttl); !errors.Is(err, store.ErrLeaseLost) {
		t.Errorf("Expected ErrLeaseLost for the old holder, got %v", err)
	}
	if err := leases.Renew(ctx, "datamap-writer", "editor-b", ttl); err != nil {
		t.Errorf("Renew failed: %v", err)
	}

	// Releasing as a non-holder leaves the lease alone.
	if err := leases.Release(ctx, "datamap-writer", "editor-a"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if l, _ := leases.Get(ctx, "datamap-writer"); l == nil {
		t.Fatal("Expected lease to survive a foreign release")
	}

	if err := leases.Release(ctx, "datamap-writer", "editor-b"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if l, _ := leases.Get(ctx, "datamap-writer"); l != nil {
		t.Errorf("Expected lease to be gone, got %+v", l)
	}
}
