package main

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

// newTestRedisStore connects to REDIS_ADDR and returns a store under a key
// prefix unique to the test. Keys are removed when the test ends.
func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable at %s: %v", addr, err)
	}
	prefix := fmt.Sprintf("listapp-test-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		keys, _ := client.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		client.Close()
	})
	return NewRedisStore(client, prefix)
}

func TestRedisStoreContract(t *testing.T) {
	testRepositoryContract(t, newTestRedisStore(t))
}

func TestRedisStoreDeleteRemovesIndexEntry(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	if _, err := s.Add(ctx, testItem(idA, "x", time.Now().UTC())); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := s.Delete(ctx, idA); err != nil || !ok {
		t.Fatalf("Delete: ok=%v err=%v", ok, err)
	}
	members, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 0 {
		t.Fatalf("index still holds %v", members)
	}
}

func TestRedisStoreAddKeepsKeyAndIndexTogether(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := s.Add(ctx, testItem(idA, "x", now)); err != nil {
		t.Fatal(err)
	}
	indexed, err := s.client.SIsMember(ctx, s.indexKey(), idA.String()).Result()
	if err != nil || !indexed {
		t.Fatalf("added item not indexed: %v %v", indexed, err)
	}

	// a rejected duplicate must leave both the document and the index as they were
	if _, err := s.Add(ctx, testItem(idA, "y", now)); err != ErrDuplicateKey {
		t.Fatalf("duplicate Add: %v", err)
	}
	got, ok, err := s.Get(ctx, idA)
	if err != nil || !ok || got.Text != "x" {
		t.Fatalf("Get after duplicate: %+v ok=%v err=%v", got, ok, err)
	}
	if n, _ := s.client.SCard(ctx, s.indexKey()).Result(); n != 1 {
		t.Fatalf("index holds %d entries", n)
	}
}

func TestRedisStoreReplaceAllDropsStaleKeys(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := s.Add(ctx, testItem(idA, "old", now)); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplaceAll(ctx, []ListItem{testItem(idB, "new", now)}); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.client.Exists(ctx, s.itemKey(idA.String())).Result(); n != 0 {
		t.Fatalf("stale item key survived ReplaceAll")
	}
	keys, err := s.Keys(ctx)
	if err != nil || len(keys) != 1 || keys[0] != idB {
		t.Fatalf("Keys = %v, %v", keys, err)
	}
}
