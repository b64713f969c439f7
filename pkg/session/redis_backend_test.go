package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(client, "", 0)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	if err := store.Save(ctx, testRecord("sess-r", 2, now)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(ctx, "sess-r")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.SessionID != "sess-r" || len(got.Messages) != 2 {
		t.Fatalf("loaded record = %+v", got)
	}
	if got.Messages[0].Role != RoleUser || got.Messages[1].Role != RoleAssistant {
		t.Fatalf("roles = %q, %q", got.Messages[0].Role, got.Messages[1].Role)
	}
}

func TestRedisStoreNotFound(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	if _, err := store.Load(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Load missing = %v", err)
	}
	if err := store.Delete(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Delete missing = %v", err)
	}
}

func TestRedisStoreDelete(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, testRecord("gone", 2, time.Now().UTC())); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete(ctx, "gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Load(ctx, "gone"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Load after delete = %v", err)
	}
}

func TestRedisStoreList(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i, id := range []string{"a", "b", "c"} {
		if err := store.Save(ctx, testRecord(id, 2, now.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}

	summaries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("listed %d, want 3", len(summaries))
	}
	if summaries[0].SessionID != "c" {
		t.Fatalf("most recent first, got %+v", summaries)
	}
}

func TestRedisStoreTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(client, "", time.Minute)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	if err := store.Save(ctx, testRecord("ttl", 0, time.Now().UTC())); err != nil {
		t.Fatalf("Save: %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := store.Load(ctx, "ttl"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}
