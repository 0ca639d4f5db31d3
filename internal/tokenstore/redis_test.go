package tokenstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisSharedBetweenClients(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	newStore := func() *Store {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return New(NewRedis(client, "test:"))
	}
	first, second := newStore(), newStore()

	if err := first.Save(ctx, Pair{Access: "a", Refresh: "r"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if v, err := mr.Get("test:access"); err != nil || v != `"a"` {
		t.Fatalf("unexpected raw value %q (%v)", v, err)
	}

	got, err := second.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != (Pair{Access: "a", Refresh: "r"}) {
		t.Fatalf("unexpected pair %+v", got)
	}

	if err := second.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if mr.Exists("test:access") || mr.Exists("test:refresh") {
		t.Fatal("keys should be deleted")
	}
	got, _ = first.Load(ctx)
	if !got.Empty() {
		t.Fatalf("expected empty, got %+v", got)
	}
}
