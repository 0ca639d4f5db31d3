package tokenstore

import (
	"context"
	"testing"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	s := New(kv)

	if err := s.Save(ctx, Pair{Access: "a1", Refresh: "r1"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, ok, _ := kv.Get(ctx, KeyAccess)
	if !ok || raw != `"a1"` {
		t.Fatalf("access should be stored JSON-encoded, got %q", raw)
	}

	if err := s.SaveAccess(ctx, "a2"); err != nil {
		t.Fatalf("SaveAccess: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != (Pair{Access: "a2", Refresh: "r1"}) {
		t.Fatalf("unexpected pair %+v", got)
	}
}

func TestStoreMalformedValueIsAbsent(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	_ = kv.Put(ctx, map[string]string{KeyAccess: "not-json", KeyRefresh: `"r1"`})

	got, err := New(kv).Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Access != "" || got.Refresh != "r1" {
		t.Fatalf("unexpected pair %+v", got)
	}
}

func TestStoreClearIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemory())
	_ = s.Save(ctx, Pair{Access: "a", Refresh: "r"})

	for i := 0; i < 2; i++ {
		if err := s.Clear(ctx); err != nil {
			t.Fatalf("Clear #%d: %v", i+1, err)
		}
		got, _ := s.Load(ctx)
		if !got.Empty() {
			t.Fatalf("expected empty pair after clear, got %+v", got)
		}
	}
}
