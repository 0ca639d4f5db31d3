package stream

import (
	"context"
	"testing"
	"time"
)

func TestPublishKeepsLatest(t *testing.T) {
	s := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Subscribe(ctx)
	s.Publish(1)
	s.Publish(2)
	s.Publish(3)

	select {
	case v := <-ch:
		if v != 3 {
			t.Fatalf("expected latest value 3, got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("no value delivered")
	}
	select {
	case v := <-ch:
		t.Fatalf("unexpected extra value %d", v)
	default:
	}
}

func TestSubscribeClosesOnContext(t *testing.T) {
	s := New[string]()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	if s.Len() != 0 {
		t.Fatalf("expected no subscribers, got %d", s.Len())
	}
}

func TestCloseStream(t *testing.T) {
	s := New[int]()
	ch := s.Subscribe(context.Background())
	s.Close()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	late := s.Subscribe(context.Background())
	if _, ok := <-late; ok {
		t.Fatal("subscription after Close should be closed")
	}
	s.Publish(1)
}
