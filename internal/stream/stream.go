package stream

import (
	"context"
	"sync"
)

// Stream fans out values to all active subscribers. Each subscriber sees the latest
// value: a slow reader never blocks Publish, and stale pending values are replaced.
type Stream[T any] struct {
	mu     sync.RWMutex
	subs   map[int]chan T
	next   int
	closed bool
}

// New initialises an empty stream.
func New[T any]() *Stream[T] {
	return &Stream[T]{subs: make(map[int]chan T)}
}

// Subscribe registers a subscriber and returns a channel which will receive values.
// The channel is closed when the provided context ends or the stream is closed.
func (s *Stream[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch
	}
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
		s.mu.Unlock()
	}()

	return ch
}

// Publish delivers v to every subscriber, replacing any value they have not read yet.
func (s *Stream[T]) Publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

// Close closes every subscriber channel; later subscriptions get a closed channel.
func (s *Stream[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// Len returns the number of active subscribers.
func (s *Stream[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
