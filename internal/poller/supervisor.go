package poller

import (
	"context"
	"sync"

	"iaeco.app/internal/guard"
	"iaeco.app/internal/session"
)

// Supervisor runs the poller exactly while the session is authenticated. Each
// session generation gets its own poller, so a new login is validated at once.
type Supervisor struct {
	sess   guard.SessionSource
	poller *Poller

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	gen     uint64
	started int
}

// NewSupervisor ties p to the session's authentication state.
func NewSupervisor(sess guard.SessionSource, p *Poller) *Supervisor {
	return &Supervisor{sess: sess, poller: p}
}

// Run follows session changes until ctx ends, then stops the poller.
func (s *Supervisor) Run(ctx context.Context) error {
	changes := s.sess.Subscribe(ctx)
	defer s.stop()
	s.sync(ctx, s.sess.Snapshot())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-changes:
			if !ok {
				return nil
			}
			s.sync(ctx, snap)
		}
	}
}

// Running reports whether a poller is active.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Starts counts how many times a poller was launched.
func (s *Supervisor) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Supervisor) sync(ctx context.Context, snap session.Snapshot) {
	if !snap.Authenticated {
		s.stop()
		return
	}
	s.mu.Lock()
	same := s.cancel != nil && s.gen == snap.Generation
	s.mu.Unlock()
	if same {
		return
	}
	s.stop()
	s.start(ctx, snap.Generation)
}

func (s *Supervisor) start(ctx context.Context, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	s.gen = gen
	pctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	s.started++
	go func() {
		defer close(done)
		_ = s.poller.Run(pctx)
	}()
}

// stop cancels the poller and waits for it to exit.
func (s *Supervisor) stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
