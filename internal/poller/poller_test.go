package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"iaeco.app/internal/guard"
)

type fakeValidator struct {
	mu        sync.Mutex
	verifyErr error
	refreshOK bool
	verifies  int
	refreshes int
	logouts   int
}

func (f *fakeValidator) VerifyAccessToken(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifies++
	return f.verifyErr
}

func (f *fakeValidator) RefreshToken(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return f.refreshOK
}

func (f *fakeValidator) Logout(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
}

func (f *fakeValidator) counts() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verifies, f.refreshes, f.logouts
}

type fakeNav struct {
	mu       sync.Mutex
	path     string
	replaced []string
}

func (n *fakeNav) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

func (n *fakeNav) Replace(_ context.Context, path string) guard.Location {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.path = path
	n.replaced = append(n.replaced, path)
	return guard.Location{Path: path}
}

type outcomes struct {
	mu  sync.Mutex
	all []Outcome
}

func (o *outcomes) record(out Outcome) {
	o.mu.Lock()
	o.all = append(o.all, out)
	o.mu.Unlock()
}

func (o *outcomes) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.all)
}

func TestValidate(t *testing.T) {
	invalid := errors.New("invalid")
	cases := []struct {
		name      string
		path      string
		verifyErr error
		refreshOK bool
		want      Outcome
		refreshes int
		logouts   int
		replaced  []string
	}{
		{name: "public path", path: "/login", verifyErr: invalid, want: Skipped},
		{name: "forgot password", path: "/forgot-password", verifyErr: invalid, want: Skipped},
		{name: "valid token", path: "/dashboard", want: Valid},
		{name: "refresh succeeds", path: "/dashboard", verifyErr: invalid, refreshOK: true, want: Refreshed, refreshes: 1},
		{name: "refresh fails", path: "/upload", verifyErr: invalid, want: LoggedOut, refreshes: 1, logouts: 1, replaced: []string{"/login"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := &fakeValidator{verifyErr: tc.verifyErr, refreshOK: tc.refreshOK}
			nav := &fakeNav{path: tc.path}
			got := New(v, nav).Validate(context.Background())
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
			_, refreshes, logouts := v.counts()
			if refreshes != tc.refreshes || logouts != tc.logouts {
				t.Fatalf("refreshes=%d logouts=%d", refreshes, logouts)
			}
			if len(nav.replaced) != len(tc.replaced) || (len(tc.replaced) > 0 && nav.replaced[0] != tc.replaced[0]) {
				t.Fatalf("unexpected navigation %v", nav.replaced)
			}
		})
	}
}

func TestValidateAfterCancelDoesNothing(t *testing.T) {
	v := &fakeValidator{verifyErr: errors.New("invalid")}
	nav := &fakeNav{path: "/dashboard"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := New(v, nav).Validate(ctx); got != Cancelled {
		t.Fatalf("expected cancelled, got %s", got)
	}
	if verifies, _, _ := v.counts(); verifies != 0 || len(nav.replaced) != 0 {
		t.Fatalf("validator used after cancel")
	}
}

func TestRunValidatesImmediatelyAndOnInterval(t *testing.T) {
	v := &fakeValidator{}
	rec := &outcomes{}
	p := New(v, &fakeNav{path: "/dashboard"}, WithInterval(20*time.Millisecond), WithObserver(rec.record))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for rec.len() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d validations", rec.len())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}

	after := rec.len()
	time.Sleep(60 * time.Millisecond)
	if rec.len() != after {
		t.Fatalf("validation ran after teardown")
	}
}

func TestForegroundSignalsAreDebounced(t *testing.T) {
	v := &fakeValidator{}
	rec := &outcomes{}
	fg := make(chan struct{})
	p := New(v, &fakeNav{path: "/dashboard"},
		WithInterval(time.Hour),
		WithDebounce(40*time.Millisecond),
		WithForeground(fg),
		WithObserver(rec.record),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	for i := 0; i < 5; i++ {
		fg <- struct{}{}
	}
	time.Sleep(150 * time.Millisecond)
	if got := rec.len(); got != 2 {
		t.Fatalf("expected startup plus one debounced validation, got %d", got)
	}
}

func TestForegroundAfterCancelIsIgnored(t *testing.T) {
	v := &fakeValidator{}
	rec := &outcomes{}
	fg := make(chan struct{}, 1)
	p := New(v, &fakeNav{path: "/dashboard"}, WithInterval(time.Hour), WithDebounce(10*time.Millisecond), WithForeground(fg), WithObserver(rec.record))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = p.Run(ctx); close(done) }()
	fg <- struct{}{}
	cancel()
	<-done
	n := rec.len()
	time.Sleep(40 * time.Millisecond)
	if rec.len() != n {
		t.Fatalf("debounced validation fired after teardown")
	}
}
