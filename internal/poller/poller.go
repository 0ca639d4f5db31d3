// Package poller re-validates the access token in the background while a user is
// signed in, refreshing it once when the backend rejects it.
package poller

import (
	"context"
	"time"

	"iaeco.app/internal/access"
	"iaeco.app/internal/guard"
	"iaeco.app/internal/obs"
)

const (
	DefaultInterval = 5 * time.Minute
	DefaultDebounce = 500 * time.Millisecond
)

// Outcome is the result of one validation.
type Outcome int

const (
	Skipped Outcome = iota
	Valid
	Refreshed
	LoggedOut
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Valid:
		return "valid"
	case Refreshed:
		return "refreshed"
	case LoggedOut:
		return "logged_out"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// Validator is implemented by session.Session.
type Validator interface {
	VerifyAccessToken(ctx context.Context) error
	RefreshToken(ctx context.Context) bool
	Logout(ctx context.Context)
}

// Navigator is implemented by guard.Router.
type Navigator interface {
	CurrentPath() string
	Replace(ctx context.Context, path string) guard.Location
}

// Poller validates on start, on every interval tick and after foreground signals.
type Poller struct {
	v          Validator
	nav        Navigator
	interval   time.Duration
	debounce   time.Duration
	foreground <-chan struct{}
	observe    func(Outcome)
}

// Option configures Poller.
type Option func(*Poller)

// WithInterval sets the validation period.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithDebounce sets how long foreground signals are coalesced.
func WithDebounce(d time.Duration) Option {
	return func(p *Poller) {
		if d >= 0 {
			p.debounce = d
		}
	}
}

// WithForeground supplies the "client came back to the foreground" signal.
func WithForeground(ch <-chan struct{}) Option {
	return func(p *Poller) { p.foreground = ch }
}

// WithObserver is called with every validation outcome.
func WithObserver(fn func(Outcome)) Option {
	return func(p *Poller) { p.observe = fn }
}

// New builds a poller.
func New(v Validator, nav Navigator, opts ...Option) *Poller {
	p := &Poller{v: v, nav: nav, interval: DefaultInterval, debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run validates immediately and then on schedule until ctx ends. Timers are
// released before it returns.
func (p *Poller) Run(ctx context.Context) error {
	p.Validate(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	var (
		debounce  *time.Timer
		debounceC <-chan time.Time
	)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	fg := p.foreground

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Validate(ctx)
		case _, ok := <-fg:
			if !ok {
				fg = nil
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(p.debounce)
			} else {
				debounce.Reset(p.debounce)
			}
			debounceC = debounce.C
		case <-debounceC:
			debounceC = nil
			p.Validate(ctx)
		}
	}
}

// Validate checks the token once. An invalid token gets exactly one refresh; if
// that fails the user is logged out and sent to /login. A validation that starts
// after ctx is done does nothing.
func (p *Poller) Validate(ctx context.Context) Outcome {
	out := p.validate(ctx)
	obs.ObserveSecurityCheck(out.String())
	if out == Refreshed || out == LoggedOut {
		obs.Info("security check", map[string]any{"outcome": out.String()})
	}
	if p.observe != nil {
		p.observe(out)
	}
	return out
}

func (p *Poller) validate(ctx context.Context) Outcome {
	if ctx.Err() != nil {
		return Cancelled
	}
	if access.IsPublic(p.nav.CurrentPath()) {
		return Skipped
	}
	if err := p.v.VerifyAccessToken(ctx); err == nil {
		return Valid
	}
	if ctx.Err() != nil {
		return Cancelled
	}
	if p.v.RefreshToken(ctx) {
		return Refreshed
	}
	// A failed refresh already ended the session, which may have cancelled ctx;
	// the redirect belongs to this validation and still happens.
	p.v.Logout(ctx)
	p.nav.Replace(ctx, access.PathLogin)
	return LoggedOut
}
