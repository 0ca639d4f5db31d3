package guard

import (
	"context"
	"errors"
	"sync"

	"iaeco.app/internal/access"
	"iaeco.app/internal/obs"
	"iaeco.app/internal/session"
	"iaeco.app/internal/stream"
)

const defaultMaxRedirects = 5

// ErrRedirectLoop is set on a Location whose redirect chain did not settle.
var ErrRedirectLoop = errors.New("guard: too many redirects")

// SessionSource is the read side of session.Session.
type SessionSource interface {
	Snapshot() session.Snapshot
	Subscribe(ctx context.Context) <-chan session.Snapshot
}

// Loader fetches a page's data. It runs only when the page is allowed.
type Loader func(ctx context.Context, loc Location) error

// Location is where the router currently is and why.
type Location struct {
	Path     string
	Decision Decision
	// Err is the loader or redirect failure, if any.
	Err error
}

// Router is an in-process navigator with a history stack.
type Router struct {
	sess         SessionSource
	maxRedirects int

	mu      sync.Mutex
	history []string
	current Location
	loaders map[string]Loader
	feed    *stream.Stream[Location]
}

// RouterOption configures Router.
type RouterOption func(*Router)

// WithMaxRedirects bounds a redirect chain.
func WithMaxRedirects(n int) RouterOption {
	return func(r *Router) {
		if n > 0 {
			r.maxRedirects = n
		}
	}
}

// NewRouter builds a router with empty history.
func NewRouter(sess SessionSource, opts ...RouterOption) *Router {
	r := &Router{
		sess:         sess,
		maxRedirects: defaultMaxRedirects,
		loaders:      make(map[string]Loader),
		feed:         stream.New[Location](),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle registers the loader of a route path from the access table.
func (r *Router) Handle(path string, loader Loader) {
	r.mu.Lock()
	r.loaders[access.Clean(path)] = loader
	r.mu.Unlock()
}

// Push navigates to path adding a history entry.
func (r *Router) Push(ctx context.Context, path string) Location {
	return r.navigate(ctx, path, false)
}

// Replace navigates to path replacing the current history entry.
func (r *Router) Replace(ctx context.Context, path string) Location {
	return r.navigate(ctx, path, true)
}

// Back pops the current entry and re-evaluates the previous one. With a single
// entry it is a no-op.
func (r *Router) Back(ctx context.Context) Location {
	r.mu.Lock()
	if len(r.history) < 2 {
		cur := r.current
		r.mu.Unlock()
		return cur
	}
	r.history = r.history[:len(r.history)-1]
	prev := r.history[len(r.history)-1]
	r.mu.Unlock()
	return r.navigate(ctx, prev, true)
}

// Current returns the committed location.
func (r *Router) Current() Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// CurrentPath returns the committed path.
func (r *Router) CurrentPath() string {
	return r.Current().Path
}

// History returns a copy of the history stack, oldest first.
func (r *Router) History() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.history...)
}

// Subscribe delivers committed locations.
func (r *Router) Subscribe(ctx context.Context) <-chan Location {
	return r.feed.Subscribe(ctx)
}

// Run re-evaluates the current path on every session change until ctx ends.
func (r *Router) Run(ctx context.Context) error {
	changes := r.sess.Subscribe(ctx)
	r.reevaluate(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			r.reevaluate(ctx)
		}
	}
}

func (r *Router) reevaluate(ctx context.Context) {
	r.mu.Lock()
	cur := r.current
	r.mu.Unlock()
	if cur.Path == "" {
		return
	}
	next, _ := r.resolve(cur.Path)
	if next.Path == cur.Path && next.Decision.Kind == cur.Decision.Kind {
		return
	}
	r.navigate(ctx, cur.Path, true)
}

// resolve follows redirects from path and returns the settled location.
func (r *Router) resolve(path string) (Location, int) {
	snap := r.sess.Snapshot()
	path = access.Clean(path)
	for hops := 0; ; hops++ {
		d := Evaluate(path, snap)
		if d.Kind != Redirect {
			return Location{Path: path, Decision: d}, hops
		}
		if hops >= r.maxRedirects {
			return Location{Path: path, Decision: Decision{Kind: Denied}, Err: ErrRedirectLoop}, hops
		}
		path = access.Clean(d.Target)
	}
}

func (r *Router) navigate(ctx context.Context, path string, replace bool) Location {
	loc, hops := r.resolve(path)
	if loc.Err != nil {
		obs.Error("redirect loop", map[string]any{"path": path, "hops": hops})
	}

	r.mu.Lock()
	if replace && len(r.history) > 0 {
		r.history[len(r.history)-1] = loc.Path
	} else {
		r.history = append(r.history, loc.Path)
	}
	r.current = loc
	loader := r.loaders[loc.Decision.Route.Path]
	r.mu.Unlock()

	if loc.Decision.Kind == Allow && loader != nil {
		if err := loader(ctx, loc); err != nil {
			loc.Err = err
			r.mu.Lock()
			if r.current.Path == loc.Path {
				r.current = loc
			}
			r.mu.Unlock()
		}
	}
	r.feed.Publish(loc)
	return loc
}
