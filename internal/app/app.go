// Package app builds the client object graph from configuration and tears it
// down again.
package app

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/sync/errgroup"

	"iaeco.app/internal/access"
	"iaeco.app/internal/api"
	"iaeco.app/internal/auth"
	"iaeco.app/internal/company"
	"iaeco.app/internal/config"
	"iaeco.app/internal/guard"
	"iaeco.app/internal/notify"
	"iaeco.app/internal/obs"
	"iaeco.app/internal/poller"
	"iaeco.app/internal/session"
	"iaeco.app/internal/tokenstore"
	"iaeco.app/internal/upload"
	"iaeco.app/internal/users"
)

// App owns every long-lived client component.
type App struct {
	Config     config.Config
	Client     *api.Client
	Auth       *auth.Service
	Session    *session.Session
	Router     *guard.Router
	Companies  *company.Store
	Uploads    *upload.Uploader
	Users      *users.Admin
	Poller     *poller.Poller
	Supervisor *poller.Supervisor
	Notifier   notify.Notifier

	closers []func() error
}

type options struct {
	kv         tokenstore.KV
	notifier   notify.Notifier
	foreground <-chan struct{}
	httpClient *http.Client
	observe    func(poller.Outcome)
}

// Option configures New.
type Option func(*options)

// WithTokenKV replaces the configured token backend.
func WithTokenKV(kv tokenstore.KV) Option { return func(o *options) { o.kv = kv } }

func WithNotifier(n notify.Notifier) Option { return func(o *options) { o.notifier = n } }

// WithForeground feeds host foreground signals to the security poller.
func WithForeground(ch <-chan struct{}) Option { return func(o *options) { o.foreground = ch } }

func WithHTTPClient(hc *http.Client) Option { return func(o *options) { o.httpClient = hc } }

// WithPollObserver receives every security check outcome.
func WithPollObserver(fn func(poller.Outcome)) Option { return func(o *options) { o.observe = fn } }

// New wires the components. Nothing talks to the backend until Start.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := options{notifier: notify.Log{}}
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{Config: cfg, Notifier: o.notifier}

	kv := o.kv
	if kv == nil {
		var closeKV func() error
		var err error
		kv, closeKV, err = OpenTokenKV(ctx, cfg.Tokens)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closeKV)
	}

	clientOpts := []api.Option{
		api.WithTimeout(cfg.API.Timeout),
		api.WithRateLimit(cfg.API.RateLimit, cfg.API.Burst),
	}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, api.WithHTTPClient(o.httpClient))
	}
	client, err := api.New(cfg.API.BaseURL, clientOpts...)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Client = client

	if a.Auth, err = auth.NewService(client, tokenstore.New(kv)); err != nil {
		_ = a.Close()
		return nil, err
	}
	client.SetCredentials(a.Auth)

	if a.Session, err = session.New(a.Auth); err != nil {
		_ = a.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() error { a.Session.Close(); return nil })

	a.Router = guard.NewRouter(a.Session)
	a.Companies = company.New(client, a.Session, o.notifier)
	a.Uploads = upload.New(client, a.Session, o.notifier)
	a.Users = users.New(client, a.Session, o.notifier)

	pollOpts := []poller.Option{
		poller.WithInterval(cfg.Poll.Interval),
		poller.WithDebounce(cfg.Poll.Debounce),
	}
	if o.foreground != nil {
		pollOpts = append(pollOpts, poller.WithForeground(o.foreground))
	}
	if o.observe != nil {
		pollOpts = append(pollOpts, poller.WithObserver(o.observe))
	}
	a.Poller = poller.New(a.Session, a.Router, pollOpts...)
	a.Supervisor = poller.NewSupervisor(a.Session, a.Poller)

	a.registerPages()
	return a, nil
}

// registerPages attaches the data loads each page needs. The router runs them
// only after the guard allowed the page.
func (a *App) registerPages() {
	a.Router.Handle(access.PathCompanies, func(ctx context.Context, _ guard.Location) error {
		return a.Companies.Refresh(ctx)
	})
	a.Router.Handle(access.PathHistory, func(ctx context.Context, _ guard.Location) error {
		_, err := a.Uploads.Documents(ctx)
		return err
	})
	a.Router.Handle(access.PathUsers, func(ctx context.Context, _ guard.Location) error {
		_, err := a.Users.List(ctx)
		return err
	})
	a.Router.Handle(access.PathDashboard, func(ctx context.Context, _ guard.Location) error {
		_, err := a.Dashboard(ctx)
		return err
	})
}

// Start restores a persisted session.
func (a *App) Start(ctx context.Context) error {
	return a.Session.Start(ctx)
}

// Run keeps the router, company store and poller supervisor in step with the
// session until ctx ends or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Router.Run(ctx) })
	g.Go(func() error { return a.Companies.Watch(ctx) })
	g.Go(func() error { return a.Supervisor.Run(ctx) })
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the session feed and token backend connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		obs.Warn("app close", map[string]any{"error": err})
		return err
	}
	return nil
}
