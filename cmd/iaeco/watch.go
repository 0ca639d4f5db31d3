package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"iaeco.app/internal/access"
	"iaeco.app/internal/app"
	"iaeco.app/internal/httpapi"
	"iaeco.app/internal/notify"
	"iaeco.app/internal/obs"
	"iaeco.app/internal/poller"
)

// runWatch keeps the session validated in the foreground: the poller checks the
// token on schedule and after SIGCONT, and the status server reports state.
func runWatch(c *cli, ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	listen := fs.String("listen", "", "status listen address (default from config)")
	path := fs.String("path", access.PathDashboard, "page the daemon stays on")
	if err := fs.Parse(args); err != nil {
		return err
	}

	obs.Init()
	fg, stopFG := foregroundSignals()
	defer stopFG()
	c.appOpts = append(c.appOpts,
		app.WithForeground(fg),
		app.WithNotifier(notify.Multi{notify.Log{}, &notify.Writer{W: c.stderr}}),
		app.WithPollObserver(func(o poller.Outcome) {
			if o == poller.LoggedOut {
				obs.Warn("session ended by security check", nil)
			}
		}),
	)
	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := *listen
	if addr == "" {
		addr = a.Config.Status.Listen
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return serveWatch(ctx, a, ln, *path)
}

func serveWatch(ctx context.Context, a *app.App, ln net.Listener, path string) error {
	status := httpapi.New(a.Session, version,
		httpapi.WithLocator(a.Router),
		httpapi.WithPoller(a.Supervisor),
	)
	srv := &http.Server{
		Handler:           status.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if loc := a.Router.Push(ctx, path); loc.Err != nil {
		obs.Warn("initial page load failed", map[string]any{"path": loc.Path, "error": loc.Err})
	}
	obs.Info("watch started", map[string]any{"addr": ln.Addr().String(), "path": a.Router.CurrentPath()})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Run(gctx) })
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	err := g.Wait()
	obs.Info("watch stopped", nil)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
