package main

import (
	"context"
	"errors"
	"fmt"

	"iaeco.app/internal/access"
	"iaeco.app/internal/app"
	"iaeco.app/internal/guard"
)

var (
	errNotSignedIn    = errors.New("not signed in, run: iaeco login")
	errPasswordChange = errors.New("password change required, run: iaeco change-password")
	errDenied         = errors.New("acesso negado")
)

// enter navigates to path through the route guard. load replaces the page's
// loader and only runs when the guard allows the page.
func enter(ctx context.Context, a *app.App, path string, load guard.Loader) error {
	if load != nil {
		a.Router.Handle(path, load)
	}
	loc := a.Router.Push(ctx, path)
	switch {
	case loc.Path == access.PathLogin && path != access.PathLogin:
		return errNotSignedIn
	case loc.Path == access.PathChangePassword && path != access.PathChangePassword:
		return errPasswordChange
	case loc.Decision.Kind == guard.Denied:
		if loc.Err != nil {
			return loc.Err
		}
		return fmt.Errorf("%w: %s", errDenied, path)
	case loc.Decision.Kind == guard.NotFound:
		return fmt.Errorf("unknown page %s", path)
	}
	return loc.Err
}

// noLoad is a loader for pages whose data the command fetches itself.
func noLoad(context.Context, guard.Location) error { return nil }
