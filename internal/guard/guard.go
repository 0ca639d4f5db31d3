// Package guard decides what the client renders for a path given the session, and
// keeps the navigation history. The decision is advisory; the backend enforces
// authorization on its own.
package guard

import (
	"iaeco.app/internal/access"
	"iaeco.app/internal/session"
)

// Kind is the outcome of evaluating a path.
type Kind int

const (
	// Allow renders the page and runs its loader.
	Allow Kind = iota
	// Redirect sends the user to Decision.Target.
	Redirect
	// Denied renders the Access-Denied view; the page loader does not run.
	Denied
	// NotFound is the catch-all for unknown paths.
	NotFound
	// Pending waits for the session bootstrap or an in-flight login.
	Pending
)

func (k Kind) String() string {
	switch k {
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	case Denied:
		return "denied"
	case NotFound:
		return "not_found"
	case Pending:
		return "pending"
	}
	return "unknown"
}

// Decision is the result of Evaluate.
type Decision struct {
	Kind    Kind
	Target  string
	Replace bool
	Route   access.Route
}

func redirect(target string) Decision {
	return Decision{Kind: Redirect, Target: target, Replace: true}
}

// Evaluate applies the guard rules to path:
//   - public paths render, except /login, which waits while the session is
//     loading and goes to the dashboard for an authenticated user;
//   - protected paths wait while the session is loading and redirect to /login
//     without a session;
//   - a pending password change pins the user to /change-password;
//   - finally the route's permission requirement is checked.
func Evaluate(path string, snap session.Snapshot) Decision {
	p := access.Clean(path)
	route, known := access.Lookup(p)

	pending := !snap.Ready || (snap.Loading && !snap.Authenticated)

	if known && route.Public {
		if p == access.PathLogin {
			switch {
			case snap.Authenticated:
				return redirect(access.PathDashboard)
			case pending:
				return Decision{Kind: Pending, Route: route}
			}
		}
		return Decision{Kind: Allow, Route: route}
	}
	if pending {
		return Decision{Kind: Pending, Route: route}
	}
	if !snap.Authenticated {
		return redirect(access.PathLogin)
	}
	if snap.RequiresPasswordChange && p != access.PathChangePassword {
		return redirect(access.PathChangePassword)
	}
	if !known {
		return Decision{Kind: NotFound}
	}
	if !access.Allowed(snap.Principal(), route.Requirement) {
		return Decision{Kind: Denied, Route: route}
	}
	return Decision{Kind: Allow, Route: route}
}
