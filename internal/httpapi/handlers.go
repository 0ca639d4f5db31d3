// Package httpapi serves the local status endpoints of the watch daemon.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"iaeco.app/internal/access"
	"iaeco.app/internal/guard"
	"iaeco.app/internal/obs"
	"iaeco.app/internal/session"
)

// SessionSource is the session state the daemon reports on.
type SessionSource interface {
	Snapshot() session.Snapshot
	Subscribe(ctx context.Context) <-chan session.Snapshot
}

// Locator reports the current client location.
type Locator interface {
	Current() guard.Location
}

// PollerStatus reports whether the security poller is running.
type PollerStatus interface {
	Running() bool
	Starts() int
}

// API is the status HTTP layer.
type API struct {
	mux     *http.ServeMux
	sess    SessionSource
	loc     Locator
	poller  PollerStatus
	version string
	started time.Time

	rateBurst  int
	ratePerSec int
}

// Option configures API.
type Option func(*API)

func WithLocator(l Locator) Option { return func(a *API) { a.loc = l } }

func WithPoller(p PollerStatus) Option { return func(a *API) { a.poller = p } }

// WithRateLimit sets the per-client token bucket. perSecond <= 0 disables it.
func WithRateLimit(burst, perSecond int) Option {
	return func(a *API) {
		a.rateBurst = burst
		a.ratePerSec = perSecond
	}
}

func New(sess SessionSource, version string, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		sess:       sess,
		version:    version,
		started:    time.Now().UTC(),
		rateBurst:  20,
		ratePerSec: 10,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.HandleFunc("GET /v1/session", a.Session)
	a.mux.HandleFunc("GET /v1/events", a.Stream)
	a.mux.Handle("GET /metrics", obs.Handler())
	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
	return a
}

// Handler returns the mux wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	if a.ratePerSec > 0 {
		h = RateLimit(h, a.rateBurst, a.ratePerSec)
	}
	return RequestID(LoggingJSON(SecurityHeaders(h)))
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "iaeco-watch",
		"version": a.version,
	})
}

// Ready is 503 until the session bootstrap has finished.
func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if !a.sess.Snapshot().Ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"name":    "iaeco-watch",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"started": a.started.Format(time.RFC3339),
		"version": a.version,
	}
	if a.poller != nil {
		info["poller_running"] = a.poller.Running()
		info["poller_starts"] = a.poller.Starts()
	}
	writeJSON(w, http.StatusOK, info)
}

// sessionView is the public shape of a snapshot. Tokens never leave the process.
type sessionView struct {
	Authenticated          bool     `json:"authenticated"`
	Loading                bool     `json:"loading"`
	Ready                  bool     `json:"ready"`
	RequiresPasswordChange bool     `json:"requires_password_change"`
	User                   string   `json:"user,omitempty"`
	CompanyID              int64    `json:"company_id,omitempty"`
	Company                string   `json:"company,omitempty"`
	Role                   string   `json:"role,omitempty"`
	Permission             string   `json:"permission,omitempty"`
	Menu                   []string `json:"menu,omitempty"`
	Location               string   `json:"location,omitempty"`
	Decision               string   `json:"decision,omitempty"`
}

func viewOf(s session.Snapshot) sessionView {
	v := sessionView{
		Authenticated:          s.Authenticated,
		Loading:                s.Loading,
		Ready:                  s.Ready,
		RequiresPasswordChange: s.RequiresPasswordChange,
	}
	if s.Authenticated && s.Profile != nil {
		v.User = s.Profile.FullName()
		v.CompanyID = s.Profile.CompanyID
		v.Company = s.Profile.Company
		v.Role = s.Role.String()
		v.Permission = s.Permission.String()
		for _, r := range access.MenuFor(s.Principal()) {
			v.Menu = append(v.Menu, r.Path)
		}
	}
	return v
}

func (a *API) Session(w http.ResponseWriter, r *http.Request) {
	v := viewOf(a.sess.Snapshot())
	if a.loc != nil {
		loc := a.loc.Current()
		v.Location = loc.Path
		v.Decision = loc.Decision.Kind.String()
	}
	writeJSON(w, http.StatusOK, v)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, map[string]any{
		"error":      msg,
		"request_id": RequestIDFrom(r.Context()),
	})
}
