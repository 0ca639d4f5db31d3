// Package auth owns the client's credentials: it logs in, renews and drops the token
// pair, and fronts the backend's profile and password endpoints.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"iaeco.app/internal/api"
	"iaeco.app/internal/audit"
	"iaeco.app/internal/obs"
	"iaeco.app/internal/tokenstore"
)

const (
	refreshKey       = "refresh"
	tokenReadTimeout = 5 * time.Second
)

// TokenPair is the persisted access/refresh pair.
type TokenPair = tokenstore.Pair

// Profile is the server-reported identity of the signed-in user.
type Profile = api.Profile

// Backend is the subset of the REST client the service drives.
type Backend interface {
	Login(ctx context.Context, username, password string) (api.TokenResponse, error)
	RefreshToken(ctx context.Context, refresh string) (api.TokenResponse, error)
	VerifyToken(ctx context.Context, token string) error
	Me(ctx context.Context) (api.Profile, error)
	ChangePassword(ctx context.Context, oldPassword, newPassword string) error
	RequestPasswordReset(ctx context.Context, email string) error
}

// LoginResult reports the outcome of a successful login.
type LoginResult struct {
	Tokens                 TokenPair
	RequiresPasswordChange bool
}

// Service is the only writer of the token store.
type Service struct {
	backend Backend
	tokens  *tokenstore.Store
	now     func() time.Time

	flight singleflight.Group

	// mu serializes token writes; gen counts them so a refresh that started
	// before a newer login or refresh never overwrites or clears its result.
	mu  sync.Mutex
	gen uint64

	hooksMu sync.Mutex
	hookSeq int
	hooks   map[int]func(error)
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(backend Backend, tokens *tokenstore.Store, opts ...ServiceOption) (*Service, error) {
	if backend == nil {
		return nil, errors.New("auth: backend is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token store is required")
	}
	s := &Service{
		backend: backend,
		tokens:  tokens,
		now:     time.Now,
		hooks:   make(map[int]func(error)),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// OnSessionEnd registers fn to run after a failed refresh has cleared the tokens.
// The returned func unregisters it.
func (s *Service) OnSessionEnd(fn func(reason error)) (cancel func()) {
	s.hooksMu.Lock()
	id := s.hookSeq
	s.hookSeq++
	s.hooks[id] = fn
	s.hooksMu.Unlock()
	return func() {
		s.hooksMu.Lock()
		delete(s.hooks, id)
		s.hooksMu.Unlock()
	}
}

func (s *Service) endSession(reason error) {
	s.hooksMu.Lock()
	fns := make([]func(error), 0, len(s.hooks))
	for _, fn := range s.hooks {
		fns = append(fns, fn)
	}
	s.hooksMu.Unlock()
	for _, fn := range fns {
		fn(reason)
	}
}

// Tokens returns the stored pair.
func (s *Service) Tokens(ctx context.Context) (TokenPair, error) {
	return s.tokens.Load(ctx)
}

// HasSession reports whether an access token is stored.
func (s *Service) HasSession(ctx context.Context) bool {
	p, err := s.tokens.Load(ctx)
	return err == nil && p.Access != ""
}

// Login exchanges credentials for tokens and persists them. Every failure maps to
// ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}
	resp, err := s.backend.Login(ctx, username, password)
	if err != nil {
		obs.Warn("login rejected", map[string]any{"username": username, "status": api.StatusOf(err), "error": err})
		return LoginResult{}, ErrInvalidCredentials
	}
	if resp.Access == "" {
		return LoginResult{}, ErrInvalidCredentials
	}
	pair := TokenPair{Access: resp.Access, Refresh: resp.Refresh}

	s.mu.Lock()
	err = s.tokens.Save(ctx, pair)
	if err == nil {
		s.gen++
	}
	s.mu.Unlock()
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: persist tokens: %w", err)
	}
	_ = audit.LogEvent(ctx, "auth.login", map[string]any{
		"username":                 username,
		"requires_password_change": resp.RequiresPasswordChange,
	})
	return LoginResult{Tokens: pair, RequiresPasswordChange: resp.RequiresPasswordChange}, nil
}

// Logout drops the stored tokens. It never fails and is safe to repeat.
func (s *Service) Logout(ctx context.Context) {
	s.mu.Lock()
	err := s.tokens.Clear(ctx)
	s.gen++
	s.mu.Unlock()
	if err != nil {
		obs.Error("token clear failed", map[string]any{"error": err})
	}
}

// RefreshAccessToken obtains a new access token. Concurrent callers share one
// backend call. On failure the pair is cleared and session-end handlers run.
func (s *Service) RefreshAccessToken(ctx context.Context) (string, error) {
	ch := s.flight.DoChan(refreshKey, func() (any, error) {
		return s.refresh(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (s *Service) refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	started := s.gen
	pair, err := s.tokens.Load(ctx)
	s.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("auth: load tokens: %w", err)
	}
	if pair.Refresh == "" {
		obs.ObserveRefresh("missing")
		return "", s.failRefresh(ctx, started, errors.New("no refresh token stored"))
	}

	resp, err := s.backend.RefreshToken(ctx, pair.Refresh)
	if err == nil && resp.Access == "" {
		err = errors.New("empty access token in refresh response")
	}
	if err != nil {
		obs.ObserveRefresh("rejected")
		return "", s.failRefresh(ctx, started, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != started {
		// A newer login or refresh already replaced the pair; keep it.
		obs.ObserveRefresh("superseded")
		current, err := s.tokens.Load(ctx)
		if err != nil || current.Access == "" {
			return "", ErrRefreshFailed
		}
		return current.Access, nil
	}
	if resp.Refresh != "" {
		err = s.tokens.Save(ctx, TokenPair{Access: resp.Access, Refresh: resp.Refresh})
	} else {
		err = s.tokens.SaveAccess(ctx, resp.Access)
	}
	if err != nil {
		return "", fmt.Errorf("auth: persist refreshed token: %w", err)
	}
	s.gen++
	obs.ObserveRefresh("ok")
	return resp.Access, nil
}

// failRefresh clears the pair unless it changed since the refresh started.
func (s *Service) failRefresh(ctx context.Context, started uint64, cause error) error {
	s.mu.Lock()
	if s.gen != started {
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrRefreshFailed, cause)
	}
	if err := s.tokens.Clear(ctx); err != nil {
		obs.Error("token clear failed", map[string]any{"error": err})
	}
	s.gen++
	s.mu.Unlock()

	obs.Warn("token refresh failed, ending session", map[string]any{"error": cause})
	_ = audit.LogEvent(ctx, "auth.session_end", map[string]any{"reason": cause.Error()})
	err := fmt.Errorf("%w: %v", ErrRefreshFailed, cause)
	s.endSession(err)
	return err
}

// Profile fetches the identity behind the stored access token.
func (s *Service) Profile(ctx context.Context) (Profile, error) {
	if !s.HasSession(ctx) {
		return Profile{}, ErrNotAuthenticated
	}
	p, err := s.backend.Me(ctx)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrProfileFetch, err)
	}
	return p, nil
}

// ChangePassword changes the signed-in user's password. A backend rejection comes
// back as *ValidationError.
func (s *Service) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if !s.HasSession(ctx) {
		return ErrNotAuthenticated
	}
	if oldPassword == "" || newPassword == "" {
		return &ValidationError{Message: "current and new password are required"}
	}
	err := s.backend.ChangePassword(ctx, oldPassword, newPassword)
	switch status := api.StatusOf(err); {
	case err == nil:
		_ = audit.LogEvent(ctx, "auth.password_changed", nil)
		return nil
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		var se *api.StatusError
		errors.As(err, &se)
		return &ValidationError{Message: se.Detail}
	case status == http.StatusUnauthorized:
		return ErrNotAuthenticated
	default:
		return fmt.Errorf("auth: change password: %w", err)
	}
}

// RequestPasswordReset asks the backend to mail reset instructions. Backend
// failures are reported only as ErrPasswordReset.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	if err := s.backend.RequestPasswordReset(ctx, email); err != nil {
		obs.Warn("password reset request failed", map[string]any{"status": api.StatusOf(err), "error": err})
		return ErrPasswordReset
	}
	return nil
}

// VerifyAccessToken checks the stored access token. A token whose exp already
// passed is rejected without a network call.
func (s *Service) VerifyAccessToken(ctx context.Context) error {
	pair, err := s.tokens.Load(ctx)
	if err != nil || pair.Access == "" {
		return ErrNotAuthenticated
	}
	if exp, ok := tokenExpiry(pair.Access); ok && !s.now().Before(exp) {
		return ErrInvalidToken
	}
	if err := s.backend.VerifyToken(ctx, pair.Access); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}

// Token implements oauth2.TokenSource over the stored access token.
func (s *Service) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), tokenReadTimeout)
	defer cancel()
	pair, err := s.tokens.Load(ctx)
	if err != nil {
		return nil, err
	}
	if pair.Access == "" {
		return nil, ErrNotAuthenticated
	}
	tok := &oauth2.Token{AccessToken: pair.Access, TokenType: "Bearer", RefreshToken: pair.Refresh}
	if exp, ok := tokenExpiry(pair.Access); ok {
		tok.Expiry = exp
	}
	return tok, nil
}

// Refresh satisfies api.Credentials.
func (s *Service) Refresh(ctx context.Context) error {
	_, err := s.RefreshAccessToken(ctx)
	return err
}
