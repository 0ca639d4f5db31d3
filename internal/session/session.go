// Package session holds the signed-in user's state: the profile, the role and
// permission derived from it, and the loading and password-change flags. Session is
// the only writer; everything else reads Snapshot or subscribes.
package session

import (
	"context"
	"errors"
	"sync"

	"iaeco.app/internal/access"
	"iaeco.app/internal/api"
	"iaeco.app/internal/audit"
	"iaeco.app/internal/auth"
	"iaeco.app/internal/obs"
	"iaeco.app/internal/stream"
)

// ErrCorruptProfile means the profile lacks the company it must belong to.
var ErrCorruptProfile = errors.New("session: user profile is incomplete")

// Authenticator is what the session needs from auth.Service.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (auth.LoginResult, error)
	Logout(ctx context.Context)
	Profile(ctx context.Context) (auth.Profile, error)
	ChangePassword(ctx context.Context, oldPassword, newPassword string) error
	RefreshAccessToken(ctx context.Context) (string, error)
	VerifyAccessToken(ctx context.Context) error
	HasSession(ctx context.Context) bool
	OnSessionEnd(fn func(reason error)) (cancel func())
}

// Snapshot is an immutable view of the session.
type Snapshot struct {
	Profile                *api.Profile
	Role                   access.Role
	Permission             access.Permission
	Authenticated          bool
	Loading                bool
	RequiresPasswordChange bool
	// Ready is false until Start has finished the bootstrap profile fetch.
	Ready bool
	// Generation changes on every login, logout and session end. Data loaded for
	// one generation must not be shown in another.
	Generation uint64
}

// Principal returns the derived identity for permission checks.
func (s Snapshot) Principal() access.Principal {
	return access.Principal{Role: s.Role, Permission: s.Permission}
}

// Actor returns the audit identity of the snapshot.
func (s Snapshot) Actor() audit.Actor {
	if s.Profile == nil {
		return audit.Actor{}
	}
	return audit.Actor{Name: s.Profile.FullName(), CompanyID: s.Profile.CompanyID}
}

// Session is constructed once per running client and passed to its consumers.
type Session struct {
	auth Authenticator
	feed *stream.Stream[Snapshot]

	mu    sync.Mutex
	state Snapshot
	// epoch changes on every login, logout and session end; a profile fetch
	// applies only if the epoch it started in is still current.
	epoch   uint64
	started bool
	closed  bool
	unhook  func()
}

// New builds an idle session. Call Start before use.
func New(a Authenticator) (*Session, error) {
	if a == nil {
		return nil, errors.New("session: authenticator is required")
	}
	return &Session{auth: a, feed: stream.New[Snapshot]()}, nil
}

// Start bootstraps the session: with stored tokens it fetches the profile, and a
// failed fetch logs out. Start returns once the session is Ready.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("session: closed")
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.unhook = s.auth.OnSessionEnd(s.handleSessionEnd)
	s.mu.Unlock()

	var err error
	if s.auth.HasSession(ctx) {
		err = s.RefreshUserData(ctx)
		if err != nil {
			obs.Warn("session bootstrap failed", map[string]any{"error": err})
		}
	}
	s.update(func(st *Snapshot) { st.Ready = true })
	return err
}

// Close detaches the session from the auth service and ends every subscription.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unhook := s.unhook
	s.mu.Unlock()
	if unhook != nil {
		unhook()
	}
	s.feed.Close()
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe delivers every later state change, latest value first. Read Snapshot
// after subscribing to get the starting state.
func (s *Session) Subscribe(ctx context.Context) <-chan Snapshot {
	return s.feed.Subscribe(ctx)
}

// Login authenticates, then fetches the profile with the freshly stored token.
// Observers never see Authenticated without a derived role, and a previous user's
// identity is dropped while the new login is in flight. A rejected login restores
// the previous user, whose tokens are still stored.
func (s *Session) Login(ctx context.Context, username, password string) error {
	var prev Snapshot
	epoch := s.beginEpoch(func(st *Snapshot) {
		prev = *st
		*st = Snapshot{Ready: st.Ready, Loading: true}
	})

	res, err := s.auth.Login(ctx, username, password)
	if err != nil {
		s.restore(epoch, prev)
		return err
	}
	profile, err := s.auth.Profile(ctx)
	if err != nil {
		s.forceLogout(ctx, "profile fetch after login failed", err)
		return err
	}
	applied := s.apply(epoch, profile, func(st *Snapshot) {
		st.RequiresPasswordChange = res.RequiresPasswordChange || profile.RequiresPasswordChange
	})
	if !applied {
		return auth.ErrNotAuthenticated
	}
	ctx = audit.WithActor(ctx, s.Snapshot().Actor())
	_ = audit.LogEvent(ctx, "session.login", map[string]any{"role": s.Snapshot().Role.String()})
	return nil
}

// Logout clears tokens and state. It never fails.
func (s *Session) Logout(ctx context.Context) {
	actor := s.Snapshot().Actor()
	s.auth.Logout(ctx)
	s.clear()
	_ = audit.LogEvent(audit.WithActor(ctx, actor), "session.logout", nil)
}

// ChangePassword changes the password, clears the forced-change flag and reloads
// the profile. Validation errors leave the session untouched.
func (s *Session) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if err := s.auth.ChangePassword(ctx, oldPassword, newPassword); err != nil {
		return err
	}
	s.update(func(st *Snapshot) { st.RequiresPasswordChange = false })
	return s.RefreshUserData(ctx)
}

// RefreshToken renews the access token. false means the session has ended.
func (s *Session) RefreshToken(ctx context.Context) bool {
	_, err := s.auth.RefreshAccessToken(ctx)
	return err == nil
}

// VerifyAccessToken checks the stored access token with the backend.
func (s *Session) VerifyAccessToken(ctx context.Context) error {
	return s.auth.VerifyAccessToken(ctx)
}

// RefreshUserData refetches the profile and re-derives role and permission. A
// failed fetch logs out.
func (s *Session) RefreshUserData(ctx context.Context) error {
	epoch := s.currentEpoch(func(st *Snapshot) { st.Loading = true })
	profile, err := s.auth.Profile(ctx)
	if err != nil {
		s.forceLogout(ctx, "profile fetch failed", err)
		return err
	}
	if !s.apply(epoch, profile, func(st *Snapshot) {
		if profile.RequiresPasswordChange {
			st.RequiresPasswordChange = true
		}
	}) {
		return auth.ErrNotAuthenticated
	}
	return nil
}

// CheckIntegrity validates the token (refreshing once if needed) and that the
// profile belongs to a company. Any failure logs out.
func (s *Session) CheckIntegrity(ctx context.Context) error {
	if err := s.auth.VerifyAccessToken(ctx); err != nil {
		if _, rerr := s.auth.RefreshAccessToken(ctx); rerr != nil {
			s.forceLogout(ctx, "token invalid", rerr)
			obs.ObserveSecurityCheck("token_invalid")
			return rerr
		}
	}
	snap := s.Snapshot()
	if !snap.Authenticated || snap.Profile == nil || snap.Profile.CompanyID == 0 {
		audit.Violation(audit.WithActor(ctx, snap.Actor()), "corrupt_profile", nil)
		s.forceLogout(ctx, "user profile incomplete", ErrCorruptProfile)
		obs.ObserveSecurityCheck("corrupt_profile")
		return ErrCorruptProfile
	}
	obs.ObserveSecurityCheck("ok")
	return nil
}

func (s *Session) handleSessionEnd(reason error) {
	obs.Info("session ended by auth service", map[string]any{"reason": reason})
	s.clear()
}

func (s *Session) forceLogout(ctx context.Context, why string, cause error) {
	obs.Warn("forcing logout", map[string]any{"reason": why, "error": cause})
	s.auth.Logout(ctx)
	s.clear()
}

// beginEpoch starts a new epoch and applies mutate in the same publish.
func (s *Session) beginEpoch(mutate func(*Snapshot)) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	mutate(&s.state)
	s.publishLocked()
	return s.epoch
}

func (s *Session) currentEpoch(mutate func(*Snapshot)) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(&s.state)
	s.publishLocked()
	return s.epoch
}

// apply installs profile if epoch is still current.
func (s *Session) apply(epoch uint64, profile api.Profile, mutate func(*Snapshot)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return false
	}
	p := profile
	role, perm := access.Derive(p)
	s.state.Profile = &p
	s.state.Role = role
	s.state.Permission = perm
	s.state.Authenticated = true
	s.state.Loading = false
	mutate(&s.state)
	s.publishLocked()
	return true
}

// restore reinstates prev after a rejected login if nothing else changed the
// session meanwhile. The generation stays new.
func (s *Session) restore(epoch uint64, prev Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return
	}
	prev.Ready = s.state.Ready
	prev.Loading = false
	s.state = prev
	s.publishLocked()
}

func (s *Session) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.state = Snapshot{Ready: s.state.Ready}
	s.publishLocked()
}

func (s *Session) update(mutate func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(&s.state)
	s.publishLocked()
}

func (s *Session) publishLocked() {
	s.state.Generation = s.epoch
	obs.SetAuthenticated(s.state.Authenticated)
	s.feed.Publish(s.state)
}
