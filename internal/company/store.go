// Package company keeps the micro companies of the signed-in user's company and
// which one is selected.
package company

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"iaeco.app/internal/api"
	"iaeco.app/internal/audit"
	"iaeco.app/internal/notify"
	"iaeco.app/internal/obs"
	"iaeco.app/internal/session"
	"iaeco.app/internal/stream"
)

var (
	ErrNotAuthenticated = errors.New("company: not authenticated")
	ErrUnknownCompany   = errors.New("company: not in the loaded list")
	// ErrStale means the session changed while a request was in flight and its
	// result was not applied.
	ErrStale = errors.New("company: session changed during request")
)

// Company is the client's view of a micro company.
type Company struct {
	ID          int64
	Name        string
	Logo        string
	Description string
}

func fromMicro(m api.MicroCompany) Company {
	return Company{ID: m.ID, Name: m.Name, Logo: m.Logo, Description: m.Description}
}

// Input is the editable part of a company.
type Input struct {
	Name        string
	Description string
	Logo        *api.FilePart
}

// State is an immutable view; slices are never modified after publication.
type State struct {
	Companies []Company
	Selected  *Company
	Loading   bool
}

// Backend is the subset of the REST client the store drives.
type Backend interface {
	MicroCompanies(ctx context.Context, companyID int64) ([]api.MicroCompany, error)
	CreateMicroCompany(ctx context.Context, in api.MicroCompanyInput) (api.MicroCompany, error)
	UpdateMicroCompany(ctx context.Context, id int64, in api.MicroCompanyInput) (api.MicroCompany, error)
	DeleteMicroCompany(ctx context.Context, id int64) error
}

// SessionSource is the read side of session.Session.
type SessionSource interface {
	Snapshot() session.Snapshot
	Subscribe(ctx context.Context) <-chan session.Snapshot
}

// Store is safe for concurrent use.
type Store struct {
	backend  Backend
	sess     SessionSource
	notifier notify.Notifier
	feed     *stream.Stream[State]

	mu    sync.Mutex
	state State
	epoch uint64
}

// New builds an empty store. notifier may be nil.
func New(backend Backend, sess SessionSource, notifier notify.Notifier) *Store {
	return &Store{backend: backend, sess: sess, notifier: notifier, feed: stream.New[State]()}
}

// State returns the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe delivers later state changes.
func (s *Store) Subscribe(ctx context.Context) <-chan State {
	return s.feed.Subscribe(ctx)
}

// Watch refetches whenever a session generation becomes authenticated and clears
// the store when authentication ends. A logout followed by a login is seen as a
// generation change even if the feed skipped the logged-out state. It returns when
// ctx ends.
func (s *Store) Watch(ctx context.Context) error {
	changes := s.sess.Subscribe(ctx)
	var (
		authed bool
		gen    uint64
	)
	follow := func(snap session.Snapshot) {
		switch {
		case snap.Authenticated && (!authed || snap.Generation != gen):
			if authed {
				s.clear()
			}
			authed, gen = true, snap.Generation
			if err := s.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrStale) {
				obs.Warn("company list load failed", map[string]any{"error": err})
			}
		case !snap.Authenticated && authed:
			authed = false
			s.clear()
		}
	}
	follow(s.sess.Snapshot())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-changes:
			if !ok {
				return nil
			}
			follow(snap)
		}
	}
}

// Refresh reloads the list scoped to the user's company. On failure the current
// list is kept and an error notice is sent. A result that arrives after the
// session changed hands is dropped with ErrStale.
func (s *Store) Refresh(ctx context.Context) error {
	snap := s.sess.Snapshot()
	if !snap.Authenticated || snap.Profile == nil {
		return ErrNotAuthenticated
	}
	s.mu.Lock()
	epoch := s.epoch
	s.state.Loading = true
	s.publishLocked()
	s.mu.Unlock()

	micro, err := s.backend.MicroCompanies(ctx, snap.Profile.CompanyID)

	s.mu.Lock()
	if s.epoch != epoch || !s.currentLocked(snap.Generation) {
		if s.epoch == epoch {
			s.state.Loading = false
			s.publishLocked()
		}
		s.mu.Unlock()
		return ErrStale
	}
	s.state.Loading = false
	if err == nil {
		list := make([]Company, 0, len(micro))
		for _, m := range micro {
			list = append(list, fromMicro(m))
		}
		s.state.Companies = list
		s.state.Selected = reselect(list, s.state.Selected)
	}
	s.publishLocked()
	s.mu.Unlock()

	if err != nil {
		notify.Error(ctx, s.notifier, "Erro ao carregar empresas")
		return fmt.Errorf("company: load: %w", err)
	}
	return nil
}

// Select moves the pointer to id without refetching. id 0 clears the selection.
func (s *Store) Select(ctx context.Context, id int64) error {
	if id == 0 {
		s.mu.Lock()
		s.state.Selected = nil
		s.publishLocked()
		s.mu.Unlock()
		return nil
	}
	if !s.ValidateAccess(ctx, id) {
		return ErrUnknownCompany
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Selected = reselect(s.state.Companies, &Company{ID: id})
	s.publishLocked()
	return nil
}

// Add creates a company under the user's company and appends it.
func (s *Store) Add(ctx context.Context, in Input) (Company, error) {
	snap := s.sess.Snapshot()
	if !snap.Authenticated || snap.Profile == nil {
		return Company{}, ErrNotAuthenticated
	}
	m, err := s.backend.CreateMicroCompany(ctx, api.MicroCompanyInput{
		Name:        in.Name,
		Description: in.Description,
		Company:     snap.Profile.CompanyID,
		Logo:        in.Logo,
	})
	if err != nil {
		notify.Error(ctx, s.notifier, "Erro ao criar empresa")
		return Company{}, fmt.Errorf("company: create: %w", err)
	}
	c := fromMicro(m)
	s.mu.Lock()
	if !s.currentLocked(snap.Generation) {
		s.mu.Unlock()
		return c, ErrStale
	}
	list := make([]Company, 0, len(s.state.Companies)+1)
	list = append(list, s.state.Companies...)
	s.state.Companies = append(list, c)
	s.publishLocked()
	s.mu.Unlock()
	notify.Success(ctx, s.notifier, "Empresa criada com sucesso!")
	return c, nil
}

// Update edits a company and replaces it by id; a selected company follows.
func (s *Store) Update(ctx context.Context, id int64, in Input) (Company, error) {
	gen := s.sess.Snapshot().Generation
	m, err := s.backend.UpdateMicroCompany(ctx, id, api.MicroCompanyInput{
		Name:        in.Name,
		Description: in.Description,
		Logo:        in.Logo,
	})
	if err != nil {
		notify.Error(ctx, s.notifier, "Erro ao atualizar empresa")
		return Company{}, fmt.Errorf("company: update %d: %w", id, err)
	}
	c := fromMicro(m)
	s.mu.Lock()
	if !s.currentLocked(gen) {
		s.mu.Unlock()
		return c, ErrStale
	}
	list := make([]Company, len(s.state.Companies))
	for i, old := range s.state.Companies {
		if old.ID == id {
			old = c
		}
		list[i] = old
	}
	s.state.Companies = list
	if s.state.Selected != nil && s.state.Selected.ID == id {
		sel := c
		s.state.Selected = &sel
	}
	s.publishLocked()
	s.mu.Unlock()
	notify.Success(ctx, s.notifier, "Empresa atualizada com sucesso!")
	return c, nil
}

// Remove deletes a company and drops it by id; a selected company is unselected.
func (s *Store) Remove(ctx context.Context, id int64) error {
	gen := s.sess.Snapshot().Generation
	if err := s.backend.DeleteMicroCompany(ctx, id); err != nil {
		notify.Error(ctx, s.notifier, "Erro ao remover empresa")
		return fmt.Errorf("company: delete %d: %w", id, err)
	}
	s.mu.Lock()
	if !s.currentLocked(gen) {
		s.mu.Unlock()
		return ErrStale
	}
	list := make([]Company, 0, len(s.state.Companies))
	for _, c := range s.state.Companies {
		if c.ID != id {
			list = append(list, c)
		}
	}
	s.state.Companies = list
	if s.state.Selected != nil && s.state.Selected.ID == id {
		s.state.Selected = nil
	}
	s.publishLocked()
	s.mu.Unlock()
	notify.Success(ctx, s.notifier, "Empresa removida com sucesso!")
	return nil
}

// ValidateAccess reports whether id is one of the loaded companies. A miss is
// audited as a security violation.
func (s *Store) ValidateAccess(ctx context.Context, id int64) bool {
	s.mu.Lock()
	found := false
	for _, c := range s.state.Companies {
		if c.ID == id {
			found = true
			break
		}
	}
	s.mu.Unlock()
	if found {
		obs.ObserveSecurityCheck("company_ok")
		return true
	}
	obs.ObserveSecurityCheck("company_denied")
	actor := s.sess.Snapshot().Actor()
	audit.Violation(audit.WithActor(ctx, actor), "company_access", map[string]any{"micro_company_id": id})
	notify.Error(ctx, s.notifier, "Acesso negado: Empresa não encontrada ou sem permissão")
	return false
}

// currentLocked reports whether gen is still the session's authenticated
// generation. Session reads never take s.mu, so holding it here is safe.
func (s *Store) currentLocked(gen uint64) bool {
	snap := s.sess.Snapshot()
	return snap.Authenticated && snap.Generation == gen
}

func (s *Store) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.state = State{}
	s.publishLocked()
}

func (s *Store) publishLocked() {
	s.feed.Publish(s.state)
}

// reselect returns the entry of list matching sel, or nil.
func reselect(list []Company, sel *Company) *Company {
	if sel == nil {
		return nil
	}
	for _, c := range list {
		if c.ID == sel.ID {
			c := c
			return &c
		}
	}
	return nil
}
