package company_test

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"

	"iaeco.app/internal/api"
	"iaeco.app/internal/apitest"
	"iaeco.app/internal/auth"
	"iaeco.app/internal/company"
	"iaeco.app/internal/notify"
	"iaeco.app/internal/session"
	"iaeco.app/internal/tokenstore"
)

type fixture struct {
	srv   *apitest.Server
	sess  *session.Session
	store *company.Store
	rec   *notify.Recorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	srv := apitest.New(t)
	srv.AddAccount(apitest.Account{
		Username: "ana",
		Password: "pw-ana-123",
		Profile:  api.Profile{FirstName: "Ana", CompanyID: 7, CompanyRole: "company_admin"},
	})
	srv.AddMicroCompany(api.MicroCompany{Name: "Filial Sul", Company: 7})
	srv.AddMicroCompany(api.MicroCompany{Name: "Filial Norte", Company: 7})
	srv.AddMicroCompany(api.MicroCompany{Name: "Outra", Company: 9})

	client, err := api.New(srv.BaseURL(), api.WithRateLimit(0, 0))
	if err != nil {
		t.Fatal(err)
	}
	svc, err := auth.NewService(client, tokenstore.New(tokenstore.NewMemory()))
	if err != nil {
		t.Fatal(err)
	}
	client.SetCredentials(svc)
	sess, err := session.New(svc)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(sess.Close)
	if err := sess.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	rec := &notify.Recorder{}
	return fixture{srv: srv, sess: sess, store: company.New(client, sess, rec), rec: rec}
}

func (f fixture) login(t *testing.T) {
	t.Helper()
	if err := f.sess.Login(context.Background(), "ana", "pw-ana-123"); err != nil {
		t.Fatal(err)
	}
}

func (f fixture) loaded(t *testing.T) []company.Company {
	t.Helper()
	f.login(t)
	if err := f.store.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	return f.store.State().Companies
}

func names(cs []company.Company) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Name
	}
	return out
}

func TestRefreshRequiresSession(t *testing.T) {
	f := newFixture(t)
	if err := f.store.Refresh(context.Background()); !errors.Is(err, company.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestRefreshScopesToUserCompany(t *testing.T) {
	f := newFixture(t)
	got := f.loaded(t)
	if len(got) != 2 || got[0].Name != "Filial Sul" || got[1].Name != "Filial Norte" {
		t.Fatalf("unexpected companies %v", names(got))
	}
	if f.store.State().Loading {
		t.Fatalf("loading flag left on")
	}
}

func TestRefreshFailureKeepsList(t *testing.T) {
	f := newFixture(t)
	before := f.loaded(t)
	f.srv.Fail(http.MethodGet, "/micro/", http.StatusInternalServerError)
	if err := f.store.Refresh(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if after := f.store.State().Companies; len(after) != len(before) {
		t.Fatalf("list changed on failure: %v", names(after))
	}
	if n, ok := f.rec.Last(); !ok || n.Level != notify.LevelError {
		t.Fatalf("expected error notice, got %+v", n)
	}
}

func TestSelectDoesNotRefetch(t *testing.T) {
	f := newFixture(t)
	list := f.loaded(t)
	calls := f.srv.Calls(http.MethodGet, "/micro/")
	ctx := context.Background()

	if err := f.store.Select(ctx, list[1].ID); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if sel := f.store.State().Selected; sel == nil || sel.ID != list[1].ID {
		t.Fatalf("unexpected selection %+v", sel)
	}
	if f.srv.Calls(http.MethodGet, "/micro/") != calls {
		t.Fatalf("select refetched the list")
	}
	if err := f.store.Select(ctx, 0); err != nil || f.store.State().Selected != nil {
		t.Fatalf("clear selection failed")
	}
}

func TestSelectUnknownIsAudited(t *testing.T) {
	f := newFixture(t)
	f.loaded(t)
	foreign := f.srv.MicroCompanies()[2]
	if err := f.store.Select(context.Background(), foreign.ID); !errors.Is(err, company.ErrUnknownCompany) {
		t.Fatalf("expected ErrUnknownCompany, got %v", err)
	}
	if f.store.ValidateAccess(context.Background(), foreign.ID) {
		t.Fatalf("foreign company validated")
	}
}

func TestAddAppendsImmutably(t *testing.T) {
	f := newFixture(t)
	before := f.loaded(t)
	c, err := f.store.Add(context.Background(), company.Input{Name: "Filial Leste", Description: "nova"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	after := f.store.State().Companies
	if len(after) != 3 || after[2].ID != c.ID {
		t.Fatalf("unexpected list %v", names(after))
	}
	if len(before) != 2 {
		t.Fatalf("previous state mutated")
	}
	var created api.MicroCompany
	for _, m := range f.srv.MicroCompanies() {
		if m.ID == c.ID {
			created = m
		}
	}
	if created.Company != 7 {
		t.Fatalf("company id not sent, got %d", created.Company)
	}
}

func TestUpdateFollowsSelection(t *testing.T) {
	f := newFixture(t)
	list := f.loaded(t)
	ctx := context.Background()
	if err := f.store.Select(ctx, list[0].ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.Update(ctx, list[0].ID, company.Input{Name: "Filial Sul II"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	st := f.store.State()
	if st.Companies[0].Name != "Filial Sul II" || st.Selected.Name != "Filial Sul II" {
		t.Fatalf("update not applied: %+v", st)
	}
	if list[0].Name != "Filial Sul" {
		t.Fatalf("previous state mutated")
	}
}

func TestRemoveDropsSelection(t *testing.T) {
	f := newFixture(t)
	list := f.loaded(t)
	ctx := context.Background()
	if err := f.store.Select(ctx, list[1].ID); err != nil {
		t.Fatal(err)
	}
	if err := f.store.Remove(ctx, list[1].ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	st := f.store.State()
	if len(st.Companies) != 1 || st.Selected != nil {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestFailedMutationsLeaveListUntouched(t *testing.T) {
	f := newFixture(t)
	list := f.loaded(t)
	ctx := context.Background()

	f.srv.Fail(http.MethodDelete, "/micro/"+strconv.FormatInt(list[0].ID, 10)+"/", http.StatusInternalServerError)
	if err := f.store.Remove(ctx, list[0].ID); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := f.store.Update(ctx, 99999, company.Input{Name: "x"}); !api.IsStatus(err, http.StatusNotFound) {
		t.Fatalf("expected 404, got %v", err)
	}
	f.srv.Fail(http.MethodPost, "/micro/", http.StatusBadRequest)
	if _, err := f.store.Add(ctx, company.Input{Name: "x"}); err == nil {
		t.Fatalf("expected error")
	}
	if got := f.store.State().Companies; len(got) != 2 || got[0] != list[0] || got[1] != list[1] {
		t.Fatalf("list changed: %v", names(got))
	}
	if !f.sess.Snapshot().Authenticated {
		t.Fatalf("CRUD failure touched the session")
	}
	errs := 0
	for _, n := range f.rec.Notices() {
		if n.Level == notify.LevelError {
			errs++
		}
	}
	if errs != 3 {
		t.Fatalf("expected 3 error notices, got %d", errs)
	}
}

func TestWatchFollowsAuthentication(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.store.Watch(ctx) }()

	f.login(t)
	waitFor(t, func() bool { return len(f.store.State().Companies) == 2 })

	f.sess.Logout(context.Background())
	waitFor(t, func() bool { return len(f.store.State().Companies) == 0 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func addBia(f fixture) {
	f.srv.AddAccount(apitest.Account{
		Username: "bia",
		Password: "pw-bia-456",
		Profile:  api.Profile{FirstName: "Bia", CompanyID: 9, CompanyRole: "company_admin"},
	})
}

func TestWatchSwitchingUsersShowsOnlyNewCompany(t *testing.T) {
	f := newFixture(t)
	addBia(f)
	f.srv.Delay(http.MethodGet, "/micro/", 200*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.store.Watch(ctx) }()

	f.login(t)
	waitFor(t, func() bool { return f.srv.Calls(http.MethodGet, "/micro/") == 1 })

	// Logout and login back to back: the feed may only ever deliver bia's state.
	f.sess.Logout(context.Background())
	if err := f.sess.Login(context.Background(), "bia", "pw-bia-456"); err != nil {
		t.Fatal(err)
	}
	onlyOutra := func() bool {
		st := f.store.State()
		return !st.Loading && len(st.Companies) == 1 && st.Companies[0].Name == "Outra"
	}
	waitFor(t, onlyOutra)

	time.Sleep(300 * time.Millisecond)
	if !onlyOutra() {
		t.Fatalf("bia sees %v, want [Outra]", names(f.store.State().Companies))
	}
	for _, m := range f.srv.MicroCompanies() {
		if m.Company == 7 && f.store.ValidateAccess(context.Background(), m.ID) {
			t.Fatalf("bia may access %q of another company", m.Name)
		}
	}
}

func TestRefreshDropsResultOfEndedSession(t *testing.T) {
	f := newFixture(t)
	addBia(f)
	f.login(t)
	f.srv.Delay(http.MethodGet, "/micro/", 200*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- f.store.Refresh(context.Background()) }()
	waitFor(t, func() bool { return f.srv.Calls(http.MethodGet, "/micro/") == 1 })

	f.sess.Logout(context.Background())
	if err := f.sess.Login(context.Background(), "bia", "pw-bia-456"); err != nil {
		t.Fatal(err)
	}
	if err := <-done; !errors.Is(err, company.ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	if st := f.store.State(); len(st.Companies) != 0 || st.Loading {
		t.Fatalf("stale list applied: %v loading=%v", names(st.Companies), st.Loading)
	}
}
