package app_test

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"iaeco.app/internal/access"
	"iaeco.app/internal/api"
	"iaeco.app/internal/apitest"
	"iaeco.app/internal/app"
	"iaeco.app/internal/config"
	"iaeco.app/internal/guard"
	"iaeco.app/internal/notify"
	"iaeco.app/internal/poller"
	"iaeco.app/internal/tokenstore"
)

func testConfig(baseURL string) config.Config {
	return config.Config{
		API:    config.API{BaseURL: baseURL, Timeout: 5 * time.Second},
		Tokens: config.TokenStore{Kind: config.StoreMemory},
		Poll:   config.Poll{Interval: time.Hour, Debounce: 10 * time.Millisecond},
	}
}

func newServer(t *testing.T) *apitest.Server {
	t.Helper()
	srv := apitest.New(t)
	srv.AddAccount(apitest.Account{
		Username: "ana",
		Password: "pw-ana-123",
		Profile:  api.Profile{FirstName: "Ana", CompanyID: 7, CompanyRole: "employee"},
	})
	srv.AddMicroCompany(api.MicroCompany{Name: "Filial Sul", Company: 7})
	return srv
}

func newApp(t *testing.T, srv *apitest.Server, opts ...app.Option) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), testConfig(srv.BaseURL()), opts...)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartRestoresPersistedSession(t *testing.T) {
	srv := newServer(t)
	kv := tokenstore.NewMemory()
	at, rt := srv.IssueTokens("ana")
	if err := tokenstore.New(kv).Save(context.Background(), tokenstore.Pair{Access: at, Refresh: rt}); err != nil {
		t.Fatal(err)
	}

	a := newApp(t, srv, app.WithTokenKV(kv))
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := a.Session.Snapshot()
	if !snap.Authenticated || !snap.Ready || snap.Profile.FirstName != "Ana" {
		t.Fatalf("session not restored: %+v", snap)
	}
}

func TestRunFollowsSession(t *testing.T) {
	srv := newServer(t)
	a := newApp(t, srv)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	if loc := a.Router.Push(ctx, access.PathUpload); loc.Path != access.PathLogin {
		t.Fatalf("anonymous user should land on login, got %+v", loc)
	}
	if err := a.Session.Login(ctx, "ana", "pw-ana-123"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "router to leave login", func() bool { return a.Router.CurrentPath() == access.PathDashboard })
	waitFor(t, "poller start", a.Supervisor.Running)
	waitFor(t, "companies", func() bool { return len(a.Companies.State().Companies) == 1 })

	if loc := a.Router.Push(ctx, access.PathCompanies); loc.Decision.Kind != guard.Allow || loc.Err != nil {
		t.Fatalf("companies page: %+v", loc)
	}
	if loc := a.Router.Push(ctx, access.PathUsers); loc.Decision.Kind != guard.Denied {
		t.Fatalf("employee reached users page: %+v", loc)
	}
	if n := srv.Calls(http.MethodGet, "/users/by_company/"); n != 0 {
		t.Fatalf("denied page loader ran %d times", n)
	}

	a.Session.Logout(ctx)
	waitFor(t, "router to return to login", func() bool { return a.Router.CurrentPath() == access.PathLogin })
	waitFor(t, "poller stop", func() bool { return !a.Supervisor.Running() })
	waitFor(t, "company store clear", func() bool { return len(a.Companies.State().Companies) == 0 })

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestDashboard(t *testing.T) {
	srv := newServer(t)
	rec := &notify.Recorder{}
	a := newApp(t, srv, app.WithNotifier(rec))
	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := a.Session.Login(ctx, "ana", "pw-ana-123"); err != nil {
		t.Fatal(err)
	}

	d, err := a.Dashboard(ctx)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if len(d.Summary) == 0 || len(d.Emissions) != 1 || len(d.CompanyEmissions) != 1 || len(d.Scopes) != 3 {
		t.Fatalf("unexpected dashboard %+v", d)
	}

	srv.Fail(http.MethodGet, "/emissions/", http.StatusInternalServerError)
	if _, err := a.Dashboard(ctx); !api.IsStatus(err, http.StatusInternalServerError) {
		t.Fatalf("expected emissions failure, got %v", err)
	}
	if n, _ := rec.Last(); n.Level != notify.LevelError {
		t.Fatalf("expected error notice, got %+v", n)
	}
}

func TestPollObserverAndForeground(t *testing.T) {
	srv := newServer(t)
	fg := make(chan struct{}, 1)
	var (
		mu       sync.Mutex
		outcomes []string
	)
	a := newApp(t, srv, app.WithForeground(fg), app.WithPollObserver(func(o poller.Outcome) {
		mu.Lock()
		outcomes = append(outcomes, o.String())
		mu.Unlock()
	}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatal(err)
	}
	go func() { _ = a.Run(ctx) }()
	if err := a.Session.Login(ctx, "ana", "pw-ana-123"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "router at dashboard", func() bool { return a.Router.CurrentPath() == access.PathDashboard })
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(outcomes)
	}
	waitFor(t, "initial check", func() bool { return count() >= 1 })
	fg <- struct{}{}
	waitFor(t, "foreground check", func() bool { return count() >= 2 })
}

func TestOpenTokenKV(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cases := []struct {
		name string
		cfg  config.TokenStore
	}{
		{"memory", config.TokenStore{Kind: config.StoreMemory}},
		{"file", config.TokenStore{Kind: config.StoreFile, Path: filepath.Join(t.TempDir(), "tokens.json")}},
		{"sqlite", config.TokenStore{Kind: config.StoreSQL, Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "tokens.db")}},
		{"redis", func() config.TokenStore {
			c := config.TokenStore{Kind: config.StoreRedis}
			c.Redis.Addr = mr.Addr()
			return c
		}()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kv, closeKV, err := app.OpenTokenKV(ctx, tc.cfg)
			if err != nil {
				t.Fatalf("OpenTokenKV: %v", err)
			}
			defer closeKV()
			store := tokenstore.New(kv)
			want := tokenstore.Pair{Access: "a", Refresh: "r"}
			if err := store.Save(ctx, want); err != nil {
				t.Fatalf("Save: %v", err)
			}
			if got, err := store.Load(ctx); err != nil || got != want {
				t.Fatalf("Load: %+v %v", got, err)
			}
		})
	}

	if _, _, err := app.OpenTokenKV(ctx, config.TokenStore{Kind: "s3"}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	bad := config.TokenStore{Kind: config.StoreRedis}
	bad.Redis.Addr = "127.0.0.1:1"
	if _, closeKV, err := app.OpenTokenKV(ctx, bad); err == nil || closeKV == nil {
		t.Fatalf("expected redis dial error and a non-nil close func, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	a := newApp(t, newServer(t))
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
