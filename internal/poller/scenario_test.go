package poller_test

import (
	"context"
	"net/http"
	"testing"

	"iaeco.app/internal/access"
	"iaeco.app/internal/api"
	"iaeco.app/internal/apitest"
	"iaeco.app/internal/auth"
	"iaeco.app/internal/guard"
	"iaeco.app/internal/poller"
	"iaeco.app/internal/session"
	"iaeco.app/internal/tokenstore"
)

type stack struct {
	srv    *apitest.Server
	svc    *auth.Service
	sess   *session.Session
	router *guard.Router
	poller *poller.Poller
}

func newStack(t *testing.T) stack {
	t.Helper()
	srv := apitest.New(t)
	srv.AddAccount(apitest.Account{
		Username: "ana",
		Password: "pw-ana-123",
		Profile:  api.Profile{FirstName: "Ana", CompanyID: 7, CompanyRole: "employee"},
	})
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
	ctx := context.Background()
	if err := sess.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := sess.Login(ctx, "ana", "pw-ana-123"); err != nil {
		t.Fatal(err)
	}
	router := guard.NewRouter(sess)
	if loc := router.Push(ctx, access.PathUpload); loc.Decision.Kind != guard.Allow {
		t.Fatalf("setup: upload not allowed: %+v", loc)
	}
	return stack{srv: srv, svc: svc, sess: sess, router: router, poller: poller.New(sess, router)}
}

func TestExpiredAccessWithValidRefreshContinuesSilently(t *testing.T) {
	s := newStack(t)
	s.srv.InvalidateAccess()

	if got := s.poller.Validate(context.Background()); got != poller.Refreshed {
		t.Fatalf("expected refreshed, got %s", got)
	}
	if s.router.CurrentPath() != access.PathUpload {
		t.Fatalf("user redirected to %s", s.router.CurrentPath())
	}
	if !s.sess.Snapshot().Authenticated {
		t.Fatalf("session lost")
	}
	if s.srv.Calls(http.MethodPost, "/token/refresh/") != 1 {
		t.Fatalf("expected exactly one refresh")
	}
	if got := s.poller.Validate(context.Background()); got != poller.Valid {
		t.Fatalf("refreshed token not accepted: %s", got)
	}
}

func TestExpiredRefreshLogsOut(t *testing.T) {
	s := newStack(t)
	s.srv.InvalidateAccess()
	s.srv.InvalidateRefresh()

	if got := s.poller.Validate(context.Background()); got != poller.LoggedOut {
		t.Fatalf("expected logged out, got %s", got)
	}
	if s.router.CurrentPath() != access.PathLogin {
		t.Fatalf("expected /login, got %s", s.router.CurrentPath())
	}
	if s.sess.Snapshot().Authenticated {
		t.Fatalf("session still authenticated")
	}
	pair, err := s.svc.Tokens(context.Background())
	if err != nil || !pair.Empty() {
		t.Fatalf("token pair not cleared: %+v %v", pair, err)
	}
	if s.srv.Calls(http.MethodPost, "/token/refresh/") != 1 {
		t.Fatalf("expected exactly one refresh attempt")
	}
}
