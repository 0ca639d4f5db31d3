package users_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"iaeco.app/internal/api"
	"iaeco.app/internal/apitest"
	"iaeco.app/internal/auth"
	"iaeco.app/internal/notify"
	"iaeco.app/internal/session"
	"iaeco.app/internal/tokenstore"
	"iaeco.app/internal/users"
)

type fixture struct {
	srv   *apitest.Server
	admin *users.Admin
	rec   *notify.Recorder
}

// newFixture signs in as username; accounts: "root" (company admin), "bia"
// (employee), both in company 7.
func newFixture(t *testing.T, username string) fixture {
	t.Helper()
	srv := apitest.New(t)
	srv.AddAccount(apitest.Account{
		Username: "root",
		Password: "pw-root-123",
		Profile:  api.Profile{FirstName: "Root", CompanyID: 7, CompanyRole: "company_admin"},
	})
	srv.AddAccount(apitest.Account{
		Username: "bia",
		Password: "pw-bia-123",
		Profile:  api.Profile{FirstName: "Bia", CompanyID: 7, CompanyRole: "employee"},
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
	if err := sess.Login(ctx, username, "pw-"+username+"-123"); err != nil {
		t.Fatal(err)
	}
	rec := &notify.Recorder{}
	return fixture{srv: srv, admin: users.New(client, sess, rec), rec: rec}
}

func TestNonAdminIsRejectedLocally(t *testing.T) {
	f := newFixture(t, "bia")
	ctx := context.Background()
	if _, err := f.admin.List(ctx); !errors.Is(err, users.ErrForbidden) {
		t.Fatalf("List: expected ErrForbidden, got %v", err)
	}
	if err := f.admin.Delete(ctx, 1); !errors.Is(err, users.ErrForbidden) {
		t.Fatalf("Delete: expected ErrForbidden, got %v", err)
	}
	if n := f.srv.Calls(http.MethodGet, "/users/by_company/"); n != 0 {
		t.Fatalf("backend called %d times for a denied action", n)
	}
}

func TestAdminLifecycle(t *testing.T) {
	f := newFixture(t, "root")
	ctx := context.Background()

	list, err := f.admin.List(ctx)
	if err != nil || len(list) != 2 {
		t.Fatalf("List: %v %v", list, err)
	}

	u, err := f.admin.Create(ctx, api.UserInput{
		Username: "caio", Password: "segredo-123", ConfirmPassword: "segredo-123",
		FirstName: "Caio", CompanyRole: "employee",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n, _ := f.rec.Last(); n.Level != notify.LevelSuccess {
		t.Fatalf("expected success notice, got %+v", n)
	}
	if acc, ok := f.srv.Account("caio"); !ok || acc.Profile.CompanyID != 7 {
		t.Fatalf("created account %+v", acc)
	}

	if u, err = f.admin.Update(ctx, u.ID, api.UserInput{LastName: "Souza"}); err != nil || u.LastName != "Souza" {
		t.Fatalf("Update: %+v %v", u, err)
	}
	if u, err = f.admin.ToggleActive(ctx, u.ID); err != nil || u.IsActive {
		t.Fatalf("ToggleActive: %+v %v", u, err)
	}
	if n, _ := f.rec.Last(); n.Message != "Usuário desativado" {
		t.Fatalf("unexpected notice %q", n.Message)
	}
	if err := f.admin.ResetPassword(ctx, u.ID); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if acc, _ := f.srv.Account("caio"); !acc.RequiresPasswordChange {
		t.Fatalf("reset did not require a password change")
	}
	if err := f.admin.Delete(ctx, u.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := f.admin.Delete(ctx, u.ID); !errors.Is(err, users.ErrNotFound) {
		t.Fatalf("second Delete: expected ErrNotFound, got %v", err)
	}
	if n, _ := f.rec.Last(); n.Level != notify.LevelError {
		t.Fatalf("expected error notice, got %+v", n)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, "root")
	cases := []struct {
		name string
		in   api.UserInput
	}{
		{"no username", api.UserInput{Password: "segredo-123", ConfirmPassword: "segredo-123"}},
		{"short password", api.UserInput{Username: "x", Password: "curta", ConfirmPassword: "curta"}},
		{"mismatch", api.UserInput{Username: "x", Password: "segredo-123", ConfirmPassword: "segredo-124"}},
		{"bad role", api.UserInput{Username: "x", Password: "segredo-123", ConfirmPassword: "segredo-123", CompanyRole: "owner"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var verr *users.ValidationError
			if _, err := f.admin.Create(context.Background(), tc.in); !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
	if n := f.srv.Calls(http.MethodPost, "/users/"); n != 0 {
		t.Fatalf("invalid input reached the backend %d times", n)
	}
}

func TestBackendValidationDetail(t *testing.T) {
	f := newFixture(t, "root")
	_, err := f.admin.Create(context.Background(), api.UserInput{
		Username: "bia", Password: "segredo-123", ConfirmPassword: "segredo-123",
	})
	var verr *users.ValidationError
	if !errors.As(err, &verr) || verr.Message != "username already exists" {
		t.Fatalf("expected backend detail, got %v", err)
	}
}

func TestUpdateRejectsPassword(t *testing.T) {
	f := newFixture(t, "root")
	var verr *users.ValidationError
	if _, err := f.admin.Update(context.Background(), 1, api.UserInput{Password: "nova-senha"}); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
