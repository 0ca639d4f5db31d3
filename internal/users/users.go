// Package users administers the accounts of the signed-in user's company.
package users

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"iaeco.app/internal/access"
	"iaeco.app/internal/api"
	"iaeco.app/internal/audit"
	"iaeco.app/internal/notify"
	"iaeco.app/internal/session"
)

var (
	ErrForbidden = errors.New("users: administrator role required")
	ErrNotFound  = errors.New("users: user not found")
)

const minPasswordLen = 8

// ValidationError reports input rejected locally or by the backend.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return "users: " + e.Message }

// Backend is the subset of the REST client used for user administration.
type Backend interface {
	UsersByCompany(ctx context.Context) ([]api.User, error)
	CreateUser(ctx context.Context, in api.UserInput) (api.User, error)
	PatchUser(ctx context.Context, id int64, in api.UserInput) (api.User, error)
	DeleteUser(ctx context.Context, id int64) error
	ResetUserPassword(ctx context.Context, id int64) error
	ToggleUserActive(ctx context.Context, id int64) (api.User, error)
}

// Snapshotter exposes the current session.
type Snapshotter interface {
	Snapshot() session.Snapshot
}

// Admin runs user administration actions on behalf of the session user.
type Admin struct {
	backend  Backend
	sess     Snapshotter
	notifier notify.Notifier
}

// New builds an Admin. notifier may be nil.
func New(backend Backend, sess Snapshotter, notifier notify.Notifier) *Admin {
	return &Admin{backend: backend, sess: sess, notifier: notifier}
}

// authorize applies the same gate as the /users route.
func (a *Admin) authorize(ctx context.Context, action string) (context.Context, error) {
	snap := a.sess.Snapshot()
	route, _ := access.Lookup(access.PathUsers)
	if !snap.Authenticated || !access.Allowed(snap.Principal(), route.Requirement) {
		audit.Violation(audit.WithActor(ctx, snap.Actor()), "users."+action, map[string]any{
			"role": snap.Role.String(),
		})
		return ctx, ErrForbidden
	}
	return audit.WithActor(ctx, snap.Actor()), nil
}

// List returns the users of the company.
func (a *Admin) List(ctx context.Context) ([]api.User, error) {
	if _, err := a.authorize(ctx, "list"); err != nil {
		return nil, err
	}
	out, err := a.backend.UsersByCompany(ctx)
	if err != nil {
		notify.Error(ctx, a.notifier, "Erro ao carregar usuários")
		return nil, fmt.Errorf("users: list: %w", err)
	}
	return out, nil
}

// Create registers a user in the admin's company.
func (a *Admin) Create(ctx context.Context, in api.UserInput) (api.User, error) {
	actx, err := a.authorize(ctx, "create")
	if err != nil {
		return api.User{}, err
	}
	if err := validateNew(in); err != nil {
		return api.User{}, err
	}
	if in.CompanyID == 0 {
		if p := a.sess.Snapshot().Profile; p != nil {
			in.CompanyID = p.CompanyID
		}
	}
	u, err := a.backend.CreateUser(ctx, in)
	if err != nil {
		return api.User{}, a.fail(ctx, "Erro ao criar usuário", "create", err)
	}
	_ = audit.LogEvent(actx, "user.created", map[string]any{"user_id": u.ID, "username": u.Username})
	notify.Success(ctx, a.notifier, "Usuário criado com sucesso!")
	return u, nil
}

// Update changes the fields set in in.
func (a *Admin) Update(ctx context.Context, id int64, in api.UserInput) (api.User, error) {
	actx, err := a.authorize(ctx, "update")
	if err != nil {
		return api.User{}, err
	}
	if in.Password != "" {
		return api.User{}, &ValidationError{Message: "use reset password to change a user's password"}
	}
	u, err := a.backend.PatchUser(ctx, id, in)
	if err != nil {
		return api.User{}, a.fail(ctx, "Erro ao atualizar usuário", "update", err)
	}
	_ = audit.LogEvent(actx, "user.updated", map[string]any{"user_id": id})
	notify.Success(ctx, a.notifier, "Usuário atualizado com sucesso!")
	return u, nil
}

// Delete removes a user.
func (a *Admin) Delete(ctx context.Context, id int64) error {
	actx, err := a.authorize(ctx, "delete")
	if err != nil {
		return err
	}
	if err := a.backend.DeleteUser(ctx, id); err != nil {
		return a.fail(ctx, "Erro ao excluir usuário", "delete", err)
	}
	_ = audit.LogEvent(actx, "user.deleted", map[string]any{"user_id": id})
	notify.Success(ctx, a.notifier, "Usuário excluído com sucesso!")
	return nil
}

// ResetPassword makes the backend issue a temporary password; the user must
// change it at next login.
func (a *Admin) ResetPassword(ctx context.Context, id int64) error {
	actx, err := a.authorize(ctx, "reset_password")
	if err != nil {
		return err
	}
	if err := a.backend.ResetUserPassword(ctx, id); err != nil {
		return a.fail(ctx, "Erro ao redefinir senha", "reset_password", err)
	}
	_ = audit.LogEvent(actx, "user.password_reset", map[string]any{"user_id": id})
	notify.Success(ctx, a.notifier, "Senha redefinida. O usuário deverá alterá-la no próximo acesso.")
	return nil
}

// ToggleActive flips the active flag and returns the updated user.
func (a *Admin) ToggleActive(ctx context.Context, id int64) (api.User, error) {
	actx, err := a.authorize(ctx, "toggle_active")
	if err != nil {
		return api.User{}, err
	}
	u, err := a.backend.ToggleUserActive(ctx, id)
	if err != nil {
		return api.User{}, a.fail(ctx, "Erro ao alterar status do usuário", "toggle_active", err)
	}
	_ = audit.LogEvent(actx, "user.toggled", map[string]any{"user_id": id, "active": u.IsActive})
	if u.IsActive {
		notify.Success(ctx, a.notifier, "Usuário ativado")
	} else {
		notify.Success(ctx, a.notifier, "Usuário desativado")
	}
	return u, nil
}

func (a *Admin) fail(ctx context.Context, msg, action string, err error) error {
	var se *api.StatusError
	switch {
	case errors.As(err, &se) && se.Status == http.StatusNotFound:
		notify.Error(ctx, a.notifier, msg)
		return fmt.Errorf("users: %s: %w", action, ErrNotFound)
	case errors.As(err, &se) && se.Status == http.StatusBadRequest && se.Detail != "":
		notify.Error(ctx, a.notifier, msg+": "+se.Detail)
		return &ValidationError{Message: se.Detail}
	}
	notify.Error(ctx, a.notifier, msg)
	return fmt.Errorf("users: %s: %w", action, err)
}

func validateNew(in api.UserInput) error {
	switch {
	case strings.TrimSpace(in.Username) == "":
		return &ValidationError{Message: "username is required"}
	case len(in.Password) < minPasswordLen:
		return &ValidationError{Message: fmt.Sprintf("password must have at least %d characters", minPasswordLen)}
	case in.Password != in.ConfirmPassword:
		return &ValidationError{Message: "passwords do not match"}
	}
	if in.CompanyRole != "" && in.CompanyRole != "company_admin" && in.CompanyRole != "employee" && in.CompanyRole != "client" {
		return &ValidationError{Message: "unknown company role " + in.CompanyRole}
	}
	return nil
}
