package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"iaeco.app/internal/access"
)

func runLogin(c *cli, ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	username := fs.String("u", "", "username")
	password := fs.String("password", "", "password (default $IAECO_PASSWORD or stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		u, err := c.prompt("Usuário: ")
		if err != nil {
			return err
		}
		*username = strings.TrimSpace(u)
	}
	pw, err := c.secret(*password, "IAECO_PASSWORD", "Senha: ")
	if err != nil {
		return err
	}

	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.Session.Login(ctx, *username, pw); err != nil {
		return err
	}
	// The guard sends a signed-in user away from /login.
	loc := a.Router.Replace(ctx, access.PathLogin)
	snap := a.Session.Snapshot()
	fmt.Fprintf(c.stdout, "Bem-vindo, %s (%s)\n", snap.Profile.FullName(), snap.Role)
	if loc.Path == access.PathChangePassword {
		fmt.Fprintln(c.stdout, "Você precisa alterar sua senha: iaeco change-password")
	}
	return nil
}

func runLogout(c *cli, ctx context.Context, _ []string) error {
	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	a.Session.Logout(ctx)
	fmt.Fprintln(c.stdout, "Sessão encerrada")
	return nil
}

type whoami struct {
	User                   string   `json:"user"`
	Company                string   `json:"company"`
	CompanyID              int64    `json:"company_id"`
	Role                   string   `json:"role"`
	Permission             string   `json:"permission"`
	RequiresPasswordChange bool     `json:"requires_password_change"`
	Menu                   []string `json:"menu"`
}

func runWhoami(c *cli, ctx context.Context, _ []string) error {
	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	snap := a.Session.Snapshot()
	if !snap.Authenticated || snap.Profile == nil {
		return errNotSignedIn
	}
	if err := a.Session.CheckIntegrity(ctx); err != nil {
		return err
	}
	w := whoami{
		User:                   snap.Profile.FullName(),
		Company:                snap.Profile.Company,
		CompanyID:              snap.Profile.CompanyID,
		Role:                   snap.Role.String(),
		Permission:             snap.Permission.String(),
		RequiresPasswordChange: snap.RequiresPasswordChange,
	}
	for _, r := range access.MenuFor(snap.Principal()) {
		w.Menu = append(w.Menu, r.Path)
	}
	return c.print(w, func(tw io.Writer) {
		fmt.Fprintf(tw, "user\t%s\n", w.User)
		fmt.Fprintf(tw, "company\t%s (%d)\n", w.Company, w.CompanyID)
		fmt.Fprintf(tw, "role\t%s\n", w.Role)
		fmt.Fprintf(tw, "permission\t%s\n", w.Permission)
		if w.RequiresPasswordChange {
			fmt.Fprintf(tw, "password\tchange required\n")
		}
		fmt.Fprintf(tw, "menu\t%s\n", strings.Join(w.Menu, " "))
	})
}

func runChangePassword(c *cli, ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("change-password", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	oldPw := fs.String("old", "", "current password (default $IAECO_PASSWORD or stdin)")
	newPw := fs.String("new", "", "new password (default $IAECO_NEW_PASSWORD or stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := enter(ctx, a, access.PathChangePassword, nil); err != nil {
		return err
	}
	current, err := c.secret(*oldPw, "IAECO_PASSWORD", "Senha atual: ")
	if err != nil {
		return err
	}
	next, err := c.secret(*newPw, "IAECO_NEW_PASSWORD", "Nova senha: ")
	if err != nil {
		return err
	}
	if err := a.Session.ChangePassword(ctx, current, next); err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, "Senha alterada com sucesso")
	return nil
}

func runForgotPassword(c *cli, ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("forgot-password", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	email := fs.String("email", "", "account e-mail")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		e, err := c.prompt("E-mail: ")
		if err != nil {
			return err
		}
		*email = strings.TrimSpace(e)
	}
	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := enter(ctx, a, access.PathForgotPassword, nil); err != nil {
		return err
	}
	if err := a.Auth.RequestPasswordReset(ctx, *email); err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, "Se o e-mail estiver cadastrado, você receberá as instruções para redefinir a senha.")
	return nil
}
