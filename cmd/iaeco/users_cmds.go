package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"iaeco.app/internal/access"
	"iaeco.app/internal/api"
	"iaeco.app/internal/guard"
)

func runUsers(c *cli, ctx context.Context, args []string) error {
	action := "list"
	if len(args) > 0 {
		action, args = args[0], args[1:]
	}
	fs := flag.NewFlagSet("users "+action, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	id := fs.Int64("id", 0, "user id")
	var in api.UserInput
	fs.StringVar(&in.Username, "username", "", "username")
	fs.StringVar(&in.Email, "email", "", "e-mail")
	fs.StringVar(&in.FirstName, "first-name", "", "first name")
	fs.StringVar(&in.LastName, "last-name", "", "last name")
	fs.StringVar(&in.CompanyRole, "role", "", "company role: company_admin, employee or client")
	password := fs.String("password", "", "initial password (create; default $IAECO_NEW_PASSWORD or stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var list []api.User
	load := func(ctx context.Context, _ guard.Location) (err error) {
		if action == "list" {
			list, err = a.Users.List(ctx)
		}
		return err
	}
	if err := enter(ctx, a, access.PathUsers, load); err != nil {
		return err
	}

	var out api.User
	switch action {
	case "list":
		return c.printUsers(list)
	case "create":
		pw, err := c.secret(*password, "IAECO_NEW_PASSWORD", "Senha inicial: ")
		if err != nil {
			return err
		}
		in.Password, in.ConfirmPassword = pw, pw
		out, err = a.Users.Create(ctx, in)
		if err != nil {
			return err
		}
	case "update":
		if out, err = a.Users.Update(ctx, *id, in); err != nil {
			return err
		}
	case "toggle-active":
		if out, err = a.Users.ToggleActive(ctx, *id); err != nil {
			return err
		}
	case "delete":
		return a.Users.Delete(ctx, *id)
	case "reset-password":
		return a.Users.ResetPassword(ctx, *id)
	default:
		return fmt.Errorf("unknown action %q (list, create, update, delete, reset-password, toggle-active)", action)
	}
	return c.printUsers([]api.User{out})
}

func (c *cli) printUsers(us []api.User) error {
	return c.print(us, func(w io.Writer) {
		fmt.Fprintln(w, "ID\tUSERNAME\tNAME\tE-MAIL\tROLE\tACTIVE")
		for _, u := range us {
			var roles []string
			for _, r := range u.CompanyRoles {
				roles = append(roles, r.Role)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%t\n", u.ID, u.Username,
				strings.TrimSpace(u.FirstName+" "+u.LastName), u.Email, strings.Join(roles, ","), u.IsActive)
		}
	})
}
