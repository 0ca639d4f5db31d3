package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"iaeco.app/internal/access"
	"iaeco.app/internal/api"
	"iaeco.app/internal/app"
	"iaeco.app/internal/company"
	"iaeco.app/internal/guard"
	"iaeco.app/internal/upload"
)

func runCompanies(c *cli, ctx context.Context, args []string) error {
	action := "list"
	if len(args) > 0 {
		action, args = args[0], args[1:]
	}
	fs := flag.NewFlagSet("companies "+action, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	id := fs.Int64("id", 0, "micro company id")
	name := fs.String("name", "", "name")
	description := fs.String("description", "", "description")
	logo := fs.String("logo", "", "logo image file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	switch action {
	case "mine", "all":
		page, fetch := access.PathCompanies, a.Client.CompaniesByUser
		if action == "all" {
			page, fetch = access.PathAdmin, a.Client.Companies
		}
		var list []api.Company
		load := func(ctx context.Context, _ guard.Location) (err error) {
			list, err = fetch(ctx)
			return err
		}
		if err := enter(ctx, a, page, load); err != nil {
			return err
		}
		return c.print(list, func(w io.Writer) {
			fmt.Fprintln(w, "ID\tNAME\tCNPJ")
			for _, co := range list {
				fmt.Fprintf(w, "%d\t%s\t%s\n", co.ID, co.Name, co.CNPJ)
			}
		})
	}

	// The page loader refreshes the store.
	if err := enter(ctx, a, access.PathCompanies, nil); err != nil {
		return err
	}
	store := a.Companies

	switch action {
	case "list":
		return c.printCompanies(store.State().Companies)
	case "show":
		if err := store.Select(ctx, *id); err != nil {
			return err
		}
		sel := store.State().Selected
		if sel == nil {
			return errors.New("no company selected")
		}
		return c.printCompanies([]company.Company{*sel})
	case "add", "update":
		in := company.Input{Name: *name, Description: *description}
		if *logo != "" {
			f, err := os.Open(*logo)
			if err != nil {
				return err
			}
			defer f.Close()
			in.Logo = &api.FilePart{Name: filepath.Base(*logo), Content: f}
		}
		var out company.Company
		if action == "add" {
			out, err = store.Add(ctx, in)
		} else {
			out, err = store.Update(ctx, *id, in)
		}
		if err != nil {
			return err
		}
		return c.printCompanies([]company.Company{out})
	case "remove":
		return store.Remove(ctx, *id)
	}
	return fmt.Errorf("unknown action %q (list, show, add, update, remove, mine, all)", action)
}

func (c *cli) printCompanies(cs []company.Company) error {
	return c.print(cs, func(w io.Writer) {
		fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION")
		for _, co := range cs {
			fmt.Fprintf(w, "%d\t%s\t%s\n", co.ID, co.Name, co.Description)
		}
	})
}

type uploaded struct {
	File     string `json:"file"`
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Status   string `json:"status"`
	LinkedTo int64  `json:"linked_to,omitempty"`
	Error    string `json:"error,omitempty"`
}

func runUpload(c *cli, ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: iaeco upload FILE...")
	}
	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := enter(ctx, a, access.PathUpload, noLoad); err != nil {
		return err
	}

	var (
		results []uploaded
		failed  error
	)
	for _, path := range args {
		res, err := uploadFile(ctx, a.Uploads, path)
		row := uploaded{File: filepath.Base(path), Type: upload.FileType(path)}
		if res.Document.ID != 0 {
			row.ID = res.Document.ID
			row.Status = string(res.Document.Status)
			row.LinkedTo = res.LinkedTo
		}
		if err != nil {
			row.Error = err.Error()
			failed = errors.Join(failed, err)
			if errors.Is(err, upload.ErrPermission) || errors.Is(err, upload.ErrNotAuthenticated) {
				results = append(results, row)
				break
			}
		}
		results = append(results, row)
	}
	if err := c.print(results, func(w io.Writer) {
		fmt.Fprintln(w, "FILE\tID\tTYPE\tSTATUS\tMICRO")
		for _, r := range results {
			status := r.Status
			if r.Error != "" && r.ID == 0 {
				status = "FAILED"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\n", r.File, r.ID, r.Type, status, r.LinkedTo)
		}
	}); err != nil {
		return err
	}
	return failed
}

func uploadFile(ctx context.Context, u *upload.Uploader, path string) (upload.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return upload.Result{}, err
	}
	defer f.Close()
	return u.Upload(ctx, path, f)
}

func runHistory(c *cli, ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	id := fs.Int64("id", 0, "show the status of one document")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var docs []api.Document
	load := func(ctx context.Context, _ guard.Location) error {
		if *id != 0 {
			doc, err := a.Uploads.Status(ctx, *id)
			docs = []api.Document{doc}
			return err
		}
		docs, err = a.Uploads.Documents(ctx)
		return err
	}
	if err := enter(ctx, a, access.PathHistory, load); err != nil {
		return err
	}
	return c.print(docs, func(w io.Writer) {
		fmt.Fprintln(w, "ID\tFILE\tTYPE\tSTATUS\tSIZE\tCREATED")
		for _, d := range docs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n", d.ID, d.FileName, d.FileType, d.Status, d.FileSize, d.CreatedAt.Format(time.DateTime))
		}
	})
}

func runNotifications(c *cli, ctx context.Context, _ []string) error {
	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	var list []api.Notification
	load := func(ctx context.Context, _ guard.Location) (err error) {
		list, err = a.Client.Notifications(ctx)
		return err
	}
	if err := enter(ctx, a, access.PathNotifications, load); err != nil {
		return err
	}
	return c.print(list, func(w io.Writer) {
		fmt.Fprintln(w, "ID\tLEVEL\tTITLE\tMESSAGE\tREAD")
		for _, n := range list {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", n.ID, n.Level, n.Title, n.Message, strconv.FormatBool(n.Read))
		}
	})
}

type dashboardView struct {
	Summary          any                   `json:"summary"`
	Emissions        []api.Emission        `json:"emissions"`
	CompanyEmissions []api.CompanyEmission `json:"company_emissions"`
	Notifications    int                   `json:"unread_notifications"`
}

func runDashboard(c *cli, ctx context.Context, _ []string) error {
	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	var d app.Dashboard
	load := func(ctx context.Context, _ guard.Location) (err error) {
		d, err = a.Dashboard(ctx)
		return err
	}
	if err := enter(ctx, a, access.PathDashboard, load); err != nil {
		return err
	}
	view := dashboardView{Emissions: d.Emissions, CompanyEmissions: d.CompanyEmissions}
	if len(d.Summary) > 0 {
		if err := json.Unmarshal(d.Summary, &view.Summary); err != nil {
			return fmt.Errorf("decode dashboard summary: %w", err)
		}
	}
	for _, n := range d.Notifications {
		if !n.Read {
			view.Notifications++
		}
	}
	return c.print(view, func(w io.Writer) {
		if m, ok := view.Summary.(map[string]any); ok {
			for _, k := range slices.Sorted(maps.Keys(m)) {
				fmt.Fprintf(w, "%s\t%v\n", k, m[k])
			}
		}
		fmt.Fprintf(w, "unread notifications\t%d\n\n", view.Notifications)
		fmt.Fprintln(w, "MICRO COMPANY\tEMISSION\tTYPE")
		for _, e := range view.CompanyEmissions {
			fmt.Fprintf(w, "%s\t%.2f\t%s\n", e.MicroCompanyName, e.Emission, e.EmissionType)
		}
	})
}
