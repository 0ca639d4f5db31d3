package app

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"iaeco.app/internal/api"
	"iaeco.app/internal/notify"
)

// Dashboard is everything the dashboard page shows.
type Dashboard struct {
	Summary          json.RawMessage       `json:"summary" yaml:"-"`
	Emissions        []api.Emission        `json:"emissions" yaml:"emissions"`
	CompanyEmissions []api.CompanyEmission `json:"company_emissions" yaml:"company_emissions"`
	Notifications    []api.Notification    `json:"notifications" yaml:"notifications"`
	Scopes           []api.Scope           `json:"scopes" yaml:"scopes"`
}

// Dashboard loads the summary, emissions, notifications and scopes concurrently. The
// first failure cancels the others.
func (a *App) Dashboard(ctx context.Context) (Dashboard, error) {
	var d Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.Summary, err = a.Client.Dashboard(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.Emissions, err = a.Client.Emissions(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.CompanyEmissions, err = a.Client.CompanyEmissions(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.Notifications, err = a.Client.Notifications(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.Scopes, err = a.Client.Scopes(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		notify.Error(ctx, a.Notifier, "Erro ao carregar dados do dashboard")
		return Dashboard{}, fmt.Errorf("app: dashboard: %w", err)
	}
	return d, nil
}
