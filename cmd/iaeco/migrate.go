package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"iaeco.app/internal/config"
	"iaeco.app/internal/tokenstore"
)

// runMigrate manages the schema of the sql token store named in the config.
func runMigrate(c *cli, ctx context.Context, args []string) error {
	action := "up"
	if len(args) > 0 {
		action = args[0]
	}
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return err
	}
	if cfg.Tokens.Kind != config.StoreSQL {
		return errors.New("tokens.kind is not sql, nothing to migrate")
	}
	db, err := sqlx.Open(cfg.Tokens.Driver, cfg.Tokens.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	mgr := tokenstore.NewMigrator(db)
	switch action {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "status":
		var applied []string
		if applied, err = mgr.Status(ctx); err == nil {
			for _, name := range applied {
				fmt.Fprintln(c.stdout, name)
			}
		}
	default:
		return fmt.Errorf("unknown action %q (up, down, status)", action)
	}
	return err
}
