// Command migrate manages the sql token store schema outside the iaeco CLI,
// for deployments that share one database between several clients.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"

	"iaeco.app/internal/config"
	"iaeco.app/internal/tokenstore"
)

func main() {
	log.SetFlags(0)
	var (
		cfgFile = flag.String("config", "", "config file (default iaeco.yaml)")
		driver  = flag.String("driver", "", "override tokens.driver (pgx or sqlite)")
		dsn     = flag.String("dsn", "", "override tokens.dsn")
		timeout = flag.Duration("timeout", 30*time.Second, "overall deadline")
	)
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: migrate [flags] up|down|redo|status")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	target := cfg.Tokens
	if *driver != "" {
		target.Driver = *driver
	}
	if *dsn != "" {
		target.DSN = *dsn
	}
	if target.DSN == "" {
		log.Fatal("missing DSN: set tokens.dsn, IAECO_TOKENS_DSN or -dsn")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sqlx.Open(target.Driver, target.DSN)
	if err != nil {
		log.Fatalf("open %s: %v", target.Driver, err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("ping %s: %v", target.Driver, err)
	}

	if err := run(ctx, db, flag.Arg(0)); err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

func run(ctx context.Context, db *sqlx.DB, action string) error {
	mgr := tokenstore.NewMigrator(db)
	switch action {
	case "up":
		return mgr.Up(ctx)
	case "down":
		return mgr.Down(ctx)
	case "redo":
		if err := mgr.Down(ctx); err != nil {
			return err
		}
		return mgr.Up(ctx)
	case "status":
		applied, err := mgr.Status(ctx)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Println("no migrations applied")
		}
		for _, name := range applied {
			fmt.Println(name)
		}
		return nil
	default:
		return fmt.Errorf("unknown action %q", action)
	}
}
