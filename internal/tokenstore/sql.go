package tokenstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"iaeco.app/internal/migrate"
)

// Migrations holds the schema of the SQL backend.
//
//go:embed migrations/*.sql
var Migrations embed.FS

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// SQL stores tokens in the client_tokens table. Works with the "pgx" and "sqlite"
// drivers.
type SQL struct {
	db  *sqlx.DB
	now func() time.Time
}

// OpenSQL opens driver/dsn and applies pending migrations.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQL, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := NewMigrator(db).Up(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQL(db), nil
}

// NewMigrator returns the schema manager of the SQL backend.
func NewMigrator(db *sqlx.DB) *migrate.Manager {
	return migrate.NewManager(db, Migrations, "migrations")
}

// NewSQL wraps an already migrated database.
func NewSQL(db *sqlx.DB) *SQL {
	return &SQL{db: db, now: time.Now}
}

// Close closes the underlying database.
func (s *SQL) Close() error { return s.db.Close() }

func (s *SQL) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, s.db.Rebind(`select value from client_tokens where name = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *SQL) Put(ctx context.Context, values map[string]string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	q := tx.Rebind(`insert into client_tokens (name, value, updated_at) values (?, ?, ?)
		on conflict (name) do update set value = excluded.value, updated_at = excluded.updated_at`)
	now := s.now().UTC()
	for _, k := range sortedKeys(values) {
		if _, err := tx.ExecContext(ctx, q, k, values[k], now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQL) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`delete from client_tokens where name in (?)`, keys)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(q), args...)
	return err
}
