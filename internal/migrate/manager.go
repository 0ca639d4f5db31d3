package migrate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const defaultMigrationsTable = "schema_migrations"

// Manager applies SQL migrations read from an fs.FS (usually an embed.FS).
// Placeholders are rebound per driver so the same files run on postgres and sqlite.
type Manager struct {
	db              *sqlx.DB
	source          fs.FS
	dir             string
	migrationsTable string
	now             func() time.Time
}

// Option configures Manager.
type Option func(*Manager)

// WithMigrationsTable overrides the default bookkeeping table.
func WithMigrationsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.migrationsTable = name
		}
	}
}

// WithClock overrides the time recorded for applied migrations.
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewManager constructs a Manager reading *.up.sql / *.down.sql files from dir in source.
func NewManager(db *sqlx.DB, source fs.FS, dir string, opts ...Option) *Manager {
	m := &Manager{
		db:              db,
		source:          source,
		dir:             dir,
		migrationsTable: defaultMigrationsTable,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies all pending migrations.
func (m *Manager) Up(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	executed, err := m.listExecuted(ctx)
	if err != nil {
		return err
	}
	files, err := m.collect(".up.sql")
	if err != nil {
		return err
	}
	for _, name := range files {
		if executed[name] {
			continue
		}
		if err := m.apply(ctx, name, true); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

// Down rolls back the most recent applied migration.
func (m *Manager) Down(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	executed, err := m.history(ctx)
	if err != nil {
		return err
	}
	if len(executed) == 0 {
		return errors.New("no migrations applied")
	}
	last := executed[len(executed)-1]
	if err := m.apply(ctx, last, false); err != nil {
		return fmt.Errorf("rollback migration %s: %w", last, err)
	}
	return nil
}

// Status returns applied migrations in order.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	return m.history(ctx)
}

func (m *Manager) ensureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`create table if not exists %s (
			name text primary key,
			applied_at timestamp not null
		)`, m.migrationsTable)
	_, err := m.db.ExecContext(ctx, ddl)
	return err
}

// apply runs the up or down file of migration name and updates bookkeeping in the
// same transaction.
func (m *Manager) apply(ctx context.Context, name string, up bool) error {
	file := name
	if !up {
		file = strings.TrimSuffix(name, ".up.sql") + ".down.sql"
	}
	raw, err := fs.ReadFile(m.source, path.Join(m.dir, file))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !up {
			return fmt.Errorf("missing down migration for %s", name)
		}
		return err
	}
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(raw)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if up {
		q := tx.Rebind(fmt.Sprintf(`insert into %s (name, applied_at) values (?, ?)`, m.migrationsTable))
		if _, err := tx.ExecContext(ctx, q, name, m.now().UTC()); err != nil {
			return err
		}
	} else {
		q := tx.Rebind(fmt.Sprintf(`delete from %s where name = ?`, m.migrationsTable))
		if _, err := tx.ExecContext(ctx, q, name); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m *Manager) listExecuted(ctx context.Context) (map[string]bool, error) {
	var names []string
	if err := m.db.SelectContext(ctx, &names, fmt.Sprintf(`select name from %s`, m.migrationsTable)); err != nil {
		return nil, err
	}
	result := make(map[string]bool, len(names))
	for _, n := range names {
		result[n] = true
	}
	return result, nil
}

func (m *Manager) history(ctx context.Context) ([]string, error) {
	var names []string
	err := m.db.SelectContext(ctx, &names, fmt.Sprintf(`select name from %s order by applied_at asc, name asc`, m.migrationsTable))
	return names, err
}

func (m *Manager) collect(suffix string) ([]string, error) {
	entries, err := fs.ReadDir(m.source, m.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// splitStatements naively splits SQL by semicolon, ignoring semicolons inside quotes.
func splitStatements(sql string) []string {
	var stmts []string
	var current strings.Builder
	var inString bool
	for _, r := range sql {
		current.WriteRune(r)
		switch r {
		case '\'':
			inString = !inString
		case ';':
			if !inString {
				stmts = append(stmts, current.String())
				current.Reset()
			}
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		stmts = append(stmts, current.String())
	}
	return stmts
}
