package postgres

import (
	"context"
	"embed"
	"fmt"
	"log"
	"path"
	"slices"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationsTable tracks applied ledger schema versions. It is prefixed so
// the ledger can share a database with other applications.
const migrationsTable = "ledger_schema_migrations"

// migration is one embedded schema change, versioned by its file name.
type migration struct {
	version string
	sql     string
}

// loadMigrations reads the embedded migrations in version order.
func loadMigrations() ([]migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read ledger migrations: %w", err)
	}

	var migrations []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		content, err := migrationsFS.ReadFile(path.Join("migrations", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read ledger migration %s: %w", e.Name(), err)
		}
		migrations = append(migrations, migration{version: e.Name(), sql: string(content)})
	}
	slices.SortFunc(migrations, func(a, b migration) int {
		return strings.Compare(a.version, b.version)
	})
	return migrations, nil
}

// pendingMigrations keeps the migrations whose version is not in applied.
func pendingMigrations(all []migration, applied []string) []migration {
	var pending []migration
	for _, m := range all {
		if !slices.Contains(applied, m.version) {
			pending = append(pending, m)
		}
	}
	return pending
}

// Migrate brings the ledger schema up to date. Each migration runs in its
// own transaction together with its bookkeeping row.
func (p *Pool) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+migrationsTable+` (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("create %s: %w", migrationsTable, err)
	}

	all, err := loadMigrations()
	if err != nil {
		return err
	}
	applied, err := p.MigrationsApplied(ctx)
	if err != nil {
		return err
	}

	for _, m := range pendingMigrations(all, applied) {
		if err := p.applyMigration(ctx, m); err != nil {
			return err
		}
		log.Printf("ledger: applied schema migration %s", m.version)
	}
	return nil
}

func (p *Pool) applyMigration(ctx context.Context, m migration) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger migration %s: %w", m.version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return fmt.Errorf("execute ledger migration %s: %w", m.version, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO "+migrationsTable+" (version) VALUES ($1)", m.version); err != nil {
		return fmt.Errorf("record ledger migration %s: %w", m.version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger migration %s: %w", m.version, err)
	}
	return nil
}

// MigrationsApplied returns the applied ledger schema versions in order.
func (p *Pool) MigrationsApplied(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT version FROM "+migrationsTable+" ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("query applied ledger migrations: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan ledger migration version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger migration versions: %w", err)
	}
	return versions, nil
}
