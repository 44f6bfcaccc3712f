package postgres

import (
	"context"
	"embed"
	"fmt"
	"log"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var schemaFS embed.FS

// Migrate brings the schema up to date. Each embedded *.sql file runs at
// most once, in lexical order, inside its own transaction; the applied
// set is tracked in schema_migrations.
func (p *Pool) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	applied, err := p.AppliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, name := range pendingMigrations(applied) {
		if err := p.applyMigration(ctx, name); err != nil {
			return err
		}
		log.Printf("applied migration %s", name)
	}
	return nil
}

// pendingMigrations returns the embedded migration names not yet applied,
// in lexical order.
func pendingMigrations(applied []string) []string {
	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	entries, err := schemaFS.ReadDir("migrations")
	if err != nil {
		// the directory is embedded at build time, a read failure here
		// means a broken binary
		panic("read embedded migrations: " + err.Error())
	}

	var pending []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".sql") && !done[name] {
			pending = append(pending, name)
		}
	}
	sort.Strings(pending)
	return pending
}

// applyMigration runs one migration file and records its version, both in
// the same transaction so a failed migration leaves no trace.
func (p *Pool) applyMigration(ctx context.Context, name string) error {
	ddl, err := schemaFS.ReadFile("migrations/" + name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(ddl)); err != nil {
		return fmt.Errorf("run migration %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", name); err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}
	return nil
}

// AppliedVersions lists the recorded migration versions, oldest first.
func (p *Pool) AppliedVersions(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema_migrations: %w", err)
	}
	return versions, nil
}
