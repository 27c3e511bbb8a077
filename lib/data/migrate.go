package data

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// ApplyMigrations executes the .sql files of filesystem in lexical order.
// Each file runs in its own transaction and is recorded in
// schema_migrations, so already-applied files are skipped. It returns the
// names of the files applied by this call.
func ApplyMigrations(ctx context.Context, db *sql.DB, filesystem fs.FS, logger *logrus.Logger) ([]string, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := fs.ReadDir(filesystem, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	applied := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		sqlBytes, err := fs.ReadFile(filesystem, name)
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", name, err)
		}
		if len(strings.TrimSpace(string(sqlBytes))) == 0 {
			continue
		}

		ran, err := applyMigration(ctx, db, name, string(sqlBytes))
		if err != nil {
			return applied, fmt.Errorf("execute migration %s: %w", name, err)
		}
		if ran {
			logger.WithField("migration", name).Info("Applied migration")
			applied = append(applied, name)
		}
	}
	return applied, nil
}

func applyMigration(ctx context.Context, db *sql.DB, name, body string) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	// Serialises concurrent runners.
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext('schema_migrations'))"); err != nil {
		return false, err
	}

	var done bool
	if err := tx.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)", name).Scan(&done); err != nil {
		return false, err
	}
	if done {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", name); err != nil {
		return false, err
	}
	return true, tx.Commit()
}
