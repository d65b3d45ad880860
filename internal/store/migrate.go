package store

import (
	"database/sql"
	"embed"
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	name TEXT PRIMARY KEY,
	applied_at TEXT NOT NULL
)`

// RunMigrations applies the embedded migrations in name order, each in its
// own transaction, and records them in schema_migrations. It returns the
// names applied by this call; already recorded ones are skipped.
func RunMigrations(db *sql.DB, driver string, log *zap.Logger) ([]string, error) {
	if _, err := db.Exec(migrationsTable); err != nil {
		return nil, errors.Wrap(err, "create schema_migrations")
	}
	done, err := appliedMigrations(db)
	if err != nil {
		return nil, err
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	var applied []string
	for _, name := range files {
		if done[name] {
			log.Debug("migration already applied", zap.String("file", name))
			continue
		}
		script, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return applied, errors.Wrapf(err, "read migration %s", name)
		}
		if err := applyMigration(db, driver, name, string(script)); err != nil {
			return applied, err
		}
		log.Info("migration applied", zap.String("file", name))
		applied = append(applied, name)
	}
	return applied, nil
}

func appliedMigrations(db *sql.DB) (map[string]bool, error) {
	rows, err := db.Query(`SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, errors.Wrap(err, "list applied migrations")
	}
	defer rows.Close()
	done := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "scan applied migration")
		}
		done[name] = true
	}
	return done, errors.Wrap(rows.Err(), "list applied migrations")
}

func applyMigration(db *sql.DB, driver, name, script string) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrapf(err, "begin migration %s", name)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(script); err != nil {
		return errors.Wrapf(err, "apply migration %s", name)
	}
	if _, err := tx.Exec(
		rebind(driver, `INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`),
		name, time.Now().UTC().Format(TimeLayout),
	); err != nil {
		return errors.Wrapf(err, "record migration %s", name)
	}
	return errors.Wrapf(tx.Commit(), "commit migration %s", name)
}
