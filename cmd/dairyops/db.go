package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"dairyops/internal/shared"
	"dairyops/internal/store"

	"code.cloudfoundry.org/clock"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// openDB opens the configured database, creating the sqlite directory if
// needed, and optionally applies migrations.
func (c *cli) openDB(migrate bool) (*sql.DB, error) {
	if err := c.cfg.ValidateStore(); err != nil {
		return nil, err
	}
	if c.cfg.DBDriver == shared.DriverSQLite && isSQLitePath(c.cfg.DBDSN) {
		if dir := filepath.Dir(c.cfg.DBDSN); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, errors.Wrapf(err, "create db dir %s", dir)
			}
		}
	}

	db, err := store.OpenDB(c.cfg.DBDriver, c.cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if migrate {
		if _, err := store.RunMigrations(db, c.cfg.DBDriver, c.log); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func isSQLitePath(dsn string) bool {
	return dsn != ":memory:" && !strings.HasPrefix(dsn, "file:")
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			db, err := c.openDB(true)
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

var checkedTables = []string{"admins", "clients", "cows", "milking_events", "orders", "payments"}

func (c *cli) dbcheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dbcheck",
		Short: "List tables and row counts.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			db, err := c.openDB(false)
			if err != nil {
				return err
			}
			defer db.Close()
			return dbcheck(cmd.Context(), db, c.cfg.DBDriver, cmd.OutOrStdout())
		},
	}
}

func dbcheck(ctx context.Context, db *sql.DB, driver string, out io.Writer) error {
	q := `SELECT name FROM sqlite_master WHERE type='table' ORDER BY name`
	if driver == shared.DriverPostgres {
		q = `SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() ORDER BY table_name`
	}
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return errors.Wrap(err, "list tables")
	}
	defer rows.Close()

	present := map[string]bool{}
	fmt.Fprintln(out, "Tables:")
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return errors.Wrap(err, "scan table name")
		}
		present[name] = true
		fmt.Fprintln(out, " -", name)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "list tables")
	}

	var missing []string
	for _, t := range checkedTables {
		if !present[t] {
			missing = append(missing, t)
			continue
		}
		var n int
		// table names come from the fixed list above
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t).Scan(&n); err != nil {
			return errors.Wrapf(err, "count %s", t)
		}
		fmt.Fprintf(out, "%s: %d\n", t, n)
	}
	if len(missing) > 0 {
		return errors.Errorf("missing tables: %s (run migrate)", strings.Join(missing, ", "))
	}
	return nil
}

func (c *cli) seedCmd() *cobra.Command {
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Insert bootstrap rows.",
	}
	seed.AddCommand(&cobra.Command{
		Use:   "admin <auth_uid>",
		Short: "Map an identity-provider user to an admin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return c.withStore(func(s store.Store) error {
				a, err := s.CreateAdmin(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return errors.Wrap(err, "create admin")
				}
				c.log.Info("admin created", zap.String("id", a.ID), zap.String("auth_uid", a.AuthUID))
				fmt.Fprintln(cmd.OutOrStdout(), a.ID)
				return nil
			})
		},
	})
	seed.AddCommand(&cobra.Command{
		Use:   "cow <tag>",
		Short: "Register a cow by ear tag.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return c.withStore(func(s store.Store) error {
				cow, err := s.CreateCow(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return errors.Wrap(err, "create cow")
				}
				c.log.Info("cow created", zap.String("id", cow.ID), zap.String("tag", cow.Tag))
				fmt.Fprintln(cmd.OutOrStdout(), cow.ID)
				return nil
			})
		},
	})
	return seed
}

func (c *cli) withStore(fn func(store.Store) error) error {
	db, err := c.openDB(true)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(store.NewSQLStore(db, c.cfg.DBDriver, clock.NewClock()))
}
