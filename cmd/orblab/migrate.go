package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"breakout-lab/internal/config"
	"breakout-lab/internal/storage/migrations"
	pgstore "breakout-lab/internal/storage/postgres"
	"breakout-lab/internal/storage/sqlite"
)

func newMigrateCmd(ro *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations to every configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			cfg, err := config.Load(ro.configPath, ro.envFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			st := cfg.Storage
			applied := 0

			if st.PostgresDSN != "" {
				pool, err := pgstore.NewPool(ctx, st.PostgresDSN)
				if err != nil {
					return fmt.Errorf("connect to postgres: %w", err)
				}
				result, err := migrations.RunPostgresMigrations(ctx, pool)
				pool.Close()
				if err != nil {
					return err
				}
				printMigrations(out, "PostgreSQL", result)
				applied++
			}

			if st.ClickHouseDSN != "" {
				conn, result, err := migrations.RunClickhouseMigrations(ctx, st.ClickHouseDSN)
				if err != nil {
					return err
				}
				conn.Close()
				printMigrations(out, "ClickHouse", result)
				applied++
			}

			if st.SQLitePath != "" {
				store, err := sqlite.Open(st.SQLitePath)
				if err != nil {
					return err
				}
				store.Close()
				fmt.Fprintf(out, "SQLite schema applied to %s\n", st.SQLitePath)
				applied++
			}

			if applied == 0 {
				return errors.New("nothing to migrate: set POSTGRES_DSN, CLICKHOUSE_DSN or SQLITE_PATH")
			}
			return nil
		},
	}
}

func printMigrations(out io.Writer, name string, r *migrations.Result) {
	for _, m := range r.Applied {
		fmt.Fprintf(out, "%s: applied %03d_%s\n", name, m.Version, m.Name)
	}
	fmt.Fprintf(out, "%s schema at version %d (%d applied, %d already recorded)\n",
		name, r.Version(), len(r.Applied), r.Current)
}
