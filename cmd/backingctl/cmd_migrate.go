package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"backing-lab/internal/config"
	"backing-lab/internal/storage/migrations"
	pgstore "backing-lab/internal/storage/postgres"
)

// migrateCmd applies embedded schema migrations
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply the embedded PostgreSQL migrations and, when a ClickHouse DSN is
configured, the ClickHouse migrations. Migrations are idempotent.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Storage.UseMemory {
		return fmt.Errorf("storage.use_memory is set; nothing to migrate")
	}

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	n, err := migrations.RunPostgres(ctx, pool)
	if err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "postgres: applied %d migration files\n", n)

	if cfg.Storage.ClickHouseDSN == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "clickhouse: no DSN configured, skipped")
		return nil
	}
	conn, n, err := migrations.RunClickHouse(ctx, cfg.Storage.ClickHouseDSN)
	if err != nil {
		return fmt.Errorf("clickhouse migrations: %w", err)
	}
	defer conn.Close()
	fmt.Fprintf(cmd.OutOrStdout(), "clickhouse: applied %d migration files\n", n)
	return nil
}
