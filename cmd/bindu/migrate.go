package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"bindu/internal/config"
	"bindu/internal/logger"
	"bindu/internal/store"
)

var migrateDID string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Bootstrap the Postgres schema for a tenant",
	Long: `migrate opens the configured Postgres database and runs the same
idempotent schema bootstrap serve would run on startup (CREATE SCHEMA IF
NOT EXISTS, then the task/context/feedback/webhook tables within it),
without starting the HTTP server. Useful for provisioning a tenant's
schema ahead of its first request, or for CI/CD migration steps.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate()
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDID, "did", "", "tenant DID to derive the schema name from (defaults to BINDU_DID)")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate() error {
	logger.Init(logger.DefaultConfig())
	log := logger.WithComponent("migrate")

	cfg := config.Load()
	did := migrateDID
	if did == "" {
		did = cfg.DID
	}
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("migrate requires BINDU_POSTGRES_DSN")
	}

	schema := "public"
	if did != "" {
		schema = store.DeriveSchemaName(did)
	}
	log.Info("bootstrapping postgres schema", "did", did, "schema", schema)

	db, err := store.NewPostgres(context.Background(), cfg.PostgresDSN, did,
		store.PoolConfig{
			MaxOpenConns:    cfg.PostgresPool.MaxOpenConns,
			MaxIdleConns:    cfg.PostgresPool.MaxIdleConns,
			ConnMaxLifetime: cfg.PostgresPool.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.PostgresPool.ConnMaxIdleTime,
			OpTimeout:       cfg.PostgresPool.OpTimeout,
		},
		store.RetryConfig{
			Attempts:  cfg.ConnectRetryAttempts,
			BaseDelay: cfg.ConnectRetryBaseDelay,
		})
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer db.Close()

	log.Info("schema bootstrap complete", "schema", schema)
	return nil
}
