package main

import (
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"vidtube/cmd/identity/migrations"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Apply all pending migrations to the accounts schema.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateUp(cmd, databaseURL)
		},
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres URL (default VIDTUBE_DATABASE_URL)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateVersion(cmd, databaseURL)
		},
	})

	return cmd
}

func resolveDatabaseURL(flag string) (string, error) {
	if v := strings.TrimSpace(flag); v != "" {
		return v, nil
	}
	if v := strings.TrimSpace(os.Getenv("VIDTUBE_DATABASE_URL")); v != "" {
		return v, nil
	}
	return "", oops.Code("CONFIG_INVALID").Errorf("VIDTUBE_DATABASE_URL or --database-url is required")
}

func runMigrateUp(cmd *cobra.Command, flag string) error {
	dsn, err := resolveDatabaseURL(flag)
	if err != nil {
		return err
	}

	cmd.Println("Running migrations...")
	if err := migrations.Up(cmd.Context(), dsn); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}

	cmd.Println("Migrations completed successfully")
	return nil
}

func runMigrateVersion(cmd *cobra.Command, flag string) error {
	dsn, err := resolveDatabaseURL(flag)
	if err != nil {
		return err
	}

	v, err := migrations.Version(cmd.Context(), dsn)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "read schema version").Wrap(err)
	}
	cmd.Printf("schema version: %d\n", v)
	return nil
}
