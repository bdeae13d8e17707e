package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ramiqadoumi/go-task-board/internal/postgres"
	"github.com/ramiqadoumi/go-task-board/internal/postgres/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Connect to PostgreSQL and apply the users, tasks and activities schema.

Reads the DSN from --postgres-dsn, POSTGRES_DSN, or the config file.
Migrations are idempotent and safe to re-run.`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, viper.GetString("postgres_dsn"))
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	for _, f := range migrations.Files {
		sql, err := migrations.FS.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("execute migration %s: %w", f, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", f)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "migrations complete")
	return nil
}
