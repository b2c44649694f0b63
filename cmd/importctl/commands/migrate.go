package commands

import (
	"context"
	"fmt"

	"github.com/cuongbtq/recipe-import/internal/bootstrap"
	"github.com/cuongbtq/recipe-import/internal/config"
	"github.com/cuongbtq/recipe-import/internal/database"
	"github.com/urfave/cli/v3"
)

// MigrateAction applies or rolls back the schema of the configured database
func MigrateAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.UsesPostgres() {
		return fmt.Errorf("storage driver %q has no schema to migrate", cfg.Storage.Driver)
	}

	dbURL := bootstrap.PostgresConfig(&cfg.Database).URL()

	if cmd.Bool("down") {
		if err := database.RollbackMigrations(dbURL); err != nil {
			return err
		}
		_, err = fmt.Fprintln(output(cmd), "migrations rolled back")
		return err
	}

	if err := database.RunMigrations(dbURL); err != nil {
		return err
	}
	_, err = fmt.Fprintln(output(cmd), "migrations applied")
	return err
}
