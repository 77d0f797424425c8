package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"PerpClearing/internal/config"
	"PerpClearing/internal/observability"
	"PerpClearing/internal/persistence"
)

func migrateCommand(v *viper.Viper) *cobra.Command {
	c := &cobra.Command{
		Use:   "migrate",
		Short: "Applies or rolls back database migrations",
	}
	c.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Applies all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(c *cobra.Command, _ []string) error {
				return runMigrate(c, v, true)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Rolls back the last migration",
			Args:  cobra.NoArgs,
			RunE: func(c *cobra.Command, _ []string) error {
				return runMigrate(c, v, false)
			},
		},
	)
	return c
}

func runMigrate(c *cobra.Command, v *viper.Viper, up bool) error {
	cfg, err := config.ParseConfig(v)
	if err != nil {
		return err
	}
	logger := observability.NewLoggerTo(c.OutOrStdout(), "migrate", observability.ParseLogLevel(cfg.LogLevel))

	ctx := c.Context()
	db, err := openDB(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	migrator := persistence.NewMigrator(db, migrationFiles(cfg.MigrationsDir), logger)
	if up {
		if err := migrator.Up(ctx); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		logger.Info().Msg("all migrations applied")
		return nil
	}
	if err := migrator.Down(ctx); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	logger.Info().Msg("last migration rolled back")
	return nil
}
