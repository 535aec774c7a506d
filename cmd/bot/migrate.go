package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Proton-105/horoscope-bot/internal/database"
)

func newMigrateCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return migrate(cmd.Context(), dir)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "apply migrations from this directory instead of the embedded set")

	return cmd
}

func migrate(ctx context.Context, dir string) error {
	c, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	if dir == "" {
		return c.migrate(ctx)
	}

	applied, err := database.NewMigrator(c.db, c.log).ApplyDir(ctx, dir)
	if err != nil {
		return err
	}
	c.log.Info("database migrations applied", slog.String("dir", dir), slog.Int("applied", len(applied)))
	return nil
}
