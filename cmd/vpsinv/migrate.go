package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/vpsinv/internal/logger"
	"github.com/MrSnakeDoc/vpsinv/internal/store"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations",
		Long:  `Applies the embedded schema migrations to the postgres or sqlite store. Other backends have no schema and are left untouched.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := logger.New(cfg.LogLevel, cfg.PrettyLog)
			defer func() { _ = log.Sync() }()

			cfg.AutoMigrate = false
			backend, err := store.Open(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close() }()

			if !backend.SQL() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s store has no migrations\n", backend.Name)
				return nil
			}
			if err := backend.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", backend.Name)
			return nil
		},
	}
}
