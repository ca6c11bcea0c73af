package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/vpsinv/internal/app"
	"github.com/MrSnakeDoc/vpsinv/internal/config"
	"github.com/MrSnakeDoc/vpsinv/internal/logger"
	"github.com/MrSnakeDoc/vpsinv/internal/version"
)

// newRootCmd builds the vpsinv command tree. Without a subcommand it serves.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vpsinv",
		Short: "Multi-tenant VPS inventory service",
		Long: `vpsinv keeps, per user, an inventory of the VPS servers they run
and the services on each of them. It serves a JSON API and can import or
export inventories as YAML seed files.

Configuration is read from VPSINV_* environment variables.`,
		Version:      version.Version,
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.SetVersionTemplate(`{{printf "vpsinv version %s\n" .Version}}`)

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newImportCmd(),
		newExportCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig turns the configuration panics into an error so cobra reports
// them like any other failure.
func loadConfig() (cfg *config.Config, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invalid configuration: %v", r)
		}
	}()
	return config.Load(), nil
}

// withCore loads the configuration, opens the store and runs fn.
func withCore(ctx context.Context, fn func(*app.Core, logger.Logger) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel, cfg.PrettyLog)
	defer func() { _ = log.Sync() }()

	if cfg.Store == config.StoreMemory {
		log.Warn("memory store selected, nothing will persist after this command")
	}

	core, err := app.OpenCore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = core.Close() }()

	return fn(core, log)
}
