package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/vpsinv/internal/app"
	"github.com/MrSnakeDoc/vpsinv/internal/logger"
	"github.com/MrSnakeDoc/vpsinv/internal/sources/seed"
)

func newImportCmd() *cobra.Command {
	var userRef string

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a YAML seed file into a user's inventory",
		Long: `Upserts the servers of FILE into the inventory of --user. Servers are
matched by name, ignoring case; matched servers are replaced and keep the
ids of services with the same name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := seed.NewLoader(args[0]).Load()
			if err != nil {
				return err
			}
			items, err := seed.NewMapper().MapServers(file)
			if err != nil {
				return err
			}

			return withCore(cmd.Context(), func(core *app.Core, log logger.Logger) error {
				user, err := core.Auth.LookupUser(cmd.Context(), userRef)
				if err != nil {
					return err
				}

				res, err := core.Inventory.Import(cmd.Context(), user.ID, items)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "created=%d updated=%d failed=%d\n", res.Created, res.Updated, res.Failed)
				for _, f := range res.Failures {
					fmt.Fprintf(out, "  %s: %s\n", f.Name, f.Error)
				}
				if res.Failed > 0 {
					return fmt.Errorf("%d of %d servers failed to import", res.Failed, len(items))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&userRef, "user", "u", "", "email or id of the owning user")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newExportCmd() *cobra.Command {
	var (
		userRef string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a user's inventory as a YAML seed file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCore(cmd.Context(), func(core *app.Core, log logger.Logger) error {
				user, err := core.Auth.LookupUser(cmd.Context(), userRef)
				if err != nil {
					return err
				}

				servers, err := core.Inventory.Export(cmd.Context(), user.ID)
				if err != nil {
					return err
				}
				data, err := seed.Marshal(servers)
				if err != nil {
					return err
				}

				if output == "" || output == "-" {
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				if err := os.WriteFile(output, data, 0o600); err != nil {
					return fmt.Errorf("failed to write %s: %w", output, err)
				}
				log.Info("inventory exported",
					logger.String("file", output),
					logger.Int("servers", len(servers)))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&userRef, "user", "u", "", "email or id of the owning user")
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write, stdout when empty")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
