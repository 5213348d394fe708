package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/knox/internal/config"
)

func NewInitCommand(app *App) *cobra.Command {
	var (
		clientID string
		tenantID string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new knox configuration",
		Long: `Create a knox.yaml file with an example registration and make sure the
settings file exists.

Examples:
  # Start with an Azure Key Vault registration
  knox init --client-id <app-id> --tenant-id <tenant-id>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.Config
			if err := config.WriteExample(cfg.Path); err != nil {
				return err
			}

			if err := cfg.LoadSettings(); err != nil {
				return err
			}
			if clientID != "" || tenantID != "" {
				if clientID != "" {
					cfg.Settings.ClientID = clientID
				}
				if tenantID != "" {
					cfg.Settings.TenantID = tenantID
				}
				if err := cfg.SaveSettings(); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✅ Created %s\n", cfg.Path)
			fmt.Fprintf(out, "   Settings: %s\n", cfg.SettingsPath)
			fmt.Fprintln(out, "\nNext steps:")
			fmt.Fprintln(out, "  1. Add your vault names to the registrations")
			fmt.Fprintln(out, "  2. Run 'knox doctor' to check access")
			fmt.Fprintln(out, "  3. Run 'knox tree' to browse your secrets")
			return nil
		},
	}

	cmd.Flags().StringVar(&clientID, "client-id", "", "Default Azure application (client) ID to store in settings")
	cmd.Flags().StringVar(&tenantID, "tenant-id", "", "Default Azure tenant ID to store in settings")

	return cmd
}
