package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/knox/internal/config"
)

func NewSettingsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change user settings",
		Long: `Show or change the per-user settings file.

Keys:
  clientId          default Azure application ID for registrations without one
  tenantId          default Azure tenant ID for registrations without one
  suppressWarnings  skip the confirmation before moving a secret
  idleMinutesClose  end 'knox browse' after this many idle minutes (0 disables)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showSettings(cmd, app)
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show the current settings",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return showSettings(cmd, app)
			},
		},
		&cobra.Command{
			Use:       "set <key> <value>",
			Short:     "Change a setting",
			Args:      cobra.ExactArgs(2),
			ValidArgs: config.SettingKeys(),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg := app.Config
				if err := cfg.LoadSettings(); err != nil {
					return err
				}
				if err := cfg.Settings.Set(args[0], args[1]); err != nil {
					return err
				}
				if err := cfg.SaveSettings(); err != nil {
					return err
				}
				value, _ := cfg.Settings.Get(args[0])
				fmt.Fprintf(cmd.OutOrStdout(), "✅ %s = %s\n", canonicalKey(args[0]), value)
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the settings file path",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := app.Config.LoadSettings(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), app.Config.SettingsPath)
				return nil
			},
		},
	)

	return cmd
}

func showSettings(cmd *cobra.Command, app *App) error {
	if err := app.Config.LoadSettings(); err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	for _, key := range config.SettingKeys() {
		value, _ := app.Config.Settings.Get(key)
		fmt.Fprintf(w, "%s\t%s\n", key, orDash(value))
	}
	return w.Flush()
}

func canonicalKey(key string) string {
	for _, k := range config.SettingKeys() {
		if strings.EqualFold(k, key) {
			return k
		}
	}
	return key
}
