package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func NewVaultsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "vaults",
		Short: "List configured vaults",
		Long: `List every vault in knox.yaml with its registration type and identity.

No vault is contacted; use 'knox doctor' to check access.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.loadConfig(); err != nil {
				return err
			}

			entries := app.Config.Definition.VaultEntries()
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No vaults configured")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "VAULT\tTYPE\tAUTH\tIDENTITY")
			for _, e := range entries {
				reg := e.Registration
				auth := "-"
				identity := "-"
				switch {
				case strings.HasPrefix(reg.EffectiveType(), "azure"):
					auth = reg.EffectiveAuth()
					identity = fmt.Sprintf("tenant %s, client %s", orDash(reg.TenantID), orDash(reg.ClientID))
				case reg.Profile != "":
					identity = "profile " + reg.Profile
				case reg.CredentialsFile != "":
					identity = reg.CredentialsFile
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Name, reg.EffectiveType(), auth, identity)
			}
			return w.Flush()
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
