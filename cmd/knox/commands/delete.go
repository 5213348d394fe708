package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	dserrors "github.com/systmms/knox/internal/errors"
)

func NewDeleteCommand(app *App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <vault> <secret>",
		Short: "Delete a secret",
		Long: `Delete a secret. Where the vault supports it the secret is soft-deleted
and can be recovered with the vault's own tools; knox never purges.

Examples:
  knox delete corp-kv old-token
  knox delete corp-kv old-token --yes`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vaultName, secretName := args[0], args[1]

			s, err := app.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			defer app.finish(cmd)

			client, err := app.vault(s, vaultName)
			if err != nil {
				return err
			}

			if !client.Contains(secretName) {
				return dserrors.UserError{
					Message:    fmt.Sprintf("Secret '%s' not found in %s", secretName, client.Name()),
					Suggestion: fmt.Sprintf("Run 'knox tree --search %s' to look for it", secretName),
				}
			}

			if !yes && !app.confirm(cmd, fmt.Sprintf("Delete %s from %s?", secretName, client.Name())) {
				fmt.Fprintln(cmd.OutOrStdout(), "Operation cancelled")
				return nil
			}

			if err := client.DeleteSecret(cmd.Context(), secretName); err != nil {
				return app.storeError(vaultName, "Deleting secret", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✅ Deleted %s from %s\n", secretName, client.Name())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}
