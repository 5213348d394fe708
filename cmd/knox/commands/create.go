package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	dserrors "github.com/systmms/knox/internal/errors"
	"github.com/systmms/knox/internal/editor"
)

func NewCreateCommand(app *App) *cobra.Command {
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "create <vault> <name>",
		Short: "Create a new secret",
		Long: `Create a new secret in a vault.

Folders and tags cannot be set while creating; run 'knox edit' afterwards.
A name that already exists in the vault is rejected.

Examples:
  # Prompt for the value
  knox create corp-kv db-password

  # Read the value from a pipe
  printf '%s' "$PASSWORD" | knox create corp-kv db-password --password-stdin`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vaultName, name := args[0], args[1]

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

			password, err := app.readPassword(cmd, passwordStdin, "Password: ")
			if err != nil {
				return err
			}

			w := editor.NewCreate(client)
			created, err := w.Submit(cmd.Context(), name, password)
			if err != nil {
				if editor.IsValidation(err) {
					return dserrors.UserError{Message: "Cannot create secret", Details: err.Error()}
				}
				return app.storeError(vaultName, "Creating secret", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✅ Created %s in %s (version %s)\n", created.Name, client.Name(), orDash(created.Properties.Version))
			fmt.Fprintf(cmd.OutOrStdout(), "   Run 'knox edit %s %s --folder <path>' to file it in a folder\n", client.Name(), created.Name)
			return nil
		},
	}

	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the value from stdin")

	return cmd
}
