package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/knox/internal/editor"
	dserrors "github.com/systmms/knox/internal/errors"
)

func NewMoveCommand(app *App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "move <from-vault> <secret> <to-vault>",
		Short: "Move a secret to another vault",
		Long: `Copy a secret with its tags into another vault, then delete it from the
source vault.

The move is refused when both vaults are the same or the destination
already has a secret with that name. It is not atomic: if the copy succeeds
but the delete fails, the secret is left in both vaults.

The confirmation prompt is skipped with --yes or the suppressWarnings
setting.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			fromName, secretName, toName := args[0], args[1], args[2]

			s, err := app.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			defer app.finish(cmd)

			from, err := app.vault(s, fromName)
			if err != nil {
				return err
			}
			to, err := app.vault(s, toName)
			if err != nil {
				return err
			}

			if !yes && !s.Settings().SuppressWarnings &&
				!app.confirm(cmd, fmt.Sprintf("Move %s from %s to %s?", secretName, from.Name(), to.Name())) {
				fmt.Fprintln(cmd.OutOrStdout(), "Operation cancelled")
				return nil
			}

			moved, err := editor.Move(cmd.Context(), from, to, secretName)
			if err != nil {
				var partial editor.PartialMoveError
				if errors.As(err, &partial) {
					return dserrors.UserError{
						Message:    fmt.Sprintf("%s was copied to %s but is still in %s", partial.Secret, partial.Destination, partial.Source),
						Details:    partial.Err.Error(),
						Suggestion: fmt.Sprintf("Delete it manually with 'knox delete %s %s'", partial.Source, partial.Secret),
						Err:        err,
					}
				}
				return app.storeError(toName, "Moving secret", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✅ Moved %s from %s to %s\n", moved.Name, from.Name(), to.Name())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}
