package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/knox/internal/editor"
	dserrors "github.com/systmms/knox/internal/errors"
	"github.com/systmms/knox/pkg/secretstore"
)

func NewEditCommand(app *App) *cobra.Command {
	var (
		displayName    string
		folder         string
		setTags        []string
		removeTags     []string
		promptPassword bool
		passwordStdin  bool
	)

	cmd := &cobra.Command{
		Use:   "edit <vault> <secret>",
		Short: "Change a secret's value, folder, label or tags",
		Long: `Edit an existing secret. Only the parts named by flags change.

A new value always creates a new version of the secret; folder, label and
tag changes are applied to the current version. The label (--name) is
stored as the DisplayName tag and removed again when it equals the real
secret name.

Examples:
  # Move into a folder and relabel
  knox edit corp-kv db-password --folder Prod/Database --name "Orders DB"

  # Add and remove tags
  knox edit corp-kv db-password --tag owner=dba --remove-tag legacy

  # Rotate the value
  printf '%s' "$NEW" | knox edit corp-kv db-password --password-stdin`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vaultName, secretName := args[0], args[1]

			tagUpdates, err := parseTags(setTags)
			if err != nil {
				return err
			}

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

			w, err := editor.OpenUpdate(cmd.Context(), client, secretName)
			if err != nil {
				return app.storeError(vaultName, "Reading secret", err)
			}
			defer w.Close()

			form, err := w.Form()
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("name") {
				form.Name = displayName
			}
			if cmd.Flags().Changed("folder") {
				form.Folder = folder
			}
			form.Tags = applyTagEdits(form.Tags, tagUpdates, removeTags)

			if promptPassword || passwordStdin {
				form.Password, err = app.readPassword(cmd, passwordStdin, "New password: ")
				if err != nil {
					return err
				}
			}

			before := w.Properties().Version
			props, err := w.Submit(cmd.Context(), form)
			if err != nil {
				if editor.IsValidation(err) {
					return dserrors.UserError{Message: "Cannot update secret", Details: err.Error()}
				}
				return app.storeError(vaultName, "Updating secret", err)
			}

			if props.Version != before {
				fmt.Fprintf(cmd.OutOrStdout(), "✅ Updated %s in %s (new version %s)\n", w.SecretName(), client.Name(), orDash(props.Version))
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "✅ Updated %s in %s\n", w.SecretName(), client.Name())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&displayName, "name", "", "Label shown in the tree")
	cmd.Flags().StringVar(&folder, "folder", "", "Folder path, e.g. Prod/Database (empty for the root)")
	cmd.Flags().StringArrayVar(&setTags, "tag", nil, "Set a tag (name=value, repeatable)")
	cmd.Flags().StringArrayVar(&removeTags, "remove-tag", nil, "Remove a tag (repeatable)")
	cmd.Flags().BoolVar(&promptPassword, "password", false, "Prompt for a new value")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read a new value from stdin")

	return cmd
}

// applyTagEdits sets and removes free-form tags, keeping name order.
func applyTagEdits(tags []secretstore.Tag, set map[string]string, remove []string) []secretstore.Tag {
	merged := secretstore.TagsToMap(tags)
	for k, v := range set {
		merged[k] = v
	}
	for _, k := range remove {
		delete(merged, k)
	}

	out := make([]secretstore.Tag, 0, len(merged))
	for _, k := range sortedKeys(merged) {
		out = append(out, secretstore.Tag{Name: k, Value: merged[k]})
	}
	return out
}
