package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/knox/internal/projection"
	"github.com/systmms/knox/pkg/secretstore"
)

// maskedValue stands in for a hidden value whatever its length.
const maskedValue = "********"

func NewShowCommand(app *App) *cobra.Command {
	var (
		reveal     bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "show <vault> <secret>",
		Short: "Show a secret and its properties",
		Long: `Fetch a secret and print its properties. The value is masked unless
--reveal is given.

Examples:
  knox show corp-kv db-password
  knox show corp-kv db-password --reveal

  # Use in scripts
  export DB_PASSWORD=$(knox show corp-kv db-password --reveal --json | jq -r .value)`,
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

			sec, err := client.GetSecret(cmd.Context(), secretName)
			if err != nil {
				return app.storeError(vaultName, "Reading secret", err)
			}

			value := maskedValue
			if reveal {
				value = sec.Value
			}

			if jsonOutput {
				return writeSecretJSON(cmd, client.Name(), sec, value)
			}
			return writeSecretText(cmd, client.Name(), sec, value)
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print the secret value")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

func writeSecretText(cmd *cobra.Command, vaultName string, sec secretstore.Secret, value string) error {
	p := sec.Properties
	folder, _ := p.Tag(secretstore.TagFolder)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Vault:\t%s\n", vaultName)
	fmt.Fprintf(w, "Name:\t%s\n", sec.Name)
	if label := projection.DisplayLabel(p); label != sec.Name {
		fmt.Fprintf(w, "Display name:\t%s\n", label)
	}
	fmt.Fprintf(w, "Folder:\t%s\n", orRoot(folder))
	fmt.Fprintf(w, "Version:\t%s\n", orDash(p.Version))
	fmt.Fprintf(w, "Content type:\t%s\n", orDash(p.ContentType))
	fmt.Fprintf(w, "Enabled:\t%t\n", p.Enabled)
	fmt.Fprintf(w, "Created:\t%s\n", formatTime(p.Created))
	fmt.Fprintf(w, "Updated:\t%s\n", formatTime(p.Updated))
	fmt.Fprintf(w, "Value:\t%s\n", value)

	var free []secretstore.Tag
	for _, t := range p.SortedTags() {
		if !secretstore.IsReservedTag(t.Name) {
			free = append(free, t)
		}
	}
	if len(free) > 0 {
		fmt.Fprintln(w, "Tags:")
		for _, t := range free {
			fmt.Fprintf(w, "  %s\t%s\n", t.Name, t.Value)
		}
	}
	return w.Flush()
}

func writeSecretJSON(cmd *cobra.Command, vaultName string, sec secretstore.Secret, value string) error {
	p := sec.Properties
	folder, _ := p.Tag(secretstore.TagFolder)

	output := map[string]interface{}{
		"vault":       vaultName,
		"name":        sec.Name,
		"displayName": projection.DisplayLabel(p),
		"folder":      projection.SplitFolderPath(folder),
		"version":     p.Version,
		"contentType": p.ContentType,
		"enabled":     p.Enabled,
		"tags":        p.Tags,
		"value":       value,
	}
	if !p.Created.IsZero() {
		output["created"] = p.Created.UTC().Format(time.RFC3339)
	}
	if !p.Updated.IsZero() {
		output["updated"] = p.Updated.UTC().Format(time.RFC3339)
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(output); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func orRoot(folder string) string {
	if len(projection.SplitFolderPath(folder)) == 0 {
		return secretstore.RootFolder
	}
	return folder
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
