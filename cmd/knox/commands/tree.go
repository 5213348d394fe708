package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/knox/internal/projection"
)

func NewTreeCommand(app *App) *cobra.Command {
	var (
		search    string
		collapsed bool
	)

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Show secrets as a folder tree",
		Long: `Show the secrets of every configured vault, arranged in virtual folders
taken from each secret's Folder tag.

The search matches secret names and tag values, ignoring case.

Examples:
  # Everything
  knox tree

  # Only secrets mentioning "payments"
  knox tree --search payments

  # Vaults only
  knox tree --collapsed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			defer app.finish(cmd)

			view := projection.NewView(s.Sources(), s.ExpandedState())
			view.SetSearch(search)
			if !collapsed && !view.Searching() {
				view.ExpandAll()
			}
			if err := view.Render(cmd.OutOrStdout()); err != nil {
				return err
			}

			for _, le := range s.LoadErrors() {
				fmt.Fprintf(cmd.ErrOrStderr(), "✗ %s: %v\n", le.Vault, le.Err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "Only show secrets whose name or tag values contain this text")
	cmd.Flags().BoolVar(&collapsed, "collapsed", false, "Do not expand vaults and folders")

	return cmd
}
