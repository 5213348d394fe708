package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	dserrors "github.com/systmms/knox/internal/errors"
	"github.com/systmms/knox/pkg/secretstore"
)

// validateTimeout bounds each vault check.
const validateTimeout = 30 * time.Second

// VaultHealth is the result of checking one vault.
type VaultHealth struct {
	Vault      string
	Type       string
	Status     string // healthy, error
	Message    string
	Suggestion string
}

func NewDoctorCommand(app *App) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and vault access",
		Long: `Verify that knox is configured and every vault is reachable.

This command checks:
- Settings and knox.yaml validity
- Authentication for each registration
- List access on each vault`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := app.logger()
			logger.Info("Checking knox configuration...")

			s, err := app.openSession(cmd.Context())
			if err != nil {
				logger.Error("Configuration error: %v", err)
				return err
			}
			defer s.Close()
			defer app.finish(cmd)
			logger.Info("Configuration loaded (%s)", app.Config.Path)

			var results []VaultHealth
			for _, c := range s.Vaults() {
				health := VaultHealth{Vault: c.Name(), Type: app.storeType(c.Name())}
				if err := validate(cmd.Context(), c.Store()); err != nil {
					health.Status = "error"
					health.Message = err.Error()
					health.Suggestion = suggestion(app.storeError(c.Name(), "Validating vault", err))
				} else {
					health.Status = "healthy"
					health.Message = fmt.Sprintf("%d secrets", c.Len())
				}
				results = append(results, health)
			}
			for _, le := range s.LoadErrors() {
				results = append(results, VaultHealth{
					Vault:      le.Vault,
					Type:       le.Type,
					Status:     "error",
					Message:    le.Err.Error(),
					Suggestion: suggestion(dserrors.StoreError(le.Type, le.Vault, "Loading vault", le.Err)),
				})
			}

			if err := displayHealthResults(cmd.OutOrStdout(), results, verbose); err != nil {
				return err
			}

			healthy := 0
			for _, r := range results {
				if r.Status == "healthy" {
					healthy++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nSummary: %d/%d vaults healthy\n", healthy, len(results))
			if healthy < len(results) {
				return fmt.Errorf("some vaults are not healthy")
			}

			logger.Info("All vaults reachable")
			return nil
		},
	}

	cmd.Flags().BoolVar(&verbose, "verbose", false, "Show suggestions for failing vaults")

	return cmd
}

func validate(ctx context.Context, store secretstore.Store) error {
	v, ok := store.(secretstore.Validator)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()
	return v.Validate(ctx)
}

func suggestion(err error) string {
	if ue, ok := err.(dserrors.UserError); ok {
		return ue.Suggestion
	}
	return ""
}

// displayHealthResults shows vault health in a formatted table
func displayHealthResults(out io.Writer, results []VaultHealth, verbose bool) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "VAULT\tTYPE\tSTATUS\tMESSAGE\n")
	_, _ = fmt.Fprintf(w, "-----\t----\t------\t-------\n")

	for _, r := range results {
		status := "✓ " + r.Status
		if r.Status != "healthy" {
			status = "✗ " + r.Status
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Vault, r.Type, status, r.Message)
		if verbose && r.Suggestion != "" {
			_, _ = fmt.Fprintf(w, "\t\t\t💡 %s\n", r.Suggestion)
		}
	}
	return w.Flush()
}
