package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/systmms/knox/internal/config"
	dserrors "github.com/systmms/knox/internal/errors"
	"github.com/systmms/knox/internal/logging"
	"github.com/systmms/knox/internal/metrics"
	"github.com/systmms/knox/internal/session"
	"github.com/systmms/knox/internal/vault"
)

// App is the state shared by every command. The root command fills Config
// from the global flags before any command runs.
type App struct {
	Config *config.Config

	// ShowMetrics prints an operation summary to stderr after the command.
	ShowMetrics bool

	// SessionOptions are appended when a session is opened (for testing).
	SessionOptions []session.Option

	registry *prometheus.Registry
	metrics  *metrics.VaultMetrics

	// idleUnit scales idleMinutesClose; zero means one minute.
	idleUnit time.Duration
}

// NewApp creates the shared command state around cfg.
func NewApp(cfg *config.Config) *App {
	reg := prometheus.NewRegistry()
	return &App{
		Config:   cfg,
		registry: reg,
		metrics:  metrics.New(reg),
	}
}

// Metrics returns the vault operation metrics of this run.
func (a *App) Metrics() *metrics.VaultMetrics {
	return a.metrics
}

// loadConfig reads the settings file and knox.yaml, in that order, so
// that settings can supply Azure client and tenant defaults.
func (a *App) loadConfig() error {
	if err := a.Config.LoadSettings(); err != nil {
		return err
	}
	return a.Config.Load()
}

// openSession loads configuration and connects to every registered vault.
func (a *App) openSession(ctx context.Context) (*session.Session, error) {
	if err := a.loadConfig(); err != nil {
		return nil, err
	}

	opts := []session.Option{
		session.WithLogger(a.logger()),
		session.WithMetrics(a.metrics),
	}
	opts = append(opts, a.SessionOptions...)

	return session.Open(ctx, a.Config.Registrations(), a.Config.Settings, opts...)
}

// vault resolves name in s, turning failures into user errors.
func (a *App) vault(s *session.Session, name string) (*vault.Client, error) {
	c, err := s.Vault(name)
	if err != nil {
		var le session.LoadError
		if errors.As(err, &le) {
			return nil, dserrors.StoreError(le.Type, le.Vault, "Loading vault", le.Err)
		}
		suggestion := "Run 'knox vaults' to list the configured vaults"
		if names := s.VaultNames(); len(names) > 0 && len(names) <= 10 {
			suggestion = fmt.Sprintf("Available vaults: %s", strings.Join(names, ", "))
		}
		return nil, dserrors.UserError{
			Message:    fmt.Sprintf("Vault '%s' is not configured", name),
			Suggestion: suggestion,
		}
	}
	return c, nil
}

// storeType returns the registration type serving vault.
func (a *App) storeType(vault string) string {
	for _, r := range a.Config.Registrations() {
		for _, n := range r.VaultNames {
			if strings.EqualFold(n, vault) {
				return r.EffectiveType()
			}
		}
	}
	return config.DefaultRegistrationType
}

// storeError wraps a vault operation failure for display.
func (a *App) storeError(vault, operation string, err error) error {
	return dserrors.StoreError(a.storeType(vault), vault, operation, err)
}

// finish prints the metrics summary when requested.
func (a *App) finish(cmd *cobra.Command) {
	if !a.ShowMetrics {
		return
	}
	w := cmd.ErrOrStderr()
	fmt.Fprintln(w, "\nVault operations:")
	if err := metrics.WriteSummary(w, a.registry); err != nil {
		a.logger().Warn("Could not gather metrics: %v", err)
	}
}

func (a *App) logger() *logging.Logger {
	if a.Config.Logger == nil {
		return logging.Discard()
	}
	return a.Config.Logger
}

// readLine reads one line from r without the trailing newline.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readPassword reads a password from the command's stdin. With fromStdin
// the whole first line is taken as is; otherwise the user is prompted,
// which is refused in non-interactive mode.
func (a *App) readPassword(cmd *cobra.Command, fromStdin bool, prompt string) (string, error) {
	if !fromStdin && a.Config.NonInteractive {
		return "", dserrors.UserError{
			Message:    "A password is required",
			Suggestion: "Pipe it in and pass --password-stdin",
		}
	}
	if !fromStdin {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
	}
	pw, err := readLine(bufio.NewReader(cmd.InOrStdin()))
	if err != nil {
		return "", dserrors.UserError{
			Message: "Could not read the password",
			Details: err.Error(),
			Err:     err,
		}
	}
	return pw, nil
}

// confirm asks a yes/no question. Non-interactive mode never confirms.
func (a *App) confirm(cmd *cobra.Command, question string) bool {
	if a.Config.NonInteractive {
		return false
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s (y/N): ", question)
	response, _ := readLine(bufio.NewReader(cmd.InOrStdin()))
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}

// parseTags parses repeated k=v flags.
func parseTags(pairs []string) (map[string]string, error) {
	tags := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, dserrors.UserError{
				Message:    fmt.Sprintf("Invalid tag '%s'", p),
				Suggestion: "Use --tag name=value",
			}
		}
		tags[name] = value
	}
	return tags, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
