package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/systmms/knox/cmd/knox/commands"
	"github.com/systmms/knox/internal/config"
	"github.com/systmms/knox/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Global flags
	var (
		configFile     string
		settingsFile   string
		noColor        bool
		debug          bool
		nonInteractive bool
		showMetrics    bool
	)

	cfg := &config.Config{}
	app := commands.NewApp(cfg)

	rootCmd := &cobra.Command{
		Use:   "knox",
		Short: "Browse and edit secrets across Azure, AWS and GCP vaults",
		Long: `knox shows the secrets of your registered vaults as one folder tree and
lets you create, edit, move and delete them.

Folders are virtual: they come from each secret's Folder tag, and the label
shown in the tree from its DisplayName tag.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg.Path = configFile
			cfg.SettingsPath = settingsFile
			cfg.Logger = logging.New(debug, noColor)
			cfg.NonInteractive = nonInteractive
			app.ShowMetrics = showMetrics
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultConfigFile, "Config file path")
	rootCmd.PersistentFlags().StringVar(&settingsFile, "settings", "", "Settings file path (default <user config dir>/knox/knox.json)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "Never prompt; fail or refuse instead")
	rootCmd.PersistentFlags().BoolVar(&showMetrics, "metrics", false, "Print a summary of vault operations when done")

	rootCmd.AddCommand(
		commands.NewInitCommand(app),
		commands.NewVaultsCommand(app),
		commands.NewTreeCommand(app),
		commands.NewBrowseCommand(app),
		commands.NewShowCommand(app),
		commands.NewCreateCommand(app),
		commands.NewEditCommand(app),
		commands.NewMoveCommand(app),
		commands.NewDeleteCommand(app),
		commands.NewSettingsCommand(app),
		commands.NewDoctorCommand(app),
		commands.NewCompletionCommand(app),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}
