package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/guardian-safety/alert-engine/internal/config"
	"github.com/guardian-safety/alert-engine/internal/service/session"
	"github.com/guardian-safety/alert-engine/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// contacts lists emergency contacts as name:address pairs.
	contacts []string
	// secret is the cancellation secret for this session.
	secret string
	// historyFile path where alert history is persisted.
	historyFile string

	// rootCmd represents the base command for running an alert session.
	rootCmd = &cobra.Command{
		Use:   "alert-engine",
		Short: "Run an interactive emergency alert session.",
		Long: `Starts an interactive emergency alert session on the terminal.

Arming an alert begins a short countdown. Unless aborted, its expiry
notifies the configured emergency contacts with the current location and
keeps re-sending position updates until the alert is cancelled with the
session secret or resolved. Repeated wrong secrets lock cancellation.
Finished alerts are persisted to a JSON history file.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &session.Options{
				ConfigPath:  configPath,
				Contacts:    contacts,
				Secret:      secret,
				HistoryFile: historyFile,
			}

			return session.Run(ctx, options)
		},
	}
)

// Execute runs the alert-engine CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	rootCmd.Flags().
		StringArrayVarP(&contacts, "contact", "n", nil, "emergency contact as name:address, repeatable")
	rootCmd.Flags().StringVarP(&secret, "secret", "s", "guardian", "cancellation secret for this session")
	rootCmd.Flags().
		StringVar(&historyFile, "history-file", config.DefaultHistoryFilename, "path to persist alert history")
}
