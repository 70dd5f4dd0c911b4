// File: cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/dowser-cli/internal/config"
	"github.com/xkilldash9x/dowser-cli/internal/observability"
)

var (
	cfgFile string
	// cfg holds the resolved configuration, populated by PersistentPreRunE
	// before any subcommand runs.
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "dowser-cli",
	Short:   "Dowser autonomously explores a web UI and flags coherence anomalies.",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			// Fall back to a minimal logger so the failure itself is visible.
			observability.Initialize(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "dowser-cli"}, zapcore.Lock(os.Stderr))
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded

		observability.Initialize(cfg.Logger, zapcore.Lock(os.Stderr))
		observability.GetLogger().Info("Starting dowser-cli", zap.String("version", Version))
		return nil
	},
}

// Execute runs the root command under a signal-aware context. A SIGINT or
// SIGTERM cancels the run; the orchestrator still writes its artifact.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		observability.Sync()
		os.Exit(1)
	}
	observability.Sync()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	rootCmd.AddCommand(newRunCmd())
}
