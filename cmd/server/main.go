package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"graph-persistence/internal/config"
	"graph-persistence/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	rootCmd := &cobra.Command{
		Use:           "server",
		Short:         "Generic entity persistence service",
		Long:          "Serves CRUD and filtered listing for every entity type described by the configured descriptor files.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			logger, err = logging.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to app.yaml")

	rootCmd.AddCommand(
		serveCmd(),
		checkCmd(),
		migrateCmd(),
		hashKeyCmd(),
	)
	rootCmd.SetContext(ctx)

	err := rootCmd.Execute()
	stop()
	if logger != nil {
		_ = logger.Sync()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
