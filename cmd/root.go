// Package cmd implements the huv-matcher command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/north-cloud/huv-matcher/internal/bootstrap"
	"github.com/north-cloud/huv-matcher/internal/config"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string
	// debug forces debug logging.
	debug bool

	rootCmd = &cobra.Command{
		Use:           "huv-matcher",
		Short:         "Match hospital service items to the HUV reference list",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command until it returns or the process is signalled.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $CONFIG_PATH or ./config.yml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(
		newServeCommand(),
		newMatchCommand(),
		newBatchCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "huv-matcher %s\n", Version)
			},
		},
	)
}

func loadConfig() (*config.Config, error) {
	cfg, err := bootstrap.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Service.Debug = true
		cfg.Logging.Level = "debug"
	}
	if cfg.Service.Version == "" || Version != "dev" {
		cfg.Service.Version = Version
	}
	return cfg, nil
}

// loadApp builds the application for a command. The caller closes it.
func loadApp(ctx context.Context) (*bootstrap.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := bootstrap.CreateLogger(cfg)
	if err != nil {
		return nil, err
	}
	app, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	return app, nil
}
