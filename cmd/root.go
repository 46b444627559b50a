// Package cmd defines and implements the CLI commands for the komikarsip
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/bramasta/komikarsip/internal/archive"
	"github.com/bramasta/komikarsip/internal/codec"
	"github.com/bramasta/komikarsip/internal/config"
	"github.com/bramasta/komikarsip/internal/fetch"
	"github.com/bramasta/komikarsip/internal/logging"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "komikarsip",
		Short: "Incremental JSON archiver for a comic aggregator site",
		Long: `komikarsip crawls a comic aggregator site into a local JSON archive
(index, per-title metadata, per-chapter image lists) and can re-check
archived chapters against the live site to pick up appended images or
silently rotated image URLs.`,
		SilenceUsage: true,
	}

	cobra.OnInitialize(initConfig)

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./komikarsip.yaml)")
	cmd.PersistentFlags().String("data-dir", "", "directory holding the JSON archive")
	cmd.PersistentFlags().Float64("delay", 0, "delay between requests in seconds")
	if err := viper.BindPFlag("archive.data_dir", cmd.PersistentFlags().Lookup("data-dir")); err != nil {
		panic(fmt.Sprintf("bind data-dir flag: %v", err))
	}
	if err := viper.BindPFlag("http.delay_seconds", cmd.PersistentFlags().Lookup("delay")); err != nil {
		panic(fmt.Sprintf("bind delay flag: %v", err))
	}

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newCheckCmd())

	return cmd
}

// initConfig points Viper at the config file before any command runs. A
// missing file is fine; defaults and environment variables take over.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("komikarsip")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.komikarsip")
	}
	_ = viper.ReadInConfig()
}

// buildDeps assembles the shared dependency set every subcommand needs.
func buildDeps() (config.Config, *zap.Logger, *archive.Store, *fetch.Client, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return config.Config{}, nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, nil, nil, fmt.Errorf("build logger: %w", err)
	}

	store, err := archive.New(cfg.Archive.DataDir, codec.New(cfg.Site.SensitiveDomains))
	if err != nil {
		return config.Config{}, nil, nil, nil, err
	}

	client := fetch.New(fetch.Config{
		BaseURL: cfg.Site.BaseURL,
		ListURL: cfg.ListURL(),
		Delay:   cfg.Delay(),
		Timeout: cfg.Timeout(),
	}, logger.Named("fetch"))

	logger.Info("Archive ready", zap.String("data_dir", cfg.Archive.DataDir))
	return cfg, logger, store, client, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
