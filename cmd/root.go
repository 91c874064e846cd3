// Package cmd provides the casefiler command-line interface.
//
// Configuration is resolved from several sources, highest priority first:
//  1. command-line flags (--config, --log-level, ...)
//  2. CASEFILER_CONFIG_FILE, the path of a custom configuration file
//  3. individual environment variables such as CASEFILER_HASHING_WORKERS
//  4. .casefiler.yml in the current directory
//  5. built-in defaults
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/conneroisu/casefiler/internal/config"
	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// cfgReadErr holds a failure to read an explicitly named config file.
	cfgReadErr error
)

var rootCmd = &cobra.Command{
	Use:   "casefiler",
	Short: "Organize, verify and archive forensic video evidence",
	Long: `casefiler files recovered video evidence into a standard folder structure,
copies it with SHA-256 verification, writes the case reports next to it and
optionally zips and uploads the result.

Quick Start:
  casefiler organize --form case.yaml --dest /cases DVR_Export/
  casefiler batch add --form case.yaml --dest /cases DVR_Export/
  casefiler batch run --progress-addr localhost:8089
  casefiler template list
  casefiler hash verify --source DVR_Export --target /cases/2025-001/...`,
	SilenceUsage: true,
}

// Execute runs the root command with a context cancelled on SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is .casefiler.yml, can also use CASEFILER_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig points viper at the configuration file and enables
// CASEFILER_-prefixed environment overrides.
//
//	export CASEFILER_CONFIG_FILE=/srv/casefiler/lab.yml
//	casefiler batch run                  # uses lab.yml
//	casefiler batch run --config dev.yml # the flag wins
func initConfig() {
	cfgReadErr = nil
	explicit := cfgFile
	if explicit == "" {
		explicit = os.Getenv("CASEFILER_CONFIG_FILE")
	}

	if explicit != "" {
		viper.SetConfigFile(explicit)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".casefiler")
	}

	viper.SetEnvPrefix("CASEFILER")
	viper.SetEnvKeyReplacer(config.EnvKeyReplacer())
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			cfgReadErr = fmt.Errorf("failed to read config file: %w", err)
		}
	}
}

// loadConfig resolves the configuration for a command.
func loadConfig() (*config.Config, error) {
	if cfgReadErr != nil {
		return nil, cfgReadErr
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
