/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/ssargent/bitctf/pkg/config"
	"github.com/ssargent/bitctf/pkg/di"
	"github.com/ssargent/bitctf/pkg/logging"
)

type ctxKey string

const (
	configKey ctxKey = "config"
	loggerKey ctxKey = "logger"
)

var container *di.Container

// SetContainer injects the dependency container used by the commands
func SetContainer(c *di.Container) {
	container = c
}

// NewRootCmd builds the bitctf command tree
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bitctf",
		Short: "bitctf - Common Trace Format record decoder",
		Long: `bitctf decodes bit-packed Common Trace Format event records against
schemas described in YAML, recognizes the compact and large event header
layouts, and keeps schemas in a local registry served over a REST API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := logging.NewWithWriter(cfg.Logging, cmd.ErrOrStderr())
			if err != nil {
				return errors.Wrap(err, "failed to create logger")
			}
			ctx := contextWithConfig(cmd.Context(), cfg)
			cmd.SetContext(context.WithValue(ctx, loggerKey, logger))
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to config file (default: OS-specific location)")
	flags.StringP("data-dir", "d", "", "Data directory for the schema registry (overrides config)")
	flags.String("log-level", "", "Log level (overrides config)")
	flags.String("log-format", "", "Log format, text or json (overrides config)")

	rootCmd.AddCommand(
		newInitCmd(),
		newServeCmd(),
		newSchemaCmd(),
		newDecodeCmd(),
		newEncodeCmd(),
		newClassifyCmd(),
		newCaptureCmd(),
		newDumpCmd(),
	)
	return rootCmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		rootCmd.PrintErrln("Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file when there is one and applies flag overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	explicit := configPath != ""
	if !explicit {
		configPath = config.GetDefaultConfigPath()
	}

	cfg := config.DefaultConfig()
	if config.ConfigExists(configPath) {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load config %s", configPath)
		}
		cfg = loaded
	} else if explicit && cmd.Name() != "init" {
		return nil, errors.Newf("config file does not exist: %s", configPath)
	}

	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.Logging.Format = v
	}
	return cfg, nil
}

func contextWithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

func configFrom(cmd *cobra.Command) *config.Config {
	if cfg, ok := cmd.Context().Value(configKey).(*config.Config); ok {
		return cfg
	}
	return config.DefaultConfig()
}

func loggerFrom(cmd *cobra.Command) logrus.FieldLogger {
	if logger, ok := cmd.Context().Value(loggerKey).(logrus.FieldLogger); ok {
		return logger
	}
	return logrus.StandardLogger()
}

func getContainer() *di.Container {
	if container == nil {
		container = di.NewContainer()
	}
	return container
}
