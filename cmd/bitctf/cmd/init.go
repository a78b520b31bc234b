/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/ssargent/bitctf/pkg/config"
)

func newInitCmd() *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the configuration and schema registry",
		Long: `Create a configuration file with a generated API key and an empty schema
registry in the data directory.

Examples:
  bitctf init
  bitctf init --data-dir ./data --config ./bitctf.yaml
  bitctf init --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			if configPath == "" {
				configPath = config.GetDefaultConfigPath()
			}
			force, _ := cmd.Flags().GetBool("force")

			if config.ConfigExists(configPath) && !force {
				printf(cmd, "Already initialized. Use --force to regenerate %s\n", configPath)
				return nil
			}

			cfg, err := config.BootstrapConfig(configPath, configFrom(cmd).DataDir)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
				return errors.Wrap(err, "failed to create data directory")
			}

			cmd.SetContext(contextWithConfig(cmd.Context(), cfg))
			reg, err := openRegistry(cmd)
			if err != nil {
				return err
			}
			if err := reg.Close(); err != nil {
				return errors.Wrap(err, "failed to close schema registry")
			}

			printf(cmd, "Configuration written to %s\n", configPath)
			printf(cmd, "Data directory: %s\n", cfg.DataDir)
			printf(cmd, "API key: %s\n", cfg.Security.APIKey)
			printf(cmd, "\nStart the server with:\n  bitctf serve --config %s\n", configPath)
			return nil
		},
	}

	initCmd.Flags().Bool("force", false, "Regenerate the configuration even if it exists")
	return initCmd
}
