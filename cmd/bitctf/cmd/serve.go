/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ssargent/bitctf/pkg/api"
	"github.com/ssargent/bitctf/pkg/config"
)

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		Long: `Start the bitctf REST API server over the schema registry in the data
directory. Settings come from the config file; flags override them.

When no API key is configured a random key is generated for this run and
logged.

Examples:
  bitctf serve
  bitctf serve --port 9000 --bind 0.0.0.0 --api-key mysecretkey`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFrom(cmd)
			logger := loggerFrom(cmd)

			if cmd.Flags().Changed("port") {
				cfg.Port, _ = cmd.Flags().GetInt("port")
			}
			if cmd.Flags().Changed("bind") {
				cfg.Bind, _ = cmd.Flags().GetString("bind")
			}
			if cmd.Flags().Changed("api-key") {
				cfg.Security.APIKey, _ = cmd.Flags().GetString("api-key")
			}

			apiKey := cfg.Security.APIKey
			if apiKey == "" || apiKey == "auto" {
				key, err := config.GenerateSecureKey(32)
				if err != nil {
					return err
				}
				apiKey = key
				logger.WithField("api_key", apiKey).Warn("no API key configured, generated one for this run")
			}

			reg, err := openRegistry(cmd, compileOptions(cmd)...)
			if err != nil {
				return err
			}
			defer reg.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.WithField("data_dir", cfg.DataDir).Info("schema registry opened")
			starter := getContainer().GetServerFactory().CreateServerStarter()
			return starter.StartServer(ctx, reg, api.ServerConfig{
				Port:             cfg.Port,
				Bind:             cfg.Bind,
				APIKey:           apiKey,
				MaxPayloadSize:   cfg.Security.MaxPayloadSize,
				DefaultByteOrder: cfg.Decode.ByteOrder,
			}, logger)
		},
	}

	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on (overrides config)")
	serveCmd.Flags().String("bind", "127.0.0.1", "Address to bind server to (overrides config)")
	serveCmd.Flags().String("api-key", "", "API key required in X-API-Key (overrides config)")
	serveCmd.Flags().Bool("generic-headers", false, "Decode event headers through the generic struct instead of the fast path")
	return serveCmd
}
