// Command agentloop is the CLI front end for the agent turn loop framework:
// it creates, resumes, drives, and lists sessions backed by a durable
// store. Grounded on the teacher's cmd/symb/main.go wiring (config/
// credentials loading, file logging setup), regrown as a cobra command
// tree since the teacher's flat flag package doesn't model subcommands.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/xonecas/agentturn/internal/config"
)

func main() {
	if err := setupFileLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to set up logging: %v\n", err)
	}

	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string
	var providerName string

	cmd := &cobra.Command{
		Use:           "agentloop",
		Short:         "Drive conversational agent sessions from the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml (default: $HOME/.config/agentloop/config.toml if present, else ./config.toml)")
	cmd.PersistentFlags().StringVar(&providerName, "provider", "", "provider name to use (default: config's default_provider)")

	cmd.AddCommand(
		buildCreateCmd(&configPath, &providerName),
		buildSendCmd(&configPath, &providerName),
		buildResumeCmd(&configPath, &providerName),
		buildSessionsCmd(&configPath),
	)
	return cmd
}

func resolveConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if dataDir, err := config.DataDir(); err == nil {
		p := filepath.Join(dataDir, "config.toml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(".", "config.toml")
}

func setupFileLogging() error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	dataDir, err := config.DataDir()
	if err != nil {
		return err
	}
	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0750); err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(logDir, "agentloop.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		return err
	}
	log.Logger = zerolog.New(f).With().Timestamp().Logger()
	return nil
}
