// Package app builds the tracker command line.
package app

import (
	"github.com/spf13/cobra"

	"smart-stick/tracker/internal/config"
	"smart-stick/tracker/internal/log"
)

const (
	commandName = "tracker"
	commandDesc = `The tracker receives smart-stick telemetry, raises emergency alerts to
the stick's owner and streams positions to companion clients.

Configuration is read from the environment and an optional .env file.`
)

func NewRootCommand() *cobra.Command {
	logOpts := log.NewOptions()

	cmd := &cobra.Command{
		Use:           commandName,
		Short:         "Smart-stick location tracking backend",
		Long:          commandDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	logOpts.AddFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		newServeCommand(logOpts),
		newMigrateCommand(logOpts),
		newTokenCommand(),
	)
	return cmd
}

// loadConfig reads the environment and initializes logging. Explicit log
// flags win over LOG_LEVEL and LOG_FORMAT.
func loadConfig(cmd *cobra.Command, logOpts *log.Options) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if !cmd.Flags().Changed("log.level") && cfg.LogLevel != "" {
		logOpts.Level = cfg.LogLevel
	}
	if !cmd.Flags().Changed("log.format") && cfg.LogFormat != "" {
		logOpts.Format = cfg.LogFormat
	}
	if logOpts.Name == "" {
		logOpts.Name = commandName
	}
	log.Init(logOpts)
	return cfg, nil
}
