package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"smart-stick/tracker/internal/db/migrate"
	"smart-stick/tracker/internal/log"
)

func newMigrateCommand(logOpts *log.Options) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back the database schema",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, logOpts)
			if err != nil {
				return err
			}
			defer log.Sync()

			if err := migrate.Run(cfg.MigrateURL(), args[0]); err != nil {
				return fmt.Errorf("migrate %s: %w", args[0], err)
			}
			log.Info("Migrations applied", "direction", args[0])
			return nil
		},
	}
}
