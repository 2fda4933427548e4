package main

import (
	"github.com/spf13/cobra"

	"aswaq-payments/internal/config"
	pg "aswaq-payments/internal/infra/db/postgres"
	"aswaq-payments/internal/infra/logging"
)

func newMigrateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(flags.configPath, flags.dev)
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Log, cfg.Runtime.Dev)

			pool, err := pg.Connect(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := pg.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			logger.Info().Msg("schema up to date")
			return nil
		},
	}
}
