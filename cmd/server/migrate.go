package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/iliyamo/biodata-connect/internal/database"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			v, err := database.MigrationVersion(cmd.Context(), a.db, a.cfg.DBDriver)
			if err != nil {
				return err
			}
			log.Info().Int64("version", v).Str("driver", a.cfg.DBDriver).Msg("database up to date")
			return nil
		},
	}
}
