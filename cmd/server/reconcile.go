package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile-views",
		Short: "Rebuild biodata view counters from the profile view ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.biodata.ReconcileViewCounts(cmd.Context())
			if err != nil {
				return err
			}
			log.Info().Int64("corrected", n).Msg("view counts reconciled")
			return nil
		},
	}
}
