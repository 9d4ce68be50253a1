package main

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/iliyamo/biodata-connect/internal/config"
	"github.com/iliyamo/biodata-connect/internal/logger"
	"github.com/iliyamo/biodata-connect/internal/queue"
)

func consumeCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Append ledger events from RabbitMQ to a log file",
		Long: `Consume connection and payment events and append them, one JSON
line each, to the ledger log.

Examples:
  biodata-connect consume
  biodata-connect consume --out /var/log/biodata/ledger.log`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// the consumer needs no database or provider settings
			logger.Init(config.LogSettings())

			f, err := queue.OpenLedgerLog(out)
			if err != nil {
				return err
			}
			defer f.Close()

			log.Info().Str("out", out).Strs("queues", queue.Queues).Msg("consumer starting")
			err = queue.NewConsumer(config.RabbitURL(), f).Run(ctx)
			if errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&out, "out", "logs/ledger.log", "ledger log file")
	return cmd
}
