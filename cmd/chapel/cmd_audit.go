package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/iliyamo/chapel-client/internal/queue"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Print sync events published by chapel clients",
	Long: `Consumes the sync event queue and prints one line per event until
interrupted.  Reconnects with backoff when the broker goes away.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		err := queue.Consume(cmd.Context(), a.cfg.AMQPURL, cmd.OutOrStdout(), a.log.Named("audit"))
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
}
