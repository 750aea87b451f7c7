package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var retryCmd = &cobra.Command{
	Use:   "retry <record-id>",
	Short: "Re-dispatch a failed record as a batch of one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.Pipeline.RetryRecord(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "retry record")
		}

		zap.L().Info("retry finished",
			zap.String("record_id", rec.ID),
			zap.String("status", string(rec.Status)),
			zap.String("error_message", rec.ErrorMessage),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(retryCmd)
}
