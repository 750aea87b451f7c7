package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/prospect-cli/internal/server"
)

var (
	servePort              int
	serveConcurrentUploads int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ingestion and research-callback server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := server.New(env.Store, env.Pipeline, serveConcurrentUploads)
		return srv.ListenAndServe(ctx, port)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().IntVar(&serveConcurrentUploads, "concurrent-uploads", 8, "max upload pipelines running at once")
	rootCmd.AddCommand(serveCmd)
}
