package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"bank-transfer-reconciler/internal/api"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the notification dispatcher",
	Long: `Serve starts the HTTP API (uploads, row reconciliation, payment
confirmation, subscription status) and the background dispatcher that
delivers queued notifications.

Examples:
  reconciler serve
  RECONCILER_HTTP_ADDR=:9090 RECONCILER_HTTP_ADMIN_TOKEN=secret reconciler serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := loadApplication(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	dispatcher := app.dispatcher()
	dispatcher.Start()
	defer dispatcher.Stop()

	server := api.NewServer(&app.config.HTTP, api.Dependencies{
		Engine:       app.engine,
		Orchestrator: app.orchestrator,
		Status:       app.status,
		Logger:       app.logger,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Listen() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	app.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
