package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Deliver queued notifications once",
	Long: `Dispatch claims pending notification intents, sends them by email or
message and records the result. Intents stuck in a claimed state are released
first. Run it from cron when the API server is not running.`,
	RunE: runDispatch,
}

func init() {
	rootCmd.AddCommand(dispatchCmd)
}

func runDispatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	app, err := loadApplication(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := app.dispatcher().DrainOnce(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Released: %d, Claimed: %d, Sent: %d, Retrying: %d, Failed: %d, Payments notified: %d\n",
		result.Released, result.Claimed, result.Sent, result.Retrying, result.Failed, len(result.Completed))
	return nil
}
