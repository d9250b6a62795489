package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"bank-transfer-reconciler/pkg/errors"
)

var statusUserID uint

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a user's subscription status",
	Long: `Status derives whether a user needs to pay, from their latest
subscription record and its latest payment.

Examples:
  reconciler status --user-id 42`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if statusUserID == 0 {
			return errors.ValidationError(errors.CodeMissingField, "user-id", statusUserID, nil).
				WithSuggestion("pass a positive --user-id")
		}
		return nil
	},
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().UintVar(&statusUserID, "user-id", 0, "user identifier (required)")
	statusCmd.MarkFlagRequired("user-id")
}

func runStatus(cmd *cobra.Command, args []string) error {
	app, err := loadApplication(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := app.status.ForUser(cmd.Context(), statusUserID)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
