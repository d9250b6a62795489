package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		// loadApplication migrates on open.
		app, err := loadApplication(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date (%s)\n", app.config.Database.Driver)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), getVersionString())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}
