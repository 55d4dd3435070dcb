// Command surveyctl is the operator CLI: migrations, manual dispatch and
// helpers for signing webhooks and minting admin tokens.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Cypherspark/sms-survey/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:           "surveyctl",
	Short:         "Operate the SMS wellbeing survey",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		logging.Init()
		logging.Log.SetOutput(os.Stderr)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd, dispatchCmd, signCmd, adminTokenCmd, parseCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
