// Command sketchctl is the operator CLI: schema migrations, budget inspection, provider
// credentials and job cancellation against the Postgres deployment.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "sketchctl",
	Short:         "Operate the sketch-to-image pipeline",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(budgetCmd)
	rootCmd.AddCommand(credentialsCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(assetsCmd)
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
