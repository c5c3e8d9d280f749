package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bi-assistant",
	Short: "Chat assistant for sales, churn and pipeline incident questions",
	Long: `bi-assistant answers business questions in English or Arabic by generating and running SQL,
and explains failed pipeline runs from their logs and a knowledge base.

Configuration comes from the environment (or a .env file): DB_DRIVER, DB_DSN, AI_PROVIDER,
AI_MODEL and friends.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(explainCmd)
	rootCmd.AddCommand(indexSchemaCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
