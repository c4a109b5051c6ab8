// Package cmd defines the nutribot command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "nutribot",
	Short: "Nutribot - conversational nutrition coaching service",
	Long: `Nutribot is a nutrition and supplement coaching backend.

It answers user questions with a structured coaching plan, grounded in live
lookups against Open Food Facts, USDA FoodData Central, openFDA and PubMed.
Without a GEMINI_API_KEY the service still runs and produces deterministic
fallback plans.

Running nutribot without a subcommand starts the HTTP API server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
