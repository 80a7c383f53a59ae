// Package cli provides the cobra command-line interface.
package cli

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/oratorio-dev/rudybot/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "rudybot",
	Short: "A retrieval-augmented document assistant",
	Long: `rudybot answers questions from a local document corpus.

Documents are chunked, embedded and stored in a vector index at ingest
time. At query time the question is rewritten from conversation
context, matched against the index and answered by a generative model
grounded in the retrieved passages, with citations.`,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
		// Missing .env is fine; environment variables may be set directly.
		godotenv.Load() //nolint:errcheck
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "rudybot.toml", "path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
