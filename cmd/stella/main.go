package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/koscakluka/stella-core/internal/config"
)

var cfg = config.Load()

var rootCmd = &cobra.Command{
	Use:          "stella",
	Short:        "Stella voice assistant client",
	SilenceUsage: true,
	Long: `Stella listens for its wake word, streams what you say to the Stella
backend and speaks the answers it receives over the realtime channel.

Configuration is read from the environment and an optional .env file,
flags override both.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfg.Log.File, "log-file", cfg.Log.File, "file receiving JSON logs")
	rootCmd.PersistentFlags().StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
