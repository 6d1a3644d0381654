package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var debug bool

// rootCmd is the base command when reef is called without a subcommand.
var rootCmd = &cobra.Command{
	Use:     "reef",
	Short:   "A distributed, continuously-running web crawler",
	Long:    `reef enqueues seed URLs, fetches pages with a pool of workers, extracts text and links, and persists the results.`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}
