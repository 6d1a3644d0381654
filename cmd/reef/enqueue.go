package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reeflabs/reef/internal/config"
	"github.com/reeflabs/reef/internal/logging"
	"github.com/reeflabs/reef/internal/urlpolicy"
)

// enqueueCmd pushes a single seed URL onto the shared queue without
// starting a pool, for operational scripting.
var enqueueCmd = &cobra.Command{
	Use:   "enqueue [url]",
	Short: "Enqueue a seed URL",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnqueue,
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	url := args[0]
	if !urlpolicy.Accept(url) {
		return fmt.Errorf("url rejected by policy: %s", url)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logging.Init(debug); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logging.Sync()

	q, closeQueue, err := buildQueueStore(cfg)
	if err != nil {
		return fmt.Errorf("queue store unavailable: %w", err)
	}
	defer closeQueue()

	accepted, err := q.Enqueue(context.Background(), url)
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}
	if !accepted {
		fmt.Println("rejected: already visited within 24h or already pending")
		return nil
	}
	fmt.Println("enqueued:", url)
	return nil
}
