package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reeflabs/reef/internal/config"
	"github.com/reeflabs/reef/internal/logging"
)

// statsCmd prints the queue store's metrics hash and approximate length as
// JSON, for operational scripting against a running deployment's backing
// store (no HTTP round-trip required).
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print queue statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
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

	ctx := context.Background()
	length, err := q.ApproxLength(ctx)
	if err != nil {
		return fmt.Errorf("failed to read queue length: %w", err)
	}
	all, err := q.MetricsGetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to read metrics: %w", err)
	}

	out := map[string]interface{}{
		"queued_urls": length,
		"metrics":     all,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
