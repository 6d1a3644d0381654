package cmd

import (
	"fmt"

	"github.com/reeflabs/reef/internal/config"
	"github.com/reeflabs/reef/internal/content"
	"github.com/reeflabs/reef/internal/queue"
)

// buildQueueStore selects the Queue Store backend named by cfg.QueueStoreKind.
func buildQueueStore(cfg *config.Config) (queue.Store, func() error, error) {
	switch cfg.QueueStoreKind {
	case config.StoreMemory:
		return queue.NewMemoryStore(), func() error { return nil }, nil
	case config.StoreRedis:
		rs := queue.NewRedisStore(cfg.RedisAddr, cfg.VisitedTTL)
		return rs, rs.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown queue store kind: %s", cfg.QueueStoreKind)
	}
}

// buildContentStore selects the Content Store backend named by cfg.ContentStoreKind.
func buildContentStore(cfg *config.Config) (content.Store, error) {
	switch cfg.ContentStoreKind {
	case config.StoreMemory:
		return content.NewMemoryStore(), nil
	case config.StoreSupabase:
		if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
			return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required for the supabase content store")
		}
		return content.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseServiceKey)
	default:
		return nil, fmt.Errorf("unknown content store kind: %s", cfg.ContentStoreKind)
	}
}
