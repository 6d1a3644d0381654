package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/reeflabs/reef/internal/api"
	"github.com/reeflabs/reef/internal/config"
	"github.com/reeflabs/reef/internal/fetcher"
	"github.com/reeflabs/reef/internal/htmlproc"
	"github.com/reeflabs/reef/internal/logging"
	"github.com/reeflabs/reef/internal/pool"
	"github.com/reeflabs/reef/internal/worker"
)

var servePort int

// serveCmd starts only the Control API against the configured stores,
// without starting any workers — for operating the API and the crawl pool
// as separately scaled processes sharing one queue/content store.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Control API without a local worker pool",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Control API port")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
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

	c, err := buildContentStore(cfg)
	if err != nil {
		return fmt.Errorf("content store unavailable: %w", err)
	}

	// A pool is still constructed so /workers/start can spin up local
	// workers on demand, but Start is never called here.
	f := fetcher.New(cfg.FetchTimeout, "reef-crawler/0.1", fetcher.Options{
		PerHostDelay: cfg.PerHostDelay,
		MaxBodyBytes: cfg.ResponseBodyCap,
		HTTPProxy:    cfg.HTTPProxy,
		HTTPSProxy:   cfg.HTTPSProxy,
	})
	proc := htmlproc.NewProcessor(cfg.HTMLCap, cfg.TextCap)
	workerCfg := worker.Config{
		MaxRetries:           2,
		LinksPerPage:         cfg.LinksPerPageCap,
		RingBufferSize:       cfg.RingBufferSize,
		ConsecutiveFailLimit: cfg.ConsecutiveFailLimit,
		CircuitCooldown:      cfg.CircuitCooldown,
		IdlePollInterval:     cfg.IdlePollInterval,
	}
	p := pool.New(workerCfg, q, c, f, proc, cfg.DrainWindow)

	server := api.NewServer(q, c, p, logging.L)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", servePort),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logging.Info("starting control API", logging.F("port", servePort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("control API server failed", logging.F("error", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info("shutting down")
	p.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
