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
	"github.com/reeflabs/reef/internal/metrics"
	"github.com/reeflabs/reef/internal/pool"
	"github.com/reeflabs/reef/internal/worker"
)

var runPort int

// runCmd starts the full daemon: the worker pool, the background metrics
// publisher, and the Control API, all sharing one queue/content store pair.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the crawl pipeline and Control API",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().IntVar(&runPort, "port", 8080, "Control API port")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
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
	// Unreachable queue store at startup is fatal, not retried.
	if _, err := q.ApproxLength(context.Background()); err != nil {
		return fmt.Errorf("queue store unreachable: %w", err)
	}

	c, err := buildContentStore(cfg)
	if err != nil {
		return fmt.Errorf("content store unavailable: %w", err)
	}

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
	p.Start(cfg.NumWorkers)

	publisherCtx, cancelPublisher := context.WithCancel(context.Background())
	go metrics.New(q).Run(publisherCtx)

	server := api.NewServer(q, c, p, logging.L)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", runPort),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logging.Info("starting control API", logging.F("port", runPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("control API server failed", logging.F("error", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info("shutting down")
	cancelPublisher()
	p.Stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Error("control API did not shut down cleanly", logging.F("error", err))
	}

	logging.Info("shutdown complete")
	return nil
}
