// Package metrics implements the background publisher: every minute it
// snapshots queue length into the history time series and evicts points
// older than 24h. It also mirrors queue length and the completed/failed
// fields of the queue store's metrics hash into Prometheus gauges (no
// per-worker metrics) as additive observability - the queue store's
// own hash remains the source of truth the Control API reads from.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/reeflabs/reef/internal/logging"
	"github.com/reeflabs/reef/internal/queue"
)

const (
	tickInterval = time.Minute
	historyWindow = 24 * time.Hour
)

var (
	queueLengthGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reef_queue_length",
		Help: "Approximate number of pending URLs in the queue store.",
	})
	completedURLsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reef_completed_urls_total",
		Help: "Total URLs successfully processed.",
	})
	failedURLsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reef_failed_urls_total",
		Help: "Total URLs that ended in a failure, across every failure kind.",
	})
)

func init() {
	prometheus.MustRegister(queueLengthGauge, completedURLsGauge, failedURLsGauge)
}

// Publisher owns no in-memory state between ticks; every read comes
// straight from the queue store.
type Publisher struct {
	queue queue.Store
}

// New builds a Publisher over the given queue store.
func New(q queue.Store) *Publisher {
	return &Publisher{queue: q}
}

// Run ticks every minute until ctx is cancelled. A failed tick is logged and
// retried on the next tick; no state carries over.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Publisher) tick(ctx context.Context) {
	now := time.Now()

	length, err := p.queue.ApproxLength(ctx)
	if err != nil {
		logging.Warn("metrics publisher failed to read queue length", logging.F("error", err))
		return
	}

	if err := p.queue.HistoryRecord(ctx, now, length); err != nil {
		logging.Warn("metrics publisher failed to record history point", logging.F("error", err))
		return
	}

	if err := p.queue.HistoryEvictOlderThan(ctx, now.Add(-historyWindow)); err != nil {
		logging.Warn("metrics publisher failed to evict stale history", logging.F("error", err))
		return
	}

	queueLengthGauge.Set(float64(length))
	p.syncCounters(ctx)
}

// syncCounters mirrors the queue store's metrics hash into the Prometheus
// gauges exposed at /metrics. Gauges (not counters) are used because the
// hash is an external source of truth that can be reset via /queue/clear.
func (p *Publisher) syncCounters(ctx context.Context) {
	all, err := p.queue.MetricsGetAll(ctx)
	if err != nil {
		logging.Warn("metrics publisher failed to read metrics hash", logging.F("error", err))
		return
	}
	if v, ok := all[queue.FieldCompletedURLs]; ok {
		if n, perr := strconv.ParseFloat(v, 64); perr == nil {
			completedURLsGauge.Set(n)
		}
	}
	if v, ok := all[queue.FieldFailedURLs]; ok {
		if n, perr := strconv.ParseFloat(v, 64); perr == nil {
			failedURLsGauge.Set(n)
		}
	}
}
