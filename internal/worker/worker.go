// Package worker implements the per-URL crawl state machine:
// IDLE -> CLASSIFY -> FETCH -> PARSE -> PERSIST -> DISCOVER -> METRICS ->
// IDLE, with FAIL transitions and a consecutive-failure circuit breaker,
// built around the shared queue/content store adapters rather than an
// in-process channel and slice.
package worker

import (
	"context"
	"time"

	"github.com/reeflabs/reef/internal/content"
	"github.com/reeflabs/reef/internal/fetcher"
	"github.com/reeflabs/reef/internal/htmlproc"
	"github.com/reeflabs/reef/internal/logging"
	"github.com/reeflabs/reef/internal/queue"
	"github.com/reeflabs/reef/internal/urlpolicy"
	"github.com/reeflabs/reef/pkg/models"
)

// Failure classifies why a URL did not complete successfully. Only kinds
// that count against failed_urls are named here; input-invalid and
// skipped-non-HTML are handled inline.
type Failure int

const (
	FailureNone Failure = iota
	FailureTransientNetwork
	FailureHTTPNon2xx
	FailureParse
	FailureStore
)

func (f Failure) String() string {
	switch f {
	case FailureTransientNetwork:
		return "transient_network"
	case FailureHTTPNon2xx:
		return "http_non_2xx"
	case FailureParse:
		return "parse_failed"
	case FailureStore:
		return "store_failed"
	default:
		return "none"
	}
}

// Config holds the per-worker numeric knobs (all workers in a pool
// normally share one Config).
type Config struct {
	MaxRetries           int
	LinksPerPage         int
	RingBufferSize       int
	ConsecutiveFailLimit int
	CircuitCooldown      time.Duration
	IdlePollInterval     time.Duration
}

// DefaultConfig returns sane defaults for standalone use outside a pool.
func DefaultConfig() Config {
	return Config{
		MaxRetries:           2,
		LinksPerPage:         20,
		RingBufferSize:       50,
		ConsecutiveFailLimit: 5,
		CircuitCooldown:      30 * time.Second,
		IdlePollInterval:     1 * time.Second,
	}
}

// Worker owns no mutable state beyond its transient in-flight attempt and
// its consecutive-failure streak; every durable counter lives in the queue
// store.
type Worker struct {
	ID      string
	cfg     Config
	queue   queue.Store
	content content.Store
	fetch   *fetcher.Fetcher
	proc    *htmlproc.Processor

	consecutiveFails int
}

// New builds a worker bound to the shared queue and content stores, the
// given fetcher, and a shared HTML processor. Workers spawned by a pool all
// receive the pool's single Fetcher, so they share one connection pool.
func New(id string, cfg Config, q queue.Store, c content.Store, f *fetcher.Fetcher, proc *htmlproc.Processor) *Worker {
	return &Worker{ID: id, cfg: cfg, queue: q, content: c, fetch: f, proc: proc}
}

// Run loops until ctx is cancelled, processing one URL per iteration and
// checking cancellation between state-machine steps and at the loop head
// so shutdown never waits longer than one in-flight step.
func (w *Worker) Run(ctx context.Context) {
	logging.Info("worker starting", logging.F("worker_id", w.ID))
	for {
		select {
		case <-ctx.Done():
			logging.Info("worker stopping", logging.F("worker_id", w.ID))
			return
		default:
		}

		if w.consecutiveFails >= w.cfg.ConsecutiveFailLimit {
			logging.Warn("worker circuit open, cooling down",
				logging.F("worker_id", w.ID), logging.F("cooldown_s", int(w.cfg.CircuitCooldown.Seconds())))
			if !w.sleep(ctx, w.cfg.CircuitCooldown) {
				return
			}
			w.consecutiveFails = 0
		}

		processed, err := w.step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.Error("worker step error", logging.F("worker_id", w.ID), logging.F("error", err))
			continue
		}
		if !processed {
			if !w.sleep(ctx, w.cfg.IdlePollInterval) {
				return
			}
		}
	}
}

// step runs one IDLE -> ... -> IDLE cycle. Returns processed=false when the
// queue was empty (caller sleeps the idle interval).
func (w *Worker) step(ctx context.Context) (processed bool, err error) {
	rawURL, ok, err := w.queue.Dequeue(ctx)
	if err != nil && !ok {
		return false, err
	}
	if err != nil {
		// The URL was popped but could not be marked visited; it is still
		// processed (at-least-once).
		logging.Warn("dequeued url could not be marked visited",
			logging.F("worker_id", w.ID), logging.F("url", rawURL), logging.F("error", err))
	}
	if !ok {
		return false, nil
	}

	start := time.Now()
	timing := models.StepTiming{URL: rawURL, Timestamp: start}

	// CLASSIFY
	if !urlpolicy.Accept(rawURL) {
		// The dequeue step already marked the dedup key visited; nothing
		// further to do, and a CLASSIFY reject is not a failure.
		return true, nil
	}

	// FETCH. Cancellation does not abort an in-flight fetch: it completes or
	// times out, and cancellation is checked once it returns.
	fetchStart := time.Now()
	res, ferr := w.fetch.FetchWithRetry(context.WithoutCancel(ctx), rawURL, w.cfg.MaxRetries)
	timing.Fetch = time.Since(fetchStart)
	if ctx.Err() != nil {
		return true, ctx.Err()
	}
	if ferr != nil {
		var fe *fetcher.Error
		kind := fetcher.KindOther
		if e, okAs := ferr.(*fetcher.Error); okAs {
			fe = e
			kind = fe.Kind
		}
		if kind == fetcher.KindHTTP {
			w.recordFailure(ctx, FailureHTTPNon2xx, timing, ferr)
		} else {
			w.recordFailure(ctx, FailureTransientNetwork, timing, ferr)
		}
		return true, nil
	}
	if res.Skipped {
		// Skipped-non-HTML is not a failure; no page record is written and
		// the consecutive-failure streak is not advanced.
		w.consecutiveFails = 0
		return true, nil
	}

	// PARSE
	parseStart := time.Now()
	parsed := w.proc.Process(res.Body, rawURL)
	timing.Parse = time.Since(parseStart)
	if parsed.Failed {
		w.recordFailure(ctx, FailureParse, timing, nil)
		return true, nil
	}

	// PERSIST
	if ctx.Err() != nil {
		return true, ctx.Err()
	}
	saveStart := time.Now()
	perr := w.content.UpsertPage(ctx, content.UpsertInput{
		URL:   rawURL,
		Title: parsed.Title,
		Text:  parsed.Text,
		HTML:  string(res.Body),
	})
	timing.Save = time.Since(saveStart)
	if perr != nil {
		w.recordFailure(ctx, FailureStore, timing, perr)
		return true, nil
	}

	// DISCOVER
	discoverStart := time.Now()
	added := w.discover(ctx, parsed.Links)
	timing.AddLinks = time.Since(discoverStart)

	// METRICS
	timing.Total = time.Since(start)
	w.recordSuccess(ctx, rawURL, timing, added)

	return true, nil
}

// discover enqueues up to cfg.LinksPerPage of the page's link candidates.
func (w *Worker) discover(ctx context.Context, links []string) int {
	limit := w.cfg.LinksPerPage
	added := 0
	for _, link := range links {
		if added >= limit {
			break
		}
		accepted, err := w.queue.Enqueue(ctx, link)
		if err != nil {
			logging.Warn("failed to enqueue discovered link",
				logging.F("worker_id", w.ID), logging.F("url", link), logging.F("error", err))
			continue
		}
		if accepted {
			added++
			w.queue.MetricsIncr(ctx, queue.FieldTotalURLs, 1)
		}
	}
	return added
}

func (w *Worker) recordFailure(ctx context.Context, kind Failure, timing models.StepTiming, cause error) {
	w.consecutiveFails++
	timing.Total = time.Since(timing.Timestamp)
	if cause != nil {
		timing.Error = cause.Error()
	} else {
		timing.Error = kind.String()
	}

	w.queue.MetricsIncr(ctx, queue.FieldFailedURLs, 1)
	w.pushTiming(ctx, timing)

	logging.Error("url processing failed",
		logging.F("worker_id", w.ID), logging.F("url", timing.URL),
		logging.F("kind", kind.String()), logging.F("error", timing.Error))
}

func (w *Worker) recordSuccess(ctx context.Context, rawURL string, timing models.StepTiming, linksAdded int) {
	w.consecutiveFails = 0

	w.queue.MetricsIncr(ctx, queue.FieldCompletedURLs, 1)
	w.queue.MetricsSet(ctx, queue.FieldLastCrawledURL, rawURL)
	w.pushTiming(ctx, timing)

	logging.Info("url processed",
		logging.F("worker_id", w.ID), logging.F("url", rawURL), logging.F("links_added", linksAdded))
}

func (w *Worker) pushTiming(ctx context.Context, timing models.StepTiming) {
	if err := w.queue.TimingPush(ctx, w.ID, timing); err != nil {
		logging.Warn("failed to push step timing", logging.F("worker_id", w.ID), logging.F("error", err))
		return
	}
	if err := w.queue.TimingTrim(ctx, w.ID, w.cfg.RingBufferSize); err != nil {
		logging.Warn("failed to trim step timing buffer", logging.F("worker_id", w.ID), logging.F("error", err))
	}
}

// sleep waits d, returning false if ctx is cancelled first.
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
