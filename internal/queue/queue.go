// Package queue implements the Queue Store adapter contract: the shared
// FIFO of pending URLs, the 24h visited dedup index, the approximate-length
// counter, the metrics hash, per-worker timing ring buffers, and the
// queue-length history time series.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/reeflabs/reef/pkg/models"
)

// ErrUnavailable wraps a backend failure after the caller's retry budget is
// exhausted.
var ErrUnavailable = errors.New("queue store unavailable")

// Store is the adapter contract every backend (Redis, in-memory) satisfies.
// All operations may fail transiently. Retry offers bounded backoff that
// ends in an ErrUnavailable-wrapped error; the worker, the Control API and
// the metrics publisher call Store methods directly, without Retry.
type Store interface {
	// Enqueue pushes url onto the FIFO iff its dedup key is not visited and
	// not already pending. Returns true if accepted.
	Enqueue(ctx context.Context, url string) (bool, error)

	// Dequeue pops the oldest URL, atomically marks its dedup key visited
	// with a 24h TTL, and decrements the counter. Returns ("", false, nil)
	// on an empty queue.
	Dequeue(ctx context.Context) (url string, ok bool, err error)

	// ApproxLength is an O(1) read of the queue counter.
	ApproxLength(ctx context.Context) (int64, error)

	// ResetLength recomputes the counter by scanning the queue, for
	// reconciling drift after a crash or partial failure.
	ResetLength(ctx context.Context) (int64, error)

	MetricsIncr(ctx context.Context, field string, delta int64) error
	MetricsSet(ctx context.Context, field string, value string) error
	MetricsGetAll(ctx context.Context) (map[string]string, error)

	TimingPush(ctx context.Context, workerID string, rec models.StepTiming) error
	TimingTrim(ctx context.Context, workerID string, maxLen int) error
	TimingRange(ctx context.Context, workerID string, n int) ([]models.StepTiming, error)

	HistoryRecord(ctx context.Context, ts time.Time, queueLen int64) error
	HistoryRange(ctx context.Context, from, to time.Time) ([]models.HistoryPoint, error)
	HistoryEvictOlderThan(ctx context.Context, ts time.Time) error

	// Peek returns up to limit URLs from the head of the queue without
	// consuming them, for the /queue/pending control-API endpoint.
	Peek(ctx context.Context, limit int) ([]string, error)

	// Clear drops the pending queue, the visited set, and the counter.
	Clear(ctx context.Context) error
}

// Well-known metrics-hash fields.
const (
	FieldCompletedURLs  = "completed_urls"
	FieldFailedURLs     = "failed_urls"
	FieldTotalURLs      = "total_urls"
	FieldLastCrawledURL = "last_crawled_url"
	FieldQueueLength    = "queue_length"
)

// Retry runs op up to attempts times with exponential backoff, returning the
// last error wrapped in ErrUnavailable if every attempt fails. No caller in
// this module uses it: store errors reach callers after one attempt.
func Retry(ctx context.Context, attempts int, base time.Duration, op func() error) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			wait := base * time.Duration(1<<uint(i-1))
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if lastErr = op(); lastErr == nil {
			return nil
		}
	}
	return errors.Join(ErrUnavailable, lastErr)
}
