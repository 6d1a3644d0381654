// Package models holds the data-transfer types shared across the crawl
// pipeline: pages persisted to the content store, per-URL step timings,
// per-worker stats, and queue-length history points.
package models

import "time"

// Page is a content-store record, keyed by URL.
type Page struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	HTML      string    `json:"html"`
	ParentURL string    `json:"parent_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StepTiming is one entry in a worker's ring buffer of recent URL attempts.
type StepTiming struct {
	URL       string        `json:"url"`
	Timestamp time.Time     `json:"timestamp"`
	Fetch     time.Duration `json:"fetch"`
	Parse     time.Duration `json:"parse"`
	Save      time.Duration `json:"save"`
	AddLinks  time.Duration `json:"add_links"`
	Error     string        `json:"error,omitempty"`
	Total     time.Duration `json:"total_time"`
}

// WorkerStats summarizes one worker's recent attempts. ProcessedURLs and
// FailedURLs count only the entries currently held in its timing ring buffer
// (at most RingBufferSize), not lifetime totals.
type WorkerStats struct {
	ID            string       `json:"id"`
	ProcessedURLs int64        `json:"processed_urls"`
	FailedURLs    int64        `json:"failed_urls"`
	StartedAt     time.Time    `json:"started_at"`
	Alive         bool         `json:"alive"`
	RecentTimings []StepTiming `json:"step_timings_summary,omitempty"`
}

// HistoryPoint is one sample of the queue-length time series.
type HistoryPoint struct {
	Timestamp time.Time `json:"timestamp"`
	QueueLen  int64     `json:"queue_length"`
}

// Metrics mirrors the well-known fields of the queue store's metrics hash.
type Metrics struct {
	CompletedURLs  int64  `json:"completed_urls"`
	FailedURLs     int64  `json:"failed_urls"`
	TotalURLs      int64  `json:"total_urls"`
	LastCrawledURL string `json:"last_crawled_url"`
	QueueLength    int64  `json:"queue_length"`
}
