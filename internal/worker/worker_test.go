package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reeflabs/reef/internal/content"
	"github.com/reeflabs/reef/internal/fetcher"
	"github.com/reeflabs/reef/internal/htmlproc"
	"github.com/reeflabs/reef/internal/queue"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.IdlePollInterval = 5 * time.Millisecond
	cfg.CircuitCooldown = 20 * time.Millisecond
	return cfg
}

func TestStepHappyPathPersistsPageAndDiscoversLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/html")
		if r.URL.Path == "/b" {
			rw.Write([]byte(`<html><head><title>B</title></head><body>second page with enough text here</body></html>`))
			return
		}
		rw.Write([]byte(`<html><head><title>A</title></head><body>first page with enough text here<a href="/b">b</a></body></html>`))
	}))
	defer srv.Close()

	q := queue.NewMemoryStore()
	c := content.NewMemoryStore()
	f := fetcher.New(5*time.Second, "reef-test", fetcher.Options{})
	w := New("worker_1", testConfig(), q, c, f, htmlproc.NewProcessor(0, 0))

	ctx := context.Background()
	_, err := q.Enqueue(ctx, srv.URL+"/a")
	require.NoError(t, err)

	processed, err := w.step(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	page, ok, err := c.GetPage(ctx, srv.URL+"/a")
	require.NoError(t, err)
	require.True(t, ok, "expected page persisted")
	assert.Equal(t, "A", page.Title)

	all, err := q.MetricsGetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", all[queue.FieldCompletedURLs])

	n, _ := q.ApproxLength(ctx)
	assert.EqualValues(t, 1, n, "expected discovered link enqueued")
}

func TestStepHTTPFailureIncrementsFailedURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	q := queue.NewMemoryStore()
	c := content.NewMemoryStore()
	f := fetcher.New(5*time.Second, "reef-test", fetcher.Options{})
	cfg := testConfig()
	cfg.MaxRetries = 0
	w := New("worker_1", cfg, q, c, f, htmlproc.NewProcessor(0, 0))

	ctx := context.Background()
	q.Enqueue(ctx, srv.URL+"/a")

	processed, err := w.step(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	all, err := q.MetricsGetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", all[queue.FieldFailedURLs])
	assert.Equal(t, 1, w.consecutiveFails)

	_, ok, _ := c.GetPage(ctx, srv.URL+"/a")
	assert.False(t, ok, "expected no page record for a failed fetch")
}

func TestStepNonHTMLIsSkippedNotFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/pdf")
		rw.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	q := queue.NewMemoryStore()
	c := content.NewMemoryStore()
	f := fetcher.New(5*time.Second, "reef-test", fetcher.Options{})
	w := New("worker_1", testConfig(), q, c, f, htmlproc.NewProcessor(0, 0))

	ctx := context.Background()
	q.Enqueue(ctx, srv.URL+"/a")

	processed, err := w.step(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	all, err := q.MetricsGetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all[queue.FieldFailedURLs], "expected failed_urls untouched")
}

func TestStepEmptyQueueReturnsNotProcessed(t *testing.T) {
	q := queue.NewMemoryStore()
	c := content.NewMemoryStore()
	f := fetcher.New(5*time.Second, "reef-test", fetcher.Options{})
	w := New("worker_1", testConfig(), q, c, f, htmlproc.NewProcessor(0, 0))

	processed, err := w.step(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestRunStopsWithinContextCancellation(t *testing.T) {
	q := queue.NewMemoryStore()
	c := content.NewMemoryStore()
	f := fetcher.New(5*time.Second, "reef-test", fetcher.Options{})
	w := New("worker_1", testConfig(), q, c, f, htmlproc.NewProcessor(0, 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}

func TestCircuitOpensAfterConsecutiveFailureLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	q := queue.NewMemoryStore()
	c := content.NewMemoryStore()
	f := fetcher.New(5*time.Second, "reef-test", fetcher.Options{})
	cfg := testConfig()
	cfg.MaxRetries = 0
	cfg.ConsecutiveFailLimit = 3
	w := New("worker_1", cfg, q, c, f, htmlproc.NewProcessor(0, 0))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		q.Enqueue(ctx, srv.URL+"/"+string(rune('a'+i)))
	}
	for i := 0; i < 3; i++ {
		_, err := w.step(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, w.consecutiveFails, "expected circuit to be primed at 3 consecutive fails")
}
