package pool

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
	"github.com/reeflabs/reef/internal/worker"
)

func testWorkerConfig() worker.Config {
	cfg := worker.DefaultConfig()
	cfg.IdlePollInterval = 5 * time.Millisecond
	cfg.CircuitCooldown = 20 * time.Millisecond
	return cfg
}

func TestStartIsIdempotent(t *testing.T) {
	q := queue.NewMemoryStore()
	c := content.NewMemoryStore()
	f := fetcher.New(5*time.Second, "reef-test", fetcher.Options{})
	p := New(testWorkerConfig(), q, c, f, htmlproc.NewProcessor(0, 0), time.Second)

	p.Start(2)
	p.Start(3)
	defer p.Stop()

	stats := p.Stats(context.Background())
	assert.Len(t, stats, 2, "expected the second Start to be a no-op")
}

func TestStopIsIdempotentAndDrainsWithinWindow(t *testing.T) {
	q := queue.NewMemoryStore()
	c := content.NewMemoryStore()
	f := fetcher.New(5*time.Second, "reef-test", fetcher.Options{})
	p := New(testWorkerConfig(), q, c, f, htmlproc.NewProcessor(0, 0), time.Second)

	p.Start(2)

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return within the drain window")
	}

	assert.False(t, p.Running(), "expected pool to report stopped after Stop")

	// Second Stop must be a no-op, not a hang.
	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("second Stop should be a no-op")
	}
}

func TestAddWorkerWhileRunning(t *testing.T) {
	q := queue.NewMemoryStore()
	c := content.NewMemoryStore()
	f := fetcher.New(5*time.Second, "reef-test", fetcher.Options{})
	p := New(testWorkerConfig(), q, c, f, htmlproc.NewProcessor(0, 0), time.Second)

	p.Start(1)
	defer p.Stop()

	id := p.AddWorker()
	require.NotEmpty(t, id, "expected a new worker id")

	stats := p.Stats(context.Background())
	assert.Len(t, stats, 2, "expected 2 workers after AddWorker")
}

func TestAddWorkerWhileStoppedIsNoop(t *testing.T) {
	q := queue.NewMemoryStore()
	c := content.NewMemoryStore()
	f := fetcher.New(5*time.Second, "reef-test", fetcher.Options{})
	p := New(testWorkerConfig(), q, c, f, htmlproc.NewProcessor(0, 0), time.Second)

	assert.Empty(t, p.AddWorker(), "expected no-op on stopped pool")
}

func TestRemoveWorker(t *testing.T) {
	q := queue.NewMemoryStore()
	c := content.NewMemoryStore()
	f := fetcher.New(5*time.Second, "reef-test", fetcher.Options{})
	p := New(testWorkerConfig(), q, c, f, htmlproc.NewProcessor(0, 0), time.Second)

	p.Start(2)
	defer p.Stop()

	stats := p.Stats(context.Background())
	var anyID string
	for id := range stats {
		anyID = id
		break
	}

	require.NoError(t, p.RemoveWorker(anyID))

	stats = p.Stats(context.Background())
	assert.Len(t, stats, 1)
}

func TestRemoveWorkerUnknownIDErrors(t *testing.T) {
	q := queue.NewMemoryStore()
	c := content.NewMemoryStore()
	f := fetcher.New(5*time.Second, "reef-test", fetcher.Options{})
	p := New(testWorkerConfig(), q, c, f, htmlproc.NewProcessor(0, 0), time.Second)

	assert.Error(t, p.RemoveWorker("worker_999"), "expected error removing an unknown worker id")
}

func TestShutdownDrainScenario(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/html")
		rw.Write([]byte(`<html><head><title>P</title></head><body>enough text content here to count</body></html>`))
	}))
	defer srv.Close()

	q := queue.NewMemoryStore()
	c := content.NewMemoryStore()
	f := fetcher.New(5*time.Second, "reef-test", fetcher.Options{})
	p := New(testWorkerConfig(), q, c, f, htmlproc.NewProcessor(0, 0), 5*time.Second)

	for i := 0; i < 20; i++ {
		q.Enqueue(context.Background(), srv.URL+"/p"+string(rune('a'+i)))
	}

	p.Start(3)
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	p.Stop()
	assert.LessOrEqual(t, time.Since(start), 5*time.Second, "shutdown exceeded the drain window")
}
