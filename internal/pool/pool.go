// Package pool supervises named worker identities: start, stop, add_worker,
// remove_worker, and stats, all idempotent, with a bounded cooperative
// drain on stop. Built around context.WithCancel and sync.WaitGroup, with
// long-lived worker identities rather than a one-shot crawl run.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/reeflabs/reef/internal/content"
	"github.com/reeflabs/reef/internal/fetcher"
	"github.com/reeflabs/reef/internal/htmlproc"
	"github.com/reeflabs/reef/internal/logging"
	"github.com/reeflabs/reef/internal/queue"
	"github.com/reeflabs/reef/internal/worker"
	"github.com/reeflabs/reef/pkg/models"
)

// entry tracks one running worker identity.
type entry struct {
	w         *worker.Worker
	cancel    context.CancelFunc
	startedAt time.Time
	done      chan struct{}
}

// Pool supervises N named worker goroutines sharing one queue store,
// content store, and fetcher pool.
type Pool struct {
	cfg     worker.Config
	queue   queue.Store
	content content.Store
	fetch   *fetcher.Fetcher
	proc    *htmlproc.Processor
	drain   time.Duration

	mu      sync.Mutex
	workers map[string]*entry
	running bool
	nextID  int
}

// New builds a Pool. drainWindow bounds Stop's cooperative wait before it
// gives up on a worker and returns anyway. proc is shared read-only across
// every spawned worker.
func New(cfg worker.Config, q queue.Store, c content.Store, f *fetcher.Fetcher, proc *htmlproc.Processor, drainWindow time.Duration) *Pool {
	return &Pool{
		cfg:     cfg,
		queue:   q,
		content: c,
		fetch:   f,
		proc:    proc,
		drain:   drainWindow,
		workers: make(map[string]*entry),
	}
}

// Start spawns numWorkers worker identities. A no-op if already running.
func (p *Pool) Start(numWorkers int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	for i := 0; i < numWorkers; i++ {
		p.spawnLocked()
	}
}

// Stop signals every worker cooperatively and waits up to the drain window
// for them to exit. A no-op if already stopped.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	entries := make([]*entry, 0, len(p.workers))
	for _, e := range p.workers {
		e.cancel()
		entries = append(entries, e)
	}
	p.mu.Unlock()

	deadline := time.NewTimer(p.drain)
	defer deadline.Stop()
	for _, e := range entries {
		select {
		case <-e.done:
		case <-deadline.C:
			logging.Warn("worker did not exit within drain window")
			return
		}
	}
}

// AddWorker spawns one additional worker identity while the pool is running.
func (p *Pool) AddWorker() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return ""
	}
	return p.spawnLocked()
}

// RemoveWorker cancels and waits for a single named worker to exit.
func (p *Pool) RemoveWorker(id string) error {
	p.mu.Lock()
	e, ok := p.workers[id]
	if ok {
		delete(p.workers, id)
	}
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("no such worker: %s", id)
	}
	e.cancel()

	deadline := time.NewTimer(p.drain)
	defer deadline.Stop()
	select {
	case <-e.done:
	case <-deadline.C:
		logging.Warn("worker did not exit within drain window", logging.F("worker_id", id))
	}
	return nil
}

// Running reports whether the pool believes itself started.
func (p *Pool) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stats derives per-worker counters and recent timings from each worker's
// timing ring buffer in the shared queue store; the counts cover only the
// entries still in the buffer.
func (p *Pool) Stats(ctx context.Context) map[string]models.WorkerStats {
	p.mu.Lock()
	ids := make([]string, 0, len(p.workers))
	started := make(map[string]time.Time, len(p.workers))
	alive := make(map[string]bool, len(p.workers))
	for id, e := range p.workers {
		ids = append(ids, id)
		started[id] = e.startedAt
		select {
		case <-e.done:
			alive[id] = false
		default:
			alive[id] = true
		}
	}
	p.mu.Unlock()

	out := make(map[string]models.WorkerStats, len(ids))
	for _, id := range ids {
		timings, err := p.queue.TimingRange(ctx, id, p.cfg.RingBufferSize)
		if err != nil {
			logging.Warn("failed to read worker timings", logging.F("worker_id", id), logging.F("error", err))
		}
		var processed, failed int64
		for _, t := range timings {
			if t.Error != "" {
				failed++
			} else {
				processed++
			}
		}
		out[id] = models.WorkerStats{
			ID:            id,
			ProcessedURLs: processed,
			FailedURLs:    failed,
			StartedAt:     started[id],
			Alive:         alive[id],
			RecentTimings: timings,
		}
	}
	return out
}

// spawnLocked must be called with p.mu held.
func (p *Pool) spawnLocked() string {
	id := fmt.Sprintf("worker_%d", p.nextID)
	p.nextID++

	ctx, cancel := context.WithCancel(context.Background())
	w := worker.New(id, p.cfg, p.queue, p.content, p.fetch, p.proc)
	e := &entry{w: w, cancel: cancel, startedAt: time.Now(), done: make(chan struct{})}
	p.workers[id] = e

	go func() {
		defer close(e.done)
		w.Run(ctx)
	}()

	return id
}
