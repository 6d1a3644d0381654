package queue

import (
	"container/list"
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/reeflabs/reef/internal/urlpolicy"
	"github.com/reeflabs/reef/pkg/models"
)

// MemoryStore is a mutex-guarded in-process Store, used by unit tests and by
// single-node evaluation runs (QUEUE_STORE_KIND=memory). It honors the same
// atomicity and 24h-visited-TTL invariants as RedisStore so worker/pool
// tests exercise real semantics without a Redis dependency.
type MemoryStore struct {
	mu sync.Mutex

	pending  *list.List         // FIFO of raw URL strings
	inQueue  map[string]bool    // dedup key -> present in pending
	visited  map[string]time.Time // dedup key -> expiry
	counter  int64
	metrics  map[string]string
	timings  map[string][]models.StepTiming
	history  []models.HistoryPoint

	visitedTTL time.Duration
}

// NewMemoryStore builds an empty MemoryStore with the default 24h visited
// TTL.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pending:    list.New(),
		inQueue:    make(map[string]bool),
		visited:    make(map[string]time.Time),
		metrics:    make(map[string]string),
		timings:    make(map[string][]models.StepTiming),
		visitedTTL: 24 * time.Hour,
	}
}

func (m *MemoryStore) Enqueue(_ context.Context, rawURL string) (bool, error) {
	key, err := urlpolicy.Normalize(rawURL)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepVisitedLocked()

	if exp, ok := m.visited[key]; ok && time.Now().Before(exp) {
		return false, nil
	}
	if m.inQueue[key] {
		return false, nil
	}

	m.pending.PushBack(rawURL)
	m.inQueue[key] = true
	m.counter++
	return true, nil
}

func (m *MemoryStore) Dequeue(_ context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	front := m.pending.Front()
	if front == nil {
		return "", false, nil
	}
	m.pending.Remove(front)

	rawURL := front.Value.(string)
	key, err := urlpolicy.Normalize(rawURL)
	if err != nil {
		// Still yield the URL to the worker; at-least-once delivery beats
		// dropping it over a normalization failure.
		m.counter--
		return rawURL, true, nil
	}

	delete(m.inQueue, key)
	m.visited[key] = time.Now().Add(m.visitedTTL)
	m.counter--
	return rawURL, true, nil
}

func (m *MemoryStore) ApproxLength(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counter, nil
}

func (m *MemoryStore) ResetLength(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter = int64(m.pending.Len())
	return m.counter, nil
}

func (m *MemoryStore) MetricsIncr(_ context.Context, field string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, _ := strconv.ParseInt(m.metrics[field], 10, 64)
	m.metrics[field] = strconv.FormatInt(cur+delta, 10)
	return nil
}

func (m *MemoryStore) MetricsSet(_ context.Context, field string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics[field] = value
	return nil
}

func (m *MemoryStore) MetricsGetAll(_ context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.metrics))
	for k, v := range m.metrics {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) TimingPush(_ context.Context, workerID string, rec models.StepTiming) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timings[workerID] = append([]models.StepTiming{rec}, m.timings[workerID]...)
	return nil
}

func (m *MemoryStore) TimingTrim(_ context.Context, workerID string, maxLen int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.timings[workerID]) > maxLen {
		m.timings[workerID] = m.timings[workerID][:maxLen]
	}
	return nil
}

func (m *MemoryStore) TimingRange(_ context.Context, workerID string, n int) ([]models.StepTiming, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.timings[workerID]
	if n > len(all) || n <= 0 {
		n = len(all)
	}
	out := make([]models.StepTiming, n)
	copy(out, all[:n])
	return out, nil
}

func (m *MemoryStore) HistoryRecord(_ context.Context, ts time.Time, queueLen int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, models.HistoryPoint{Timestamp: ts, QueueLen: queueLen})
	return nil
}

func (m *MemoryStore) HistoryRange(_ context.Context, from, to time.Time) ([]models.HistoryPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.HistoryPoint
	for _, p := range m.history {
		if !p.Timestamp.Before(from) && !p.Timestamp.After(to) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *MemoryStore) HistoryEvictOlderThan(_ context.Context, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.history[:0]
	for _, p := range m.history {
		if !p.Timestamp.Before(ts) {
			kept = append(kept, p)
		}
	}
	m.history = kept
	return nil
}

func (m *MemoryStore) Peek(_ context.Context, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for e := m.pending.Front(); e != nil && len(out) < limit; e = e.Next() {
		out = append(out, e.Value.(string))
	}
	return out, nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = list.New()
	m.inQueue = make(map[string]bool)
	m.visited = make(map[string]time.Time)
	m.counter = 0
	return nil
}

// sweepVisitedLocked drops expired visited entries. Callers must hold mu.
func (m *MemoryStore) sweepVisitedLocked() {
	now := time.Now()
	for k, exp := range m.visited {
		if now.After(exp) {
			delete(m.visited, k)
		}
	}
}
