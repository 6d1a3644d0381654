package content

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/reeflabs/reef/pkg/models"
)

// MemoryStore is a mutex-guarded in-process Store for tests and
// single-node evaluation (CONTENT_STORE_KIND=memory).
type MemoryStore struct {
	mu    sync.Mutex
	pages map[string]models.Page
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pages: make(map[string]models.Page)}
}

func (m *MemoryStore) UpsertPage(_ context.Context, in UpsertInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	existing, ok := m.pages[in.URL]
	createdAt := now
	if ok {
		createdAt = existing.CreatedAt
	}

	m.pages[in.URL] = models.Page{
		URL:       in.URL,
		Title:     in.Title,
		Text:      in.Text,
		HTML:      in.HTML,
		ParentURL: in.ParentURL,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}
	return nil
}

func (m *MemoryStore) GetPage(_ context.Context, url string) (*models.Page, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages[url]
	if !ok {
		return nil, false, nil
	}
	return &p, true, nil
}

func (m *MemoryStore) ListPages(_ context.Context, offset, limit int) ([]models.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]models.Page, 0, len(m.pages))
	for _, p := range m.pages {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	if offset >= len(all) {
		return []models.Page{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *MemoryStore) CountPages(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.pages)), nil
}
