package content

import (
	"context"
	"fmt"
	"time"

	supabase "github.com/supabase-community/supabase-go"

	"github.com/reeflabs/reef/internal/logging"
	"github.com/reeflabs/reef/pkg/models"
)

// pagesTable is the Postgres table backing the content store: url primary
// key, title, text_content, html_content, parent_url, created_at, updated_at.
const pagesTable = "pages"

// SupabaseStore is the production Content Store backend.
type SupabaseStore struct {
	client *supabase.Client
}

// NewSupabaseStore builds a client against projectURL using the service
// role key, which bypasses row-level security for the crawler's own writes.
func NewSupabaseStore(projectURL, serviceKey string) (*SupabaseStore, error) {
	client, err := supabase.NewClient(projectURL, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}
	return &SupabaseStore{client: client}, nil
}

// pageRow is the wire shape of a row in the pages table.
type pageRow struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	TextContent string `json:"text_content"`
	HTMLContent string `json:"html_content"`
	ParentURL   string `json:"parent_url,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// UpsertPage writes or replaces a row by url. Postgres's ON CONFLICT (url)
// DO UPDATE, driven through the Upsert call's onConflict column, leaves
// created_at's column default untouched on the conflict path so it is
// preserved automatically across repeat crawls of the same URL.
func (s *SupabaseStore) UpsertPage(ctx context.Context, in UpsertInput) error {
	row := pageRow{
		URL:         in.URL,
		Title:       in.Title,
		TextContent: in.Text,
		HTMLContent: in.HTML,
		ParentURL:   in.ParentURL,
		UpdatedAt:   time.Now().UTC().Format(time.RFC3339),
	}

	var result []pageRow
	_, err := s.client.From(pagesTable).
		Upsert(row, "url", "", "").
		ExecuteTo(&result)
	if err != nil {
		logging.Error("content store upsert failed", logging.F("url", in.URL), logging.F("error", err))
		return fmt.Errorf("upsert page %s: %w", in.URL, err)
	}
	return nil
}

func (s *SupabaseStore) GetPage(ctx context.Context, url string) (*models.Page, bool, error) {
	var rows []pageRow
	_, err := s.client.From(pagesTable).
		Select("*", "", false).
		Eq("url", url).
		ExecuteTo(&rows)
	if err != nil {
		return nil, false, fmt.Errorf("get page %s: %w", url, err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	p := rowToPage(rows[0])
	return &p, true, nil
}

func (s *SupabaseStore) ListPages(ctx context.Context, offset, limit int) ([]models.Page, error) {
	var rows []pageRow
	_, err := s.client.From(pagesTable).
		Select("*", "", false).
		Order("created_at", nil).
		Range(offset, offset+limit-1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	out := make([]models.Page, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToPage(r))
	}
	return out, nil
}

func (s *SupabaseStore) CountPages(ctx context.Context) (int64, error) {
	var rows []pageRow
	count, err := s.client.From(pagesTable).
		Select("url", "exact", true).
		ExecuteTo(&rows)
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return int64(count), nil
}

func rowToPage(r pageRow) models.Page {
	p := models.Page{
		URL:       r.URL,
		Title:     r.Title,
		Text:      r.TextContent,
		HTML:      r.HTMLContent,
		ParentURL: r.ParentURL,
	}
	if t, err := time.Parse(time.RFC3339, r.CreatedAt); err == nil {
		p.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, r.UpdatedAt); err == nil {
		p.UpdatedAt = t
	}
	return p
}
