// Package content implements the Content Store adapter contract:
// upsert-by-URL page records, with created_at preserved and updated_at
// refreshed on replace.
package content

import (
	"context"

	"github.com/reeflabs/reef/pkg/models"
)

// UpsertInput is the writable subset of a Page; URL is the primary key.
type UpsertInput struct {
	URL       string
	Title     string
	Text      string
	HTML      string
	ParentURL string
}

// Store is the adapter contract every backend (Supabase/Postgres,
// in-memory) satisfies. Two identical upserts must be equivalent to one;
// no partial writes are ever visible to readers.
type Store interface {
	UpsertPage(ctx context.Context, in UpsertInput) error
	GetPage(ctx context.Context, url string) (*models.Page, bool, error)
	ListPages(ctx context.Context, offset, limit int) ([]models.Page, error)
	CountPages(ctx context.Context) (int64, error)
}
