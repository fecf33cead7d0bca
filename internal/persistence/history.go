package persistence

import (
	"context"

	"github.com/XSpiritWizardX/product-scraper/internal/model"
)

// HistoryStorage is the durable scrape ledger. Entries are append-only: the
// scraper never updates or deletes them, so a crash mid-run leaves prior
// history intact.
type HistoryStorage interface {
	// Find returns the most recent entry for the exact site URL, or nil
	// when the site has never been scraped.
	Find(ctx context.Context, siteURL string) (*model.HistoryEntry, error)
	Append(ctx context.Context, entry *model.HistoryEntry) error
	All(ctx context.Context) ([]model.HistoryEntry, error)
	Close() error
}
