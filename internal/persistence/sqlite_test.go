package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XSpiritWizardX/product-scraper/internal/model"
)

func newTestHistory(t *testing.T) *SQLiteHistory {
	t.Helper()
	store, err := NewSQLiteHistory(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestFindReturnsNilWhenNeverScraped(t *testing.T) {
	store := newTestHistory(t)

	entry, err := store.Find(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestAppendThenFind(t *testing.T) {
	store := newTestHistory(t)
	ctx := context.Background()

	in := &model.HistoryEntry{
		ID:           uuid.NewString(),
		SiteURL:      "https://example.com",
		Timestamp:    time.Now().UTC().Truncate(time.Millisecond),
		PagesScraped: 12,
		OutputFiles:  []string{"data/example.com/products.csv", "data/example.com/all_urls.txt"},
	}
	require.NoError(t, store.Append(ctx, in))

	got, err := store.Find(ctx, "https://example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, in.ID, got.ID)
	assert.Equal(t, in.SiteURL, got.SiteURL)
	assert.True(t, in.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, in.PagesScraped, got.PagesScraped)
	assert.Equal(t, in.OutputFiles, got.OutputFiles)
}

func TestFindReturnsMostRecentEntry(t *testing.T) {
	store := newTestHistory(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, pages := range []int{3, 7, 11} {
		require.NoError(t, store.Append(ctx, &model.HistoryEntry{
			ID:           uuid.NewString(),
			SiteURL:      "https://example.com",
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
			PagesScraped: pages,
		}))
	}

	got, err := store.Find(ctx, "https://example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 11, got.PagesScraped)
}

func TestFindOrdersSubsecondEntriesCorrectly(t *testing.T) {
	store := newTestHistory(t)
	ctx := context.Background()

	// 100ms vs 150ms within the same second: a trimmed fractional part
	// would sort ".1Z" after ".15Z" and return the older entry.
	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	older := base.Add(100 * time.Millisecond)
	newer := base.Add(150 * time.Millisecond)

	require.NoError(t, store.Append(ctx, &model.HistoryEntry{
		ID: uuid.NewString(), SiteURL: "https://example.com",
		Timestamp: older, PagesScraped: 1,
	}))
	require.NoError(t, store.Append(ctx, &model.HistoryEntry{
		ID: uuid.NewString(), SiteURL: "https://example.com",
		Timestamp: newer, PagesScraped: 2,
	}))

	got, err := store.Find(ctx, "https://example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.PagesScraped)
	assert.True(t, newer.Equal(got.Timestamp))

	entries, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].PagesScraped)
	assert.Equal(t, 2, entries[1].PagesScraped)
}

func TestFindIsScopedToSite(t *testing.T) {
	store := newTestHistory(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, &model.HistoryEntry{
		ID:        uuid.NewString(),
		SiteURL:   "https://a.example.com",
		Timestamp: time.Now().UTC(),
	}))

	got, err := store.Find(ctx, "https://b.example.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAllReturnsEntriesInChronologicalOrder(t *testing.T) {
	store := newTestHistory(t)
	ctx := context.Background()
	base := time.Now().UTC()

	sites := []string{"https://b.com", "https://a.com", "https://c.com"}
	for i, site := range sites {
		require.NoError(t, store.Append(ctx, &model.HistoryEntry{
			ID:        uuid.NewString(),
			SiteURL:   site,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}

	entries, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, site := range sites {
		assert.Equal(t, site, entries[i].SiteURL)
	}
}

func TestLedgerSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")
	ctx := context.Background()

	store, err := NewSQLiteHistory(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, &model.HistoryEntry{
		ID:           uuid.NewString(),
		SiteURL:      "https://example.com",
		Timestamp:    time.Now().UTC(),
		PagesScraped: 4,
	}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteHistory(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Find(ctx, "https://example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 4, got.PagesScraped)
}
