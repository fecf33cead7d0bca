package persistence

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/XSpiritWizardX/product-scraper/internal/model"
	jsoniter "github.com/json-iterator/go"
	_ "modernc.org/sqlite"
)

// SQLiteHistory is the default single-node ledger backend: one file next to
// the scraped data, no server to run.
type SQLiteHistory struct {
	db *sql.DB
}

// Timestamps are stored as fixed-width strings (nanoseconds always padded,
// UTC only) so that ORDER BY created_at compares lexicographically in
// chronological order. RFC3339Nano would trim trailing zeros and break that
// for same-second entries.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS scrape_history (
	id            TEXT PRIMARY KEY,
	site_url      TEXT NOT NULL,
	created_at    DATETIME NOT NULL,
	pages_scraped INTEGER NOT NULL,
	output_files  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scrape_history_site_url ON scrape_history(site_url);
`

func NewSQLiteHistory(path string) (*SQLiteHistory, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, err
		}
	}
	if _, err := db.Exec(sqliteMigration); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteHistory{db: db}, nil
}

func (s *SQLiteHistory) Find(ctx context.Context, siteURL string) (*model.HistoryEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, site_url, created_at, pages_scraped, output_files
		 FROM scrape_history WHERE site_url = ? ORDER BY created_at DESC LIMIT 1`, siteURL)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return entry, err
}

func (s *SQLiteHistory) Append(ctx context.Context, entry *model.HistoryEntry) error {
	files, err := jsoniter.MarshalToString(entry.OutputFiles)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scrape_history (id, site_url, created_at, pages_scraped, output_files)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.SiteURL, entry.Timestamp.UTC().Format(sqliteTimeLayout),
		entry.PagesScraped, files)
	return err
}

func (s *SQLiteHistory) All(ctx context.Context) ([]model.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, site_url, created_at, pages_scraped, output_files
		 FROM scrape_history ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.HistoryEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func (s *SQLiteHistory) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*model.HistoryEntry, error) {
	var entry model.HistoryEntry
	var createdAt string
	var files string
	if err := row.Scan(&entry.ID, &entry.SiteURL, &createdAt, &entry.PagesScraped, &files); err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, err
	}
	entry.Timestamp = ts
	if err := jsoniter.UnmarshalFromString(files, &entry.OutputFiles); err != nil {
		return nil, err
	}
	return &entry, nil
}
