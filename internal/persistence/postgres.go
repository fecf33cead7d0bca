package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/XSpiritWizardX/product-scraper/config"
	"github.com/XSpiritWizardX/product-scraper/internal/model"
	jsoniter "github.com/json-iterator/go"
	_ "github.com/lib/pq"
)

// PostgresHistory backs the ledger with a shared database so that scraper
// instances on several machines consult the same scrape history.
type PostgresHistory struct {
	db *sql.DB
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS scrape_history (
	id            TEXT PRIMARY KEY,
	site_url      TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	pages_scraped INTEGER NOT NULL,
	output_files  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scrape_history_site_url ON scrape_history(site_url);
`

func NewPostgresHistory(cfg *config.DatabaseConfig) (*PostgresHistory, error) {
	connStr := fmt.Sprintf("user=%s password=%s host=%s port=%s dbname=%s sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigration); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresHistory{db: db}, nil
}

func (p *PostgresHistory) Find(ctx context.Context, siteURL string) (*model.HistoryEntry, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, site_url, created_at, pages_scraped, output_files
		 FROM scrape_history WHERE site_url = $1 ORDER BY created_at DESC LIMIT 1`, siteURL)
	entry, err := pgScanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return entry, err
}

func (p *PostgresHistory) Append(ctx context.Context, entry *model.HistoryEntry) error {
	files, err := jsoniter.MarshalToString(entry.OutputFiles)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO scrape_history (id, site_url, created_at, pages_scraped, output_files)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.SiteURL, entry.Timestamp.UTC(), entry.PagesScraped, files)
	return err
}

func (p *PostgresHistory) All(ctx context.Context) ([]model.HistoryEntry, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, site_url, created_at, pages_scraped, output_files
		 FROM scrape_history ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.HistoryEntry
	for rows.Next() {
		entry, err := pgScanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func (p *PostgresHistory) Close() error {
	return p.db.Close()
}

func pgScanEntry(row rowScanner) (*model.HistoryEntry, error) {
	var entry model.HistoryEntry
	var createdAt time.Time
	var files string
	if err := row.Scan(&entry.ID, &entry.SiteURL, &createdAt, &entry.PagesScraped, &files); err != nil {
		return nil, err
	}
	entry.Timestamp = createdAt
	if err := jsoniter.UnmarshalFromString(files, &entry.OutputFiles); err != nil {
		return nil, err
	}
	return &entry, nil
}
