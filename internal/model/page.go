package model

import "time"

// ContentType labels a page for output-file routing. The set is open: the
// classifier may emit types beyond the ones declared here.
type ContentType string

const (
	TypeCourses   ContentType = "courses"
	TypeNotes     ContentType = "notes"
	TypeProducts  ContentType = "products"
	TypeBlogs     ContentType = "blogs"
	TypeArticles  ContentType = "articles"
	TypeDownloads ContentType = "downloads"
	TypeImages    ContentType = "images"
	TypeLinks     ContentType = "links"
	TypeOther     ContentType = "other"
)

// Field is one extracted name/value pair. Fields keep their insertion order
// because the first record of a type fixes the column order of its table.
type Field struct {
	Name  string
	Value string
}

// PageRecord is one classified, field-extracted snapshot of a crawled page.
// Immutable once built.
type PageRecord struct {
	URL    string
	Type   ContentType
	Fields []Field
}

type RenderResult struct {
	FullURL      string `json:"full_url"`
	FullHTML     string `json:"full_html,omitempty"`
	Title        string `json:"title"`
	TimeToRender int64  `json:"time_to_render"` // in milliseconds
	StatusCode   int    `json:"status_code"`
	Status       string `json:"status"`
	Mechanism    string `json:"mechanism"`
}

// HistoryEntry proves a site URL has been fully scraped. Entries are
// append-only; the ledger is never mutated by the scraper itself.
type HistoryEntry struct {
	ID           string    `json:"id"`
	SiteURL      string    `json:"site_url"`
	Timestamp    time.Time `json:"timestamp"`
	PagesScraped int       `json:"pages_scraped"`
	OutputFiles  []string  `json:"output_files"`
}

type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunSkipped   RunStatus = "skipped"
	RunFailed    RunStatus = "failed"
)

// RunResult summarizes one orchestrator run for a single site.
type RunResult struct {
	SiteURL      string
	Status       RunStatus
	PagesScraped int
	OutputFiles  []string
}
