package persistence

import (
	"encoding/csv"
	"fmt"
	netUrl "net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/XSpiritWizardX/product-scraper/internal"
)

const (
	pageTextDir      = "page_texts"
	maxPageTextChars = 20000
)

// FileWriter persists flushed tables and the raw URL export under
// <dataDir>/<host>/. Every write is a full overwrite, so a force rescrape
// replaces prior output instead of merging into it.
type FileWriter struct {
	dataDir string
}

func NewFileWriter(dataDir string) *FileWriter {
	return &FileWriter{dataDir: dataDir}
}

// WriteTable writes one CSV named <table>.csv for the site and returns its
// path. Header row first, then one line per row in append order.
func (w *FileWriter) WriteTable(siteURL, table string, columns []string, rows [][]string) (string, error) {
	dir, err := w.siteDir(siteURL)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, table+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(columns); err != nil {
		return "", err
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return "", err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", err
	}
	return path, nil
}

// WriteURLList writes the deduplicated discovered URLs, one per line in
// discovery order, and returns the file path.
func (w *FileWriter) WriteURLList(siteURL string, urls []string) (string, error) {
	dir, err := w.siteDir(siteURL)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "all_urls.txt")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	for _, u := range urls {
		if _, err := fmt.Fprintln(f, u); err != nil {
			return "", err
		}
	}
	return path, nil
}

// WriteList writes unique values one per line, sorted, and returns the file
// path. Nothing is written for an empty list and the path comes back empty.
func (w *FileWriter) WriteList(siteURL, name string, values []string) (string, error) {
	if len(values) == 0 {
		return "", nil
	}
	dir, err := w.siteDir(siteURL)
	if err != nil {
		return "", err
	}
	sorted := make([]string, len(values))
	copy(sorted, values)
	sort.Strings(sorted)

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	for _, v := range sorted {
		if _, err := fmt.Fprintln(f, v); err != nil {
			return "", err
		}
	}
	return path, nil
}

// PageTextPath maps a page URL to the relative path of its text file under
// the site output dir: the URL path with the extension replaced by .txt,
// "index" for directory URLs, and a short query hash so distinct query
// variants do not collide. Empty for unparsable URLs.
func PageTextPath(pageURL string) string {
	u, err := netUrl.Parse(pageURL)
	if err != nil {
		return ""
	}
	p := u.Path
	if p == "" || strings.HasSuffix(p, "/") {
		p += "index"
	}
	rel := path.Clean(strings.TrimPrefix(p, "/"))
	if rel == "" || rel == "." {
		rel = "index"
	}
	rel = strings.ReplaceAll(rel, "..", "__")
	rel = strings.TrimSuffix(rel, path.Ext(rel))
	if u.RawQuery != "" {
		rel += "_" + internal.HashURL(u.RawQuery)[:8]
	}
	return path.Join(pageTextDir, rel+".txt")
}

// WritePageText stores one page's visible text at relPath (as produced by
// PageTextPath), capped at maxPageTextChars, and returns the full path.
func (w *FileWriter) WritePageText(siteURL, relPath, text string) (string, error) {
	if relPath == "" || text == "" {
		return "", nil
	}
	dir, err := w.siteDir(siteURL)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(dir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", err
	}
	if runes := []rune(text); len(runes) > maxPageTextChars {
		text = string(runes[:maxPageTextChars])
	}
	if err := os.WriteFile(fullPath, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", fullPath, err)
	}
	return fullPath, nil
}

func (w *FileWriter) siteDir(siteURL string) (string, error) {
	u, err := netUrl.Parse(siteURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("bad site url %q", siteURL)
	}
	dir := filepath.Join(w.dataDir, u.Host)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}
