package classify

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/XSpiritWizardX/product-scraper/internal/model"
)

// Page is the rendered input to classification. Lowercased copies are built
// once so every rule sees identical input.
type Page struct {
	URL  string
	HTML string
	Text string
	Doc  *goquery.Document

	urlLower  string
	htmlLower string
	textLower string
}

// Rule maps a page to a content type. Rules are evaluated in order and the
// first match wins, which keeps classification deterministic: the same page
// always routes to the same output table.
type Rule struct {
	Type  model.ContentType
	Match func(p *Page) bool
}

type Classifier struct {
	rules []Rule
}

// New builds a classifier from extra rules followed by the default ruleset.
// Extra rules take priority; the default fallback to TypeOther keeps the
// classifier total.
func New(extra ...Rule) *Classifier {
	return &Classifier{rules: append(extra, DefaultRules()...)}
}

// Classify returns exactly one content type for any input. Pure: no network,
// no I/O, no mutation of the document.
func (c *Classifier) Classify(url, html, text string, doc *goquery.Document) model.ContentType {
	p := &Page{
		URL:       url,
		HTML:      html,
		Text:      text,
		Doc:       doc,
		urlLower:  strings.ToLower(url),
		htmlLower: strings.ToLower(html),
		textLower: strings.ToLower(text),
	}
	for _, r := range c.rules {
		if r.Match(p) {
			return r.Type
		}
	}
	return model.TypeOther
}

// HasKeyword reports whether kw (lowercase) occurs in the URL, the visible
// text or the raw HTML.
func (p *Page) HasKeyword(kw string) bool {
	return strings.Contains(p.urlLower, kw) ||
		strings.Contains(p.textLower, kw) ||
		strings.Contains(p.htmlLower, kw)
}

// DefaultRules is the built-in heuristic set, most specific marker first.
// Structural rules (galleries, link hubs) come last so keyword pages are
// never shadowed by their own navigation.
func DefaultRules() []Rule {
	return []Rule{
		{model.TypeCourses, func(p *Page) bool { return p.HasKeyword("course") }},
		{model.TypeNotes, func(p *Page) bool { return p.HasKeyword("note") }},
		{model.TypeProducts, func(p *Page) bool {
			return p.HasKeyword("product") || p.HasKeyword("add to cart") || p.HasKeyword("add-to-cart")
		}},
		{model.TypeBlogs, func(p *Page) bool {
			return p.HasKeyword("blog") || strings.Contains(p.urlLower, "/post")
		}},
		{model.TypeArticles, func(p *Page) bool { return p.HasKeyword("article") }},
		{model.TypeDownloads, func(p *Page) bool {
			return p.HasKeyword("download") || p.HasKeyword("resource")
		}},
		{model.TypeImages, func(p *Page) bool {
			return p.Doc != nil && p.Doc.Find("img").Length() >= 8 && len(p.Text) < 400
		}},
		{model.TypeLinks, func(p *Page) bool {
			return p.Doc != nil && p.Doc.Find("a").Length() >= 15 && len(p.Text) < 400
		}},
	}
}
