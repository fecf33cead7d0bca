package classify

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XSpiritWizardX/product-scraper/internal/model"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestClassifyKeywordMarkers(t *testing.T) {
	tests := []struct {
		name string
		url  string
		html string
		text string
		want model.ContentType
	}{
		{"course in url", "https://example.com/courses/go-101", "<html></html>", "welcome", model.TypeCourses},
		{"course in text", "https://example.com/p1", "<html></html>", "an online course about bread", model.TypeCourses},
		{"note marker", "https://example.com/notes/week-1", "<html></html>", "", model.TypeNotes},
		{"product in url", "https://example.com/products/knife", "<html></html>", "", model.TypeProducts},
		{"add to cart button", "https://example.com/item/7", `<button>Add to Cart</button>`, "", model.TypeProducts},
		{"add-to-cart class", "https://example.com/item/8", `<a class="add-to-cart">buy</a>`, "", model.TypeProducts},
		{"blog marker", "https://example.com/blog/hello", "<html></html>", "", model.TypeBlogs},
		{"post path", "https://example.com/posts/2024", "<html></html>", "", model.TypeBlogs},
		{"article marker", "https://example.com/article/42", "<html></html>", "", model.TypeArticles},
		{"download marker", "https://example.com/downloads", "<html></html>", "", model.TypeDownloads},
		{"resource marker", "https://example.com/p", "<html></html>", "free resource library", model.TypeDownloads},
		{"no marker at all", "https://example.com/about", "<html></html>", "who we are", model.TypeOther},
	}
	c := New()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Classify(tc.url, tc.html, tc.text, mustDoc(t, tc.html))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestClassifyImageGallery(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 8; i++ {
		b.WriteString(`<img src="/p.png">`)
	}
	html := b.String()

	c := New()
	got := c.Classify("https://example.com/gallery", html, "short caption", mustDoc(t, html))
	assert.Equal(t, model.TypeImages, got)
}

func TestClassifyGalleryNeedsLowTextVolume(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 8; i++ {
		b.WriteString(`<img src="/p.png">`)
	}
	html := b.String()
	longText := strings.Repeat("word ", 100)

	c := New()
	got := c.Classify("https://example.com/gallery", html, longText, mustDoc(t, html))
	assert.Equal(t, model.TypeOther, got, "text-heavy pages are not galleries")
}

func TestClassifyLinkHub(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 15; i++ {
		b.WriteString(`<a href="/x">x</a>`)
	}
	html := b.String()

	c := New()
	got := c.Classify("https://example.com/sitemap", html, "", mustDoc(t, html))
	assert.Equal(t, model.TypeLinks, got)
}

func TestClassifyKeywordBeatsStructure(t *testing.T) {
	// A product listing full of anchors must stay a product page.
	var b strings.Builder
	for i := 0; i < 20; i++ {
		b.WriteString(`<a href="/x">x</a>`)
	}
	html := b.String()

	c := New()
	got := c.Classify("https://example.com/products", html, "", mustDoc(t, html))
	assert.Equal(t, model.TypeProducts, got)
}

func TestClassifyFirstRuleWins(t *testing.T) {
	c := New()
	got := c.Classify("https://example.com/courses/blog-writing", "<html></html>", "", mustDoc(t, "<html></html>"))
	assert.Equal(t, model.TypeCourses, got, "course outranks blog in the default order")
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := New()
	url := "https://example.com/mixed"
	html := `<a href="/x">download</a><p>blog article about products</p>`
	text := "download blog article products"

	first := c.Classify(url, html, text, mustDoc(t, html))
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, c.Classify(url, html, text, mustDoc(t, html)))
	}
}

func TestClassifyExtraRulesTakePriority(t *testing.T) {
	recipes := model.ContentType("recipes")
	c := New(Rule{Type: recipes, Match: func(p *Page) bool { return p.HasKeyword("recipe") }})

	got := c.Classify("https://example.com/recipes/soup", "<html></html>", "", mustDoc(t, "<html></html>"))
	assert.Equal(t, recipes, got)

	// Default rules still apply when no extra rule matches.
	got = c.Classify("https://example.com/blog/x", "<html></html>", "", mustDoc(t, "<html></html>"))
	assert.Equal(t, model.TypeBlogs, got)
}

func TestClassifyNilDocIsSafe(t *testing.T) {
	c := New()
	got := c.Classify("https://example.com/x", "", "", nil)
	assert.Equal(t, model.TypeOther, got)
}
