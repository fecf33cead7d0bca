package extract

import (
	netUrl "net/url"
	"path"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/XSpiritWizardX/product-scraper/internal/model"
)

const textExcerptChars = 500

// downloadExtensions marks anchor targets that point at files rather than
// pages. Kept for the download inventory; bodies are never fetched.
var downloadExtensions = map[string]struct{}{
	".pdf": {}, ".zip": {}, ".rar": {}, ".7z": {}, ".tar": {}, ".gz": {},
	".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".ppt": {}, ".pptx": {},
	".csv": {}, ".txt": {}, ".rtf": {}, ".json": {}, ".xml": {},
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {}, ".webp": {},
	".mp3": {}, ".wav": {}, ".m4a": {}, ".mp4": {}, ".mov": {}, ".avi": {}, ".mkv": {},
}

var skipSchemes = []string{"mailto:", "tel:", "javascript:", "data:"}

// PageData is everything pulled out of one rendered page.
type PageData struct {
	Fields       []model.Field // ordered; feeds the per-type table
	LinkRows     [][]model.Field
	ImageRows    [][]model.Field
	DownloadRows [][]model.Field
	Links        []string // absolute hrefs, deduped, for frontier offering
	Text         string   // visible text, whitespace-collapsed
}

func Parse(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// VisibleText removes script, style and noscript nodes from the document and
// returns the remaining text collapsed to single spaces. Mutates doc; call
// before field extraction, which expects the stripped document.
func VisibleText(doc *goquery.Document) string {
	doc.Find("script, style, noscript").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// Extract builds the ordered field list plus the link/image/download
// inventories for one page. pageType comes from the classifier; baseHost is
// the crawl origin host and decides internal vs external links.
func Extract(pageURL string, pageType model.ContentType, doc *goquery.Document, text, baseHost string) *PageData {
	pd := &PageData{Text: text}
	base, err := netUrl.Parse(pageURL)
	if err != nil {
		base = nil
	}

	fields := []model.Field{
		{Name: "URL", Value: pageURL},
		{Name: "PageType", Value: string(pageType)},
	}
	fields = appendDefinitionPairs(fields, doc)
	if len(fields) == 2 {
		fields = appendTablePairs(fields, doc)
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		fields = append(fields, model.Field{Name: "PageTitle", Value: title})
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		fields = append(fields, model.Field{Name: "H1", Value: h1})
	}
	if desc := metaDescription(doc); desc != "" {
		fields = append(fields, model.Field{Name: "MetaDescription", Value: desc})
	}
	if text != "" {
		fields = append(fields, model.Field{Name: "TextExcerpt", Value: excerpt(text)})
	}
	fields = append(fields, model.Field{Name: "WordCount", Value: strconv.Itoa(len(strings.Fields(text)))})

	pd.collectAssets(pageURL, base, doc, baseHost)

	fields = append(fields,
		model.Field{Name: "LinkCount", Value: strconv.Itoa(len(pd.LinkRows))},
		model.Field{Name: "ImageCount", Value: strconv.Itoa(len(pd.ImageRows))},
		model.Field{Name: "DownloadCount", Value: strconv.Itoa(len(pd.DownloadRows))},
	)
	pd.Fields = fields
	return pd
}

// appendDefinitionPairs pulls dt/dd definition lists, zipped pairwise.
func appendDefinitionPairs(fields []model.Field, doc *goquery.Document) []model.Field {
	dts := doc.Find("dt")
	dds := doc.Find("dd")
	n := dts.Length()
	if dds.Length() < n {
		n = dds.Length()
	}
	seen := fieldNameSet(fields)
	for i := 0; i < n; i++ {
		key := strings.TrimSpace(dts.Eq(i).Text())
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		fields = append(fields, model.Field{Name: key, Value: strings.TrimSpace(dds.Eq(i).Text())})
	}
	return fields
}

// appendTablePairs is the fallback when a page has no definition lists:
// two-column table rows are read as key/value.
func appendTablePairs(fields []model.Field, doc *goquery.Document) []model.Field {
	seen := fieldNameSet(fields)
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cols := row.Find("th, td")
		if cols.Length() < 2 {
			return
		}
		key := strings.TrimSpace(cols.Eq(0).Text())
		if key == "" {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		fields = append(fields, model.Field{Name: key, Value: strings.TrimSpace(cols.Eq(1).Text())})
	})
	return fields
}

func metaDescription(doc *goquery.Document) string {
	if v, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		return strings.TrimSpace(v)
	}
	if v, ok := doc.Find(`meta[property="og:description"]`).First().Attr("content"); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func (pd *PageData) collectAssets(pageURL string, base *netUrl.URL, doc *goquery.Document, baseHost string) {
	seenLinks := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		linkURL := resolve(base, href)
		if linkURL == "" {
			return
		}
		if _, dup := seenLinks[linkURL]; dup {
			return
		}
		seenLinks[linkURL] = struct{}{}
		pd.Links = append(pd.Links, linkURL)

		linkType := "internal"
		if u, err := netUrl.Parse(linkURL); err == nil && baseHost != "" && u.Host != baseHost {
			linkType = "external"
		}
		pd.LinkRows = append(pd.LinkRows, []model.Field{
			{Name: "source_url", Value: pageURL},
			{Name: "link_url", Value: linkURL},
			{Name: "link_text", Value: strings.TrimSpace(a.Text())},
			{Name: "link_type", Value: linkType},
		})
		if _, isDownload := a.Attr("download"); isDownload || isDownloadableURL(linkURL) {
			pd.DownloadRows = append(pd.DownloadRows, []model.Field{
				{Name: "source_url", Value: pageURL},
				{Name: "download_url", Value: linkURL},
				{Name: "download_kind", Value: "link"},
			})
		}
	})

	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if src == "" {
			// fall back to the first srcset entry
			if srcset, ok := img.Attr("srcset"); ok {
				first := strings.Split(srcset, ",")[0]
				if parts := strings.Fields(first); len(parts) > 0 {
					src = parts[0]
				}
			}
		}
		imageURL := resolve(base, src)
		if imageURL == "" {
			return
		}
		alt, _ := img.Attr("alt")
		pd.ImageRows = append(pd.ImageRows, []model.Field{
			{Name: "source_url", Value: pageURL},
			{Name: "image_url", Value: imageURL},
			{Name: "alt_text", Value: strings.TrimSpace(alt)},
		})
	})
}

// resolve turns a candidate href into an absolute URL, dropping empty,
// fragment-only and non-navigational (mailto/tel/javascript/data) targets.
func resolve(base *netUrl.URL, candidate string) string {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || strings.HasPrefix(candidate, "#") {
		return ""
	}
	lower := strings.ToLower(candidate)
	for _, scheme := range skipSchemes {
		if strings.HasPrefix(lower, scheme) {
			return ""
		}
	}
	ref, err := netUrl.Parse(candidate)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func isDownloadableURL(rawURL string) bool {
	u, err := netUrl.Parse(rawURL)
	if err != nil {
		return false
	}
	_, ok := downloadExtensions[strings.ToLower(path.Ext(u.Path))]
	return ok
}

func fieldNameSet(fields []model.Field) map[string]struct{} {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		seen[f.Name] = struct{}{}
	}
	return seen
}

func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= textExcerptChars {
		return text
	}
	return string(runes[:textExcerptChars])
}

