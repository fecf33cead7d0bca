package frontier

import (
	"errors"
	netUrl "net/url"
	"strings"
)

var ErrBadSeed = errors.New("seed url must be absolute http(s)")

// Frontier holds the visited set and the queue of same-origin URLs pending
// visit. Not safe for concurrent use: one crawl owns one Frontier.
type Frontier struct {
	origin     *netUrl.URL
	visited    map[string]struct{}
	known      map[string]struct{} // queued or visited, blocks re-enqueue
	queue      []string
	discovered []string // accepted URLs in first-seen order
	maxPages   int      // 0 means unlimited
}

func New(maxPages int) *Frontier {
	return &Frontier{
		visited:  make(map[string]struct{}),
		known:    make(map[string]struct{}),
		maxPages: maxPages,
	}
}

// Seed initializes the queue with the normalized seed URL and pins the crawl
// origin. Must be called exactly once, before Next.
func (f *Frontier) Seed(raw string) error {
	u, err := netUrl.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrBadSeed
	}
	f.origin = u
	seed := normalize(u)
	f.enqueue(seed)
	return nil
}

// Next pops the next pending URL. ok is false on exhaustion or once the
// visited count has reached the page cap (cap is checked before popping).
func (f *Frontier) Next() (url string, ok bool) {
	if f.maxPages > 0 && len(f.visited) >= f.maxPages {
		return "", false
	}
	if len(f.queue) == 0 {
		return "", false
	}
	url = f.queue[0]
	f.queue = f.queue[1:]
	return url, true
}

// Offer normalizes each candidate and appends the genuinely new same-origin
// ones to the queue in first-seen order. Duplicates, cross-origin URLs and
// unparsable candidates are dropped.
func (f *Frontier) Offer(candidates []string) {
	for _, raw := range candidates {
		u, err := netUrl.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		if u.Host != f.origin.Host {
			continue
		}
		f.enqueue(normalize(u))
	}
}

// MarkVisited is called exactly once per popped URL, whether or not the
// fetch succeeded, so a failing URL is never retried.
func (f *Frontier) MarkVisited(url string) {
	f.visited[url] = struct{}{}
}

func (f *Frontier) VisitedCount() int { return len(f.visited) }

// Discovered returns every URL ever accepted into the frontier, deduplicated,
// in discovery order.
func (f *Frontier) Discovered() []string {
	out := make([]string, len(f.discovered))
	copy(out, f.discovered)
	return out
}

func (f *Frontier) enqueue(url string) {
	if _, seen := f.known[url]; seen {
		return
	}
	f.known[url] = struct{}{}
	f.queue = append(f.queue, url)
	f.discovered = append(f.discovered, url)
}

// normalize strips the fragment and collapses the trailing slash so that
// /a/ and /a dedupe to the same entry.
func normalize(u *netUrl.URL) string {
	c := *u
	c.Fragment = ""
	c.Path = strings.TrimSuffix(c.Path, "/")
	return c.String()
}
