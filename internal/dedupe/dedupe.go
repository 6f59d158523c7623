// Package dedupe collapses news items that describe the same article.
package dedupe

import (
	"time"

	"github.com/TobiSchelling/secnews/internal/news"
)

// DefaultWindow is the publication-time tolerance for title matches.
const DefaultWindow = 24 * time.Hour

// Deduplicator removes duplicates by normalized URL, or by normalized title
// when the publication times are within the window.
type Deduplicator struct {
	window time.Duration
}

// New returns a deduplicator using the given title-match window.
// A negative window disables title matching.
func New(window time.Duration) *Deduplicator {
	return &Deduplicator{window: window}
}

// Dedupe returns the items with duplicates removed, preserving order.
// The first occurrence is kept; it takes a duplicate's summary when its own
// is empty and gains the duplicate's keywords. Its URL, title and
// publication time never change, so Dedupe(Dedupe(x)) == Dedupe(x).
func (d *Deduplicator) Dedupe(items []news.Item) []news.Item {
	out := make([]news.Item, 0, len(items))
	byURL := make(map[string]int, len(items))
	byTitle := make(map[string][]int, len(items))

	for _, item := range items {
		urlKey := urlKey(item)
		titleKey := news.NormalizeTitle(item.Title)

		if i, ok := byURL[urlKey]; ok {
			merge(&out[i], item)
			continue
		}
		if i, ok := d.titleMatch(out, byTitle[titleKey], item); ok {
			merge(&out[i], item)
			continue
		}

		out = append(out, item)
		idx := len(out) - 1
		byURL[urlKey] = idx
		if titleKey != "" {
			byTitle[titleKey] = append(byTitle[titleKey], idx)
		}
	}
	return out
}

func (d *Deduplicator) titleMatch(kept []news.Item, candidates []int, item news.Item) (int, bool) {
	if d.window < 0 {
		return 0, false
	}
	for _, i := range candidates {
		if absDuration(kept[i].PublishedAt.Sub(item.PublishedAt)) <= d.window {
			return i, true
		}
	}
	return 0, false
}

func urlKey(item news.Item) string {
	if u, err := news.NormalizeURL(item.URL); err == nil {
		return u
	}
	return item.URL
}

func merge(kept *news.Item, dup news.Item) {
	if kept.Summary == "" && dup.Summary != "" {
		kept.Summary = dup.Summary
	}
	if len(dup.Keywords) == 0 {
		return
	}
	have := make(map[string]struct{}, len(kept.Keywords))
	for _, kw := range kept.Keywords {
		have[kw] = struct{}{}
	}
	merged := append([]string(nil), kept.Keywords...)
	for _, kw := range dup.Keywords {
		if _, ok := have[kw]; !ok {
			have[kw] = struct{}{}
			merged = append(merged, kw)
		}
	}
	kept.Keywords = merged
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
