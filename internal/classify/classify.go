// Package classify assigns topic categories to news items by keyword scoring.
package classify

import (
	"regexp"
	"strings"

	"github.com/TobiSchelling/secnews/internal/config"
	"github.com/TobiSchelling/secnews/internal/news"
)

const maxKeywords = 10

var cveRe = regexp.MustCompile(`(?i)\bCVE-\d{4}-\d{4,7}\b`)

type category struct {
	name     news.Category
	keywords []string // lowercased
}

// Classifier scores text against an ordered list of categories.
// It is immutable and safe for concurrent use.
type Classifier struct {
	categories []category
	catchAll   news.Category
	highlights []string
}

// New builds a classifier. Category order is the tie-break priority.
func New(categories []config.Category, catchAll string, highlights []string) *Classifier {
	c := &Classifier{catchAll: news.Category(catchAll)}
	for _, cat := range categories {
		kws := make([]string, 0, len(cat.Keywords))
		for _, kw := range cat.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				kws = append(kws, kw)
			}
		}
		c.categories = append(c.categories, category{name: news.Category(cat.Name), keywords: kws})
	}
	for _, h := range highlights {
		if h = strings.TrimSpace(h); h != "" {
			c.highlights = append(c.highlights, h)
		}
	}
	return c
}

// FromConfig builds a classifier from the category settings.
func FromConfig(cfg *config.Config) *Classifier {
	return New(cfg.Categories, cfg.CatchAll, cfg.HighlightKeywords)
}

// CatchAll returns the fallback category.
func (c *Classifier) CatchAll() news.Category { return c.catchAll }

// Categories returns every category name in priority order, catch-all last.
func (c *Classifier) Categories() []news.Category {
	out := make([]news.Category, 0, len(c.categories)+1)
	for _, cat := range c.categories {
		out = append(out, cat.name)
	}
	return append(out, c.catchAll)
}

// Classify returns the highest-scoring category for the text. defaulted is
// true when no keyword matched and the catch-all was used.
func (c *Classifier) Classify(title, summary string) (cat news.Category, defaulted bool) {
	text := strings.ToLower(title + " " + summary)

	best, bestScore := c.catchAll, 0
	for _, candidate := range c.categories {
		score := 0
		for _, kw := range candidate.keywords {
			score += strings.Count(text, kw)
		}
		// strictly greater keeps the earlier category on ties
		if score > bestScore {
			best, bestScore = candidate.name, score
		}
	}
	return best, bestScore == 0
}

// Keywords returns CVE ids and highlight terms found in the text, CVEs
// first, at most ten.
func (c *Classifier) Keywords(title, summary string) []string {
	text := title + " " + summary
	lower := strings.ToLower(text)

	var out []string
	seen := make(map[string]struct{})
	add := func(kw string) bool {
		key := strings.ToLower(kw)
		if _, ok := seen[key]; ok {
			return true
		}
		seen[key] = struct{}{}
		out = append(out, kw)
		return len(out) < maxKeywords
	}

	for _, cve := range cveRe.FindAllString(text, -1) {
		if !add(strings.ToUpper(cve)) {
			return out
		}
	}
	for _, h := range c.highlights {
		if strings.Contains(lower, strings.ToLower(h)) {
			if !add(h) {
				return out
			}
		}
	}
	return out
}

// Apply sets the category and keywords of an item and reports whether the
// catch-all was used.
func (c *Classifier) Apply(item *news.Item) bool {
	cat, defaulted := c.Classify(item.Title, item.Summary)
	item.Category = cat
	item.Keywords = c.Keywords(item.Title, item.Summary)
	return defaulted
}
