package source

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"

	"github.com/TobiSchelling/secnews/internal/news"
)

// normalizer holds the per-source normalization shared by all variants.
type normalizer struct {
	name       string
	summaryMax int
}

func (n normalizer) Name() string { return n.name }

func (n normalizer) Normalize(c Candidate, collectedAt time.Time) (news.Item, error) {
	title := strings.Join(strings.Fields(c.Title), " ")
	if title == "" {
		return news.Item{}, ErrMissingTitle
	}

	link, err := news.NormalizeURL(c.Link)
	if err != nil && c.GUID != "" {
		link, err = news.NormalizeURL(c.GUID)
	}
	if err != nil {
		return news.Item{}, news.ErrBadURL
	}

	published, approximate := resolveDate(c, collectedAt)

	return news.Item{
		ID:          news.MakeID(link),
		Title:       title,
		URL:         link,
		Source:      n.name,
		PublishedAt: published,
		Approximate: approximate,
		Summary:     Truncate(CleanText(c.Summary), n.summaryMax),
	}, nil
}

// resolveDate picks the candidate's timestamp, falling back to the
// collection time when none can be parsed.
func resolveDate(c Candidate, collectedAt time.Time) (time.Time, bool) {
	if c.Published != nil && !c.Published.IsZero() {
		return c.Published.UTC(), false
	}
	if raw := strings.TrimSpace(c.RawDate); raw != "" {
		if t, err := dateparse.ParseAny(raw); err == nil {
			return t.UTC(), false
		}
	}
	return collectedAt.UTC(), true
}

// CleanText converts an HTML fragment to plain text with collapsed whitespace.
func CleanText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	if strings.ContainsAny(s, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			doc.Find("script, style").Remove()
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}

// Truncate shortens s to at most max runes, cutting at a word boundary
// when one is reasonably close and appending "...".
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:max])
	if i := strings.LastIndex(cut, " "); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "..."
}
