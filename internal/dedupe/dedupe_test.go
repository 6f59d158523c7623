package dedupe

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/secnews/internal/news"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func item(title, url, source string, at time.Time) news.Item {
	norm, err := news.NormalizeURL(url)
	if err != nil {
		norm = url
	}
	return news.Item{
		ID:          news.MakeID(norm),
		Title:       title,
		URL:         norm,
		Source:      source,
		PublishedAt: at,
	}
}

func TestDedupeByURL(t *testing.T) {
	d := New(DefaultWindow)

	a := item("Ransomware hits hospital", "https://example.com/a", "A", base)
	b := item("Hospital hit by ransomware", "HTTPS://Example.com/a/?utm_source=x", "B", base.Add(72*time.Hour))

	got := d.Dedupe([]news.Item{a, b})
	require.Len(t, got, 1)
	require.Equal(t, "A", got[0].Source)
}

func TestDedupeEmptyQueryMatchesTrailingSlash(t *testing.T) {
	d := New(DefaultWindow)

	a := item("Patch released for gateway flaw", "https://x.example/story?", "A", base)
	b := item("Gateway vendor ships fix", "https://x.example/story/", "B", base)
	require.Equal(t, a.ID, b.ID)

	got := d.Dedupe([]news.Item{a, b})
	require.Len(t, got, 1)
	require.Equal(t, "https://x.example/story", got[0].URL)
}

func TestDedupeByTitleWithinWindow(t *testing.T) {
	d := New(DefaultWindow)

	a := item("Ransomware hits hospital!", "https://one.example/a", "A", base)
	b := item("ransomware  hits   hospital", "https://two.example/b", "B", base.Add(-23*time.Hour))

	got := d.Dedupe([]news.Item{a, b})
	require.Len(t, got, 1)
	require.Equal(t, "A", got[0].Source)
}

func TestDedupeTitleOutsideWindowKeepsBoth(t *testing.T) {
	d := New(DefaultWindow)

	a := item("Weekly security roundup", "https://one.example/a", "A", base)
	b := item("Weekly security roundup", "https://two.example/b", "B", base.Add(25*time.Hour))

	got := d.Dedupe([]news.Item{a, b})
	require.Len(t, got, 2)
}

func TestDedupeWindowBoundaryIsInclusive(t *testing.T) {
	d := New(time.Hour)

	a := item("Same story", "https://one.example/a", "A", base)
	b := item("Same story", "https://two.example/b", "B", base.Add(time.Hour))

	require.Len(t, d.Dedupe([]news.Item{a, b}), 1)
}

func TestDedupeMergesSummary(t *testing.T) {
	d := New(DefaultWindow)

	a := item("Patch Tuesday", "https://one.example/a", "A", base)
	a.Keywords = []string{"Microsoft"}
	b := item("Patch Tuesday", "https://two.example/b", "B", base)
	b.Summary = "Microsoft fixes 60 flaws."
	b.Keywords = []string{"CVE", "Microsoft"}
	c := item("Patch Tuesday", "https://three.example/c", "C", base)
	c.Summary = "A different summary."

	got := d.Dedupe([]news.Item{a, b, c})
	require.Len(t, got, 1)
	require.Equal(t, "A", got[0].Source)
	require.Equal(t, "https://one.example/a", got[0].URL)
	require.Equal(t, "Microsoft fixes 60 flaws.", got[0].Summary)
	require.Equal(t, []string{"Microsoft", "CVE"}, got[0].Keywords)
	require.Equal(t, []string{"Microsoft"}, a.Keywords, "input must not be mutated")
}

func TestDedupePreservesOrder(t *testing.T) {
	d := New(DefaultWindow)

	items := []news.Item{
		item("one", "https://x.example/1", "A", base),
		item("two", "https://x.example/2", "A", base),
		item("one", "https://y.example/1", "B", base),
		item("three", "https://x.example/3", "A", base),
		item("two", "https://x.example/2/", "B", base),
	}
	got := d.Dedupe(items)

	var titles []string
	for _, it := range got {
		titles = append(titles, it.Title)
	}
	require.Equal(t, []string{"one", "two", "three"}, titles)
}

func TestDedupeIsIdempotent(t *testing.T) {
	d := New(DefaultWindow)

	var items []news.Item
	for i := 0; i < 30; i++ {
		title := fmt.Sprintf("story %d", i%7)
		url := fmt.Sprintf("https://site%d.example/%d", i%3, i%11)
		items = append(items, item(title, url, fmt.Sprintf("S%d", i%3), base.Add(time.Duration(i)*5*time.Hour)))
	}

	once := d.Dedupe(items)
	twice := d.Dedupe(once)
	require.Equal(t, once, twice)

	ids := make(map[string]struct{})
	for _, it := range once {
		_, dup := ids[it.ID]
		require.False(t, dup, "duplicate id %s", it.ID)
		ids[it.ID] = struct{}{}
	}
}

func TestDedupeNegativeWindowDisablesTitleMatch(t *testing.T) {
	d := New(-1)

	a := item("Same story", "https://one.example/a", "A", base)
	b := item("Same story", "https://two.example/b", "B", base)

	require.Len(t, d.Dedupe([]news.Item{a, b}), 2)
}

func TestDedupeEmpty(t *testing.T) {
	require.Empty(t, New(DefaultWindow).Dedupe(nil))
}
