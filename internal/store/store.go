// Package store serves the currently published news snapshot.
package store

import (
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/TobiSchelling/secnews/internal/news"
)

// Snapshot is one published collection. It is never modified after Publish.
type Snapshot struct {
	CycleID     string
	PublishedAt time.Time
	Items       []news.Item
	Sources     map[string]news.SourceStatus
	byID        map[string]int
}

// Store holds exactly one current snapshot. Reads never block each other and
// always observe a complete snapshot.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// New returns a store serving an empty snapshot.
func New() *Store {
	s := &Store{}
	s.current.Store(&Snapshot{Sources: map[string]news.SourceStatus{}, byID: map[string]int{}})
	return s
}

// NewSnapshot builds a snapshot from items: repeated ids are dropped (first
// wins) and the rest are sorted newest first, ties by id.
func NewSnapshot(cycleID string, publishedAt time.Time, items []news.Item, sources []news.SourceStatus) *Snapshot {
	seen := make(map[string]struct{}, len(items))
	kept := make([]news.Item, 0, len(items))
	for _, it := range items {
		if _, dup := seen[it.ID]; dup {
			continue
		}
		seen[it.ID] = struct{}{}
		kept = append(kept, it)
	}
	SortItems(kept)

	byID := make(map[string]int, len(kept))
	for i, it := range kept {
		byID[it.ID] = i
	}
	src := make(map[string]news.SourceStatus, len(sources))
	for _, st := range sources {
		src[st.Name] = st
	}
	return &Snapshot{
		CycleID:     cycleID,
		PublishedAt: publishedAt,
		Items:       kept,
		Sources:     src,
		byID:        byID,
	}
}

// SortItems orders items by publication time descending, then id ascending.
func SortItems(items []news.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.After(b.PublishedAt)
		}
		return a.ID < b.ID
	})
}

// Publish replaces the current snapshot in a single atomic swap.
func (s *Store) Publish(snap *Snapshot) {
	s.current.Store(snap)
}

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Len returns the number of items currently served.
func (s *Store) Len() int {
	return len(s.current.Load().Items)
}

// List returns up to limit items starting at offset. A non-positive limit
// returns everything after offset.
func (s *Store) List(limit, offset int) []news.Item {
	return page(s.current.Load().Items, limit, offset)
}

// Filter returns the items of exactly the given category.
func (s *Store) Filter(cat news.Category) []news.Item {
	return s.Query(Query{Category: cat})
}

// FilterBySource returns the items of one source, matched case-insensitively.
func (s *Store) FilterBySource(name string) []news.Item {
	return s.Query(Query{Source: name})
}

// FilterByDate returns items published in [from, to]. Zero bounds are open.
func (s *Store) FilterByDate(from, to time.Time) []news.Item {
	return s.Query(Query{From: from, To: to})
}

// Search returns items whose title or summary contains keyword,
// case-insensitively. A blank keyword matches everything.
func (s *Store) Search(keyword string) []news.Item {
	return s.Query(Query{Keyword: keyword})
}

// Get returns the item with the given id.
func (s *Store) Get(id string) (news.Item, bool) {
	snap := s.current.Load()
	i, ok := snap.byID[id]
	if !ok {
		return news.Item{}, false
	}
	return snap.Items[i], true
}

// SourceSummary is the per-source view of the last cycle.
type SourceSummary struct {
	Name      string    `json:"name"`
	OK        bool      `json:"ok"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`
	Items     int       `json:"items"`
	CheckedAt time.Time `json:"checked_at"`
}

// SourcesSummary maps each source to its last-cycle item count and status.
func (s *Store) SourcesSummary() map[string]SourceSummary {
	snap := s.current.Load()
	out := make(map[string]SourceSummary, len(snap.Sources))
	for name, st := range snap.Sources {
		out[name] = SourceSummary{
			Name:      name,
			OK:        st.OK,
			ErrorKind: st.ErrorKind,
			Error:     st.Error,
			Items:     st.Published,
			CheckedAt: st.CheckedAt,
		}
	}
	return out
}

// Query composes filters over one snapshot. Zero fields do not filter.
type Query struct {
	Category news.Category
	Source   string
	Keyword  string
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

func (q Query) match(it news.Item, keyword string) bool {
	if q.Category != "" && it.Category != q.Category {
		return false
	}
	if q.Source != "" && !strings.EqualFold(it.Source, q.Source) {
		return false
	}
	if !q.From.IsZero() && it.PublishedAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && it.PublishedAt.After(q.To) {
		return false
	}
	if keyword != "" &&
		!strings.Contains(strings.ToLower(it.Title), keyword) &&
		!strings.Contains(strings.ToLower(it.Summary), keyword) {
		return false
	}
	return true
}

// Query returns the matching items in snapshot order, then pages them.
func (s *Store) Query(q Query) []news.Item {
	items, _ := s.current.Load().Query(q)
	return items
}

// Query pages the items of this snapshot that match q. total is the number
// of matches before paging.
func (snap *Snapshot) Query(q Query) (items []news.Item, total int) {
	keyword := strings.ToLower(strings.TrimSpace(q.Keyword))

	matched := make([]news.Item, 0)
	for _, it := range snap.Items {
		if q.match(it, keyword) {
			matched = append(matched, it)
		}
	}
	return page(matched, q.Limit, q.Offset), len(matched)
}

// Stats summarizes the current snapshot.
type Stats struct {
	Total      int                   `json:"total"`
	BySource   map[string]int        `json:"by_source"`
	ByCategory map[news.Category]int `json:"by_category"`
	Earliest   time.Time             `json:"earliest"`
	Latest     time.Time             `json:"latest"`
	CycleID    string                `json:"cycle_id"`
	Published  time.Time             `json:"published_at"`
}

// Stats counts items by source and category.
func (s *Store) Stats() Stats {
	snap := s.current.Load()
	st := Stats{
		Total:      len(snap.Items),
		BySource:   make(map[string]int),
		ByCategory: make(map[news.Category]int),
		CycleID:    snap.CycleID,
		Published:  snap.PublishedAt,
	}
	for _, it := range snap.Items {
		st.BySource[it.Source]++
		st.ByCategory[it.Category]++
	}
	if n := len(snap.Items); n > 0 {
		st.Latest = snap.Items[0].PublishedAt
		st.Earliest = snap.Items[n-1].PublishedAt
	}
	return st
}

func page(items []news.Item, limit, offset int) []news.Item {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []news.Item{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]news.Item, end-offset)
	copy(out, items[offset:end])
	return out
}
