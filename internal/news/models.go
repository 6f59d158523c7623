package news

import "time"

// Category is a topic label assigned by the classifier.
type Category string

// Item is the normalized unit of news served to consumers.
type Item struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	Approximate bool      `json:"approximate,omitempty"` // PublishedAt fell back to collection time
	Category    Category  `json:"category"`
	Summary     string    `json:"summary,omitempty"`
	Keywords    []string  `json:"keywords,omitempty"`
}

// SourceStatus describes how one source fared in the last collection cycle.
type SourceStatus struct {
	Name      string        `json:"name"`
	Strategy  string        `json:"strategy"`
	OK        bool          `json:"ok"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Error     string        `json:"error,omitempty"`
	Fetched   int           `json:"fetched"`   // raw candidates returned
	Items     int           `json:"items"`     // candidates that normalized cleanly
	Dropped   int           `json:"dropped"`   // candidates rejected during normalization
	Published int           `json:"published"` // items of this source in the published snapshot
	Duration  time.Duration `json:"duration"`
	CheckedAt time.Time     `json:"checked_at"`
}

// CycleReport is the metadata recorded for one collection cycle.
type CycleReport struct {
	ID         string         `json:"id"`
	Trigger    string         `json:"trigger"`
	StartedAt  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"duration"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	Candidates int            `json:"candidates"`
	Dropped    int            `json:"dropped"`
	Duplicates int            `json:"duplicates"`
	Defaulted  int            `json:"defaulted"` // items that fell back to the catch-all category
	Enriched   int            `json:"enriched"`
	Evicted    int            `json:"evicted"`
	ItemCount  int            `json:"item_count"`
	Empty      bool           `json:"empty"` // no source succeeded; previous items were kept
	Published  bool           `json:"published"`
	Sources    []SourceStatus `json:"sources"`
}
