package source

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/TobiSchelling/secnews/internal/config"
	"github.com/TobiSchelling/secnews/internal/news"
)

// Strategy names the parse variant of an adapter.
type Strategy string

const (
	Feed   Strategy = config.StrategyFeed
	Scrape Strategy = config.StrategyScrape
)

// Candidate is one raw entry fetched from a source, before normalization.
type Candidate struct {
	Title     string
	Link      string
	GUID      string
	Published *time.Time // parsed by the source format, if any
	RawDate   string     // unparsed date text, tried when Published is nil
	Summary   string     // may contain HTML
}

// Adapter fetches one source and turns its entries into news items.
type Adapter interface {
	Name() string
	Strategy() Strategy
	// Fetch returns the source's current candidates or a *FetchError.
	Fetch(ctx context.Context) ([]Candidate, error)
	// Normalize converts a candidate into an item with its category unset.
	Normalize(c Candidate, collectedAt time.Time) (news.Item, error)
}

// Options are shared by every adapter built from one configuration.
type Options struct {
	Client           *http.Client
	UserAgent        string
	Timeout          time.Duration
	MaxItems         int
	SummaryMaxLength int
}

// OptionsFromConfig derives adapter options from the collection settings.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		UserAgent:        cfg.Collection.UserAgent,
		Timeout:          cfg.Collection.Timeout,
		MaxItems:         cfg.Collection.MaxPerSource,
		SummaryMaxLength: cfg.Collection.SummaryMaxLength,
	}
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Client == nil {
		o.Client = &http.Client{Timeout: o.Timeout}
	}
	if o.UserAgent == "" {
		o.UserAgent = "secnews/1.0 (security news collector)"
	}
	if o.MaxItems <= 0 {
		o.MaxItems = 20
	}
	if o.SummaryMaxLength <= 0 {
		o.SummaryMaxLength = 300
	}
	return o
}

// New builds the adapter variant named by the source's strategy.
func New(src config.Source, opts Options) (Adapter, error) {
	opts = opts.withDefaults()
	norm := normalizer{name: src.Name, summaryMax: opts.SummaryMaxLength}

	switch Strategy(src.Strategy) {
	case Feed, "":
		return newFeedAdapter(src, opts, norm), nil
	case Scrape:
		if src.Selectors.Item == "" || src.Selectors.Title == "" {
			return nil, fmt.Errorf("source %q: scrape strategy needs item and title selectors", src.Name)
		}
		return newScrapeAdapter(src, opts, norm), nil
	default:
		return nil, fmt.Errorf("source %q: unknown strategy %q", src.Name, src.Strategy)
	}
}

// NewAll builds adapters for every enabled source, in configuration order.
func NewAll(cfg *config.Config, opts Options) ([]Adapter, error) {
	enabled := cfg.EnabledSources()
	adapters := make([]Adapter, 0, len(enabled))
	for _, src := range enabled {
		a, err := New(src, opts)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}
