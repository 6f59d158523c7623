package source

import (
	"context"
	"net/http"

	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/secnews/internal/config"
)

// FeedAdapter reads an RSS or Atom feed.
type FeedAdapter struct {
	normalizer
	url       string
	client    *http.Client
	userAgent string
	maxItems  int
}

func newFeedAdapter(src config.Source, opts Options, norm normalizer) *FeedAdapter {
	return &FeedAdapter{
		normalizer: norm,
		url:        src.URL,
		client:     opts.Client,
		userAgent:  opts.UserAgent,
		maxItems:   opts.MaxItems,
	}
}

func (a *FeedAdapter) Strategy() Strategy { return Feed }

// Fetch downloads the feed and returns up to maxItems entries.
func (a *FeedAdapter) Fetch(ctx context.Context) ([]Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		return nil, &FetchError{Source: a.name, Kind: KindNetwork, Err: err}
	}
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, AsFetchError(a.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Source: a.name, Kind: KindNetwork, Err: &StatusError{Code: resp.StatusCode}}
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, AsFetchError(a.name, ctxErr)
		}
		return nil, &FetchError{Source: a.name, Kind: KindParse, Err: err}
	}

	var out []Candidate
	for _, item := range feed.Items {
		if len(out) >= a.maxItems {
			break
		}
		out = append(out, feedCandidate(item))
	}
	return out, nil
}

func feedCandidate(item *gofeed.Item) Candidate {
	c := Candidate{
		Title: item.Title,
		Link:  item.Link,
		GUID:  item.GUID,
	}

	switch {
	case item.PublishedParsed != nil:
		c.Published = item.PublishedParsed
	case item.UpdatedParsed != nil:
		c.Published = item.UpdatedParsed
	case item.Published != "":
		c.RawDate = item.Published
	default:
		c.RawDate = item.Updated
	}

	if item.Description != "" {
		c.Summary = item.Description
	} else {
		c.Summary = item.Content
	}
	return c
}
