package source

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/TobiSchelling/secnews/internal/config"
)

var errNoBlocks = errors.New("no blocks matched the item selector")

// ScrapeAdapter extracts entries from an HTML listing page.
type ScrapeAdapter struct {
	normalizer
	url       string
	selectors config.Selectors
	domains   []string
	userAgent string
	timeout   time.Duration
	maxItems  int
}

func newScrapeAdapter(src config.Source, opts Options, norm normalizer) *ScrapeAdapter {
	domains := src.AllowedDomains
	if len(domains) == 0 {
		if u, err := url.Parse(src.URL); err == nil && u.Hostname() != "" {
			domains = []string{u.Hostname()}
		}
	}
	sel := src.Selectors
	if sel.Link == "" {
		sel.Link = "a"
	}
	return &ScrapeAdapter{
		normalizer: norm,
		url:        src.URL,
		selectors:  sel,
		domains:    domains,
		userAgent:  opts.UserAgent,
		timeout:    opts.Timeout,
		maxItems:   opts.MaxItems,
	}
}

func (a *ScrapeAdapter) Strategy() Strategy { return Scrape }

// Fetch visits the page and returns one candidate per matched item block.
func (a *ScrapeAdapter) Fetch(ctx context.Context) ([]Candidate, error) {
	c := colly.NewCollector(
		colly.AllowedDomains(a.domains...),
		colly.UserAgent(a.userAgent),
	)
	timeout := a.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	c.SetRequestTimeout(timeout)

	var (
		out     []Candidate
		matched int
		status  int
	)
	c.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			status = r.StatusCode
		}
	})
	c.OnHTML(a.selectors.Item, func(e *colly.HTMLElement) {
		matched++
		if len(out) >= a.maxItems {
			return
		}
		out = append(out, a.candidate(e))
	})

	done := make(chan error, 1)
	go func() { done <- c.Visit(a.url) }()

	var err error
	select {
	case <-ctx.Done():
		return nil, AsFetchError(a.name, ctx.Err())
	case err = <-done:
	}
	if err != nil {
		if status >= 400 {
			return nil, &FetchError{Source: a.name, Kind: KindNetwork, Err: &StatusError{Code: status}}
		}
		return nil, AsFetchError(a.name, err)
	}
	if matched == 0 {
		return nil, &FetchError{Source: a.name, Kind: KindSchema, Err: errNoBlocks}
	}
	return out, nil
}

func (a *ScrapeAdapter) candidate(e *colly.HTMLElement) Candidate {
	sel := a.selectors
	c := Candidate{
		Title: firstText(e.DOM, sel.Title),
	}

	href := e.DOM.Find(sel.Link).First().AttrOr("href", "")
	if href == "" && goquery.NodeName(e.DOM) == "a" {
		href = e.Attr("href")
	}
	if href != "" {
		c.Link = e.Request.AbsoluteURL(href)
	}

	if sel.Date != "" {
		node := e.DOM.Find(sel.Date).First()
		if sel.DateAttr != "" {
			c.RawDate = node.AttrOr(sel.DateAttr, "")
		} else {
			c.RawDate = strings.TrimSpace(node.Text())
		}
	}
	if sel.Summary != "" {
		c.Summary = firstText(e.DOM, sel.Summary)
	}
	return c
}

func firstText(s *goquery.Selection, selector string) string {
	return strings.TrimSpace(s.Find(selector).First().Text())
}
