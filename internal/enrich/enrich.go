// Package enrich fills empty item summaries from the linked article page.
package enrich

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/secnews/internal/config"
	"github.com/TobiSchelling/secnews/internal/news"
	"github.com/TobiSchelling/secnews/internal/source"
)

const (
	minTextLength = 100
	maxBodyBytes  = 4 << 20
)

// Result holds the results of an enrichment pass.
type Result struct {
	Enriched int
	Failed   int
	Skipped  int
}

// Enricher fetches article pages and extracts a summary with readability.
type Enricher struct {
	client     *http.Client
	limiter    *rate.Limiter
	userAgent  string
	maxItems   int
	summaryMax int
	logger     *log.Logger
}

// New creates an enricher from the enrich settings.
func New(cfg config.Enrich, userAgent string, summaryMax int, logger *log.Logger) *Enricher {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	return &Enricher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		limiter:    rate.NewLimiter(limit, 1),
		userAgent:  userAgent,
		maxItems:   cfg.MaxItems,
		summaryMax: summaryMax,
		logger:     logger,
	}
}

// Enrich fills in summaries for items that have none, up to maxItems
// pages per call. Items are updated in place. After an HTTP error the
// remaining items from the same domain are skipped.
func (e *Enricher) Enrich(ctx context.Context, items []news.Item) Result {
	var r Result
	failedDomains := make(map[string]struct{})
	attempts := 0

	for i := range items {
		if items[i].Summary != "" {
			continue
		}
		if attempts >= e.maxItems {
			break
		}
		if ctx.Err() != nil {
			break
		}

		domain := news.Domain(items[i].URL)
		if _, failed := failedDomains[domain]; failed {
			r.Skipped++
			continue
		}

		if err := e.limiter.Wait(ctx); err != nil {
			break
		}
		attempts++

		text, err := e.fetchText(ctx, items[i].URL)
		if err != nil {
			r.Failed++
			if domain != "" {
				failedDomains[domain] = struct{}{}
			}
			e.logger.Debug("Article fetch failed, skipping domain", "url", items[i].URL, "domain", domain, "err", err)
			continue
		}
		if text == "" {
			r.Failed++
			e.logger.Debug("No extractable content", "url", items[i].URL)
			continue
		}

		items[i].Summary = source.Truncate(text, e.summaryMax)
		r.Enriched++
	}

	if r.Enriched+r.Failed+r.Skipped > 0 {
		e.logger.Info("Enrichment complete", "enriched", r.Enriched, "failed", r.Failed, "skipped", r.Skipped)
	}
	return r
}

func (e *Enricher) fetchText(ctx context.Context, articleURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &source.StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}

	parsedURL, _ := url.Parse(articleURL)
	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err != nil {
		return "", nil
	}

	text := strings.Join(strings.Fields(article.TextContent), " ")
	if len(text) > minTextLength {
		return text, nil
	}
	return "", nil
}
