package enrich

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TobiSchelling/secnews/internal/config"
	"github.com/TobiSchelling/secnews/internal/logging"
	"github.com/TobiSchelling/secnews/internal/news"
)

var articleHTML = `<html><head><title>Breach</title></head><body>
<article>
<h1>Large breach disclosed</h1>
<p>` + strings.Repeat("Attackers stole customer records from the retailer over several weeks. ", 8) + `</p>
<p>` + strings.Repeat("The company has notified regulators and affected users. ", 6) + `</p>
</article>
</body></html>`

func newTestEnricher(maxItems int) *Enricher {
	return New(config.Enrich{Enabled: true, MaxItems: maxItems, Timeout: 5 * time.Second}, "test-agent", 120, logging.Discard())
}

func TestEnrichFillsEmptySummaries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if ua := r.Header.Get("User-Agent"); ua != "test-agent" {
			t.Errorf("unexpected user agent %q", ua)
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, articleHTML)
	}))
	defer srv.Close()

	items := []news.Item{
		{Title: "Has summary", URL: srv.URL + "/a", Summary: "already here"},
		{Title: "Needs summary", URL: srv.URL + "/b"},
	}

	r := newTestEnricher(10).Enrich(context.Background(), items)

	if r.Enriched != 1 || r.Failed != 0 {
		t.Fatalf("expected 1 enriched, got %+v", r)
	}
	if hits.Load() != 1 {
		t.Errorf("expected 1 request, got %d", hits.Load())
	}
	if items[0].Summary != "already here" {
		t.Errorf("existing summary changed: %q", items[0].Summary)
	}
	if !strings.Contains(items[1].Summary, "Attackers stole customer records") {
		t.Errorf("expected extracted summary, got %q", items[1].Summary)
	}
	if !strings.HasSuffix(items[1].Summary, "...") || len([]rune(items[1].Summary)) > 123 {
		t.Errorf("expected truncated summary, got %q", items[1].Summary)
	}
}

func TestEnrichSkipsFailedDomain(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	items := []news.Item{
		{Title: "one", URL: srv.URL + "/1"},
		{Title: "two", URL: srv.URL + "/2"},
		{Title: "three", URL: srv.URL + "/3"},
	}

	r := newTestEnricher(10).Enrich(context.Background(), items)

	if r.Failed != 1 || r.Skipped != 2 {
		t.Errorf("expected 1 failed and 2 skipped, got %+v", r)
	}
	if hits.Load() != 1 {
		t.Errorf("expected a single request to the failing domain, got %d", hits.Load())
	}
}

func TestEnrichRespectsMaxItems(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, "<html><body><p>short</p></body></html>")
	}))
	defer srv.Close()

	items := make([]news.Item, 5)
	for i := range items {
		items[i] = news.Item{Title: "t", URL: fmt.Sprintf("%s/%d", srv.URL, i)}
	}

	r := newTestEnricher(2).Enrich(context.Background(), items)

	if hits.Load() != 2 {
		t.Errorf("expected 2 requests, got %d", hits.Load())
	}
	if r.Failed != 2 || r.Enriched != 0 {
		t.Errorf("expected short pages to count as failures, got %+v", r)
	}
}

func TestEnrichStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items := []news.Item{{Title: "t", URL: "http://127.0.0.1:1/x"}}
	r := newTestEnricher(10).Enrich(ctx, items)
	if r.Enriched+r.Failed+r.Skipped != 0 {
		t.Errorf("expected no work after cancel, got %+v", r)
	}
}
