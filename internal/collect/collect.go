// Package collect runs collection cycles: fetch every source, normalize,
// classify, deduplicate and publish a new snapshot.
package collect

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/secnews/internal/classify"
	"github.com/TobiSchelling/secnews/internal/config"
	"github.com/TobiSchelling/secnews/internal/dedupe"
	"github.com/TobiSchelling/secnews/internal/enrich"
	"github.com/TobiSchelling/secnews/internal/logging"
	"github.com/TobiSchelling/secnews/internal/news"
	"github.com/TobiSchelling/secnews/internal/source"
	"github.com/TobiSchelling/secnews/internal/store"
)

// ErrCycleInProgress is returned by Run while another cycle is running.
var ErrCycleInProgress = errors.New("collection cycle already in progress")

// Trigger names recorded in cycle reports.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerStartup  = "startup"
)

// State is the orchestrator's position in a cycle.
type State int32

const (
	Idle State = iota
	Collecting
	Publishing
)

func (s State) String() string {
	switch s {
	case Collecting:
		return "collecting"
	case Publishing:
		return "publishing"
	default:
		return "idle"
	}
}

// Archiver persists a published snapshot together with its cycle report.
type Archiver interface {
	SaveCycle(ctx context.Context, report *news.CycleReport, items []news.Item) error
}

// Enricher fills missing summaries before classification.
type Enricher interface {
	Enrich(ctx context.Context, items []news.Item) enrich.Result
}

// Options tune a Collector. Zero values pick defaults.
type Options struct {
	Timeout     time.Duration
	Workers     int
	DedupWindow time.Duration
	Merge       config.Merge
	Enricher    Enricher
	Archiver    Archiver
	Logger      *log.Logger
	Now         func() time.Time
}

// Collector orchestrates collection cycles and is the only publisher to
// its store.
type Collector struct {
	adapters   []source.Adapter
	classifier *classify.Classifier
	dedup      *dedupe.Deduplicator
	store      *store.Store
	opts       Options
	logger     *log.Logger

	state atomic.Int32

	mu   sync.Mutex
	last *news.CycleReport
}

// New creates a collector over the given adapters, in configuration order.
func New(adapters []source.Adapter, classifier *classify.Classifier, st *store.Store, opts Options) *Collector {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = len(adapters)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Collector{
		adapters:   adapters,
		classifier: classifier,
		dedup:      dedupe.New(opts.DedupWindow),
		store:      st,
		opts:       opts,
		logger:     logger,
	}
}

// FromConfig wires adapters, classifier and enrichment from configuration.
func FromConfig(cfg *config.Config, st *store.Store, archiver Archiver, logger *log.Logger) (*Collector, error) {
	adapters, err := source.NewAll(cfg, source.OptionsFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}
	opts := Options{
		Timeout:     cfg.Collection.Timeout,
		Workers:     cfg.Collection.Workers,
		DedupWindow: cfg.Collection.DedupWindow,
		Merge:       cfg.Collection.Merge,
		Archiver:    archiver,
		Logger:      logger,
	}
	if cfg.Enrich.Enabled {
		opts.Enricher = enrich.New(cfg.Enrich, cfg.Collection.UserAgent, cfg.Collection.SummaryMaxLength, logger)
	}
	return New(adapters, classify.FromConfig(cfg), st, opts), nil
}

// State returns the current cycle state.
func (c *Collector) State() State {
	return State(c.state.Load())
}

// Sources returns the adapter names in configuration order.
func (c *Collector) Sources() []string {
	names := make([]string, len(c.adapters))
	for i, a := range c.adapters {
		names[i] = a.Name()
	}
	return names
}

// LastReport returns the report of the most recent cycle, or nil.
func (c *Collector) LastReport() *news.CycleReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil
	}
	r := *c.last
	r.Sources = append([]news.SourceStatus(nil), c.last.Sources...)
	return &r
}

type fetchResult struct {
	candidates []source.Candidate
	err        error
	duration   time.Duration
	checkedAt  time.Time
}

// Run executes one collection cycle. Source failures are recorded in the
// report and never fail the cycle. If ctx is cancelled before publishing,
// nothing is published and ctx's error is returned with the partial report.
func (c *Collector) Run(ctx context.Context, trigger string) (*news.CycleReport, error) {
	if !c.state.CompareAndSwap(int32(Idle), int32(Collecting)) {
		return nil, ErrCycleInProgress
	}
	defer c.state.Store(int32(Idle))

	start := time.Now()
	started := c.opts.Now()
	report := &news.CycleReport{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: started,
	}
	c.logger.Info("Collection started", "cycle", report.ID, "trigger", trigger, "sources", len(c.adapters))

	results := c.fetchAll(ctx)
	if err := ctx.Err(); err != nil {
		return c.abandon(report, start, err)
	}

	items, statuses := c.normalize(results, started, report)
	prev := c.store.Snapshot()

	if report.Succeeded == 0 {
		report.Empty = true
		items = append([]news.Item(nil), prev.Items...)
		c.logger.Warn("No source succeeded, keeping previous items", "cycle", report.ID, "items", len(items))
	} else {
		items = c.process(ctx, items, prev, report)
	}

	if err := ctx.Err(); err != nil {
		return c.abandon(report, start, err)
	}

	c.state.Store(int32(Publishing))
	publishedAt := c.opts.Now()

	perSource := make(map[string]int)
	for _, it := range items {
		perSource[it.Source]++
	}
	for i := range statuses {
		statuses[i].Published = perSource[statuses[i].Name]
	}

	snap := store.NewSnapshot(report.ID, publishedAt, items, statuses)
	c.store.Publish(snap)

	report.ItemCount = len(snap.Items)
	report.Published = true
	report.Sources = statuses
	report.Duration = time.Since(start)
	c.setLast(report)

	c.logger.Info("Collection complete",
		"cycle", report.ID,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"items", report.ItemCount,
		"duplicates", report.Duplicates,
		"empty", report.Empty,
		"duration", report.Duration.Round(time.Millisecond),
	)

	if c.opts.Archiver != nil {
		if err := c.opts.Archiver.SaveCycle(ctx, report, snap.Items); err != nil {
			c.logger.Error("Archiving cycle failed", "cycle", report.ID, "err", err)
		}
	}
	return report, nil
}

// fetchAll runs every adapter concurrently, each under its own timeout.
// Results are indexed like c.adapters.
func (c *Collector) fetchAll(ctx context.Context) []fetchResult {
	results := make([]fetchResult, len(c.adapters))

	var g errgroup.Group
	g.SetLimit(c.opts.Workers)
	for i, a := range c.adapters {
		g.Go(func() error {
			results[i] = c.fetchOne(ctx, a)
			return nil // failures are recorded per source
		})
	}
	_ = g.Wait()
	return results
}

func (c *Collector) fetchOne(ctx context.Context, a source.Adapter) fetchResult {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return fetchResult{err: source.AsFetchError(a.Name(), err), checkedAt: c.opts.Now()}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	done := make(chan fetchResult, 1)
	go func() {
		cands, err := a.Fetch(fetchCtx)
		done <- fetchResult{candidates: cands, err: err}
	}()

	var res fetchResult
	select {
	case res = <-done:
	case <-fetchCtx.Done():
		res = fetchResult{err: fetchCtx.Err()}
	}
	if res.err != nil {
		res.candidates = nil
		res.err = source.AsFetchError(a.Name(), res.err)
	}
	res.duration = time.Since(start)
	res.checkedAt = c.opts.Now()
	return res
}

// normalize turns fetch results into items in configuration order and
// fills the per-source statuses.
func (c *Collector) normalize(results []fetchResult, collectedAt time.Time, report *news.CycleReport) ([]news.Item, []news.SourceStatus) {
	var items []news.Item
	statuses := make([]news.SourceStatus, len(c.adapters))

	for i, a := range c.adapters {
		res := results[i]
		st := news.SourceStatus{
			Name:      a.Name(),
			Strategy:  string(a.Strategy()),
			Duration:  res.duration,
			CheckedAt: res.checkedAt,
		}

		if res.err != nil {
			fe := source.AsFetchError(a.Name(), res.err)
			st.ErrorKind = string(fe.Kind)
			st.Error = fe.Err.Error()
			report.Failed++
			c.logger.Warn("Source failed", "source", a.Name(), "kind", fe.Kind, "err", fe.Err)
			statuses[i] = st
			continue
		}

		st.OK = true
		st.Fetched = len(res.candidates)
		for _, cand := range res.candidates {
			item, err := a.Normalize(cand, collectedAt)
			if err != nil {
				st.Dropped++
				c.logger.Debug("Dropped candidate", "source", a.Name(), "err", err)
				continue
			}
			items = append(items, item)
			st.Items++
		}
		report.Succeeded++
		report.Candidates += st.Fetched
		report.Dropped += st.Dropped
		c.logger.Debug("Source fetched", "source", a.Name(), "items", st.Items, "dropped", st.Dropped, "duration", st.Duration)
		statuses[i] = st
	}
	return items, statuses
}

// process enriches, classifies, deduplicates and, with the merge policy,
// folds in and evicts previously published items.
func (c *Collector) process(ctx context.Context, items []news.Item, prev *store.Snapshot, report *news.CycleReport) []news.Item {
	if c.opts.Enricher != nil {
		report.Enriched = c.opts.Enricher.Enrich(ctx, items).Enriched
	}

	for i := range items {
		if c.classifier.Apply(&items[i]) {
			report.Defaulted++
		}
	}

	out := c.dedup.Dedupe(items)
	report.Duplicates = len(items) - len(out)

	if !c.opts.Merge.Enabled {
		return out
	}

	cutoff := time.Time{}
	if c.opts.Merge.MaxAge > 0 {
		cutoff = c.opts.Now().Add(-c.opts.Merge.MaxAge)
	}
	carried := make([]news.Item, 0, len(prev.Items))
	for _, it := range prev.Items {
		if !cutoff.IsZero() && it.PublishedAt.Before(cutoff) {
			report.Evicted++
			continue
		}
		carried = append(carried, it)
	}

	out = c.dedup.Dedupe(append(out, carried...))
	store.SortItems(out)
	if limit := c.opts.Merge.MaxItems; limit > 0 && len(out) > limit {
		report.Evicted += len(out) - limit
		out = out[:limit]
	}
	return out
}

func (c *Collector) abandon(report *news.CycleReport, start time.Time, err error) (*news.CycleReport, error) {
	report.Duration = time.Since(start)
	c.setLast(report)
	c.logger.Warn("Collection cancelled, results discarded", "cycle", report.ID, "err", err)
	return report, err
}

func (c *Collector) setLast(r *news.CycleReport) {
	c.mu.Lock()
	c.last = r
	c.mu.Unlock()
}

// SnapshotLoader reads back the most recent archived snapshot.
type SnapshotLoader interface {
	LatestSnapshot(ctx context.Context) (*news.CycleReport, []news.Item, error)
}

// Restore publishes the latest archived snapshot into st and returns its
// report. The loader's not-found error is returned unchanged.
func Restore(ctx context.Context, loader SnapshotLoader, st *store.Store) (*news.CycleReport, error) {
	report, items, err := loader.LatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	st.Publish(store.NewSnapshot(report.ID, report.StartedAt.Add(report.Duration), items, report.Sources))
	return report, nil
}

// Restore warm-starts the collector from the archive, so merge and empty
// cycles build on what was served before the process started.
func (c *Collector) Restore(ctx context.Context, loader SnapshotLoader) error {
	report, err := Restore(ctx, loader, c.store)
	if err != nil {
		return err
	}
	c.setLast(report)
	c.logger.Info("Restored archived snapshot", "cycle", report.ID, "items", len(c.store.Snapshot().Items))
	return nil
}
