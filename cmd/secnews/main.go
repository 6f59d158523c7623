package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/secnews/internal/classify"
	"github.com/TobiSchelling/secnews/internal/collect"
	"github.com/TobiSchelling/secnews/internal/config"
	"github.com/TobiSchelling/secnews/internal/database"
	"github.com/TobiSchelling/secnews/internal/export"
	"github.com/TobiSchelling/secnews/internal/logging"
	"github.com/TobiSchelling/secnews/internal/news"
	"github.com/TobiSchelling/secnews/internal/scheduler"
	"github.com/TobiSchelling/secnews/internal/server"
	"github.com/TobiSchelling/secnews/internal/store"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	loadedPath string
	cfg        *config.Config
	logger     *log.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "secnews",
	Short:   "Security news collector",
	Long:    "secnews collects security news from configured feeds and sites, classifies and deduplicates it, and serves the latest snapshot.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "info"
		if verbose {
			level = "debug"
		}
		logger = logging.New(level, os.Stderr)

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		loadedPath = path
		if !verbose {
			logger.SetLevel(logging.ParseLevel(cfg.Logging.Level))
		}
		logger.Debug("Loaded config", "path", path, "sources", len(cfg.EnabledSources()))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("secnews", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/secnews/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure sources, categories and the collection schedule.")
		return nil
	},
}

// --- sources command ---

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured sources and how they fared in the last cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, closeDB, err := loadArchived(cmd.Context())
		if err != nil {
			return err
		}
		defer closeDB()

		summary := st.SourcesSummary()
		fmt.Printf("Sources (%d configured):\n\n", len(cfg.Sources))
		for _, src := range cfg.Sources {
			state := "never collected"
			if !src.IsEnabled() {
				state = "disabled"
			} else if s, ok := summary[src.Name]; ok {
				if s.OK {
					state = fmt.Sprintf("ok, %d items", s.Items)
				} else {
					state = "failed: " + s.ErrorKind
				}
			}
			fmt.Printf("  %-22s %-7s %s\n", src.Name, src.Strategy, state)
			fmt.Printf("  %-22s %s\n", "", src.URL)
		}
		return nil
	},
}

var sourceStrategy string

var sourcesAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add a source to the config file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src := config.Source{Name: args[0], URL: args[1], Strategy: sourceStrategy}
		if err := config.AddSource(loadedPath, src); err != nil {
			return err
		}
		fmt.Printf("Added source %q to %s\n", src.Name, loadedPath)
		return nil
	},
}

var sourcesRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a source from the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.RemoveSource(loadedPath, args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed source %q from %s\n", args[0], loadedPath)
		return nil
	},
}

func init() {
	sourcesAddCmd.Flags().StringVar(&sourceStrategy, "strategy", config.StrategyFeed, "Parse strategy: feed or scrape")
	sourcesCmd.AddCommand(sourcesAddCmd, sourcesRemoveCmd)
}

// --- collect command ---

var exportDir string

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one collection cycle and publish the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := openArchive()
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
		}

		st := store.New()
		collector, err := newCollector(ctx, st, db)
		if err != nil {
			return err
		}

		fmt.Println("Collecting news from sources...")
		report, err := collector.Run(ctx, collect.TriggerManual)
		if err != nil {
			return fmt.Errorf("collection: %w", err)
		}
		printReport(report)

		if exportDir != "" {
			paths, err := export.WriteDir(exportDir, export.FromSnapshot(st.Snapshot()))
			if err != nil {
				return err
			}
			fmt.Println("\nExported:")
			for _, p := range paths {
				fmt.Printf("  %s\n", p)
			}
		}
		return nil
	},
}

func init() {
	collectCmd.Flags().StringVar(&exportDir, "export-dir", "", "Write JSON, CSV, Markdown, HTML and XLSX exports to this directory")
}

// --- list and search commands ---

var (
	listCategory string
	listSource   string
	listSince    string
	listLimit    int
	listOffset   int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List news from the latest snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd.Context(), "")
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [keyword]",
	Short: "Search titles and summaries of the latest snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd.Context(), args[0])
	},
}

func init() {
	for _, c := range []*cobra.Command{listCmd, searchCmd} {
		c.Flags().StringVar(&listCategory, "category", "", "Only show this category")
		c.Flags().StringVar(&listSource, "source", "", "Only show this source")
		c.Flags().StringVar(&listSince, "since", "", "Only show news published within this duration (e.g. 24h)")
		c.Flags().IntVarP(&listLimit, "limit", "n", 20, "Maximum number of items (0 for all)")
		c.Flags().IntVar(&listOffset, "offset", 0, "Skip this many items")
	}
}

func runQuery(ctx context.Context, keyword string) error {
	st, closeDB, err := loadArchived(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	q := store.Query{
		Category: news.Category(listCategory),
		Source:   listSource,
		Keyword:  keyword,
		Limit:    listLimit,
		Offset:   listOffset,
	}
	if listSince != "" {
		d, err := time.ParseDuration(listSince)
		if err != nil {
			return fmt.Errorf("invalid --since: %w", err)
		}
		q.From = time.Now().Add(-d)
	}

	items := st.Query(q)
	if len(items) == 0 {
		fmt.Println("No matching news. Run 'secnews collect' to fetch the latest.")
		return nil
	}
	for _, it := range items {
		date := it.PublishedAt.Local().Format("2006-01-02 15:04")
		if it.Approximate {
			date += "~"
		}
		fmt.Printf("%s  [%s] %s\n", date, it.Category, it.Title)
		fmt.Printf("                   %s | %s\n", it.Source, it.URL)
	}
	return nil
}

// --- stats and status commands ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show counts by source and category for the latest snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, closeDB, err := loadArchived(cmd.Context())
		if err != nil {
			return err
		}
		defer closeDB()

		stats := st.Stats()
		fmt.Printf("Total items: %d\n", stats.Total)
		if stats.Total > 0 {
			fmt.Printf("Published between %s and %s\n",
				stats.Earliest.Local().Format("2006-01-02 15:04"), stats.Latest.Local().Format("2006-01-02 15:04"))
		}
		fmt.Println("\nBy category:")
		printCounts(stats.ByCategory)
		fmt.Println("\nBy source:")
		printCounts(stats.BySource)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last collection cycle and archive status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openArchive()
		if err != nil {
			return err
		}
		if db == nil {
			fmt.Println("Archive disabled; no cycle history is kept between runs.")
			return nil
		}
		defer db.Close()

		ctx := cmd.Context()
		report, err := db.LatestCycle(ctx)
		if err != nil {
			return fmt.Errorf("reading last cycle: %w", err)
		}
		total, err := db.CountItems(ctx)
		if err != nil {
			return fmt.Errorf("counting items: %w", err)
		}

		fmt.Printf("Archive: %s\n", db.Path())
		fmt.Printf("Items ever archived: %d\n\n", total)
		if report == nil {
			fmt.Println("No collection cycle recorded yet.")
			return nil
		}
		fmt.Printf("Last cycle %s (%s) at %s\n", report.ID, report.Trigger, report.StartedAt.Local().Format("2006-01-02 15:04:05"))
		printReport(report)

		recent, err := db.RecentCycles(ctx, 5)
		if err != nil {
			return fmt.Errorf("reading cycle history: %w", err)
		}
		fmt.Println("\nRecent cycles:")
		for _, r := range recent {
			flag := ""
			if r.Empty {
				flag = " (empty)"
			}
			fmt.Printf("  %s  %-8s %3d items, %d/%d sources ok%s\n",
				r.StartedAt.Local().Format("2006-01-02 15:04"), r.Trigger, r.ItemCount, r.Succeeded, r.Succeeded+r.Failed, flag)
		}
		return nil
	},
}

// --- export command ---

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the latest snapshot as JSON, CSV, Markdown, HTML or XLSX",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, closeDB, err := loadArchived(cmd.Context())
		if err != nil {
			return err
		}
		defer closeDB()

		data := export.FromSnapshot(st.Snapshot())
		if exportFormat == "all" {
			dir := exportOut
			if dir == "" {
				dir = filepath.Join(cfg.GetDataDir(), "export")
			}
			paths, err := export.WriteDir(dir, data)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Println(p)
			}
			return nil
		}

		format, err := export.ParseFormat(exportFormat)
		if err != nil {
			return err
		}
		if exportOut == "" {
			return export.Write(os.Stdout, format, data)
		}
		paths, err := export.WriteDir(exportOut, data, format)
		if err != nil {
			return err
		}
		fmt.Println(paths[0])
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "Export format: json, csv, md, html, xlsx or all")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Directory to write into (default: stdout, or <data dir>/export for all)")
}

// --- serve command ---

var (
	servePort  int
	noSchedule bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and scheduled collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := openArchive()
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
		}

		st := store.New()
		collector, err := newCollector(ctx, st, db)
		if err != nil {
			return err
		}

		if !noSchedule {
			sched, err := scheduler.New(cfg.Collection.Schedule, collector, logger)
			if err != nil {
				return err
			}
			sched.Start(ctx, cfg.Collection.RunOnStart)
			defer sched.Stop()
			logger.Info("Scheduled collection", "schedule", cfg.Collection.Schedule)
		}

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		srv := server.New(st, collector, classify.FromConfig(cfg).Categories(), logger)
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return srv.Serve(ctx, fmt.Sprintf("127.0.0.1:%d", port))
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
	serveCmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "Serve only; collect through POST /api/collect")
}

// openArchive opens the snapshot archive, or returns nil when archiving is
// disabled.
func openArchive() (*database.DB, error) {
	if !cfg.Archive.Enabled {
		return nil, nil
	}
	return database.OpenDir(cfg.GetDataDir())
}

// newCollector wires a collector to st, warm-started from db when present.
func newCollector(ctx context.Context, st *store.Store, db *database.DB) (*collect.Collector, error) {
	var archiver collect.Archiver
	if db != nil {
		archiver = db
	}
	collector, err := collect.FromConfig(cfg, st, archiver, logger)
	if err != nil {
		return nil, err
	}
	if db != nil {
		if err := collector.Restore(ctx, db); err != nil && !errors.Is(err, database.ErrNoSnapshot) {
			return nil, fmt.Errorf("restoring archived snapshot: %w", err)
		}
	}
	return collector, nil
}

// loadArchived returns a store serving the latest archived snapshot.
func loadArchived(ctx context.Context) (*store.Store, func(), error) {
	st := store.New()
	db, err := openArchive()
	if err != nil {
		return nil, nil, err
	}
	if db == nil {
		return st, func() {}, nil
	}
	if _, err := collect.Restore(ctx, db, st); err != nil && !errors.Is(err, database.ErrNoSnapshot) {
		db.Close()
		return nil, nil, fmt.Errorf("reading archived snapshot: %w", err)
	}
	return st, func() { db.Close() }, nil
}

func printReport(r *news.CycleReport) {
	fmt.Println("\nCollection complete:")
	if r.Empty {
		fmt.Println("  No source succeeded; previous items were kept.")
	}
	fmt.Printf("  Sources ok: %d, failed: %d\n", r.Succeeded, r.Failed)
	fmt.Printf("  Candidates: %d, dropped: %d, duplicates: %d\n", r.Candidates, r.Dropped, r.Duplicates)
	if r.Enriched > 0 || r.Evicted > 0 {
		fmt.Printf("  Enriched: %d, evicted: %d\n", r.Enriched, r.Evicted)
	}
	fmt.Printf("  Published items: %d (%d uncategorized)\n", r.ItemCount, r.Defaulted)
	fmt.Printf("  Took: %s\n", r.Duration.Round(time.Millisecond))

	if len(r.Sources) > 0 {
		fmt.Println("\nBy source:")
		for _, s := range r.Sources {
			if s.OK {
				fmt.Printf("  %-22s %3d items\n", s.Name, s.Published)
			} else {
				fmt.Printf("  %-22s failed (%s): %s\n", s.Name, s.ErrorKind, s.Error)
			}
		}
	}
}

// printCounts prints a count map sorted by count descending, then key.
func printCounts[K ~string](m map[K]int) {
	type kv struct {
		key K
		val int
	}
	sorted := make([]kv, 0, len(m))
	for k, v := range m {
		sorted = append(sorted, kv{k, v})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].val != sorted[j].val {
			return sorted[i].val > sorted[j].val
		}
		return sorted[i].key < sorted[j].key
	})
	for _, s := range sorted {
		fmt.Printf("  %-22s %d\n", strings.TrimSpace(string(s.key)), s.val)
	}
}
