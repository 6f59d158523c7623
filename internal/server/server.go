// Package server exposes the published news snapshot over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/TobiSchelling/secnews/internal/collect"
	"github.com/TobiSchelling/secnews/internal/export"
	"github.com/TobiSchelling/secnews/internal/logging"
	"github.com/TobiSchelling/secnews/internal/news"
	"github.com/TobiSchelling/secnews/internal/store"
)

const defaultLimit = 50

// Collector is the part of the orchestrator the API drives.
type Collector interface {
	Run(ctx context.Context, trigger string) (*news.CycleReport, error)
	State() collect.State
	LastReport() *news.CycleReport
	Sources() []string
}

// Server is the HTTP server for the news API.
type Server struct {
	store      *store.Store
	collector  Collector
	categories []news.Category
	logger     *log.Logger
	engine     *gin.Engine
}

// New creates a Server. categories lists the configured categories in
// classifier order, catch-all last.
func New(st *store.Store, coll Collector, categories []news.Category, logger *log.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger), cors())

	s := &Server{store: st, collector: coll, categories: categories, logger: logger, engine: engine}
	s.RegisterRoutes(engine)
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	api := r.Group("/api")
	{
		api.GET("/news", s.listNews)
		api.GET("/news/:id", s.getNews)
		api.GET("/categories", s.listCategories)
		api.GET("/sources", s.listSources)
		api.GET("/status", s.status)
		api.GET("/stats", s.stats)
		api.GET("/export", s.export)
		api.POST("/collect", s.collect)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "path": c.Request.URL.Path})
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listNews(c *gin.Context) {
	q := store.Query{
		Category: news.Category(c.Query("category")),
		Source:   c.Query("source"),
		Keyword:  c.Query("q"),
		Limit:    intQuery(c, "limit", defaultLimit),
		Offset:   intQuery(c, "offset", 0),
	}
	var err error
	if q.From, err = timeQuery(c, "from"); err != nil {
		badRequest(c, err)
		return
	}
	if q.To, err = timeQuery(c, "to"); err != nil {
		badRequest(c, err)
		return
	}

	snap := s.store.Snapshot()
	items, total := snap.Query(q)
	c.JSON(http.StatusOK, gin.H{
		"cycle_id":     snap.CycleID,
		"generated_at": snap.PublishedAt,
		"total_count":  total,
		"count":        len(items),
		"news":         items,
	})
}

func (s *Server) getNews(c *gin.Context) {
	item, ok := s.store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "news item not found"})
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) listCategories(c *gin.Context) {
	counts := s.store.Stats().ByCategory
	out := make([]gin.H, 0, len(s.categories))
	for _, cat := range s.categories {
		out = append(out, gin.H{"name": cat, "count": counts[cat]})
	}
	c.JSON(http.StatusOK, gin.H{"categories": out, "total": len(out)})
}

func (s *Server) listSources(c *gin.Context) {
	summary := s.store.SourcesSummary()
	names := s.collector.Sources()
	out := make([]store.SourceSummary, 0, len(names))
	for _, name := range names {
		if sum, ok := summary[name]; ok {
			out = append(out, sum)
		} else {
			out = append(out, store.SourceSummary{Name: name})
		}
	}
	c.JSON(http.StatusOK, gin.H{"sources": out, "total": len(out)})
}

func (s *Server) status(c *gin.Context) {
	state := s.collector.State()
	c.JSON(http.StatusOK, gin.H{
		"state":       state.String(),
		"is_running":  state != collect.Idle,
		"total_news":  s.store.Len(),
		"last_report": s.collector.LastReport(),
	})
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Stats())
}

func (s *Server) export(c *gin.Context) {
	format, err := export.ParseFormat(c.DefaultQuery("format", "json"))
	if err != nil {
		badRequest(c, err)
		return
	}
	data := export.FromSnapshot(s.store.Snapshot())
	c.Header("Content-Type", export.ContentType(format))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(format)))
	c.Status(http.StatusOK)
	if err := export.Write(c.Writer, format, data); err != nil {
		s.logger.Error("Export failed", "format", format, "err", err)
	}
}

func (s *Server) collect(c *gin.Context) {
	// The cycle outlives a client that disconnects mid-request.
	ctx := context.WithoutCancel(c.Request.Context())
	report, err := s.collector.Run(ctx, collect.TriggerManual)
	switch {
	case errors.Is(err, collect.ErrCycleInProgress):
		c.JSON(http.StatusConflict, gin.H{"success": false, "message": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error(), "report": report})
		return
	}

	msg := fmt.Sprintf("collected %d items from %d sources", report.ItemCount, report.Succeeded)
	if report.Empty {
		msg = "no source succeeded, previous items kept"
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg, "report": report})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func intQuery(c *gin.Context, key string, def int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n < 0 {
		return def
	}
	return n
}

// timeQuery accepts RFC 3339 timestamps or plain dates.
func timeQuery(c *gin.Context, key string) (time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", v, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: want RFC 3339 or YYYY-MM-DD", key, v)
	}
	if key == "to" {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func requestLogger(logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("Request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"took", time.Since(start).Round(time.Millisecond),
		)
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Server listening", "addr", "http://"+addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errc
		return nil
	}
}
