// Package export writes a news snapshot as JSON, CSV, Markdown, HTML or XLSX.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/TobiSchelling/secnews/internal/news"
	"github.com/TobiSchelling/secnews/internal/store"
)

// Format names an export format.
type Format string

const (
	JSON     Format = "json"
	CSV      Format = "csv"
	Markdown Format = "md"
	HTML     Format = "html"
	XLSX     Format = "xlsx"
)

// AllFormats lists every supported format.
var AllFormats = []Format{JSON, CSV, Markdown, HTML, XLSX}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case JSON, CSV, HTML, XLSX:
		return f, nil
	case Markdown, "markdown":
		return Markdown, nil
	case "excel":
		return XLSX, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want json, csv, md, html or xlsx)", s)
	}
}

// FileName returns the file an export format is written to.
func FileName(f Format) string {
	switch f {
	case JSON:
		return "data.json"
	case CSV:
		return "security_news.csv"
	case Markdown:
		return "security_news.md"
	case HTML:
		return "index.html"
	case XLSX:
		return "security_news_report.xlsx"
	}
	return "security_news." + string(f)
}

// ContentType returns the HTTP content type of a format.
func ContentType(f Format) string {
	switch f {
	case JSON:
		return "application/json; charset=utf-8"
	case CSV:
		return "text/csv; charset=utf-8"
	case Markdown:
		return "text/markdown; charset=utf-8"
	case XLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/html; charset=utf-8"
	}
}

// Data is what every exporter renders.
type Data struct {
	GeneratedAt time.Time
	Items       []news.Item
	Sources     []news.SourceStatus
}

// Write renders data in the given format.
func Write(w io.Writer, f Format, d Data) error {
	switch f {
	case JSON:
		return WriteJSON(w, d)
	case CSV:
		return WriteCSV(w, d)
	case Markdown:
		_, err := io.WriteString(w, RenderMarkdown(d))
		return err
	case HTML:
		return WriteHTML(w, d)
	case XLSX:
		return WriteXLSX(w, d)
	default:
		return fmt.Errorf("unknown export format %q", f)
	}
}

// WriteDir writes one file per format into dir and returns their paths.
func WriteDir(dir string, d Data, formats ...Format) ([]string, error) {
	if len(formats) == 0 {
		formats = AllFormats
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}

	var paths []string
	for _, f := range formats {
		path := filepath.Join(dir, FileName(f))
		if err := writeFile(path, f, d); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, f Format, d Data) error {
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := Write(file, f, d); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

// uniqueSources lists the sources of the items in first-seen order.
func uniqueSources(items []news.Item) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, it := range items {
		if _, ok := seen[it.Source]; !ok {
			seen[it.Source] = struct{}{}
			out = append(out, it.Source)
		}
	}
	return out
}

// uniqueCategories lists the categories of the items in first-seen order.
func uniqueCategories(items []news.Item) []news.Category {
	seen := make(map[news.Category]struct{})
	var out []news.Category
	for _, it := range items {
		if _, ok := seen[it.Category]; !ok {
			seen[it.Category] = struct{}{}
			out = append(out, it.Category)
		}
	}
	return out
}

func formatDate(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}

// FromSnapshot collects the exportable parts of a snapshot. Source statuses
// are ordered by name.
func FromSnapshot(snap *store.Snapshot) Data {
	d := Data{GeneratedAt: snap.PublishedAt, Items: snap.Items}
	if d.GeneratedAt.IsZero() {
		d.GeneratedAt = time.Now()
	}
	for _, st := range snap.Sources {
		d.Sources = append(d.Sources, st)
	}
	sort.Slice(d.Sources, func(i, j int) bool { return d.Sources[i].Name < d.Sources[j].Name })
	return d
}
