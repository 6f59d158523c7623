package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/secnews/internal/news"
)

type jsonDoc struct {
	GeneratedAt string          `json:"generated_at"`
	TotalCount  int             `json:"total_count"`
	Sources     []string        `json:"sources"`
	Categories  []news.Category `json:"categories"`
	News        []news.Item     `json:"news"`
}

// WriteJSON writes the snapshot with summary fields up front.
func WriteJSON(w io.Writer, d Data) error {
	items := d.Items
	if items == nil {
		items = []news.Item{}
	}
	doc := jsonDoc{
		GeneratedAt: d.GeneratedAt.Local().Format("2006-01-02 15:04:05"),
		TotalCount:  len(items),
		Sources:     uniqueSources(items),
		Categories:  uniqueCategories(items),
		News:        items,
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

var csvHeader = []string{"date", "source", "category", "title", "summary", "keywords", "link"}

// WriteCSV writes one row per item, prefixed with a UTF-8 BOM so
// spreadsheet tools detect the encoding.
func WriteCSV(w io.Writer, d Data) error {
	if _, err := io.WriteString(w, "\ufeff"); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, it := range d.Items {
		row := []string{
			formatDate(it.PublishedAt),
			it.Source,
			string(it.Category),
			it.Title,
			it.Summary,
			strings.Join(it.Keywords, ", "),
			it.URL,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// RenderMarkdown builds a digest grouped by category in first-seen order.
func RenderMarkdown(d Data) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Security News Digest\n\n")
	fmt.Fprintf(&b, "_Generated %s, %d items from %d sources._\n", d.GeneratedAt.Local().Format("2006-01-02 15:04"), len(d.Items), len(uniqueSources(d.Items)))

	if len(d.Items) == 0 {
		b.WriteString("\nNo news collected.\n")
	}

	var sections []string
	for _, cat := range uniqueCategories(d.Items) {
		var lines []string
		for _, it := range d.Items {
			if it.Category != cat {
				continue
			}
			line := fmt.Sprintf("- [%s](%s) (%s, %s)", escapeMarkdown(it.Title), it.URL, it.Source, formatDate(it.PublishedAt))
			if it.Summary != "" {
				line += "\n  " + escapeMarkdown(it.Summary)
			}
			lines = append(lines, line)
		}
		sections = append(sections, fmt.Sprintf("## %s (%d)\n\n%s", cat, len(lines), strings.Join(lines, "\n")))
	}
	if len(sections) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(sections, "\n\n"))
		b.WriteString("\n")
	}

	var failed []string
	for _, s := range d.Sources {
		if !s.OK {
			failed = append(failed, fmt.Sprintf("- %s: %s", s.Name, s.ErrorKind))
		}
	}
	if len(failed) > 0 {
		b.WriteString("\n---\n\n**Unavailable sources:**\n\n")
		b.WriteString(strings.Join(failed, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

var mdEscaper = strings.NewReplacer(
	`\`, `\\`, "[", `\[`, "]", `\]`, "*", `\*`, "_", `\_`, "`", "\\`", "<", "&lt;",
)

func escapeMarkdown(s string) string {
	return mdEscaper.Replace(s)
}

var md = goldmark.New()

var page = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Security News Digest</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 60rem; margin: 2rem auto; padding: 0 1rem; line-height: 1.5; }
li { margin-bottom: .5rem; }
</style>
</head>
<body>
{{.}}
</body>
</html>
`))

// WriteHTML renders the Markdown digest to a standalone HTML page.
func WriteHTML(w io.Writer, d Data) error {
	var buf bytes.Buffer
	if err := md.Convert([]byte(RenderMarkdown(d)), &buf); err != nil {
		return fmt.Errorf("rendering markdown: %w", err)
	}
	return page.Execute(w, template.HTML(buf.String())) //nolint: gosec
}
