package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/TobiSchelling/secnews/internal/news"
	"github.com/TobiSchelling/secnews/internal/store"
)

var generated = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func sample() Data {
	return Data{
		GeneratedAt: generated,
		Items: []news.Item{
			{ID: "1", Title: "Ransomware [gang] hits *hospital*", URL: "https://a.test/1", Source: "Alpha", Category: "Malware", PublishedAt: generated, Summary: "Systems encrypted", Keywords: []string{"CVE-2026-0001", "ransomware"}},
			{ID: "2", Title: "Zero-day in VPN appliance", URL: "https://b.test/2", Source: "Beta", Category: "Vulnerability", PublishedAt: generated.Add(-time.Hour)},
			{ID: "3", Title: "Loader spreads via ads", URL: "https://b.test/3", Source: "Beta", Category: "Malware", PublishedAt: generated.Add(-2 * time.Hour), Summary: "Contains, commas \"and quotes\""},
		},
		Sources: []news.SourceStatus{
			{Name: "Alpha", OK: true},
			{Name: "Beta", OK: true},
			{Name: "Gamma", OK: false, ErrorKind: "network"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"json": JSON, "CSV": CSV, " md ": Markdown, "markdown": Markdown, "html": HTML, "xlsx": XLSX, "Excel": XLSX} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseFormat("pdf")
	require.Error(t, err)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sample()))

	var doc struct {
		GeneratedAt string      `json:"generated_at"`
		TotalCount  int         `json:"total_count"`
		Sources     []string    `json:"sources"`
		Categories  []string    `json:"categories"`
		News        []news.Item `json:"news"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Equal(t, 3, doc.TotalCount)
	require.Equal(t, []string{"Alpha", "Beta"}, doc.Sources)
	require.Equal(t, []string{"Malware", "Vulnerability"}, doc.Categories)
	require.Len(t, doc.News, 3)
	require.Equal(t, generated.Local().Format("2006-01-02 15:04:05"), doc.GeneratedAt)
}

func TestWriteJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, Data{GeneratedAt: generated}))
	require.Contains(t, buf.String(), `"news": []`)
	require.Contains(t, buf.String(), `"total_count": 0`)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sample()))

	raw := buf.String()
	require.True(t, strings.HasPrefix(raw, "\ufeff"), "missing byte order mark")

	rows, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(raw, "\ufeff"))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.Equal(t, csvHeader, rows[0])
	require.Equal(t, "CVE-2026-0001, ransomware", rows[1][5])
	require.Equal(t, "https://a.test/1", rows[1][6])
	require.Equal(t, `Contains, commas "and quotes"`, rows[3][4])
}

func TestRenderMarkdown(t *testing.T) {
	out := RenderMarkdown(sample())

	require.Contains(t, out, "## Malware (2)")
	require.Contains(t, out, "## Vulnerability (1)")
	require.Less(t, strings.Index(out, "## Malware"), strings.Index(out, "## Vulnerability"))
	require.Contains(t, out, `[Ransomware \[gang\] hits \*hospital\*](https://a.test/1)`)
	require.Contains(t, out, "- Gamma: network")
}

func TestRenderMarkdownEmpty(t *testing.T) {
	out := RenderMarkdown(Data{GeneratedAt: generated})
	require.Contains(t, out, "No news collected.")
	require.NotContains(t, out, "## ")
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, sample()))

	out := buf.String()
	require.Contains(t, out, "<!DOCTYPE html>")
	require.Contains(t, out, "<h2>Malware (2)</h2>")
	require.Contains(t, out, `<a href="https://b.test/2">Zero-day in VPN appliance</a>`)
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sample()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, []string{newsSheet, statsSheet}, f.GetSheetList())

	rows, err := f.GetRows(newsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.Equal(t, xlsxHeader, rows[0])
	require.Equal(t, []string{"1", formatDate(generated), "Alpha", "Malware", "Ransomware [gang] hits *hospital*", "Systems encrypted", "CVE-2026-0001, ransomware", "https://a.test/1"}, rows[1])
	require.Equal(t, `Contains, commas "and quotes"`, rows[3][5])

	ok, target, err := f.GetCellHyperLink(newsSheet, "H3")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "https://b.test/2", target)

	panes, err := f.GetPanes(newsSheet)
	require.NoError(t, err)
	require.True(t, panes.Freeze)
	require.Equal(t, "A2", panes.TopLeftCell)

	stats, err := f.GetRows(statsSheet)
	require.NoError(t, err)
	require.Equal(t, "Security News Report", stats[0][0])
	require.Equal(t, []string{"Total items", "3"}, stats[3])
	require.Equal(t, []string{"Earliest", formatDate(generated.Add(-2 * time.Hour))}, stats[4])
	require.Equal(t, []string{"Latest", formatDate(generated)}, stats[5])
	require.Equal(t, []string{"By source"}, stats[7])
	require.Equal(t, []string{"Beta", "2"}, stats[8])
	require.Equal(t, []string{"Alpha", "1"}, stats[9])
	require.Equal(t, []string{"By category"}, stats[11])
	require.Equal(t, []string{"Malware", "2"}, stats[12])
	require.Equal(t, []string{"Vulnerability", "1"}, stats[13])

	merged, err := f.GetMergeCells(statsSheet)
	require.NoError(t, err)
	require.Len(t, merged, 1)
	require.Equal(t, "A1", merged[0].GetStartAxis())
	require.Equal(t, "C1", merged[0].GetEndAxis())
}

func TestWriteXLSXEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, Data{GeneratedAt: generated}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(newsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	total, err := f.GetCellValue(statsSheet, "B4")
	require.NoError(t, err)
	require.Equal(t, "0", total)
}

func TestCategoryFill(t *testing.T) {
	require.Equal(t, "FFE0E0", categoryFill("Malware"))
	require.Equal(t, "F3E5F5", categoryFill("DataBreach"))
	require.Equal(t, "FBE9E7", categoryFill("IoT"))
	require.Empty(t, categoryFill("Other"))
}

func TestWriteDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	paths, err := WriteDir(dir, sample())
	require.NoError(t, err)
	require.Len(t, paths, len(AllFormats))

	for _, f := range AllFormats {
		info, err := os.Stat(filepath.Join(dir, FileName(f)))
		require.NoError(t, err, f)
		require.NotZero(t, info.Size(), f)
	}
	_, err = os.Stat(filepath.Join(dir, "data.json.tmp"))
	require.True(t, os.IsNotExist(err))
}

func TestWriteDirSelectedFormats(t *testing.T) {
	dir := t.TempDir()
	paths, err := WriteDir(dir, sample(), CSV)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "security_news.csv")}, paths)
}

func TestFromSnapshot(t *testing.T) {
	d := sample()
	snap := store.NewSnapshot("c1", generated, d.Items, []news.SourceStatus{{Name: "Zeta"}, {Name: "Alpha"}})

	got := FromSnapshot(snap)
	require.Equal(t, generated, got.GeneratedAt)
	require.Len(t, got.Items, 3)
	require.Equal(t, "Alpha", got.Sources[0].Name)
	require.Equal(t, "Zeta", got.Sources[1].Name)
}
