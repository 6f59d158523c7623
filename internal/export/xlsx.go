package export

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/TobiSchelling/secnews/internal/news"
)

const (
	newsSheet  = "Security News"
	statsSheet = "Statistics"
)

var xlsxHeader = []string{"#", "Date", "Source", "Category", "Title", "Summary", "Keywords", "Link"}

var xlsxWidths = map[string]float64{
	"A": 6, "B": 16, "C": 18, "D": 20, "E": 50, "F": 60, "G": 30, "H": 40,
}

// categoryFills tints rows by category. A fill applies when its key occurs
// in the category name, ignoring case.
var categoryFills = []struct{ key, color string }{
	{"malware", "FFE0E0"},
	{"vulnerab", "FFF3E0"},
	{"breach", "F3E5F5"},
	{"hack", "E3F2FD"},
	{"phish", "FFF8E1"},
	{"supply", "E8F5E9"},
	{"cloud", "E0F7FA"},
	{"iot", "FBE9E7"},
	{"policy", "ECEFF1"},
}

func categoryFill(cat news.Category) string {
	name := strings.ToLower(string(cat))
	for _, f := range categoryFills {
		if strings.Contains(name, f.key) {
			return f.color
		}
	}
	return ""
}

// sheet records the first failing excelize call so cell writes read as a
// flat sequence.
type sheet struct {
	f    *excelize.File
	name string
	err  error
}

func (s *sheet) set(col, row int, v any) {
	if s.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		s.err = err
		return
	}
	s.err = s.f.SetCellValue(s.name, cell, v)
}

func (s *sheet) style(from, to string, id int) {
	if s.err == nil {
		s.err = s.f.SetCellStyle(s.name, from, to, id)
	}
}

func (s *sheet) width(col string, w float64) {
	if s.err == nil {
		s.err = s.f.SetColWidth(s.name, col, col, w)
	}
}

func thinBorder(color string) []excelize.Border {
	var out []excelize.Border
	for _, side := range []string{"left", "top", "right", "bottom"} {
		out = append(out, excelize.Border{Type: side, Color: color, Style: 1})
	}
	return out
}

// styles caches one body style per fill color.
type styles struct {
	f      *excelize.File
	header int
	link   map[string]int
	body   map[string]int
}

func newStyles(f *excelize.File) (*styles, error) {
	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF", Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"1F4E79"}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
		Border:    thinBorder("CCCCCC"),
	})
	if err != nil {
		return nil, err
	}
	return &styles{f: f, header: header, link: map[string]int{}, body: map[string]int{}}, nil
}

func (st *styles) cell(fill string, link bool) (int, error) {
	cache := st.body
	if link {
		cache = st.link
	}
	if id, ok := cache[fill]; ok {
		return id, nil
	}
	s := &excelize.Style{
		Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
		Border:    thinBorder("CCCCCC"),
	}
	if fill != "" {
		s.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{fill}}
	}
	if link {
		s.Font = &excelize.Font{Color: "0563C1", Underline: "single"}
	}
	id, err := st.f.NewStyle(s)
	if err != nil {
		return 0, err
	}
	cache[fill] = id
	return id, nil
}

// WriteXLSX writes a workbook with one row per item on the first sheet and
// source and category counts on the second.
func WriteXLSX(w io.Writer, d Data) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", newsSheet); err != nil {
		return err
	}
	if err := writeNewsSheet(f, d.Items); err != nil {
		return fmt.Errorf("news sheet: %w", err)
	}
	if _, err := f.NewSheet(statsSheet); err != nil {
		return err
	}
	if err := writeStatsSheet(f, d.Items); err != nil {
		return fmt.Errorf("statistics sheet: %w", err)
	}
	f.SetActiveSheet(0)
	return f.Write(w)
}

func writeNewsSheet(f *excelize.File, items []news.Item) error {
	st, err := newStyles(f)
	if err != nil {
		return err
	}
	s := &sheet{f: f, name: newsSheet}

	for i, h := range xlsxHeader {
		s.set(i+1, 1, h)
	}
	s.style("A1", "H1", st.header)

	for i, it := range items {
		row := i + 2
		values := []any{
			i + 1,
			formatDate(it.PublishedAt),
			it.Source,
			string(it.Category),
			it.Title,
			it.Summary,
			strings.Join(it.Keywords, ", "),
			it.URL,
		}
		for col, v := range values {
			s.set(col+1, row, v)
		}
		if s.err != nil {
			return s.err
		}

		fill := categoryFill(it.Category)
		body, err := st.cell(fill, false)
		if err != nil {
			return err
		}
		s.style(fmt.Sprintf("A%d", row), fmt.Sprintf("G%d", row), body)

		link := fmt.Sprintf("H%d", row)
		if it.URL != "" {
			linkStyle, err := st.cell(fill, true)
			if err != nil {
				return err
			}
			s.style(link, link, linkStyle)
			if s.err == nil {
				s.err = f.SetCellHyperLink(newsSheet, link, it.URL, "External")
			}
		} else {
			s.style(link, link, body)
		}
	}

	for _, col := range []string{"A", "B", "C", "D", "E", "F", "G", "H"} {
		s.width(col, xlsxWidths[col])
	}
	if s.err != nil {
		return s.err
	}
	return f.SetPanes(newsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

type count struct {
	name string
	n    int
}

// countBy tallies key(item) and orders the result by count descending,
// then name.
func countBy(items []news.Item, key func(news.Item) string) []count {
	m := map[string]int{}
	for _, it := range items {
		m[key(it)]++
	}
	out := make([]count, 0, len(m))
	for name, n := range m {
		out = append(out, count{name, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].name < out[j].name
	})
	return out
}

func writeStatsSheet(f *excelize.File, items []news.Item) error {
	s := &sheet{f: f, name: statsSheet}

	title, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	if err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	s.set(1, 1, "Security News Report")
	s.style("A1", "A1", title)
	if s.err == nil {
		s.err = f.MergeCell(statsSheet, "A1", "C1")
	}

	earliest, latest := "", ""
	if n := len(items); n > 0 {
		lo, hi := items[0].PublishedAt, items[0].PublishedAt
		for _, it := range items[1:] {
			if it.PublishedAt.Before(lo) {
				lo = it.PublishedAt
			}
			if it.PublishedAt.After(hi) {
				hi = it.PublishedAt
			}
		}
		earliest, latest = formatDate(lo), formatDate(hi)
	}

	s.set(1, 3, "Overview")
	s.style("A3", "A3", bold)
	s.set(1, 4, "Total items")
	s.set(2, 4, len(items))
	s.set(1, 5, "Earliest")
	s.set(2, 5, earliest)
	s.set(1, 6, "Latest")
	s.set(2, 6, latest)

	row := 8
	section := func(heading string, counts []count) {
		s.set(1, row, heading)
		cell := fmt.Sprintf("A%d", row)
		s.style(cell, cell, bold)
		row++
		for _, c := range counts {
			s.set(1, row, c.name)
			s.set(2, row, c.n)
			row++
		}
		row++
	}
	section("By source", countBy(items, func(it news.Item) string { return it.Source }))
	section("By category", countBy(items, func(it news.Item) string { return string(it.Category) }))

	s.width("A", 25)
	s.width("B", 15)
	return s.err
}
