// Package render prints dataset records for a terminal.
package render

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/codebuildervaibhav/abacus/internal/types"
)

// DefaultPageSize is the number of sample rows per page.
const DefaultPageSize = 10

// Renderer writes a record as text. Pending and failed records get a status
// line; completed ones get the summary, the quality breakdown and one page of
// sample rows.
type Renderer struct {
	PageSize int
}

// New creates a renderer with the default page size.
func New() *Renderer {
	return &Renderer{PageSize: DefaultPageSize}
}

// Render writes rec with sample page page. Out of range pages are clamped.
func (r *Renderer) Render(w io.Writer, rec *types.Record, page int) error {
	switch rec.Status {
	case types.StatusPending:
		_, err := fmt.Fprintln(w, "Processing dataset... Please wait.")
		return err
	case types.StatusFailed:
		_, err := fmt.Fprintln(w, "Processing Failed\nThere was an error processing your file.")
		return err
	case types.StatusCompleted:
	default:
		return fmt.Errorf("unknown status %q", rec.Status)
	}

	report, err := types.ParseReport(rec.Report)
	if err != nil {
		return err
	}

	r.summary(w, rec, report)
	r.breakdown(w, report)
	return r.samples(w, report.SampleData, page)
}

func (r *Renderer) summary(w io.Writer, rec *types.Record, report *types.Report) {
	var score float64
	if rec.QualityScore != nil {
		score = *rec.QualityScore
	}
	issues := report.QualityReport.TotalInstances + report.AnomalyStats.MLBasedCount

	fmt.Fprintf(w, "Dataset:       %s (%s)\n", rec.SourceName, rec.ID)
	fmt.Fprintf(w, "Quality Score: %s/100\n", formatFloat(score))
	fmt.Fprintf(w, "Total Rows:    %s\n", groupThousands(deref(rec.TotalRows)))
	fmt.Fprintf(w, "Total Issues:  %d in %s rows\n", issues, groupThousands(deref(rec.AnomalyCount)))
	fmt.Fprintf(w, "Anomaly Rate:  %s%%\n\n", formatFloat(report.AnomalyStats.AnomalyPercentage))
}

func (r *Renderer) breakdown(w io.Writer, report *types.Report) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Issue", "Count"})
	table.SetAutoFormatHeaders(false)
	table.Append([]string{"Missing Values", strconv.Itoa(report.QualityReport.MissingTotal())})
	table.Append([]string{"Duplicates", strconv.Itoa(report.QualityReport.Duplicates)})
	table.Append([]string{"Format Errors", strconv.Itoa(report.QualityReport.FormatErrors)})
	table.Append([]string{"Statistical Outliers", strconv.Itoa(report.AnomalyStats.MLBasedCount)})
	table.Render()
	fmt.Fprintln(w)
}

func (r *Renderer) samples(w io.Writer, rows []map[string]any, page int) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No sample rows.")
		return err
	}

	size := r.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	pages := PageCount(len(rows), size)
	page = ClampPage(page, pages)
	start := (page - 1) * size
	end := min(start+size, len(rows))

	columns := sampleColumns(rows)
	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = strings.ToUpper(strings.ReplaceAll(c, "_", " "))
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	for _, row := range rows[start:end] {
		cells := make([]string, len(columns))
		for i, c := range columns {
			cells[i] = formatCell(c, row[c])
		}
		table.Append(cells)
	}
	table.Render()

	_, err := fmt.Fprintf(w, "Page %d of %d\n", page, pages)
	return err
}

// PageCount returns how many pages of size hold n rows.
func PageCount(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// ClampPage limits page to [1, pages].
func ClampPage(page, pages int) int {
	if page > pages {
		page = pages
	}
	if page < 1 {
		page = 1
	}
	return page
}

// sampleColumns returns the union of row keys, data columns sorted first and
// the anomaly flag and reasons last.
func sampleColumns(rows []map[string]any) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, row := range rows {
		for k := range row {
			if seen[k] || k == types.RowAnomalyFlag || k == types.RowAnomalyReasons {
				continue
			}
			seen[k] = true
			cols = append(cols, k)
		}
	}
	sort.Strings(cols)
	return append(cols, types.RowAnomalyFlag, types.RowAnomalyReasons)
}

func formatCell(column string, v any) string {
	switch column {
	case types.RowAnomalyFlag:
		if b, _ := v.(bool); b {
			return "Anomaly"
		}
		return "Normal"
	case types.RowAnomalyReasons:
		if s := formatValue(v); s != "" {
			return s
		}
		return "-"
	}
	return formatValue(v)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return formatFloat(x)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// groupThousands formats n with comma separators.
func groupThousands(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
