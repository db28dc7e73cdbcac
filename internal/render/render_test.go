package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebuildervaibhav/abacus/internal/types"
)

func completedRecord(t *testing.T, sampleRows int) *types.Record {
	t.Helper()
	rows := make([]map[string]any, sampleRows)
	for i := range rows {
		rows[i] = map[string]any{
			"claim_id":        fmt.Sprintf("C%03d", i+1),
			"amount":          1250.5,
			"is_anomaly":      i%4 == 0,
			"anomaly_reasons": "",
		}
		if i%4 == 0 {
			rows[i]["anomaly_reasons"] = "Invalid ZIP"
		}
	}
	report, err := json.Marshal(map[string]any{
		"quality_report": map[string]any{
			"missing_values":  map[string]int{"dob": 3, "zip_code": 4},
			"duplicates":      2,
			"format_errors":   6,
			"total_instances": 15,
			"score":           87,
		},
		"anomaly_stats": map[string]any{
			"total_anomalies":    20,
			"anomaly_percentage": 1.25,
			"rule_based_count":   15,
			"ml_based_count":     5,
		},
		"sample_data": rows,
	})
	require.NoError(t, err)

	score, total, anomalies := 87.0, 1600, 20
	return &types.Record{
		ID:           "job-1",
		SourceName:   "claims.csv",
		Status:       types.StatusCompleted,
		QualityScore: &score,
		TotalRows:    &total,
		AnomalyCount: &anomalies,
		Report:       report,
	}
}

func render(t *testing.T, rec *types.Record, page int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, New().Render(&buf, rec, page))
	return buf.String()
}

func TestRender_Pending(t *testing.T) {
	out := render(t, &types.Record{Status: types.StatusPending}, 1)
	assert.Equal(t, "Processing dataset... Please wait.\n", out)
}

func TestRender_Failed(t *testing.T) {
	out := render(t, &types.Record{Status: types.StatusFailed, Error: "boom"}, 1)
	assert.Contains(t, out, "Processing Failed")
	assert.Contains(t, out, "There was an error processing your file.")
}

func TestRender_UnknownStatus(t *testing.T) {
	err := New().Render(&bytes.Buffer{}, &types.Record{Status: "processing"}, 1)
	assert.Error(t, err)
}

func TestRender_CompletedSummary(t *testing.T) {
	out := render(t, completedRecord(t, 25), 1)

	assert.Contains(t, out, "Quality Score: 87/100")
	assert.Contains(t, out, "Total Rows:    1,600")
	assert.Contains(t, out, "Total Issues:  20 in 20 rows")
	assert.Contains(t, out, "Anomaly Rate:  1.25%")

	assert.Regexp(t, `Missing Values\s+\|\s+7\s`, out)
	assert.Regexp(t, `Duplicates\s+\|\s+2\s`, out)
	assert.Regexp(t, `Format Errors\s+\|\s+6\s`, out)
	assert.Regexp(t, `Statistical Outliers\s+\|\s+5\s`, out)
}

func TestRender_SamplePages(t *testing.T) {
	rec := completedRecord(t, 25)

	tests := []struct {
		page     int
		wantPage string
		first    string
		last     string
		rows     int
	}{
		{page: 1, wantPage: "Page 1 of 3", first: "C001", last: "C010", rows: 10},
		{page: 3, wantPage: "Page 3 of 3", first: "C021", last: "C025", rows: 5},
		{page: 9, wantPage: "Page 3 of 3", first: "C021", last: "C025", rows: 5},
		{page: 0, wantPage: "Page 1 of 3", first: "C001", last: "C010", rows: 10},
	}
	for _, tt := range tests {
		out := render(t, rec, tt.page)
		assert.Contains(t, out, tt.wantPage)
		assert.Contains(t, out, tt.first)
		assert.Contains(t, out, tt.last)
		assert.Equal(t, tt.rows, strings.Count(out, "1250.5"), "page %d", tt.page)
	}
}

func TestRender_SampleBadges(t *testing.T) {
	out := render(t, completedRecord(t, 4), 1)

	assert.Contains(t, out, "CLAIM ID")
	assert.Contains(t, out, "IS ANOMALY")
	assert.Contains(t, out, "ANOMALY REASONS")
	assert.Equal(t, 1, strings.Count(out, "| Anomaly "))
	assert.Equal(t, 3, strings.Count(out, "| Normal "))
	assert.Contains(t, out, "Invalid ZIP")
	assert.Equal(t, 3, strings.Count(out, "| - "))
}

func TestRender_NoSamples(t *testing.T) {
	out := render(t, completedRecord(t, 0), 1)
	assert.Contains(t, out, "No sample rows.")
	assert.NotContains(t, out, "Page ")
}

func TestPageCount(t *testing.T) {
	assert.Equal(t, 0, PageCount(0, 10))
	assert.Equal(t, 1, PageCount(10, 10))
	assert.Equal(t, 2, PageCount(11, 10))
}

func TestGroupThousands(t *testing.T) {
	for in, want := range map[int]string{0: "0", 999: "999", 1000: "1,000", 1234567: "1,234,567", -4500: "-4,500"} {
		assert.Equal(t, want, groupThousands(in))
	}
}
