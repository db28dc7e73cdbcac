package types

import (
	"encoding/json"
	"fmt"
)

// Report is the analysis worker output stored opaquely in Record.Report.
// Only the client side decodes it.
type Report struct {
	QualityReport QualityReport    `json:"quality_report"`
	AnomalyStats  AnomalyStats     `json:"anomaly_stats"`
	SampleData    []map[string]any `json:"sample_data"`
}

// QualityReport summarises rule based data quality checks.
type QualityReport struct {
	InitialRows    int            `json:"initial_rows"`
	FinalRows      int            `json:"final_rows"`
	MissingValues  map[string]int `json:"missing_values"`
	Duplicates     int            `json:"duplicates"`
	FormatErrors   int            `json:"format_errors"`
	TotalInstances int            `json:"total_instances"`
	Score          float64        `json:"score"`
}

// AnomalyStats summarises rule based and statistical anomalies.
type AnomalyStats struct {
	TotalAnomalies    int     `json:"total_anomalies"`
	AnomalyPercentage float64 `json:"anomaly_percentage"`
	RuleBasedCount    int     `json:"rule_based_count"`
	MLBasedCount      int     `json:"ml_based_count"`
}

// Sample row keys with special rendering.
const (
	RowAnomalyFlag    = "is_anomaly"
	RowAnomalyReasons = "anomaly_reasons"
)

// MissingTotal sums the per-column missing value counts.
func (q QualityReport) MissingTotal() int {
	total := 0
	for _, n := range q.MissingValues {
		total += n
	}
	return total
}

// ParseReport decodes a raw report payload. A nil or empty payload yields a
// zero Report.
func ParseReport(raw json.RawMessage) (*Report, error) {
	var r Report
	if len(raw) == 0 || string(raw) == "null" {
		return &r, nil
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}
