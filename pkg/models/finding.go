package models

import "time"

// Category classifies a bottleneck finding.
type Category string

const (
	CategoryCPU             Category = "cpu"
	CategoryMemory          Category = "memory"
	CategoryConnectionLimit Category = "connection-limit"
	CategoryNetwork         Category = "network"
	CategoryBackend         Category = "backend"
)

// Severity orders findings from least to most urgent.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// SeverityRank maps severities to a sortable rank, highest first.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	case SeverityInfo:
		return 2
	default:
		return 3
	}
}

// TimeRange is a window within a run.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Evidence is one (metric, observed value, threshold) triple that
// contributed to a finding.
type Evidence struct {
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

// Finding is one detected bottleneck. Findings are immutable; a
// re-analysis replaces the whole set for a run.
type Finding struct {
	RunID    string     `json:"run_id"`
	Category Category   `json:"category"`
	Severity Severity   `json:"severity"`
	Window   TimeRange  `json:"window"`
	Evidence []Evidence `json:"evidence"`
	Message  string     `json:"message"`
}
