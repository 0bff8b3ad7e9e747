// Package models pkg/models/metrics.go
package models

import (
	"sort"
	"strings"
	"time"
)

// Source identifies which kind of sampler produced a metric point.
type Source string

const (
	SourceStatsSocket   Source = "stats-socket"
	SourceManagementAPI Source = "management-api"
	SourceSystem        Source = "system"
)

// MetricPoint is a single observation from one sampler tick.
type MetricPoint struct {
	RunID     string            `json:"run_id"`
	Source    Source            `json:"source"`
	Name      string            `json:"name"`
	Timestamp time.Time         `json:"timestamp"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// TagKey returns the canonical form of a tag set: sorted k=v pairs
// joined by commas. Two points belong to the same series iff their
// run id, source, name and TagKey match.
func TagKey(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}

	pairs := make([]string, 0, len(tags))
	for k, v := range tags {
		pairs = append(pairs, k+"="+v)
	}

	sort.Strings(pairs)

	return strings.Join(pairs, ",")
}

// SeriesKey identifies one series within a run.
func (p *MetricPoint) SeriesKey() string {
	return string(p.Source) + "|" + p.Name + "|" + TagKey(p.Tags)
}

// PointFilter narrows a store query. Zero-valued fields match everything.
type PointFilter struct {
	RunID  string
	Name   string
	Source Source
	Tags   map[string]string
	Start  time.Time
	End    time.Time
}
