// Package report pkg/report/assembler.go packages run metadata, series
// summaries and findings into one document for external rendering.
package report

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/vipdiag/vipdiag/pkg/models"
	"github.com/vipdiag/vipdiag/pkg/store"
)

// ErrIncompleteRun reports a report request for a run that did not
// complete normally.
var ErrIncompleteRun = errors.New("run is not completed")

// Summary holds the per-series statistics over the run window.
type Summary struct {
	Metric string            `json:"metric"`
	Source models.Source     `json:"source"`
	Tags   map[string]string `json:"tags,omitempty"`
	Count  int               `json:"count"`
	Min    float64           `json:"min"`
	Max    float64           `json:"max"`
	Mean   float64           `json:"mean"`
	P95    float64           `json:"p95"`
	First  float64           `json:"first"`
	Last   float64           `json:"last"`
}

// Document is the assembled report. Rendering to HTML or plaintext is
// a downstream concern.
type Document struct {
	Run       *models.Run      `json:"run"`
	Summaries []Summary        `json:"summaries"`
	Findings  []models.Finding `json:"findings"`
}

// Assembler aggregates stored data; it performs no analysis of its own.
type Assembler struct {
	store  store.Store
	logger *zap.Logger
}

func NewAssembler(st store.Store, logger *zap.Logger) *Assembler {
	return &Assembler{store: st, logger: logger.Named("report")}
}

// Assemble builds the report document for a completed run.
func (a *Assembler) Assemble(ctx context.Context, runID string) (*Document, error) {
	run, err := a.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	if run.Status != models.RunCompleted {
		return nil, fmt.Errorf("%w: %s is %s", ErrIncompleteRun, runID, run.Status)
	}

	points, err := a.store.Query(ctx, &models.PointFilter{RunID: runID})
	if err != nil {
		return nil, err
	}

	findings, err := a.store.GetFindings(ctx, runID)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Run:       run,
		Summaries: summarize(points),
		Findings:  findings,
	}

	a.logger.Info("report assembled",
		zap.String("run_id", runID),
		zap.Int("summaries", len(doc.Summaries)),
		zap.Int("findings", len(doc.Findings)))

	return doc, nil
}

// summarize folds the run's points into one Summary per series,
// ordered by source, metric and tags for stable output.
func summarize(points []models.MetricPoint) []Summary {
	type acc struct {
		summary Summary
		values  []float64
	}

	byKey := make(map[string]*acc)
	keys := make([]string, 0)

	for i := range points {
		p := &points[i]

		key := p.SeriesKey()

		entry, ok := byKey[key]
		if !ok {
			entry = &acc{summary: Summary{
				Metric: p.Name,
				Source: p.Source,
				Tags:   p.Tags,
				First:  p.Value,
			}}
			byKey[key] = entry
			keys = append(keys, key)
		}

		entry.values = append(entry.values, p.Value)
		entry.summary.Last = p.Value
	}

	sort.Strings(keys)

	summaries := make([]Summary, 0, len(byKey))

	for _, key := range keys {
		entry := byKey[key]
		s := entry.summary

		s.Count = len(entry.values)
		s.Min = entry.values[0]
		s.Max = entry.values[0]

		sum := 0.0

		for _, v := range entry.values {
			if v < s.Min {
				s.Min = v
			}

			if v > s.Max {
				s.Max = v
			}

			sum += v
		}

		s.Mean = sum / float64(len(entry.values))
		s.P95 = percentile(entry.values, 95)

		summaries = append(summaries, s)
	}

	return summaries
}

// percentile uses the nearest-rank method on a copy of the values.
func percentile(values []float64, pct float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := int(math.Ceil(pct / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}

	return sorted[rank-1]
}
