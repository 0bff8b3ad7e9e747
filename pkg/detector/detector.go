// Package detector pkg/detector/detector.go evaluates a completed run's
// series against the bottleneck rule table and persists the findings.
package detector

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/vipdiag/vipdiag/pkg/models"
	"github.com/vipdiag/vipdiag/pkg/store"
)

// Detector analyzes completed runs. Analysis is deterministic: the
// same stored series and config always produce the same findings.
type Detector struct {
	store  store.Store
	cfg    *Config
	logger *zap.Logger
}

func New(st store.Store, cfg *Config, logger *zap.Logger) *Detector {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	return &Detector{
		store:  st,
		cfg:    cfg.withDefaults(),
		logger: logger.Named("detector"),
	}
}

// Analyze evaluates every rule against the run's series, replaces the
// run's stored finding set and returns the new findings ordered by
// severity descending, then category, then window start.
func (d *Detector) Analyze(ctx context.Context, runID string) ([]models.Finding, error) {
	run, err := d.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	if run.Status != models.RunCompleted {
		return nil, fmt.Errorf("%w: %s is %s", ErrRunNotCompleted, runID, run.Status)
	}

	points, err := d.store.Query(ctx, &models.PointFilter{RunID: runID})
	if err != nil {
		return nil, err
	}

	set := groupSeries(points)

	var findings []models.Finding

	for _, rule := range rules {
		for _, f := range rule.evaluate(d.cfg, set) {
			f.RunID = runID
			findings = append(findings, f)
		}
	}

	sortFindings(findings)

	if err := d.store.ReplaceFindings(ctx, runID, findings); err != nil {
		return nil, err
	}

	d.logger.Info("analysis complete",
		zap.String("run_id", runID),
		zap.Int("series", len(set.ordered)),
		zap.Int("findings", len(findings)))

	return findings, nil
}

func sortFindings(findings []models.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := &findings[i], &findings[j]

		if ra, rb := models.SeverityRank(a.Severity), models.SeverityRank(b.Severity); ra != rb {
			return ra < rb
		}

		if a.Category != b.Category {
			return a.Category < b.Category
		}

		return a.Window.Start.Before(b.Window.Start)
	})
}
