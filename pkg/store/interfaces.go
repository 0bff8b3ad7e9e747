// Package store pkg/store/interfaces.go
package store

import (
	"context"

	"github.com/vipdiag/vipdiag/pkg/models"
)

//go:generate mockgen -destination=mock_store.go -package=store github.com/vipdiag/vipdiag/pkg/store Store

// Store is run-scoped, append-only time-series persistence. Appends are
// serialized internally; queries observe everything appended before they
// were issued.
type Store interface {
	// CreateRun registers a new active run.
	CreateRun(ctx context.Context, run *models.Run) error
	// GetRun returns run metadata.
	GetRun(ctx context.Context, runID string) (*models.Run, error)
	// ListRuns returns up to limit runs, most recent first.
	ListRuns(ctx context.Context, limit int) ([]models.Run, error)
	// CloseRun stamps ended_at, flips the status and records final
	// sampler health. Appends for the run are rejected afterwards.
	CloseRun(ctx context.Context, runID string, status models.RunStatus, health map[string]models.SamplerHealth) (*models.Run, error)
	// DeleteRun removes a run and cascades to its points and findings.
	DeleteRun(ctx context.Context, runID string) error

	// Append stores one point. A duplicate (run, source, name, tags,
	// timestamp) is rejected with ErrDuplicatePoint, the prior point
	// kept unchanged.
	Append(ctx context.Context, point *models.MetricPoint) error
	// Query returns matching points ordered timestamp-ascending.
	Query(ctx context.Context, filter *models.PointFilter) ([]models.MetricPoint, error)

	// ReplaceFindings atomically swaps the run's finding set.
	ReplaceFindings(ctx context.Context, runID string, findings []models.Finding) error
	GetFindings(ctx context.Context, runID string) ([]models.Finding, error)

	Close() error
}
