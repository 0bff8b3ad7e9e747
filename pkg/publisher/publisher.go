// Package publisher pkg/publisher/publisher.go mirrors collected points
// to an external sink in addition to the local store.
package publisher

import (
	"context"

	"github.com/vipdiag/vipdiag/pkg/models"
)

//go:generate mockgen -destination=mock_publisher.go -package=publisher github.com/vipdiag/vipdiag/pkg/publisher Publisher

// Publisher receives every point that was accepted into the store.
// Publish failures are logged by the caller and never fail the run.
type Publisher interface {
	Publish(ctx context.Context, points []models.MetricPoint) error
	Close() error
}
