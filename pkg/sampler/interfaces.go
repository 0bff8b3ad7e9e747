// Package sampler pkg/sampler/interfaces.go
package sampler

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mock_sampler.go -package=sampler github.com/vipdiag/vipdiag/pkg/sampler Sampler

// Sampler produces one metric snapshot per poll from exactly one source
// kind. Implementations must honor the context deadline and return typed
// errors instead of blocking or panicking.
type Sampler interface {
	// Kind returns the source kind this sampler reads from.
	Kind() string
	// Poll takes one snapshot. Every value in the snapshot belongs to
	// the same wall-clock instant; data from two ticks is never mixed.
	Poll(ctx context.Context) (*Snapshot, error)
	// Close releases any held connections.
	Close() error
}

// Snapshot is the result of a single poll: one or more tagged value
// sets observed at the same instant.
type Snapshot struct {
	Timestamp time.Time
	Sets      []PointSet
}

// PointSet groups the values that share one tag set, e.g. one HAProxy
// backend row or one network interface.
type PointSet struct {
	Tags   map[string]string
	Values map[string]float64
}
