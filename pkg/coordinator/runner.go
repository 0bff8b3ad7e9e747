package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vipdiag/vipdiag/pkg/models"
	"github.com/vipdiag/vipdiag/pkg/sampler"
	"github.com/vipdiag/vipdiag/pkg/store"
)

// worker drives one sampler on a fixed-rate schedule for the lifetime
// of a run.
type worker struct {
	coord  *Coordinator
	runID  string
	name   string
	source models.Source
	tags   map[string]string

	sampler  sampler.Sampler
	interval time.Duration
	timeout  time.Duration

	mu     sync.Mutex
	health models.SamplerHealth
}

// loop polls once immediately, then on every interval boundary. The
// schedule is anchored at the start time: deadlines advance by the
// interval even when a poll overruns, and deadlines already in the past
// are skipped rather than bunched. The loop only exits when the run
// stops — a degraded sampler keeps its schedule so a recovering source
// resumes contributing points.
func (w *worker) loop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	logger := w.coord.logger.With(
		zap.String("run_id", w.runID),
		zap.String("sampler", w.name))

	next := time.Now()

	for {
		w.poll(logger)

		next = next.Add(w.interval)
		for now := time.Now(); !next.After(now); {
			next = next.Add(w.interval)
		}

		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// poll runs one sample and records the outcome. A failed poll just
// means a missing data point; crossing the consecutive-failure
// threshold flags the sampler degraded in run metadata without taking
// it off the schedule.
func (w *worker) poll(logger *zap.Logger) {
	// The poll gets its own deadline, detached from the run context, so
	// a stop request lets an in-flight poll finish instead of tearing
	// it down mid-read.
	pollCtx, cancel := context.WithTimeout(context.Background(), w.timeout)
	snapshot, err := w.sampler.Poll(pollCtx)

	cancel()

	if err != nil {
		logger.Warn("poll failed", zap.Error(err))

		if w.recordFailure(err) {
			logger.Warn("sampler degraded, keeping its schedule",
				zap.Int("consecutive_failures", w.coord.failureThreshold))
			w.coord.notifyDegraded(w.name, w.runID, err.Error())
		}

		return
	}

	if w.recordSuccess() {
		logger.Info("sampler recovered")
	}

	// Appends get a fresh budget: a poll that spent most of its own
	// deadline must not starve the writes for a snapshot that already
	// succeeded.
	appendCtx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	w.forward(appendCtx, logger, snapshot)
}

// forward normalizes the snapshot into metric points and appends them.
// Duplicate timestamps are dropped silently; other append errors are
// logged and do not count against the sampler.
func (w *worker) forward(ctx context.Context, logger *zap.Logger, snapshot *sampler.Snapshot) {
	var published []models.MetricPoint

	for i := range snapshot.Sets {
		set := &snapshot.Sets[i]

		tags := mergeTags(set.Tags, w.tags)

		for name, value := range set.Values {
			point := models.MetricPoint{
				RunID:     w.runID,
				Source:    w.source,
				Name:      name,
				Timestamp: snapshot.Timestamp,
				Value:     value,
				Tags:      tags,
			}

			err := w.coord.store.Append(ctx, &point)

			switch {
			case err == nil:
				published = append(published, point)
			case errors.Is(err, store.ErrDuplicatePoint):
				logger.Debug("dropped duplicate point", zap.String("metric", name))
			case errors.Is(err, store.ErrRunClosed):
				return
			default:
				logger.Error("failed to append point",
					zap.String("metric", name), zap.Error(err))
			}
		}
	}

	if w.coord.publisher != nil && len(published) > 0 {
		if err := w.coord.publisher.Publish(ctx, published); err != nil {
			logger.Error("failed to publish points", zap.Error(err))
		}
	}
}

// recordSuccess resets the failure streak. It reports whether the
// sampler was degraded until now, so the caller can log the recovery.
func (w *worker) recordSuccess() (recovered bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.health.Polls++
	w.health.ConsecutiveFailures = 0

	recovered = w.health.Degraded
	w.health.Degraded = false

	return recovered
}

// recordFailure counts the miss and reports whether this failure
// crossed the degraded threshold, so the caller alerts exactly once per
// streak.
func (w *worker) recordFailure(err error) (crossed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.health.Polls++
	w.health.Failures++
	w.health.ConsecutiveFailures++
	w.health.LastError = err.Error()

	crossed = !w.health.Degraded && w.health.ConsecutiveFailures >= w.coord.failureThreshold
	if crossed {
		w.health.Degraded = true
	}

	return crossed
}

func (w *worker) healthSnapshot() models.SamplerHealth {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.health
}

// mergeTags layers overrides on top of the sampler-provided tags.
func mergeTags(base, overrides map[string]string) map[string]string {
	if len(overrides) == 0 {
		return base
	}

	merged := make(map[string]string, len(base)+len(overrides))

	for k, v := range base {
		merged[k] = v
	}

	for k, v := range overrides {
		merged[k] = v
	}

	return merged
}
