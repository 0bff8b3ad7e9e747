// Package coordinator pkg/coordinator/coordinator.go owns the collection
// lifecycle: it holds the single active run, fans polls out to the
// configured samplers and forwards normalized points to the store.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vipdiag/vipdiag/pkg/alerts"
	"github.com/vipdiag/vipdiag/pkg/config"
	"github.com/vipdiag/vipdiag/pkg/models"
	"github.com/vipdiag/vipdiag/pkg/publisher"
	"github.com/vipdiag/vipdiag/pkg/sampler"
	"github.com/vipdiag/vipdiag/pkg/store"
)

const (
	defaultInterval         = 10 * time.Second
	defaultFailureThreshold = 5
	defaultGracePeriod      = 10 * time.Second
)

// StartRequest describes one collection run.
type StartRequest struct {
	// RunID is optional; a UUID is assigned when empty.
	RunID string `json:"run_id,omitempty"`
	// Interval between poll deadlines. The schedule is fixed-rate:
	// deadlines advance by Interval regardless of how long polls take,
	// and deadlines that have already passed are skipped.
	Interval config.Duration `json:"interval"`
	// Timeout bounds each individual poll. Must be shorter than
	// Interval; defaults to half of it.
	Timeout  config.Duration  `json:"timeout,omitempty"`
	Samplers []sampler.Config `json:"samplers"`
}

// Coordinator runs at most one collection run at a time.
type Coordinator struct {
	store     store.Store
	registry  sampler.Registry
	publisher publisher.Publisher // optional
	alerter   alerts.Alerter      // optional
	logger    *zap.Logger

	failureThreshold int
	gracePeriod      time.Duration

	mu     sync.Mutex
	active *activeRun
}

// Option configures optional coordinator collaborators.
type Option func(*Coordinator)

func WithPublisher(p publisher.Publisher) Option {
	return func(c *Coordinator) { c.publisher = p }
}

func WithAlerter(a alerts.Alerter) Option {
	return func(c *Coordinator) { c.alerter = a }
}

func WithFailureThreshold(n int) Option {
	return func(c *Coordinator) { c.failureThreshold = n }
}

func WithGracePeriod(d time.Duration) Option {
	return func(c *Coordinator) { c.gracePeriod = d }
}

func New(st store.Store, registry sampler.Registry, logger *zap.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:            st,
		registry:         registry,
		logger:           logger.Named("coordinator"),
		failureThreshold: defaultFailureThreshold,
		gracePeriod:      defaultGracePeriod,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// StartRun claims the run slot, builds the samplers and launches one
// polling loop per sampler. It fails with ErrRunActive when another run
// is in progress.
func (c *Coordinator) StartRun(ctx context.Context, req *StartRequest) (*models.Run, error) {
	if len(req.Samplers) == 0 {
		return nil, errNoSamplers
	}

	interval := time.Duration(req.Interval)
	if interval <= 0 {
		interval = defaultInterval
	}

	timeout := time.Duration(req.Timeout)
	if timeout <= 0 {
		timeout = interval / 2
	}

	if timeout >= interval {
		return nil, fmt.Errorf("%w: %s >= %s", errTimeoutTooLong, timeout, interval)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return nil, fmt.Errorf("%w: %s", ErrRunActive, c.active.runID)
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	samplers := make([]sampler.Sampler, 0, len(req.Samplers))

	for i := range req.Samplers {
		cfg := &req.Samplers[i]

		s, err := c.registry.Build(cfg, c.logger)
		if err != nil {
			closeAll(samplers, c.logger)
			return nil, fmt.Errorf("%w %q: %w", errBuildSampler, cfg.Name, err)
		}

		samplers = append(samplers, s)
	}

	run := &models.Run{
		ID:        runID,
		StartedAt: time.Now(),
		Status:    models.RunActive,
	}

	if err := c.store.CreateRun(ctx, run); err != nil {
		closeAll(samplers, c.logger)
		return nil, err
	}

	active := &activeRun{runID: runID}
	active.ctx, active.cancel = context.WithCancel(context.Background())

	for i, s := range samplers {
		cfg := &req.Samplers[i]

		w := &worker{
			coord:    c,
			runID:    runID,
			name:     cfg.Name,
			source:   cfg.Source(),
			tags:     cfg.TagOverrides,
			sampler:  s,
			interval: interval,
			timeout:  timeout,
		}

		active.workers = append(active.workers, w)
		active.wg.Add(1)

		go w.loop(active.ctx, &active.wg)
	}

	c.active = active
	c.logger.Info("run started",
		zap.String("run_id", runID),
		zap.Int("samplers", len(samplers)),
		zap.Duration("interval", interval))

	return run, nil
}

// StopRun ends the active run cooperatively and marks it completed.
func (c *Coordinator) StopRun(ctx context.Context, runID string) (*models.Run, error) {
	return c.endRun(ctx, runID, models.RunCompleted)
}

// AbortRun ends the active run and marks it aborted. Collected points
// are kept; the detector refuses aborted runs.
func (c *Coordinator) AbortRun(ctx context.Context, runID string) (*models.Run, error) {
	return c.endRun(ctx, runID, models.RunAborted)
}

// ActiveRunID returns the id of the run currently holding the slot, or
// the empty string.
func (c *Coordinator) ActiveRunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return ""
	}

	return c.active.runID
}

func (c *Coordinator) endRun(ctx context.Context, runID string, status models.RunStatus) (*models.Run, error) {
	c.mu.Lock()

	active := c.active
	if active == nil || active.runID != runID {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}

	c.active = nil
	c.mu.Unlock()

	active.cancel()

	// In-flight polls get the grace period to finish; laggards are
	// abandoned rather than blocking the close.
	done := make(chan struct{})
	go func() {
		active.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(c.gracePeriod):
		c.logger.Warn("grace period elapsed, abandoning in-flight polls",
			zap.String("run_id", runID))
	}

	health := make(map[string]models.SamplerHealth, len(active.workers))

	for _, w := range active.workers {
		health[w.name] = w.healthSnapshot()

		if err := w.sampler.Close(); err != nil {
			c.logger.Warn("failed to close sampler",
				zap.String("sampler", w.name), zap.Error(err))
		}
	}

	run, err := c.store.CloseRun(ctx, runID, status, health)
	if err != nil {
		return nil, err
	}

	c.logger.Info("run ended",
		zap.String("run_id", runID),
		zap.String("status", string(status)))

	return run, nil
}

func (c *Coordinator) notifyDegraded(name, runID, lastError string) {
	if c.alerter == nil {
		return
	}

	alert := &alerts.Alert{
		Level:   alerts.Warning,
		Title:   "Sampler Degraded",
		Message: fmt.Sprintf("sampler %q exceeded the failure threshold: %s", name, lastError),
		RunID:   runID,
		Details: map[string]any{"sampler": name},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.alerter.Alert(ctx, alert); err != nil {
		c.logger.Error("failed to send degraded alert",
			zap.String("sampler", name), zap.Error(err))
	}
}

func closeAll(samplers []sampler.Sampler, logger *zap.Logger) {
	for _, s := range samplers {
		if err := s.Close(); err != nil {
			logger.Warn("failed to close sampler", zap.Error(err))
		}
	}
}

type activeRun struct {
	runID   string
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	workers []*worker
}
