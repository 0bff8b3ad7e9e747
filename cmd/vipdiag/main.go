// cmd/vipdiag/main.go

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vipdiag/vipdiag/pkg/alerts"
	"github.com/vipdiag/vipdiag/pkg/api"
	"github.com/vipdiag/vipdiag/pkg/config"
	"github.com/vipdiag/vipdiag/pkg/coordinator"
	"github.com/vipdiag/vipdiag/pkg/detector"
	"github.com/vipdiag/vipdiag/pkg/models"
	"github.com/vipdiag/vipdiag/pkg/publisher"
	"github.com/vipdiag/vipdiag/pkg/report"
	"github.com/vipdiag/vipdiag/pkg/sampler"
	"github.com/vipdiag/vipdiag/pkg/store"
)

var (
	errDBPathRequired     = errors.New("db_path is required")
	errUnknownPublisher   = errors.New("unknown publisher")
	errCloudWatchRequired = errors.New("cloudwatch block is required for the cloudwatch publisher")
)

// Config is the top-level daemon configuration.
type Config struct {
	ListenAddr string `json:"listen_addr,omitempty"`
	DBPath     string `json:"db_path"`
	LogLevel   string `json:"log_level,omitempty"`
	// Publisher selects the point sink: "stdout", "cloudwatch", or
	// empty for none.
	Publisher  string                      `json:"publisher,omitempty"`
	Detector   *detector.Config            `json:"detector,omitempty"`
	Webhook    *alerts.WebhookConfig       `json:"webhook,omitempty"`
	CloudWatch *publisher.CloudWatchConfig `json:"cloudwatch,omitempty"`
	// Session, when present, runs one collection session and exits
	// instead of serving the API.
	Session *SessionConfig `json:"session,omitempty"`
}

// SessionConfig describes a one-shot collection session.
type SessionConfig struct {
	Duration config.Duration  `json:"duration"`
	Interval config.Duration  `json:"interval"`
	Timeout  config.Duration  `json:"timeout,omitempty"`
	Samplers []sampler.Config `json:"samplers"`
	// Report writes the assembled report to stdout after analysis.
	Report bool `json:"report,omitempty"`
}

func (c *Config) Validate() error {
	if c.DBPath == "" {
		return errDBPathRequired
	}

	switch c.Publisher {
	case "", "stdout":
	case "cloudwatch":
		if c.CloudWatch == nil {
			return errCloudWatchRequired
		}
	default:
		return fmt.Errorf("%w: %q", errUnknownPublisher, c.Publisher)
	}

	if c.ListenAddr == "" {
		c.ListenAddr = ":8090"
	}

	return nil
}

func main() {
	configPath := flag.String("config", "/etc/vipdiag/vipdiag.json", "Path to config file")
	flag.Parse()

	var cfg Config
	if err := config.Load(*configPath, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(&cfg, logger); err != nil {
		logger.Fatal("vipdiag failed", zap.Error(err))
	}
}

func run(cfg *Config, logger *zap.Logger) error {
	st, err := store.NewSQLiteStore(cfg.DBPath, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	opts, pub, alerter, err := buildOptions(cfg, logger)
	if err != nil {
		return err
	}

	if pub != nil {
		defer func() { _ = pub.Close() }()
	}

	coord := coordinator.New(st, sampler.DefaultRegistry(), logger, opts...)
	det := detector.New(st, cfg.Detector, logger)
	asm := report.NewAssembler(st, logger)

	if cfg.Session != nil {
		return runSession(cfg.Session, coord, det, asm, alerter, logger)
	}

	server := api.NewServer(coord, st, det, asm, logger)

	return server.Start(cfg.ListenAddr)
}

func buildOptions(cfg *Config, logger *zap.Logger) ([]coordinator.Option, publisher.Publisher, alerts.Alerter, error) {
	var opts []coordinator.Option

	var pub publisher.Publisher

	var alerter alerts.Alerter

	switch cfg.Publisher {
	case "stdout":
		pub = publisher.NewStdoutPublisher()
	case "cloudwatch":
		cw, err := publisher.NewCloudWatchPublisher(context.Background(), cfg.CloudWatch, logger)
		if err != nil {
			return nil, nil, nil, err
		}

		pub = cw
	}

	if pub != nil {
		opts = append(opts, coordinator.WithPublisher(pub))
	}

	if cfg.Webhook != nil && cfg.Webhook.Enabled {
		alerter = alerts.NewWebhookAlerter(*cfg.Webhook, logger)
		opts = append(opts, coordinator.WithAlerter(alerter))
	}

	return opts, pub, alerter, nil
}

// runSession drives one timed collection run end to end: collect for
// the configured duration (or until interrupted), analyze, and
// optionally emit the report.
func runSession(
	session *SessionConfig,
	coord *coordinator.Coordinator,
	det *detector.Detector,
	asm *report.Assembler,
	alerter alerts.Alerter,
	logger *zap.Logger,
) error {
	ctx := context.Background()

	run, err := coord.StartRun(ctx, &coordinator.StartRequest{
		Interval: session.Interval,
		Timeout:  session.Timeout,
		Samplers: session.Samplers,
	})
	if err != nil {
		return err
	}

	logger.Info("session started",
		zap.String("run_id", run.ID),
		zap.Duration("duration", time.Duration(session.Duration)))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-time.After(time.Duration(session.Duration)):
	case sig := <-sigCh:
		logger.Info("interrupted, stopping run early", zap.String("signal", sig.String()))
	}

	if _, err := coord.StopRun(ctx, run.ID); err != nil {
		return err
	}

	findings, err := det.Analyze(ctx, run.ID)
	if err != nil {
		return err
	}

	logger.Info("session complete",
		zap.String("run_id", run.ID),
		zap.Int("findings", len(findings)))

	notifyCriticalFindings(ctx, alerter, run.ID, findings, logger)

	if !session.Report {
		return nil
	}

	doc, err := asm.Assemble(ctx, run.ID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(doc)
}

func notifyCriticalFindings(
	ctx context.Context,
	alerter alerts.Alerter,
	runID string,
	findings []models.Finding,
	logger *zap.Logger,
) {
	if alerter == nil {
		return
	}

	for i := range findings {
		f := &findings[i]
		if f.Severity != models.SeverityCritical {
			continue
		}

		err := alerter.Alert(ctx, &alerts.Alert{
			Level:   alerts.Critical,
			Title:   fmt.Sprintf("Bottleneck: %s", f.Category),
			Message: f.Message,
			RunID:   runID,
		})
		if err != nil {
			logger.Warn("failed to send finding alert",
				zap.String("category", string(f.Category)), zap.Error(err))
		}
	}
}

func newLogger(level string) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()

	if level != "" {
		parsed, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}

		zapCfg.Level = parsed
	}

	return zapCfg.Build()
}
