package publisher

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/vipdiag/vipdiag/pkg/models"
)

// StdoutPublisher writes points as JSON lines, mainly for ad-hoc runs
// and piping into other tooling.
type StdoutPublisher struct {
	mu  sync.Mutex
	out io.Writer
}

func NewStdoutPublisher() *StdoutPublisher {
	return &StdoutPublisher{out: os.Stdout}
}

func (p *StdoutPublisher) Publish(_ context.Context, points []models.MetricPoint) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	enc := json.NewEncoder(p.out)

	for i := range points {
		if err := enc.Encode(&points[i]); err != nil {
			return err
		}
	}

	return nil
}

func (p *StdoutPublisher) Close() error { return nil }
