// Package sampler pkg/sampler/system.go
package sampler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"
	"go.uber.org/zap"
)

// SystemSampler reads local OS counters. CPU percentages are derived
// from /proc/stat deltas between consecutive polls, so the first poll
// emits counts and gauges only.
type SystemSampler struct {
	name   string
	logger *zap.Logger

	mu      sync.Mutex
	prevCPU *cpu.TimesStat
}

func NewSystemSampler(cfg *Config, logger *zap.Logger) (*SystemSampler, error) {
	return &SystemSampler{
		name:   cfg.Name,
		logger: logger.Named("system").With(zap.String("sampler", cfg.Name)),
	}, nil
}

func (s *SystemSampler) Kind() string { return KindSystem }

func (s *SystemSampler) Poll(ctx context.Context) (*Snapshot, error) {
	ts := time.Now().Truncate(time.Millisecond)

	hostValues := make(map[string]float64)

	times, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return nil, s.classify("cpu times", err)
	}

	if len(times) == 0 {
		return nil, fmt.Errorf("%w: no cpu samples", ErrSourceUnreachable)
	}

	s.addCPUDelta(hostValues, &times[0])

	if counts, err := cpu.CountsWithContext(ctx, true); err == nil {
		hostValues["system.cpu_count"] = float64(counts)
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, s.classify("memory", err)
	}

	hostValues["system.mem_total"] = float64(vm.Total)
	hostValues["system.mem_free"] = float64(vm.Free)
	hostValues["system.mem_available"] = float64(vm.Available)
	hostValues["system.mem_used_pct"] = vm.UsedPercent

	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return nil, s.classify("load", err)
	}

	hostValues["system.load1"] = avg.Load1
	hostValues["system.load5"] = avg.Load5
	hostValues["system.load15"] = avg.Load15

	sets := []PointSet{{Tags: map[string]string{}, Values: hostValues}}

	nics, err := psnet.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, s.classify("net", err)
	}

	for i := range nics {
		nic := &nics[i]
		if nic.Name == "lo" {
			continue
		}

		sets = append(sets, PointSet{
			Tags: map[string]string{"interface": nic.Name},
			Values: map[string]float64{
				"system.net_tx_bytes": float64(nic.BytesSent),
				"system.net_rx_bytes": float64(nic.BytesRecv),
			},
		})
	}

	return &Snapshot{Timestamp: ts, Sets: sets}, nil
}

func (s *SystemSampler) Close() error { return nil }

func (s *SystemSampler) classify(stage string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrPollTimeout, s.name)
	}

	return fmt.Errorf("%w: %s: %w", ErrSourceUnreachable, stage, err)
}

// addCPUDelta computes busy/user/system percentages from the delta
// against the previous poll's tick counters.
func (s *SystemSampler) addCPUDelta(values map[string]float64, latest *cpu.TimesStat) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.prevCPU
	s.prevCPU = latest

	if prev == nil {
		return
	}

	totalDelta := cpuTotal(latest) - cpuTotal(prev)
	if totalDelta <= 0 {
		return
	}

	idleDelta := latest.Idle - prev.Idle

	values["system.cpu_busy_pct"] = (totalDelta - idleDelta) / totalDelta * 100
	values["system.cpu_user_pct"] = (latest.User - prev.User) / totalDelta * 100
	values["system.cpu_system_pct"] = (latest.System - prev.System) / totalDelta * 100
	values["system.cpu_softirq_pct"] = (latest.Softirq - prev.Softirq) / totalDelta * 100
}

func cpuTotal(t *cpu.TimesStat) float64 {
	return t.User + t.System + t.Idle + t.Nice + t.Iowait +
		t.Irq + t.Softirq + t.Steal + t.Guest + t.GuestNice
}
