package detector

// Config holds the rule thresholds. Warning tiers compare strictly
// (`>` / `<`), critical tiers are boundary-inclusive (`>=` / `<=`);
// that convention is uniform across every rule.
type Config struct {
	// CPU load average per core.
	CPUWarnLoadPerCore float64 `json:"cpu_warn_load_per_core,omitempty"`
	CPUCritLoadPerCore float64 `json:"cpu_crit_load_per_core,omitempty"`

	// Free memory as a percentage of total.
	MemWarnFreePct float64 `json:"mem_warn_free_pct,omitempty"`
	MemCritFreePct float64 `json:"mem_crit_free_pct,omitempty"`

	// Current sessions as a percentage of the session limit.
	ConnWarnPct float64 `json:"conn_warn_pct,omitempty"`
	ConnCritPct float64 `json:"conn_crit_pct,omitempty"`

	// Interface throughput as a percentage of nominal capacity.
	NetWarnPct float64 `json:"net_warn_pct,omitempty"`
	NetCritPct float64 `json:"net_crit_pct,omitempty"`
	// NetCapacityBytesPerSec is the nominal interface capacity; the
	// default corresponds to 1 Gbit/s.
	NetCapacityBytesPerSec float64 `json:"net_capacity_bytes_per_sec,omitempty"`

	// Backend errors as a percentage of requests, both measured as
	// counter deltas over the window.
	BackendWarnErrPct float64 `json:"backend_warn_err_pct,omitempty"`
	BackendCritErrPct float64 `json:"backend_crit_err_pct,omitempty"`

	// SustainedFraction is the fraction of window samples that must
	// violate a sustained-rule threshold before it fires. The check is
	// strict, so the 0.5 default means a majority.
	SustainedFraction float64 `json:"sustained_fraction,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		CPUWarnLoadPerCore:     1.0,
		CPUCritLoadPerCore:     2.0,
		MemWarnFreePct:         15,
		MemCritFreePct:         5,
		ConnWarnPct:            80,
		ConnCritPct:            95,
		NetWarnPct:             70,
		NetCritPct:             90,
		NetCapacityBytesPerSec: 125_000_000,
		BackendWarnErrPct:      1,
		BackendCritErrPct:      5,
		SustainedFraction:      0.5,
	}
}

// withDefaults fills zero-valued thresholds so a partial config file
// only overrides what it names.
func (c *Config) withDefaults() *Config {
	def := DefaultConfig()

	out := *c
	if out.CPUWarnLoadPerCore == 0 {
		out.CPUWarnLoadPerCore = def.CPUWarnLoadPerCore
	}

	if out.CPUCritLoadPerCore == 0 {
		out.CPUCritLoadPerCore = def.CPUCritLoadPerCore
	}

	if out.MemWarnFreePct == 0 {
		out.MemWarnFreePct = def.MemWarnFreePct
	}

	if out.MemCritFreePct == 0 {
		out.MemCritFreePct = def.MemCritFreePct
	}

	if out.ConnWarnPct == 0 {
		out.ConnWarnPct = def.ConnWarnPct
	}

	if out.ConnCritPct == 0 {
		out.ConnCritPct = def.ConnCritPct
	}

	if out.NetWarnPct == 0 {
		out.NetWarnPct = def.NetWarnPct
	}

	if out.NetCritPct == 0 {
		out.NetCritPct = def.NetCritPct
	}

	if out.NetCapacityBytesPerSec == 0 {
		out.NetCapacityBytesPerSec = def.NetCapacityBytesPerSec
	}

	if out.BackendWarnErrPct == 0 {
		out.BackendWarnErrPct = def.BackendWarnErrPct
	}

	if out.BackendCritErrPct == 0 {
		out.BackendCritErrPct = def.BackendCritErrPct
	}

	if out.SustainedFraction == 0 {
		out.SustainedFraction = def.SustainedFraction
	}

	return &out
}
