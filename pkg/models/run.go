package models

import "time"

// RunStatus tracks the lifecycle of a test run.
type RunStatus string

const (
	RunActive    RunStatus = "active"
	RunCompleted RunStatus = "completed"
	RunAborted   RunStatus = "aborted"
)

// Run is one test execution. It owns all metric points and findings
// carrying the same run id.
type Run struct {
	ID            string                   `json:"run_id"`
	StartedAt     time.Time                `json:"started_at"`
	EndedAt       *time.Time               `json:"ended_at,omitempty"`
	Status        RunStatus                `json:"status"`
	SamplerHealth map[string]SamplerHealth `json:"sampler_health,omitempty"`
}

// SamplerHealth records per-sampler poll outcomes for run metadata.
type SamplerHealth struct {
	Polls               int    `json:"polls"`
	Failures            int    `json:"failures"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	Degraded            bool   `json:"degraded"`
	LastError           string `json:"last_error,omitempty"`
}
