// Package sampler pkg/sampler/registry.go
package sampler

import (
	"fmt"

	"go.uber.org/zap"
)

// Factory builds a Sampler from a validated configuration.
type Factory func(cfg *Config, logger *zap.Logger) (Sampler, error)

// Registry maps sampler kinds to factories so variants are selected by
// configuration at construction time.
type Registry interface {
	Register(kind string, factory Factory)
	Build(cfg *Config, logger *zap.Logger) (Sampler, error)
}

type samplerRegistry struct {
	factories map[string]Factory
}

func NewRegistry() Registry {
	return &samplerRegistry{
		factories: make(map[string]Factory),
	}
}

// DefaultRegistry returns a registry with the three built-in variants.
func DefaultRegistry() Registry {
	r := NewRegistry()

	r.Register(KindStatsSocket, func(cfg *Config, logger *zap.Logger) (Sampler, error) {
		return NewHAProxySampler(cfg, logger)
	})

	r.Register(KindManagementAPI, func(cfg *Config, logger *zap.Logger) (Sampler, error) {
		return NewAmphoraSampler(cfg, logger)
	})

	r.Register(KindSystem, func(cfg *Config, logger *zap.Logger) (Sampler, error) {
		return NewSystemSampler(cfg, logger)
	})

	return r
}

func (r *samplerRegistry) Register(kind string, factory Factory) {
	r.factories[kind] = factory
}

func (r *samplerRegistry) Build(cfg *Config, logger *zap.Logger) (Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sampler configuration: %w", err)
	}

	f, ok := r.factories[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, cfg.Kind)
	}

	return f(cfg, logger)
}
