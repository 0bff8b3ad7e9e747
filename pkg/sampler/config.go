// Package sampler pkg/sampler/config.go
package sampler

import (
	"fmt"
	"time"

	"github.com/vipdiag/vipdiag/pkg/config"
	"github.com/vipdiag/vipdiag/pkg/models"
)

const (
	defaultTimeout = 5 * time.Second
	defaultSSHPort = 22
	defaultAPIPort = 9443

	// KindStatsSocket reads the HAProxy stats socket over SSH.
	KindStatsSocket = "stats-socket"
	// KindManagementAPI reads the amphora agent REST API.
	KindManagementAPI = "management-api"
	// KindSystem reads local OS counters.
	KindSystem = "system"
)

// Config describes one sampler instance for a run.
type Config struct {
	Kind     string          `json:"kind"`
	Name     string          `json:"name"`
	Endpoint string          `json:"endpoint,omitempty"`
	Timeout  config.Duration `json:"timeout,omitempty"`
	// TagOverrides are merged into every emitted point, overriding
	// sampler-assigned tags on key collision.
	TagOverrides map[string]string `json:"tag_overrides,omitempty"`

	SSH *SSHConfig `json:"ssh,omitempty"`
	TLS *TLSConfig `json:"tls,omitempty"`

	// SocketPath is the HAProxy stats socket on the remote host.
	SocketPath string `json:"socket_path,omitempty"`
}

// SSHConfig carries credentials for stats-socket samplers.
type SSHConfig struct {
	User     string `json:"user"`
	KeyFile  string `json:"key_file,omitempty"`
	Password string `json:"password,omitempty"`
	Port     int    `json:"port,omitempty"`
}

// TLSConfig carries client certificate material for management-API
// samplers.
type TLSConfig struct {
	CertFile   string `json:"cert_file,omitempty"`
	KeyFile    string `json:"key_file,omitempty"`
	CAFile     string `json:"ca_file,omitempty"`
	SkipVerify bool   `json:"skip_verify,omitempty"`
}

// Source maps the configured kind to the metric source enum.
func (c *Config) Source() models.Source {
	switch c.Kind {
	case KindStatsSocket:
		return models.SourceStatsSocket
	case KindManagementAPI:
		return models.SourceManagementAPI
	default:
		return models.SourceSystem
	}
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if c.Name == "" {
		return errNameRequired
	}

	switch c.Kind {
	case KindStatsSocket:
		if c.Endpoint == "" {
			return errEndpointRequired
		}

		if c.SSH == nil {
			return errSSHConfigMissing
		}

		if c.SSH.KeyFile == "" && c.SSH.Password == "" {
			return errSSHAuthMissing
		}

		if c.SSH.Port == 0 {
			c.SSH.Port = defaultSSHPort
		}
	case KindManagementAPI:
		if c.Endpoint == "" {
			return errEndpointRequired
		}
	case KindSystem:
		// local source, no endpoint
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKind, c.Kind)
	}

	if time.Duration(c.Timeout) == 0 {
		c.Timeout = config.Duration(defaultTimeout)
	}

	return nil
}
