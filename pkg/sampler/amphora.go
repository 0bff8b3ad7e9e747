// Package sampler pkg/sampler/amphora.go
package sampler

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// amphoraDetails mirrors the amphora agent GET /1.0/details payload.
type amphoraDetails struct {
	Hostname     string                `json:"hostname"`
	CPUCount     int                   `json:"cpu_count"`
	HAProxyCount int                   `json:"haproxy_count"`
	CPU          amphoraCPU            `json:"cpu"`
	Memory       amphoraMemory         `json:"memory"`
	Load         []float64             `json:"load"`
	Networks     map[string]amphoraNet `json:"networks"`
}

type amphoraCPU struct {
	Total   float64 `json:"total"`
	User    float64 `json:"user"`
	System  float64 `json:"system"`
	SoftIRQ float64 `json:"soft_irq"`
}

type amphoraMemory struct {
	Total    float64 `json:"total"`
	Free     float64 `json:"free"`
	Buffers  float64 `json:"buffers"`
	Cached   float64 `json:"cached"`
	SwapUsed float64 `json:"swap_used"`
}

type amphoraNet struct {
	NetworkTx float64 `json:"network_tx"`
	NetworkRx float64 `json:"network_rx"`
}

// AmphoraSampler reads system metrics from the amphora agent REST API
// over an authenticated HTTPS channel and emits one tagged point set
// per reporting host plus one per network interface.
type AmphoraSampler struct {
	name    string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewAmphoraSampler builds a management-API sampler from configuration.
// The endpoint is a host or host:port; the port defaults to the amphora
// agent's 9443.
func NewAmphoraSampler(cfg *Config, logger *zap.Logger) (*AmphoraSampler, error) {
	tlsConfig, err := buildTLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}

	endpoint := cfg.Endpoint
	if !strings.Contains(endpoint, ":") {
		endpoint = fmt.Sprintf("%s:%d", endpoint, defaultAPIPort)
	}

	return &AmphoraSampler{
		name:    cfg.Name,
		baseURL: "https://" + endpoint,
		client: &http.Client{
			Transport: &http.Transport{TLSClientConfig: tlsConfig},
		},
		logger: logger.Named("amphora").With(zap.String("sampler", cfg.Name)),
	}, nil
}

func buildTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil {
		return &tls.Config{MinVersion: tls.VersionTLS12}, nil
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.SkipVerify, //nolint:gosec // operator opt-in for lab amphorae
	}

	if cfg.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}

		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if cfg.CAFile != "" {
		caBytes, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, fmt.Errorf("failed to parse CA file %s", cfg.CAFile)
		}

		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

func (s *AmphoraSampler) Kind() string { return KindManagementAPI }

// Poll fetches /1.0/details once and decodes it into point sets.
func (s *AmphoraSampler) Poll(ctx context.Context) (*Snapshot, error) {
	ts := time.Now().Truncate(time.Millisecond)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/1.0/details", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnreachable, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, s.classify(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %w: %d", ErrSourceUnreachable, errUnexpectedStatus, resp.StatusCode)
	}

	var details amphoraDetails
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnreachable, err)
	}

	return &Snapshot{Timestamp: ts, Sets: detailsToSets(&details)}, nil
}

func (s *AmphoraSampler) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *AmphoraSampler) classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrPollTimeout, s.name)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return fmt.Errorf("%w: %s", ErrPollTimeout, s.name)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s", ErrPollTimeout, s.name)
	}

	return fmt.Errorf("%w: %w", ErrSourceUnreachable, err)
}

func detailsToSets(d *amphoraDetails) []PointSet {
	hostTags := map[string]string{"host": d.Hostname}

	hostValues := map[string]float64{
		"amphora.cpu_total":     d.CPU.Total,
		"amphora.cpu_user":      d.CPU.User,
		"amphora.cpu_system":    d.CPU.System,
		"amphora.cpu_soft_irq":  d.CPU.SoftIRQ,
		"amphora.cpu_count":     float64(d.CPUCount),
		"amphora.haproxy_count": float64(d.HAProxyCount),
		"amphora.mem_total":     d.Memory.Total,
		"amphora.mem_free":      d.Memory.Free,
		"amphora.mem_buffers":   d.Memory.Buffers,
		"amphora.mem_cached":    d.Memory.Cached,
		"amphora.mem_swap_used": d.Memory.SwapUsed,
	}

	loadNames := []string{"amphora.load1", "amphora.load5", "amphora.load15"}
	for i, v := range d.Load {
		if i >= len(loadNames) {
			break
		}

		hostValues[loadNames[i]] = v
	}

	sets := []PointSet{{Tags: hostTags, Values: hostValues}}

	for iface, counters := range d.Networks {
		sets = append(sets, PointSet{
			Tags: map[string]string{"host": d.Hostname, "interface": iface},
			Values: map[string]float64{
				"amphora.net_tx_bytes": counters.NetworkTx,
				"amphora.net_rx_bytes": counters.NetworkRx,
			},
		})
	}

	return sets
}
