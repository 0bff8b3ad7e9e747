// Package sampler pkg/sampler/haproxy.go
package sampler

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

const defaultSocketPath = "/var/run/haproxy.sock"

// statColumns are the numeric HAProxy "show stat" CSV columns worth
// keeping. Each becomes a "haproxy.<column>" metric.
var statColumns = []string{
	"qcur", "qmax",
	"scur", "smax", "slim", "stot",
	"bin", "bout",
	"dreq", "ereq", "econ", "eresp",
	"weight",
	"rate", "rate_max", "req_rate", "req_tot",
	"hrsp_1xx", "hrsp_2xx", "hrsp_3xx", "hrsp_4xx", "hrsp_5xx",
	"cli_abrt", "srv_abrt",
}

// CommandRunner executes a command on the host that owns the stats
// socket. Factored out of the sampler so the CSV path is testable
// without a live SSH endpoint.
type CommandRunner interface {
	Run(ctx context.Context, command string) (string, error)
	Close() error
}

// HAProxySampler queries the HAProxy stats socket via a remote shell
// and turns each proxy row into one tagged point set.
type HAProxySampler struct {
	name       string
	socketPath string
	runner     CommandRunner
	logger     *zap.Logger
}

// NewHAProxySampler builds a stats-socket sampler from configuration.
func NewHAProxySampler(cfg *Config, logger *zap.Logger) (*HAProxySampler, error) {
	runner, err := newSSHRunner(cfg)
	if err != nil {
		return nil, err
	}

	return newHAProxySampler(cfg, runner, logger), nil
}

func newHAProxySampler(cfg *Config, runner CommandRunner, logger *zap.Logger) *HAProxySampler {
	socketPath := cfg.SocketPath
	if socketPath == "" {
		socketPath = defaultSocketPath
	}

	return &HAProxySampler{
		name:       cfg.Name,
		socketPath: socketPath,
		runner:     runner,
		logger:     logger.Named("haproxy").With(zap.String("sampler", cfg.Name)),
	}
}

func (s *HAProxySampler) Kind() string { return KindStatsSocket }

// Poll issues a single "show stat" query. The whole snapshot comes from
// one socket response, so values are never mixed across ticks.
func (s *HAProxySampler) Poll(ctx context.Context) (*Snapshot, error) {
	ts := time.Now().Truncate(time.Millisecond)

	command := fmt.Sprintf(`echo "show stat" | sudo socat unix-connect:%s stdio`, s.socketPath)

	out, err := s.runner.Run(ctx, command)
	if err != nil {
		return nil, s.classify(err)
	}

	sets, err := parseShowStat(out)
	if err != nil {
		return nil, err
	}

	return &Snapshot{Timestamp: ts, Sets: sets}, nil
}

func (s *HAProxySampler) Close() error {
	return s.runner.Close()
}

func (s *HAProxySampler) classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrPollTimeout, s.name)
	}

	return fmt.Errorf("%w: %w", ErrSourceUnreachable, err)
}

// parseShowStat parses HAProxy "show stat" CSV output. Each row becomes
// one point set tagged with the proxy name and component role.
func parseShowStat(raw string) ([]PointSet, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errEmptyStats
	}

	// CSV header starts with "# "
	raw = strings.TrimPrefix(raw, "# ")

	reader := csv.NewReader(strings.NewReader(raw))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformedStats, err)
	}

	if len(records) == 0 {
		return nil, errEmptyStats
	}

	index := make(map[string]int, len(records[0]))
	for i, col := range records[0] {
		index[col] = i
	}

	pxIdx, okPx := index["pxname"]
	svIdx, okSv := index["svname"]

	if !okPx || !okSv {
		return nil, errMalformedStats
	}

	sets := make([]PointSet, 0, len(records)-1)

	for _, row := range records[1:] {
		if len(row) <= svIdx {
			continue
		}

		pxname := row[pxIdx]
		svname := row[svIdx]

		// HAProxy exposes an internal prometheus exporter proxy; skip it.
		if strings.Contains(pxname, "prometheus") {
			continue
		}

		tags := map[string]string{"proxy": pxname}

		switch svname {
		case "FRONTEND":
			tags["component"] = "frontend"
		case "BACKEND":
			tags["component"] = "backend"
		default:
			tags["component"] = "server"
			tags["server"] = svname
		}

		values := make(map[string]float64)

		for _, col := range statColumns {
			i, ok := index[col]
			if !ok || i >= len(row) || row[i] == "" {
				continue
			}

			v, err := strconv.ParseFloat(row[i], 64)
			if err != nil {
				continue
			}

			values["haproxy."+col] = v
		}

		if len(values) == 0 {
			continue
		}

		sets = append(sets, PointSet{Tags: tags, Values: values})
	}

	return sets, nil
}

// sshRunner runs commands over a lazily-dialed, reused SSH connection.
type sshRunner struct {
	addr      string
	sshConfig *ssh.ClientConfig

	mu     sync.Mutex
	client *ssh.Client
}

func newSSHRunner(cfg *Config) (*sshRunner, error) {
	auth := make([]ssh.AuthMethod, 0, 1)

	if cfg.SSH.KeyFile != "" {
		keyBytes, err := os.ReadFile(cfg.SSH.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read ssh key: %w", err)
		}

		key, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ssh key: %w", err)
		}

		auth = append(auth, ssh.PublicKeys(key))
	} else {
		auth = append(auth, ssh.Password(cfg.SSH.Password))
	}

	return &sshRunner{
		addr: fmt.Sprintf("%s:%d", cfg.Endpoint, cfg.SSH.Port),
		sshConfig: &ssh.ClientConfig{
			User:            cfg.SSH.User,
			Auth:            auth,
			HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // amphorae use ephemeral host keys
			Timeout:         time.Duration(cfg.Timeout),
		},
	}, nil
}

func (r *sshRunner) connect() (*ssh.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return r.client, nil
	}

	client, err := ssh.Dial("tcp", r.addr, r.sshConfig)
	if err != nil {
		return nil, err
	}

	r.client = client

	return client, nil
}

// reset drops the cached connection so the next poll redials.
func (r *sshRunner) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		_ = r.client.Close()
		r.client = nil
	}
}

func (r *sshRunner) Run(ctx context.Context, command string) (string, error) {
	client, err := r.connect()
	if err != nil {
		return "", err
	}

	session, err := client.NewSession()
	if err != nil {
		r.reset()
		return "", err
	}
	defer func() {
		_ = session.Close()
	}()

	type result struct {
		out []byte
		err error
	}

	done := make(chan result, 1)

	go func() {
		out, runErr := session.Output(command)
		done <- result{out: out, err: runErr}
	}()

	select {
	case <-ctx.Done():
		// The session is closed by the deferred Close; drop the
		// connection so a wedged channel does not poison later polls.
		r.reset()
		return "", ctx.Err()
	case res := <-done:
		return string(res.out), res.err
	}
}

func (r *sshRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil

	return err
}
