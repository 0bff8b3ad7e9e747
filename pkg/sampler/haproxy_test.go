package sampler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleShowStat = `# pxname,svname,qcur,scur,slim,stot,econ,eresp,req_tot
front-vip,FRONTEND,,120,2000,5000,,,4800
pool-web,web-1,0,40,500,2400,1,2,
pool-web,BACKEND,3,80,1000,4800,2,5,
prometheus-internal,FRONTEND,,0,,0,,,0
`

type fakeRunner struct {
	output string
	err    error
	calls  []string
}

func (f *fakeRunner) Run(_ context.Context, command string) (string, error) {
	f.calls = append(f.calls, command)
	return f.output, f.err
}

func (f *fakeRunner) Close() error { return nil }

func TestHAProxySamplerPoll(t *testing.T) {
	runner := &fakeRunner{output: sampleShowStat}
	s := newHAProxySampler(&Config{Name: "lb-1", SocketPath: "/run/haproxy.sock"}, runner, zap.NewNop())

	snapshot, err := s.Poll(context.Background())
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	assert.Contains(t, runner.calls[0], "show stat")
	assert.Contains(t, runner.calls[0], "/run/haproxy.sock")

	// The prometheus exporter row is skipped.
	require.Len(t, snapshot.Sets, 3)

	frontend := snapshot.Sets[0]
	assert.Equal(t, map[string]string{"proxy": "front-vip", "component": "frontend"}, frontend.Tags)
	assert.InDelta(t, 120, frontend.Values["haproxy.scur"], 0.001)
	assert.InDelta(t, 2000, frontend.Values["haproxy.slim"], 0.001)
	assert.InDelta(t, 4800, frontend.Values["haproxy.req_tot"], 0.001)

	server := snapshot.Sets[1]
	assert.Equal(t, "server", server.Tags["component"])
	assert.Equal(t, "web-1", server.Tags["server"])
	assert.InDelta(t, 1, server.Values["haproxy.econ"], 0.001)

	backend := snapshot.Sets[2]
	assert.Equal(t, "backend", backend.Tags["component"])
	assert.InDelta(t, 3, backend.Values["haproxy.qcur"], 0.001)
	assert.InDelta(t, 5, backend.Values["haproxy.eresp"], 0.001)
}

func TestHAProxySamplerPollErrors(t *testing.T) {
	tests := []struct {
		name    string
		runner  *fakeRunner
		wantErr error
	}{
		{
			name:    "timeout",
			runner:  &fakeRunner{err: context.DeadlineExceeded},
			wantErr: ErrPollTimeout,
		},
		{
			name:    "unreachable",
			runner:  &fakeRunner{err: assert.AnError},
			wantErr: ErrSourceUnreachable,
		},
		{
			name:    "empty output",
			runner:  &fakeRunner{output: ""},
			wantErr: errEmptyStats,
		},
		{
			name:    "missing header columns",
			runner:  &fakeRunner{output: "a,b,c\n1,2,3\n"},
			wantErr: errMalformedStats,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newHAProxySampler(&Config{Name: "lb-1"}, tt.runner, zap.NewNop())

			_, err := s.Poll(context.Background())
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseShowStatSkipsUnparsableValues(t *testing.T) {
	sets, err := parseShowStat("# pxname,svname,scur\npx,FRONTEND,notanumber\npx2,FRONTEND,7\n")
	require.NoError(t, err)

	// Rows with no numeric values are dropped entirely.
	require.Len(t, sets, 1)
	assert.Equal(t, "px2", sets[0].Tags["proxy"])
	assert.InDelta(t, 7, sets[0].Values["haproxy.scur"], 0.001)
}
