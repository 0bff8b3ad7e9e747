package coordinator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/vipdiag/vipdiag/pkg/config"
	"github.com/vipdiag/vipdiag/pkg/models"
	"github.com/vipdiag/vipdiag/pkg/sampler"
	"github.com/vipdiag/vipdiag/pkg/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return st
}

// mockRegistry returns the given samplers in config order, reusing the
// system kind so config validation passes without endpoints.
func mockRegistry(samplers ...sampler.Sampler) sampler.Registry {
	r := sampler.NewRegistry()

	i := 0
	r.Register(sampler.KindSystem, func(_ *sampler.Config, _ *zap.Logger) (sampler.Sampler, error) {
		s := samplers[i]
		i++

		return s, nil
	})

	return r
}

func systemConfig(name string) sampler.Config {
	return sampler.Config{Kind: sampler.KindSystem, Name: name}
}

func healthySnapshot() (*sampler.Snapshot, error) {
	return &sampler.Snapshot{
		Timestamp: time.Now(),
		Sets: []sampler.PointSet{{
			Tags:   map[string]string{},
			Values: map[string]float64{"system.load1": 0.5},
		}},
	}, nil
}

func TestStartRunRejectsSecondActiveRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := newTestStore(t)

	ms := sampler.NewMockSampler(ctrl)
	ms.EXPECT().Poll(gomock.Any()).DoAndReturn(func(context.Context) (*sampler.Snapshot, error) {
		return healthySnapshot()
	}).AnyTimes()
	ms.EXPECT().Close().Return(nil).AnyTimes()

	ms2 := sampler.NewMockSampler(ctrl)
	ms2.EXPECT().Poll(gomock.Any()).DoAndReturn(func(context.Context) (*sampler.Snapshot, error) {
		return healthySnapshot()
	}).AnyTimes()
	ms2.EXPECT().Close().Return(nil).AnyTimes()

	coord := New(st, mockRegistry(ms, ms2), zap.NewNop())

	run, err := coord.StartRun(context.Background(), &StartRequest{
		Interval: config.Duration(time.Second),
		Samplers: []sampler.Config{systemConfig("local")},
	})
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, run.ID, coord.ActiveRunID())

	_, err = coord.StartRun(context.Background(), &StartRequest{
		Interval: config.Duration(time.Second),
		Samplers: []sampler.Config{systemConfig("other")},
	})
	require.ErrorIs(t, err, ErrRunActive)

	stopped, err := coord.StopRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, stopped.Status)
	assert.Empty(t, coord.ActiveRunID())

	// After the stop, the slot is free again.
	run2, err := coord.StartRun(context.Background(), &StartRequest{
		RunID:    "run-two",
		Interval: config.Duration(time.Second),
		Samplers: []sampler.Config{systemConfig("local")},
	})
	require.NoError(t, err)
	assert.Equal(t, "run-two", run2.ID)

	_, err = coord.AbortRun(context.Background(), run2.ID)
	require.NoError(t, err)
}

func TestStartRunValidation(t *testing.T) {
	st := newTestStore(t)
	coord := New(st, sampler.NewRegistry(), zap.NewNop())

	_, err := coord.StartRun(context.Background(), &StartRequest{
		Interval: config.Duration(time.Second),
	})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = coord.StartRun(context.Background(), &StartRequest{
		Interval: config.Duration(time.Second),
		Timeout:  config.Duration(2 * time.Second),
		Samplers: []sampler.Config{systemConfig("local")},
	})
	require.ErrorIs(t, err, ErrInvalidRequest)

	// Unknown sampler kind surfaces as an invalid request, not a panic
	// mid-run.
	_, err = coord.StartRun(context.Background(), &StartRequest{
		Interval: config.Duration(time.Second),
		Samplers: []sampler.Config{systemConfig("local")},
	})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestStopUnknownRun(t *testing.T) {
	st := newTestStore(t)
	coord := New(st, sampler.NewRegistry(), zap.NewNop())

	_, err := coord.StopRun(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrUnknownRun)

	_, err = coord.AbortRun(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrUnknownRun)
}

func TestDegradedSamplerDoesNotAffectOthers(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := newTestStore(t)

	healthy := sampler.NewMockSampler(ctrl)
	healthy.EXPECT().Poll(gomock.Any()).DoAndReturn(func(context.Context) (*sampler.Snapshot, error) {
		return healthySnapshot()
	}).AnyTimes()
	healthy.EXPECT().Close().Return(nil).AnyTimes()

	flaky := sampler.NewMockSampler(ctrl)
	flaky.EXPECT().Poll(gomock.Any()).Return(nil, sampler.ErrPollTimeout).AnyTimes()
	flaky.EXPECT().Close().Return(nil).AnyTimes()

	coord := New(st, mockRegistry(healthy, flaky), zap.NewNop(),
		WithFailureThreshold(3),
		WithGracePeriod(time.Second))

	run, err := coord.StartRun(context.Background(), &StartRequest{
		Interval: config.Duration(20 * time.Millisecond),
		Timeout:  config.Duration(10 * time.Millisecond),
		Samplers: []sampler.Config{systemConfig("good"), systemConfig("bad")},
	})
	require.NoError(t, err)

	// Enough ticks for the flaky sampler to cross the threshold.
	time.Sleep(150 * time.Millisecond)

	stopped, err := coord.StopRun(context.Background(), run.ID)
	require.NoError(t, err)

	bad := stopped.SamplerHealth["bad"]
	assert.True(t, bad.Degraded, "flaky sampler should be degraded")
	assert.GreaterOrEqual(t, bad.ConsecutiveFailures, 3)
	assert.NotEmpty(t, bad.LastError)

	good := stopped.SamplerHealth["good"]
	assert.False(t, good.Degraded)
	assert.Greater(t, good.Polls, 0)

	// The healthy sampler's points were collected and are queryable.
	points, err := st.Query(context.Background(), &models.PointFilter{
		RunID: run.ID, Name: "system.load1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, points)
}

func TestDegradedSamplerKeepsPollingAndRecovers(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := newTestStore(t)

	// Fails long enough to cross the threshold, then comes back.
	polls := 0
	flaky := sampler.NewMockSampler(ctrl)
	flaky.EXPECT().Poll(gomock.Any()).DoAndReturn(func(context.Context) (*sampler.Snapshot, error) {
		polls++
		if polls <= 3 {
			return nil, sampler.ErrSourceUnreachable
		}

		return healthySnapshot()
	}).AnyTimes()
	flaky.EXPECT().Close().Return(nil).AnyTimes()

	coord := New(st, mockRegistry(flaky), zap.NewNop(),
		WithFailureThreshold(3),
		WithGracePeriod(time.Second))

	run, err := coord.StartRun(context.Background(), &StartRequest{
		Interval: config.Duration(20 * time.Millisecond),
		Timeout:  config.Duration(10 * time.Millisecond),
		Samplers: []sampler.Config{systemConfig("flaky")},
	})
	require.NoError(t, err)

	// Enough ticks to cross the threshold and then recover.
	time.Sleep(250 * time.Millisecond)

	stopped, err := coord.StopRun(context.Background(), run.ID)
	require.NoError(t, err)

	health := stopped.SamplerHealth["flaky"]
	assert.Greater(t, health.Polls, 3, "polling must continue past the degraded threshold")
	assert.Equal(t, 3, health.Failures)
	assert.Equal(t, 0, health.ConsecutiveFailures)
	assert.False(t, health.Degraded, "a recovered sampler is no longer degraded")

	// Points from the post-recovery polls made it into the store.
	points, err := st.Query(context.Background(), &models.PointFilter{
		RunID: run.ID, Name: "system.load1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, points)
}

func TestWorkerForwardsTagOverrides(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := newTestStore(t)

	ms := sampler.NewMockSampler(ctrl)
	ms.EXPECT().Poll(gomock.Any()).DoAndReturn(func(context.Context) (*sampler.Snapshot, error) {
		return &sampler.Snapshot{
			Timestamp: time.Now(),
			Sets: []sampler.PointSet{{
				Tags:   map[string]string{"host": "sampled"},
				Values: map[string]float64{"amphora.load1": 1.0},
			}},
		}, nil
	}).AnyTimes()
	ms.EXPECT().Close().Return(nil).AnyTimes()

	coord := New(st, mockRegistry(ms), zap.NewNop())

	cfg := systemConfig("amp")
	cfg.TagOverrides = map[string]string{"host": "amphora-1", "role": "primary"}

	run, err := coord.StartRun(context.Background(), &StartRequest{
		Interval: config.Duration(20 * time.Millisecond),
		Samplers: []sampler.Config{cfg},
	})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	_, err = coord.StopRun(context.Background(), run.ID)
	require.NoError(t, err)

	points, err := st.Query(context.Background(), &models.PointFilter{RunID: run.ID})
	require.NoError(t, err)
	require.NotEmpty(t, points)

	assert.Equal(t, "amphora-1", points[0].Tags["host"], "override wins on collision")
	assert.Equal(t, "primary", points[0].Tags["role"])
	assert.Equal(t, models.SourceSystem, points[0].Source)
	assert.Equal(t, run.ID, points[0].RunID)
}
