package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vipdiag/vipdiag/pkg/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return st
}

func createActiveRun(t *testing.T, st *SQLiteStore, runID string) {
	t.Helper()

	require.NoError(t, st.CreateRun(context.Background(), &models.Run{
		ID:        runID,
		StartedAt: time.Now(),
		Status:    models.RunActive,
	}))
}

func point(runID, name string, ts time.Time, value float64, tags map[string]string) *models.MetricPoint {
	return &models.MetricPoint{
		RunID:     runID,
		Source:    models.SourceSystem,
		Name:      name,
		Timestamp: ts,
		Value:     value,
		Tags:      tags,
	}
}

func TestRunLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	createActiveRun(t, st, "run-1")

	run, err := st.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunActive, run.Status)
	assert.Nil(t, run.EndedAt)

	health := map[string]models.SamplerHealth{
		"local": {Polls: 10, Failures: 2, Degraded: false},
	}

	closed, err := st.CloseRun(ctx, "run-1", models.RunCompleted, health)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, closed.Status)
	require.NotNil(t, closed.EndedAt)
	assert.Equal(t, 10, closed.SamplerHealth["local"].Polls)

	// Closing twice is rejected.
	_, err = st.CloseRun(ctx, "run-1", models.RunAborted, nil)
	require.ErrorIs(t, err, ErrRunClosed)

	_, err = st.GetRun(ctx, "missing")
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestListRuns(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		require.NoError(t, st.CreateRun(ctx, &models.Run{
			ID:        id,
			StartedAt: time.Now().Add(time.Duration(i) * time.Minute),
			Status:    models.RunActive,
		}))
	}

	runs, err := st.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	// Most recent first.
	assert.Equal(t, "run-c", runs[0].ID)
	assert.Equal(t, "run-b", runs[1].ID)
}

func TestAppendOrderedRegardlessOfInsertionOrder(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	createActiveRun(t, st, "run-1")

	base := time.Now().Truncate(time.Millisecond)

	// Insert out of order.
	for _, offset := range []int{3, 0, 2, 1} {
		require.NoError(t, st.Append(ctx,
			point("run-1", "system.load1", base.Add(time.Duration(offset)*time.Second), float64(offset), nil)))
	}

	points, err := st.Query(ctx, &models.PointFilter{RunID: "run-1", Name: "system.load1"})
	require.NoError(t, err)
	require.Len(t, points, 4)

	for i := 1; i < len(points); i++ {
		assert.True(t, points[i].Timestamp.After(points[i-1].Timestamp),
			"points must be strictly timestamp-ascending")
	}
}

func TestAppendDuplicateRejected(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	createActiveRun(t, st, "run-1")

	ts := time.Now().Truncate(time.Millisecond)
	tags := map[string]string{"proxy": "front-vip"}

	require.NoError(t, st.Append(ctx, point("run-1", "haproxy.scur", ts, 10, tags)))

	err := st.Append(ctx, point("run-1", "haproxy.scur", ts, 99, tags))
	require.ErrorIs(t, err, ErrDuplicatePoint)

	points, err := st.Query(ctx, &models.PointFilter{RunID: "run-1"})
	require.NoError(t, err)
	require.Len(t, points, 1)
	// The prior point is unchanged.
	assert.InDelta(t, 10, points[0].Value, 0.001)

	// Same timestamp on a different series is fine.
	require.NoError(t, st.Append(ctx,
		point("run-1", "haproxy.scur", ts, 5, map[string]string{"proxy": "other"})))
}

func TestAppendClosedOrMissingRun(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	err := st.Append(ctx, point("ghost", "m", time.Now(), 1, nil))
	require.ErrorIs(t, err, ErrRunNotFound)

	createActiveRun(t, st, "run-1")
	_, err = st.CloseRun(ctx, "run-1", models.RunCompleted, nil)
	require.NoError(t, err)

	err = st.Append(ctx, point("run-1", "m", time.Now(), 1, nil))
	require.ErrorIs(t, err, ErrRunClosed)
}

func TestQueryFilters(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	createActiveRun(t, st, "run-1")

	base := time.Now().Truncate(time.Millisecond)

	require.NoError(t, st.Append(ctx, point("run-1", "system.load1", base, 1, nil)))
	require.NoError(t, st.Append(ctx, point("run-1", "system.load5", base, 2, nil)))
	require.NoError(t, st.Append(ctx, point("run-1", "system.load1", base.Add(time.Minute), 3, nil)))
	require.NoError(t, st.Append(ctx, &models.MetricPoint{
		RunID: "run-1", Source: models.SourceStatsSocket, Name: "haproxy.scur",
		Timestamp: base, Value: 4, Tags: map[string]string{"proxy": "front-vip", "component": "frontend"},
	}))

	t.Run("by name", func(t *testing.T) {
		points, err := st.Query(ctx, &models.PointFilter{RunID: "run-1", Name: "system.load1"})
		require.NoError(t, err)
		assert.Len(t, points, 2)
	})

	t.Run("by source", func(t *testing.T) {
		points, err := st.Query(ctx, &models.PointFilter{RunID: "run-1", Source: models.SourceStatsSocket})
		require.NoError(t, err)
		require.Len(t, points, 1)
		assert.Equal(t, "haproxy.scur", points[0].Name)
	})

	t.Run("by time range", func(t *testing.T) {
		points, err := st.Query(ctx, &models.PointFilter{
			RunID: "run-1", Name: "system.load1", Start: base.Add(30 * time.Second),
		})
		require.NoError(t, err)
		require.Len(t, points, 1)
		assert.InDelta(t, 3, points[0].Value, 0.001)
	})

	t.Run("by tag subset", func(t *testing.T) {
		points, err := st.Query(ctx, &models.PointFilter{
			RunID: "run-1", Tags: map[string]string{"proxy": "front-vip"},
		})
		require.NoError(t, err)
		require.Len(t, points, 1)
		assert.Equal(t, "frontend", points[0].Tags["component"])
	})

	t.Run("other run is invisible", func(t *testing.T) {
		points, err := st.Query(ctx, &models.PointFilter{RunID: "run-2"})
		require.NoError(t, err)
		assert.Empty(t, points)
	})
}

func TestDeleteRunCascades(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	createActiveRun(t, st, "run-1")
	require.NoError(t, st.Append(ctx, point("run-1", "m", time.Now(), 1, nil)))

	_, err := st.CloseRun(ctx, "run-1", models.RunCompleted, nil)
	require.NoError(t, err)

	require.NoError(t, st.ReplaceFindings(ctx, "run-1", []models.Finding{{
		RunID: "run-1", Category: models.CategoryCPU, Severity: models.SeverityWarning,
		Window:  models.TimeRange{Start: time.Now(), End: time.Now()},
		Message: "test",
	}}))

	require.NoError(t, st.DeleteRun(ctx, "run-1"))

	_, err = st.GetRun(ctx, "run-1")
	require.ErrorIs(t, err, ErrRunNotFound)

	points, err := st.Query(ctx, &models.PointFilter{RunID: "run-1"})
	require.NoError(t, err)
	assert.Empty(t, points)

	findings, err := st.GetFindings(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestReplaceFindingsIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	createActiveRun(t, st, "run-1")

	window := models.TimeRange{
		Start: time.Now().Truncate(time.Millisecond),
		End:   time.Now().Truncate(time.Millisecond).Add(time.Minute),
	}

	first := []models.Finding{
		{RunID: "run-1", Category: models.CategoryCPU, Severity: models.SeverityCritical, Window: window,
			Evidence: []models.Evidence{{Metric: "system.load1", Value: 9, Threshold: 8}},
			Message:  "cpu saturated"},
		{RunID: "run-1", Category: models.CategoryMemory, Severity: models.SeverityWarning, Window: window,
			Message: "memory low"},
	}

	require.NoError(t, st.ReplaceFindings(ctx, "run-1", first))

	got, err := st.GetFindings(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.CategoryCPU, got[0].Category)
	require.Len(t, got[0].Evidence, 1)
	assert.InDelta(t, 9, got[0].Evidence[0].Value, 0.001)

	// A second analysis replaces, never appends.
	second := first[:1]
	require.NoError(t, st.ReplaceFindings(ctx, "run-1", second))

	got, err = st.GetFindings(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.ErrorIs(t, st.ReplaceFindings(ctx, "ghost", nil), ErrRunNotFound)
}
