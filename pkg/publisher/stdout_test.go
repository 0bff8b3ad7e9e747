package publisher

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vipdiag/vipdiag/pkg/models"
)

func TestStdoutPublisherWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer

	pub := &StdoutPublisher{out: &buf}
	ts := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	points := []models.MetricPoint{
		{
			RunID:     "run-1",
			Source:    models.SourceSystem,
			Name:      "system.load1",
			Timestamp: ts,
			Value:     1.5,
		},
		{
			RunID:     "run-1",
			Source:    models.SourceStatsSocket,
			Name:      "haproxy.scur",
			Timestamp: ts,
			Value:     42,
			Tags:      map[string]string{"proxy": "web"},
		},
	}

	require.NoError(t, pub.Publish(context.Background(), points))
	require.NoError(t, pub.Close())

	var decoded []models.MetricPoint

	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var p models.MetricPoint
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &p))
		decoded = append(decoded, p)
	}

	require.NoError(t, scanner.Err())
	require.Len(t, decoded, 2)
	assert.Equal(t, points[0].Name, decoded[0].Name)
	assert.Equal(t, points[1].Tags, decoded[1].Tags)
	assert.Equal(t, points[1].Value, decoded[1].Value)
}
