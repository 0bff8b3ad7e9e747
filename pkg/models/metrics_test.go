package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTagKeyIsCanonical(t *testing.T) {
	a := TagKey(map[string]string{"proxy": "front-vip", "component": "frontend"})
	b := TagKey(map[string]string{"component": "frontend", "proxy": "front-vip"})

	assert.Equal(t, a, b, "key ordering must not matter")
	assert.Equal(t, "component=frontend,proxy=front-vip", a)
	assert.Empty(t, TagKey(nil))
}

func TestSeriesKeyDistinguishesSeries(t *testing.T) {
	base := MetricPoint{Source: SourceSystem, Name: "system.load1"}

	tagged := base
	tagged.Tags = map[string]string{"host": "amphora-1"}

	otherSource := base
	otherSource.Source = SourceManagementAPI

	assert.NotEqual(t, base.SeriesKey(), tagged.SeriesKey())
	assert.NotEqual(t, base.SeriesKey(), otherSource.SeriesKey())

	same := MetricPoint{Source: SourceSystem, Name: "system.load1"}
	assert.Equal(t, base.SeriesKey(), same.SeriesKey())
}

func TestSeverityRank(t *testing.T) {
	assert.Less(t, SeverityRank(SeverityCritical), SeverityRank(SeverityWarning))
	assert.Less(t, SeverityRank(SeverityWarning), SeverityRank(SeverityInfo))
	assert.Greater(t, SeverityRank(Severity("bogus")), SeverityRank(SeverityInfo))
}
