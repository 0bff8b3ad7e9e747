package detector

import (
	"strings"

	"github.com/vipdiag/vipdiag/pkg/models"
)

// series is one (source, name, tags) stream, points kept in the
// timestamp-ascending order the store returns them.
type series struct {
	source models.Source
	name   string
	tagKey string
	tags   map[string]string
	points []models.MetricPoint
}

func (s *series) window() models.TimeRange {
	return models.TimeRange{
		Start: s.points[0].Timestamp,
		End:   s.points[len(s.points)-1].Timestamp,
	}
}

func (s *series) values() []float64 {
	vals := make([]float64, len(s.points))
	for i := range s.points {
		vals[i] = s.points[i].Value
	}

	return vals
}

func (s *series) last() float64 {
	return s.points[len(s.points)-1].Value
}

// seriesSet indexes a run's points by series for rule evaluation.
type seriesSet struct {
	bySeries map[string]*series
	ordered  []*series
}

func groupSeries(points []models.MetricPoint) *seriesSet {
	set := &seriesSet{bySeries: make(map[string]*series)}

	for i := range points {
		p := &points[i]

		key := p.SeriesKey()

		sr, ok := set.bySeries[key]
		if !ok {
			sr = &series{
				source: p.Source,
				name:   p.Name,
				tagKey: models.TagKey(p.Tags),
				tags:   p.Tags,
			}
			set.bySeries[key] = sr
			set.ordered = append(set.ordered, sr)
		}

		sr.points = append(sr.points, *p)
	}

	return set
}

// withSuffix returns all series whose metric name ends in suffix,
// regardless of namespace (system.load1 and amphora.load1 both match
// ".load1").
func (s *seriesSet) withSuffix(suffix string) []*series {
	var out []*series

	for _, sr := range s.ordered {
		if strings.HasSuffix(sr.name, suffix) {
			out = append(out, sr)
		}
	}

	return out
}

// sibling finds the series with the given metric name in the same
// namespace, source and tag set as ref. The namespace is everything up
// to and including the first dot of ref's name.
func (s *seriesSet) sibling(ref *series, metric string) *series {
	namespace := ""
	if idx := strings.Index(ref.name, "."); idx >= 0 {
		namespace = ref.name[:idx+1]
	}

	key := (&models.MetricPoint{
		Source: ref.source,
		Name:   namespace + metric,
		Tags:   ref.tags,
	}).SeriesKey()

	return s.bySeries[key]
}
