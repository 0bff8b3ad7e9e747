package detector

import (
	"fmt"

	"github.com/vipdiag/vipdiag/pkg/models"
)

// Sustained rules need at least two samples per series; a lone sample
// is insufficient evidence and skips the rule rather than failing it.
const minSustainedSamples = 2

// ruleFunc evaluates one category against a run's series. Each
// invocation is pure: same series and config, same findings.
type ruleFunc func(cfg *Config, set *seriesSet) []models.Finding

// The rule table. Categories are independent; adding a rule means
// adding a row, not touching the analysis control flow.
var rules = []struct {
	category models.Category
	evaluate ruleFunc
}{
	{models.CategoryCPU, evalCPU},
	{models.CategoryMemory, evalMemory},
	{models.CategoryConnectionLimit, evalConnectionLimit},
	{models.CategoryNetwork, evalNetwork},
	{models.CategoryBackend, evalBackend},
}

// evalCPU compares the 1-minute load average against the core count.
// Warning fires when load exceeds the core count for a majority of
// samples, critical when it exceeds twice the core count.
func evalCPU(cfg *Config, set *seriesSet) []models.Finding {
	var findings []models.Finding

	for _, loadSeries := range set.withSuffix(".load1") {
		if len(loadSeries.points) < minSustainedSamples {
			continue
		}

		coreSeries := set.sibling(loadSeries, "cpu_count")
		if coreSeries == nil {
			continue
		}

		cores := coreSeries.last()
		if cores <= 0 {
			continue
		}

		loads := loadSeries.values()

		critThreshold := cores * cfg.CPUCritLoadPerCore
		warnThreshold := cores * cfg.CPUWarnLoadPerCore

		var severity models.Severity

		var threshold float64

		switch {
		case sustained(loads, cfg.SustainedFraction, above(critThreshold, true)):
			severity, threshold = models.SeverityCritical, critThreshold
		case sustained(loads, cfg.SustainedFraction, above(warnThreshold, false)):
			severity, threshold = models.SeverityWarning, warnThreshold
		default:
			continue
		}

		findings = append(findings, models.Finding{
			Category: models.CategoryCPU,
			Severity: severity,
			Window:   loadSeries.window(),
			Evidence: []models.Evidence{
				{Metric: loadSeries.name, Value: max64(loads), Threshold: threshold},
				{Metric: coreSeries.name, Value: cores, Threshold: 0},
			},
			Message: fmt.Sprintf("load average sustained above %.1f on %.0f cores (peak %.2f)",
				threshold, cores, max64(loads)),
		})
	}

	return findings
}

// evalMemory watches free memory as a fraction of total. Warning below
// the warn percentage, critical at or below the critical one.
func evalMemory(cfg *Config, set *seriesSet) []models.Finding {
	var findings []models.Finding

	for _, freeSeries := range set.withSuffix(".mem_free") {
		if len(freeSeries.points) < minSustainedSamples {
			continue
		}

		totalSeries := set.sibling(freeSeries, "mem_total")
		if totalSeries == nil {
			continue
		}

		total := totalSeries.last()
		if total <= 0 {
			continue
		}

		freePcts := make([]float64, 0, len(freeSeries.points))
		for _, v := range freeSeries.values() {
			freePcts = append(freePcts, v/total*100)
		}

		var severity models.Severity

		var threshold float64

		switch {
		case sustained(freePcts, cfg.SustainedFraction, below(cfg.MemCritFreePct, true)):
			severity, threshold = models.SeverityCritical, cfg.MemCritFreePct
		case sustained(freePcts, cfg.SustainedFraction, below(cfg.MemWarnFreePct, false)):
			severity, threshold = models.SeverityWarning, cfg.MemWarnFreePct
		default:
			continue
		}

		findings = append(findings, models.Finding{
			Category: models.CategoryMemory,
			Severity: severity,
			Window:   freeSeries.window(),
			Evidence: []models.Evidence{
				{Metric: freeSeries.name, Value: min64(freePcts), Threshold: threshold},
			},
			Message: fmt.Sprintf("free memory sustained below %.0f%% of total (low %.1f%%)",
				threshold, min64(freePcts)),
		})
	}

	return findings
}

// evalConnectionLimit compares current sessions against the configured
// session limit. Saturation is evaluated at the peak: a single sample
// at the limit is already a dropped-connection risk, so no minimum
// sample count applies here.
func evalConnectionLimit(cfg *Config, set *seriesSet) []models.Finding {
	var findings []models.Finding

	for _, curSeries := range set.withSuffix(".scur") {
		limSeries := set.sibling(curSeries, "slim")
		if limSeries == nil {
			continue
		}

		limit := limSeries.last()
		if limit <= 0 {
			continue
		}

		peakPct := 0.0
		for _, v := range curSeries.values() {
			if pct := v / limit * 100; pct > peakPct {
				peakPct = pct
			}
		}

		var severity models.Severity

		var threshold float64

		switch {
		case peakPct >= cfg.ConnCritPct:
			severity, threshold = models.SeverityCritical, cfg.ConnCritPct
		case peakPct > cfg.ConnWarnPct:
			severity, threshold = models.SeverityWarning, cfg.ConnWarnPct
		default:
			continue
		}

		findings = append(findings, models.Finding{
			Category: models.CategoryConnectionLimit,
			Severity: severity,
			Window:   curSeries.window(),
			Evidence: []models.Evidence{
				{Metric: curSeries.name, Value: peakPct, Threshold: threshold},
				{Metric: limSeries.name, Value: limit, Threshold: 0},
			},
			Message: fmt.Sprintf("session usage peaked at %.1f%% of limit %.0f%s",
				peakPct, limit, tagSuffix(curSeries)),
		})
	}

	return findings
}

// evalNetwork converts cumulative byte counters into per-interface
// throughput rates and compares them against nominal capacity.
func evalNetwork(cfg *Config, set *seriesSet) []models.Finding {
	var findings []models.Finding

	for _, suffix := range []string{".net_tx_bytes", ".net_rx_bytes"} {
		for _, byteSeries := range set.withSuffix(suffix) {
			utilPcts := counterRates(byteSeries, cfg.NetCapacityBytesPerSec)
			if len(utilPcts) < 1 || len(byteSeries.points) < minSustainedSamples {
				continue
			}

			var severity models.Severity

			var threshold float64

			switch {
			case sustained(utilPcts, cfg.SustainedFraction, above(cfg.NetCritPct, true)):
				severity, threshold = models.SeverityCritical, cfg.NetCritPct
			case sustained(utilPcts, cfg.SustainedFraction, above(cfg.NetWarnPct, false)):
				severity, threshold = models.SeverityWarning, cfg.NetWarnPct
			default:
				continue
			}

			findings = append(findings, models.Finding{
				Category: models.CategoryNetwork,
				Severity: severity,
				Window:   byteSeries.window(),
				Evidence: []models.Evidence{
					{Metric: byteSeries.name, Value: max64(utilPcts), Threshold: threshold},
				},
				Message: fmt.Sprintf("interface utilization sustained above %.0f%% of capacity (peak %.1f%%)%s",
					threshold, max64(utilPcts), tagSuffix(byteSeries)),
			})
		}
	}

	return findings
}

// evalBackend looks at the error-to-request ratio over the window and
// at queue depth. A monotonically growing queue means the backend has
// stopped keeping up regardless of the error rate.
func evalBackend(cfg *Config, set *seriesSet) []models.Finding {
	var findings []models.Finding

	for _, reqSeries := range set.withSuffix(".stot") {
		if len(reqSeries.points) < minSustainedSamples {
			continue
		}

		reqDelta := reqSeries.last() - reqSeries.points[0].Value

		errDelta := 0.0
		evidence := []models.Evidence{}

		for _, metric := range []string{"econ", "eresp", "ereq"} {
			errSeries := set.sibling(reqSeries, metric)
			if errSeries == nil || len(errSeries.points) < minSustainedSamples {
				continue
			}

			delta := errSeries.last() - errSeries.points[0].Value
			if delta > 0 {
				errDelta += delta
				evidence = append(evidence, models.Evidence{Metric: errSeries.name, Value: delta})
			}
		}

		queueGrowing := false

		if qSeries := set.sibling(reqSeries, "qcur"); qSeries != nil {
			queueGrowing = monotonicallyIncreasing(qSeries.values())
			if queueGrowing {
				evidence = append(evidence, models.Evidence{
					Metric: qSeries.name,
					Value:  qSeries.last(),
				})
			}
		}

		errPct := 0.0
		if reqDelta > 0 {
			errPct = errDelta / reqDelta * 100
		}

		var severity models.Severity

		var threshold float64

		switch {
		case queueGrowing || errPct >= cfg.BackendCritErrPct:
			severity, threshold = models.SeverityCritical, cfg.BackendCritErrPct
		case errPct > cfg.BackendWarnErrPct:
			severity, threshold = models.SeverityWarning, cfg.BackendWarnErrPct
		default:
			continue
		}

		for i := range evidence {
			if evidence[i].Threshold == 0 && evidence[i].Metric != "" {
				evidence[i].Threshold = threshold
			}
		}

		message := fmt.Sprintf("backend error rate %.2f%% of %.0f requests%s",
			errPct, reqDelta, tagSuffix(reqSeries))
		if queueGrowing {
			message = "backend queue depth growing monotonically across the window" + tagSuffix(reqSeries)
		}

		findings = append(findings, models.Finding{
			Category: models.CategoryBackend,
			Severity: severity,
			Window:   reqSeries.window(),
			Evidence: evidence,
			Message:  message,
		})
	}

	return findings
}

// sustained reports whether pred holds for strictly more than fraction
// of the samples.
func sustained(values []float64, fraction float64, pred func(float64) bool) bool {
	if len(values) == 0 {
		return false
	}

	count := 0

	for _, v := range values {
		if pred(v) {
			count++
		}
	}

	return float64(count)/float64(len(values)) > fraction
}

func above(threshold float64, inclusive bool) func(float64) bool {
	if inclusive {
		return func(v float64) bool { return v >= threshold }
	}

	return func(v float64) bool { return v > threshold }
}

func below(threshold float64, inclusive bool) func(float64) bool {
	if inclusive {
		return func(v float64) bool { return v <= threshold }
	}

	return func(v float64) bool { return v < threshold }
}

func monotonicallyIncreasing(values []float64) bool {
	if len(values) < minSustainedSamples {
		return false
	}

	for i := 1; i < len(values); i++ {
		if values[i] <= values[i-1] {
			return false
		}
	}

	return true
}

// counterRates turns a cumulative byte counter series into utilization
// percentages per sample gap. Counter resets produce a negative delta
// and are dropped.
func counterRates(sr *series, capacityBytesPerSec float64) []float64 {
	if capacityBytesPerSec <= 0 {
		return nil
	}

	var pcts []float64

	for i := 1; i < len(sr.points); i++ {
		prev, cur := &sr.points[i-1], &sr.points[i]

		seconds := cur.Timestamp.Sub(prev.Timestamp).Seconds()
		if seconds <= 0 {
			continue
		}

		delta := cur.Value - prev.Value
		if delta < 0 {
			continue
		}

		pcts = append(pcts, delta/seconds/capacityBytesPerSec*100)
	}

	return pcts
}

func tagSuffix(sr *series) string {
	if sr.tagKey == "" {
		return ""
	}

	return " [" + sr.tagKey + "]"
}

func max64(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}

	return m
}

func min64(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}

	return m
}
