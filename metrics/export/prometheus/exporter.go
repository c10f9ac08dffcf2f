package prometheus

import (
	"net/http"

	authstate "github.com/MrEthical07/authstate"
	"github.com/MrEthical07/authstate/metrics/export/internaldefs"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsSource interface {
	MetricsSnapshot() authstate.MetricsSnapshot
	AuditDropped() uint64
}

type describedCounter struct {
	id   authstate.MetricID
	desc *prom.Desc
}

type describedHistogram struct {
	id   authstate.MetricID
	desc *prom.Desc
}

// PrometheusExporter is a [prom.Collector] that reads an engine snapshot on
// every scrape. It never touches the global registry.
type PrometheusExporter struct {
	source       metricsSource
	counters     []describedCounter
	histograms   []describedHistogram
	auditDropped *prom.Desc
	registry     *prom.Registry
}

// NewPrometheusExporter creates an exporter reading from engine.
func NewPrometheusExporter(engine *authstate.Engine) *PrometheusExporter {
	return NewPrometheusExporterFromSource(engine)
}

// NewPrometheusExporterFromSource creates an exporter reading from source.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	e := &PrometheusExporter{
		source:       source,
		counters:     make([]describedCounter, 0, len(internaldefs.CounterDefs)),
		histograms:   make([]describedHistogram, 0, len(internaldefs.HistogramDefs)),
		auditDropped: prom.NewDesc(internaldefs.AuditDroppedName, "Audit events dropped under dispatcher backpressure.", nil, nil),
	}
	for _, def := range internaldefs.CounterDefs {
		e.counters = append(e.counters, describedCounter{id: def.ID, desc: prom.NewDesc(def.Name, def.Help, nil, nil)})
	}
	for _, def := range internaldefs.HistogramDefs {
		e.histograms = append(e.histograms, describedHistogram{id: def.ID, desc: prom.NewDesc(def.Name, def.Help, nil, nil)})
	}

	e.registry = prom.NewRegistry()
	e.registry.MustRegister(e)
	return e
}

// Describe implements [prom.Collector].
func (e *PrometheusExporter) Describe(ch chan<- *prom.Desc) {
	for _, c := range e.counters {
		ch <- c.desc
	}
	for _, h := range e.histograms {
		ch <- h.desc
	}
	ch <- e.auditDropped
}

// Collect implements [prom.Collector].
func (e *PrometheusExporter) Collect(ch chan<- prom.Metric) {
	if e.source == nil {
		return
	}
	snapshot := e.source.MetricsSnapshot()

	for _, c := range e.counters {
		ch <- prom.MustNewConstMetric(c.desc, prom.CounterValue, float64(snapshot.Counters[c.id]))
	}

	for _, h := range e.histograms {
		raw := internaldefs.NormalizeBuckets(snapshot.Histograms[h.id])
		cumulative := internaldefs.CumulativeBuckets(raw)
		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for i, bound := range internaldefs.HistogramUpperBounds {
			buckets[bound] = cumulative[i]
		}
		ch <- prom.MustNewConstHistogram(h.desc, cumulative[len(cumulative)-1], internaldefs.ApproximateSum(raw), buckets)
	}

	ch <- prom.MustNewConstMetric(e.auditDropped, prom.CounterValue, float64(e.source.AuditDropped()))
}

// Registry returns the private registry holding this exporter, for callers
// that merge it into a larger gatherer.
func (e *PrometheusExporter) Registry() *prom.Registry {
	return e.registry
}

// Handler serves the exporter's registry in the Prometheus exposition
// format.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
