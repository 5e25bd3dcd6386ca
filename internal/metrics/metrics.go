// Package metrics exposes the service counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	elementIDRejected prometheus.Counter
	elementIDResolved *prometheus.CounterVec
	elementIDsPruned  prometheus.Counter
	linksSaved        *prometheus.CounterVec
	pluginSaves       *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		elementIDRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cascade",
			Name:      "element_id_rejected_total",
			Help:      "Edits rejected because the element id was already used on the page.",
		}),
		elementIDResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cascade",
			Name:      "element_id_resolved_total",
			Help:      "New plugin instances whose element id was renamed with a numeric suffix.",
		}, []string{"suffix"}),
		elementIDsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cascade",
			Name:      "element_ids_pruned_total",
			Help:      "Stale element_ids entries removed from page glossaries.",
		}),
		linksSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cascade",
			Name:      "links_saved_total",
			Help:      "Plugin links saved, by link type.",
		}, []string{"type"}),
		pluginSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cascade",
			Name:      "plugin_saves_total",
			Help:      "Plugin instance saves, by plugin type and action.",
		}, []string{"plugin_type", "action"}),
	}
	m.registry.MustRegister(
		m.elementIDRejected,
		m.elementIDResolved,
		m.elementIDsPruned,
		m.linksSaved,
		m.pluginSaves,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) ElementIDRejected() {
	m.elementIDRejected.Inc()
}

// ElementIDResolved counts a rename; suffixes above 9 share one label value.
func (m *Metrics) ElementIDResolved(suffix int) {
	label := strconv.Itoa(suffix)
	if suffix > 9 {
		label = "10+"
	}
	m.elementIDResolved.WithLabelValues(label).Inc()
}

func (m *Metrics) ElementIDsPruned(n int) {
	m.elementIDsPruned.Add(float64(n))
}

func (m *Metrics) LinkSaved(kind string) {
	m.linksSaved.WithLabelValues(kind).Inc()
}

func (m *Metrics) PluginSaved(pluginType, action string) {
	m.pluginSaves.WithLabelValues(pluginType, action).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
