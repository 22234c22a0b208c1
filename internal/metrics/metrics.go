// Package metrics defines the Prometheus instruments for dataset loads and
// HTTP traffic.
//
// Collectors are registered on an injected registry so tests can use a
// fresh one and the server can expose exactly what it registered.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trackstats"

// Load results used as the "result" label.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds every collector.
type Metrics struct {
	registry *prometheus.Registry

	LoadsTotal      *prometheus.CounterVec
	LoadDuration    *prometheus.HistogramVec
	DatasetRows     prometheus.Gauge
	RemovedRows     *prometheus.GaugeVec
	DatasetLoadedAt prometheus.Gauge
	ReloadsActive   prometheus.Gauge

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	WSClients    prometheus.Gauge
}

// New creates the collectors on reg. A nil reg gets a fresh registry with
// the Go and process collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		LoadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_loads_total",
			Help:      "Dataset load attempts by trigger and result.",
		}, []string{"trigger", "result"}),

		LoadDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dataset_load_duration_seconds",
			Help:      "Time spent reading and cleaning a source.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"result"}),

		DatasetRows: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_rows",
			Help:      "Records in the current dataset.",
		}),

		RemovedRows: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_removed_rows",
			Help:      "Source rows dropped from the current dataset, by rule.",
		}, []string{"reason"}),

		DatasetLoadedAt: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_loaded_timestamp_seconds",
			Help:      "Unix time the current dataset was loaded.",
		}),

		ReloadsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reloads_active",
			Help:      "Loads currently holding a reload slot.",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),

		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),

		WSClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected dataset notification clients.",
		}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveLoad records one load attempt.
func (m *Metrics) ObserveLoad(trigger, result string, d time.Duration) {
	m.LoadsTotal.WithLabelValues(trigger, result).Inc()
	m.LoadDuration.WithLabelValues(result).Observe(d.Seconds())
}

// SetDataset publishes the shape of the dataset now being served.
func (m *Metrics) SetDataset(rows, removedCharset, removedBlacklist int, loadedAt time.Time) {
	m.DatasetRows.Set(float64(rows))
	m.RemovedRows.WithLabelValues("charset").Set(float64(removedCharset))
	m.RemovedRows.WithLabelValues("blacklist").Set(float64(removedBlacklist))
	m.DatasetLoadedAt.Set(float64(loadedAt.Unix()))
}

// ObserveHTTP records one HTTP request.
func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route, method).Observe(d.Seconds())
}
