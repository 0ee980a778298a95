package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type buildMetrics struct {
	registry *prometheus.Registry
	builds   *prometheus.CounterVec
	duration prometheus.Histogram
	pages    prometheus.Gauge
}

func newBuildMetrics(hub *Hub) *buildMetrics {
	m := &buildMetrics{
		registry: prometheus.NewRegistry(),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pagepack",
			Name:      "builds_total",
			Help:      "Builds run by the dev server, by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pagepack",
			Name:      "build_duration_seconds",
			Help:      "Duration of dev server builds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		pages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pagepack",
			Name:      "pages",
			Help:      "Pages generated by the most recent successful build.",
		}),
	}
	clients := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "pagepack",
		Name:      "reload_clients",
		Help:      "Connected live-reload clients.",
	}, func() float64 { return float64(hub.Len()) })

	m.registry.MustRegister(m.builds, m.duration, m.pages, clients)
	return m
}

func (m *buildMetrics) observe(d time.Duration, pages int, err error) {
	m.duration.Observe(d.Seconds())
	if err != nil {
		m.builds.WithLabelValues("error").Inc()
		return
	}
	m.builds.WithLabelValues("success").Inc()
	m.pages.Set(float64(pages))
}

func (m *buildMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
