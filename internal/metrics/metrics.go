// Package metrics exposes the player's Prometheus collectors.
// All methods are safe on a nil *Metrics, which disables collection.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/primalradio/primalradio/internal/domain"
)

const namespace = "primal"

// Metrics holds the collectors on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	metadataPolls      *prometheus.CounterVec
	statusFetch        prometheus.Histogram
	reconnectAttempts  prometheus.Counter
	reconnectExhausted prometheus.Counter
	stationSwitches    *prometheus.CounterVec
	playbackPhase      *prometheus.GaugeVec
	websocketClients   prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		metadataPolls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "metadata_polls_total",
				Help:      "Metadata refreshes by source (live, fallback) and fallback reason",
			},
			[]string{"source", "reason"},
		),
		statusFetch: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "status_fetch_duration_seconds",
				Help:      "Time spent querying upstream status endpoints",
				Buckets:   prometheus.DefBuckets,
			},
		),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Scheduled stream reconnect attempts",
		}),
		reconnectExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_exhausted_total",
			Help:      "Reconnect cycles that used up every attempt",
		}),
		stationSwitches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "station_switches_total",
				Help:      "Station selections by station id",
			},
			[]string{"station"},
		),
		playbackPhase: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "playback_phase",
				Help:      "1 for the current playback session phase, 0 otherwise",
			},
			[]string{"phase"},
		),
		websocketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected now-playing websocket clients",
		}),
	}

	m.registry.MustRegister(
		m.metadataPolls,
		m.statusFetch,
		m.reconnectAttempts,
		m.reconnectExhausted,
		m.stationSwitches,
		m.playbackPhase,
		m.websocketClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.SetPhase(domain.PhaseIdle)

	return m
}

// Registry returns the registry backing the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveMetadata counts one refresh.
func (m *Metrics) ObserveMetadata(result domain.MetadataResult) {
	if m == nil {
		return
	}
	m.metadataPolls.WithLabelValues(result.Source.String(), string(result.Reason)).Inc()
}

// ObserveStatusFetch records the duration of one upstream request.
func (m *Metrics) ObserveStatusFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.statusFetch.Observe(d.Seconds())
}

// ObserveReconnectAttempt counts a scheduled reconnect.
func (m *Metrics) ObserveReconnectAttempt() {
	if m == nil {
		return
	}
	m.reconnectAttempts.Inc()
}

// ObserveReconnectExhausted counts a reconnect cycle that gave up.
func (m *Metrics) ObserveReconnectExhausted() {
	if m == nil {
		return
	}
	m.reconnectExhausted.Inc()
}

// ObserveStationSwitch counts a station selection.
func (m *Metrics) ObserveStationSwitch(stationID string) {
	if m == nil {
		return
	}
	m.stationSwitches.WithLabelValues(stationID).Inc()
}

// SetPhase marks phase as the current playback phase.
func (m *Metrics) SetPhase(phase domain.SessionPhase) {
	if m == nil {
		return
	}
	for p := domain.PhaseIdle; p <= domain.PhaseFailed; p++ {
		v := 0.0
		if p == phase {
			v = 1
		}
		m.playbackPhase.WithLabelValues(p.String()).Set(v)
	}
}

// SetWebsocketClients records the number of connected websocket clients.
func (m *Metrics) SetWebsocketClients(n int) {
	if m == nil {
		return
	}
	m.websocketClients.Set(float64(n))
}
