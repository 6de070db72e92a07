// Package metrics holds the Prometheus collectors for cmdbox.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics on a custom registry.
// Recording methods are safe to call on a nil *Collector.
type Collector struct {
	Registry *prometheus.Registry

	ExecTotal           *prometheus.CounterVec
	ExecDuration        *prometheus.HistogramVec
	CDTotal             *prometheus.CounterVec
	TutorialSubmissions *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	TerminalSessions    prometheus.Gauge
}

// New creates a Collector with every metric registered.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,

		ExecTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cmdbox",
			Name:      "exec_total",
			Help:      "Total command executions.",
		}, []string{"mode", "status"}),

		ExecDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cmdbox",
			Name:      "exec_duration_seconds",
			Help:      "Command execution duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"mode"}),

		CDTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cmdbox",
			Name:      "cd_total",
			Help:      "Directory changes by result.",
		}, []string{"result"}),

		TutorialSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cmdbox",
			Name:      "tutorial_submissions_total",
			Help:      "Tutorial submissions by verdict.",
		}, []string{"result"}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cmdbox",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "route", "status"}),

		TerminalSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cmdbox",
			Name:      "terminal_sessions",
			Help:      "Open WebSocket terminal sessions.",
		}),
	}

	reg.MustRegister(
		c.ExecTotal,
		c.ExecDuration,
		c.CDTotal,
		c.TutorialSubmissions,
		c.HTTPRequestsTotal,
		c.TerminalSessions,
	)
	return c
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})
}

// ObserveExec records one command execution. status is "ok", "error" or "timeout".
func (c *Collector) ObserveExec(mode, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.ExecTotal.WithLabelValues(mode, status).Inc()
	c.ExecDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveCD records a directory change. result is "ok" or the failure kind.
func (c *Collector) ObserveCD(result string) {
	if c == nil {
		return
	}
	c.CDTotal.WithLabelValues(result).Inc()
}

// ObserveSubmission records a tutorial verdict.
func (c *Collector) ObserveSubmission(matched bool) {
	if c == nil {
		return
	}
	result := "mismatch"
	if matched {
		result = "match"
	}
	c.TutorialSubmissions.WithLabelValues(result).Inc()
}

// ObserveHTTP records one served request.
func (c *Collector) ObserveHTTP(method, route string, status int) {
	if c == nil {
		return
	}
	c.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// TerminalOpened and TerminalClosed track live terminal sessions.
func (c *Collector) TerminalOpened() {
	if c == nil {
		return
	}
	c.TerminalSessions.Inc()
}

func (c *Collector) TerminalClosed() {
	if c == nil {
		return
	}
	c.TerminalSessions.Dec()
}
