// Package metrics records sync engine and server activity. Prometheus is
// the only real sink; Nop is the default when nothing is configured.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/idilsaglam/tada/internal/model"
)

// Recorder receives engine events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	// Dispatch observes one backend round trip.
	Dispatch(op string, d time.Duration, err error)
	// Rollback counts a failed mutation whose optimistic write was undone.
	Rollback(op string)
	// Unreconciled counts a failed mutation that was left applied locally.
	Unreconciled(op string)
	// FeedEvent counts one change event; dropped marks events ignored as stale.
	FeedEvent(kind string, dropped bool)
	// Subscribers reports the live subscriber count of the change hub.
	Subscribers(n int)
	// Request observes one HTTP request served by route.
	Request(method, route string, status int, d time.Duration)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Dispatch(string, time.Duration, error)      {}
func (Nop) Rollback(string)                            {}
func (Nop) Unreconciled(string)                        {}
func (Nop) FeedEvent(string, bool)                     {}
func (Nop) Subscribers(int)                            {}
func (Nop) Request(string, string, int, time.Duration) {}

// Prometheus is a Recorder backed by its own registry.
type Prometheus struct {
	reg          *prometheus.Registry
	dispatches   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	rollbacks    *prometheus.CounterVec
	unreconciled *prometheus.CounterVec
	feedEvents   *prometheus.CounterVec
	subscribers  prometheus.Gauge
	requests     *prometheus.HistogramVec
}

// NewPrometheus registers the tada collectors on a fresh registry.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Prometheus{
		reg: reg,
		dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tada_dispatch_total",
			Help: "Backend round trips by operation and result code",
		}, []string{"op", "code"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tada_dispatch_duration_seconds",
			Help:    "Duration of backend round trips",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"op"}),
		rollbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tada_rollbacks_total",
			Help: "Optimistic writes undone after a failed mutation",
		}, []string{"op"}),
		unreconciled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tada_unreconciled_total",
			Help: "Failed mutations left applied locally",
		}, []string{"op"}),
		feedEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tada_feed_events_total",
			Help: "Change feed events by kind and outcome",
		}, []string{"kind", "outcome"}),
		subscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "tada_feed_subscribers",
			Help: "Live change feed subscribers",
		}),
		requests: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tada_http_request_duration_seconds",
			Help:    "HTTP requests by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (p *Prometheus) Dispatch(op string, d time.Duration, err error) {
	code := "ok"
	if err != nil {
		code = model.CodeOf(err)
		if model.IsValidation(err) {
			code = "invalid"
		}
	}
	p.dispatches.WithLabelValues(op, code).Inc()
	p.latency.WithLabelValues(op).Observe(d.Seconds())
}

func (p *Prometheus) Rollback(op string)     { p.rollbacks.WithLabelValues(op).Inc() }
func (p *Prometheus) Unreconciled(op string) { p.unreconciled.WithLabelValues(op).Inc() }

func (p *Prometheus) FeedEvent(kind string, dropped bool) {
	outcome := "applied"
	if dropped {
		outcome = "dropped"
	}
	p.feedEvents.WithLabelValues(kind, outcome).Inc()
}

func (p *Prometheus) Subscribers(n int) { p.subscribers.Set(float64(n)) }

func (p *Prometheus) Request(method, route string, status int, d time.Duration) {
	p.requests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// Registry exposes the underlying registry, mostly for tests.
func (p *Prometheus) Registry() *prometheus.Registry { return p.reg }

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}
