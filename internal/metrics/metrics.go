package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gst3d/pushserver/internal/domain"
)

const namespace = "push"

// Recorder implements domain.MetricsRecorder on a private Prometheus registry
type Recorder struct {
	registry      *prometheus.Registry
	registrations *prometheus.CounterVec
	geolocation   *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	evictions     prometheus.Counter
	dispatches    *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New builds a Recorder. registeredTokens is sampled on every scrape.
func New(registeredTokens func() int) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Token registrations by action.",
		}, []string{"action"}),
		geolocation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geolocation_total",
			Help:      "Registration location resolutions by source.",
		}, []string{"resolved_by"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Per-target delivery attempts by dispatch kind and outcome.",
		}, []string{"kind", "outcome"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Tokens removed after a permanent delivery failure.",
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Dispatches that reached at least one target.",
		}, []string{"kind"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}

	r.registry.MustRegister(
		r.registrations,
		r.geolocation,
		r.deliveries,
		r.evictions,
		r.dispatches,
		r.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if registeredTokens != nil {
		r.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_tokens",
			Help:      "Tokens currently in the registry.",
		}, func() float64 { return float64(registeredTokens()) }))
	}
	return r
}

func (r *Recorder) Registration(action domain.AuditAction) {
	r.registrations.WithLabelValues(string(action)).Inc()
}

func (r *Recorder) Geolocation(by domain.ResolvedBy) {
	r.geolocation.WithLabelValues(string(by)).Inc()
}

func (r *Recorder) Delivery(kind domain.DispatchKind, success bool, errKind domain.DeliveryErrorKind) {
	outcome := "success"
	if !success {
		outcome = string(errKind)
	}
	r.deliveries.WithLabelValues(string(kind), outcome).Inc()
}

func (r *Recorder) Evicted(n int) {
	if n > 0 {
		r.evictions.Add(float64(n))
	}
}

func (r *Recorder) Dispatch(kind domain.DispatchKind) {
	r.dispatches.WithLabelValues(string(kind)).Inc()
}

// ObserveHTTP records one served request
func (r *Recorder) ObserveHTTP(method string, status int, d time.Duration) {
	r.httpDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

var _ domain.MetricsRecorder = (*Recorder)(nil)
