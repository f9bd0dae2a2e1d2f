package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aims"

// Recorder owns a private Prometheus registry with the collectors the API
// reports: HTTP traffic, CORS rejections and the datastore connection state.
type Recorder struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	corsRejections  prometheus.Counter
	datastoreState  *prometheus.GaugeVec
	ephemeral       prometheus.Gauge
}

// New constructs a Recorder with freshly registered collectors. Each Recorder
// has its own registry, so tests can create as many as they need.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed by the API.",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latency of HTTP requests processed by the API.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		corsRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cors_rejections_total",
			Help:      "Cross-origin requests rejected by the origin policy.",
		}),
		datastoreState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "datastore_state",
			Help:      "Datastore connection state (1 for the current state).",
		}, []string{"state"}),
		ephemeral: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "datastore_ephemeral",
			Help:      "1 when the API runs on the in-memory fallback datastore.",
		}),
	}
	r.registry.MustRegister(
		r.requests,
		r.requestDuration,
		r.corsRejections,
		r.datastoreState,
		r.ephemeral,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveRequest counts a request and records its latency under the
// normalised path.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	m := strings.ToUpper(method)
	p := normalizePath(path)
	r.requests.WithLabelValues(m, p, strconv.Itoa(status)).Inc()
	r.requestDuration.WithLabelValues(m, p).Observe(duration.Seconds())
}

func (r *Recorder) ObserveCORSRejection() {
	r.corsRejections.Inc()
}

// SetDatastoreState marks current as the active state and clears the others.
func (r *Recorder) SetDatastoreState(current string, all []string) {
	for _, state := range all {
		value := 0.0
		if state == current {
			value = 1
		}
		r.datastoreState.WithLabelValues(state).Set(value)
	}
}

func (r *Recorder) SetEphemeral(ephemeral bool) {
	if ephemeral {
		r.ephemeral.Set(1)
		return
	}
	r.ephemeral.Set(0)
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if len(segment) >= 16 {
		return true
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount >= 3
}
