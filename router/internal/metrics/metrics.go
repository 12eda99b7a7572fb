// Package metrics exposes Prometheus metrics for the router: classification
// outcomes, the active threshold, sink deliveries and inbound HTTP requests.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"github.com/txnroute/txnroute/pkg/types"
	"github.com/txnroute/txnroute/router/internal/classifier"
)

const namespace = "txnroute"

// Metric family names, shared with the feeder's probe.
const (
	RoutedTotalName  = types.MetricRoutedTotal
	DroppedTotalName = types.MetricDroppedTotal
	ThresholdName    = types.MetricThreshold
)

// Collector owns a private registry with all router metrics.
// It implements processor.Observer.
type Collector struct {
	registry        *prometheus.Registry
	routed          *prometheus.CounterVec
	dropped         *prometheus.CounterVec
	threshold       prometheus.Gauge
	deliveries      *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
}

// New constructs a Collector and registers every metric.
func New() (*Collector, error) {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		routed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_routed_total",
			Help:      "Records forwarded to an output channel.",
		}, []string{"channel"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Records discarded because the amount was missing or unparseable.",
		}, []string{"reason"}),
		threshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "threshold",
			Help:      "Active Transaction Threshold.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "deliveries_total",
			Help:      "Sink delivery attempts by result.",
		}, []string{"sink", "result"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for inbound HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests.",
		}, []string{"method", "path", "status"}),
	}

	for _, m := range []prometheus.Collector{
		c.routed, c.dropped, c.threshold, c.deliveries, c.requestDuration, c.requestTotal,
	} {
		if err := c.registry.Register(m); err != nil {
			return nil, err
		}
	}

	// Pre-create the label sets so all series are exported from zero.
	for _, ch := range classifier.Channels {
		c.routed.WithLabelValues(string(ch))
	}
	c.dropped.WithLabelValues(string(classifier.ReasonMissingAmount))
	c.dropped.WithLabelValues(string(classifier.ReasonUnparseableAmount))

	return c, nil
}

// ObserveRouted counts a routed record.
func (c *Collector) ObserveRouted(ch classifier.Channel) {
	c.routed.WithLabelValues(string(ch)).Inc()
}

// ObserveDropped counts a dropped record.
func (c *Collector) ObserveDropped(reason classifier.Reason) {
	c.dropped.WithLabelValues(string(reason)).Inc()
}

// SetThreshold records the active threshold.
func (c *Collector) SetThreshold(v int64) {
	c.threshold.Set(float64(v))
}

// ObserveDelivery counts one sink delivery attempt.
func (c *Collector) ObserveDelivery(sink string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.deliveries.WithLabelValues(sink, result).Inc()
}

// Totals is a point-in-time sum of the outcome counters.
type Totals struct {
	Routed  map[string]float64 `json:"routed"`
	Dropped map[string]float64 `json:"dropped"`
}

// Totals gathers the registry and sums the outcome counters by label.
func (c *Collector) Totals() (Totals, error) {
	t := Totals{Routed: make(map[string]float64), Dropped: make(map[string]float64)}

	mfs, err := c.registry.Gather()
	if err != nil {
		return t, err
	}
	for _, mf := range mfs {
		switch mf.GetName() {
		case RoutedTotalName:
			sumByLabel(mf, "channel", t.Routed)
		case DroppedTotalName:
			sumByLabel(mf, "reason", t.Dropped)
		}
	}
	return t, nil
}

// sumByLabel adds each counter in mf to into[label value].
func sumByLabel(mf *dto.MetricFamily, label string, into map[string]float64) {
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label {
				into[lp.GetValue()] += m.GetCounter().GetValue()
			}
		}
	}
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		status := strconv.Itoa(rw.status)
		method, route := methodLabel(r.Method), routeLabel(r.URL.Path)
		c.requestTotal.WithLabelValues(method, route, status).Inc()
		c.requestDuration.WithLabelValues(method, route, status).Observe(time.Since(start).Seconds())
	})
}

// routes are the request paths recorded verbatim in the path label.
var routes = map[string]bool{
	"/api/v1/health":              true,
	"/api/v1/records":             true,
	"/api/v1/stats":               true,
	"/api/v1/processor":           true,
	"/api/v1/processor/threshold": true,
	"/api/v1/diagnostics":         true,
}

// routeLabel maps a request path onto a fixed set of labels. Unknown paths
// share "other" so clients cannot create series at will.
func routeLabel(path string) string {
	const channels = "/api/v1/channels/"
	switch {
	case routes[path]:
		return path
	case strings.HasPrefix(path, channels) && len(path) > len(channels):
		return channels + "{name}"
	default:
		return "other"
	}
}

// methodLabel keeps standard HTTP methods and folds the rest into "OTHER".
func methodLabel(m string) string {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return m
	default:
		return "OTHER"
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
