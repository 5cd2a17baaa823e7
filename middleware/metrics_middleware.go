package middleware

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mini-rpc-core/message"
)

// Metrics records per-method request counts, error counts by kind, latency and
// in-flight requests.
type Metrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	active   *prometheus.GaugeVec
}

// NewMetrics registers the collectors with reg (prometheus.DefaultRegisterer when nil).
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Requests dispatched, by service and method.",
		}, []string{"service", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "errors_total",
			Help:      "Requests answered with a remote error, by kind.",
		}, []string{"service", "method", "kind"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "request_duration_seconds",
			Help:      "Dispatch latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "method"}),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "active_requests",
			Help:      "Requests currently being dispatched.",
		}, []string{"service"}),
	}
	for _, c := range []prometheus.Collector{m.requests, m.errors, m.latency, m.active} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Middleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RpcRequest) *message.RpcResponse {
			key := req.Key()
			active := m.active.WithLabelValues(req.ServiceName)
			active.Inc()
			start := time.Now()

			resp := next(ctx, req)

			active.Dec()
			m.requests.WithLabelValues(req.ServiceName, key).Inc()
			m.latency.WithLabelValues(req.ServiceName, key).Observe(time.Since(start).Seconds())
			if resp.Error != nil {
				m.errors.WithLabelValues(req.ServiceName, key, resp.Error.Kind).Inc()
			}
			return resp
		}
	}
}
