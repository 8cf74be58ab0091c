package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors of one process. All methods are safe on a
// nil receiver so components can run without instrumentation.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	relayOutcomes   *prometheus.CounterVec
	persistOutcomes *prometheus.CounterVec
	logDrops        *prometheus.CounterVec
	verdicts        *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"method", "endpoint"},
		),
		relayOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_requests_total",
				Help: "Upstream relay calls by outcome",
			},
			[]string{"outcome"},
		),
		persistOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_log_writes_total",
				Help: "Detached log record writes by outcome",
			},
			[]string{"outcome"},
		),
		logDrops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_log_records_dropped_total",
				Help: "Log records discarded before any write attempt, by reason",
			},
			[]string{"reason"},
		),
		verdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "answer_verdicts_total",
				Help: "Lenient-match verdicts by result",
			},
			[]string{"verdict"},
		),
		gatherer: reg,
	}
	reg.MustRegister(m.requests, m.requestDuration, m.relayOutcomes, m.persistOutcomes, m.logDrops, m.verdicts)
	return m
}

func (m *Metrics) RelayOutcome(outcome string) {
	if m == nil {
		return
	}
	m.relayOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PersistOutcome(outcome string) {
	if m == nil {
		return
	}
	m.persistOutcomes.WithLabelValues(outcome).Inc()
}

// LogDropped counts a record the dispatcher refused. Any increase means
// audit entries were lost while the process was running.
func (m *Metrics) LogDropped(reason string) {
	if m == nil {
		return
	}
	m.logDrops.WithLabelValues(reason).Inc()
}

func (m *Metrics) Verdict(verdict string) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(verdict).Inc()
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.requests.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()
		m.requestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
