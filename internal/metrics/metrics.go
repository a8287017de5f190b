// Package metrics holds the Prometheus collectors for the daemon.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Push results recorded by the dispatcher.
const (
	ResultDelivered = "delivered"
	ResultOffline   = "offline"
	ResultError     = "error"
)

// Metrics groups the collectors. A nil *Metrics records nothing.
type Metrics struct {
	MessagesAppended prometheus.Counter
	MessagesRead     prometheus.Counter
	Pushes           *prometheus.CounterVec
	OnlineConns      prometheus.Gauge
	StoreLatency     *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers the collectors with reg. Each registry may only be passed once.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MessagesAppended: f.NewCounter(prometheus.CounterOpts{
			Name: "dmsync_messages_appended_total",
			Help: "Total messages appended to the log",
		}),
		MessagesRead: f.NewCounter(prometheus.CounterOpts{
			Name: "dmsync_messages_marked_read_total",
			Help: "Total messages flipped to read",
		}),
		Pushes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dmsync_pushes_total",
			Help: "Realtime pushes by event type and result",
		}, []string{"event", "result"}),
		OnlineConns: f.NewGauge(prometheus.GaugeOpts{
			Name: "dmsync_online_connections",
			Help: "Number of participants with a live connection",
		}),
		StoreLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dmsync_store_latency_seconds",
			Help:    "Message log operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dmsync_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dmsync_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Appended counts one appended message.
func (m *Metrics) Appended() {
	if m == nil {
		return
	}
	m.MessagesAppended.Inc()
}

// MarkedRead counts n messages flipped to read.
func (m *Metrics) MarkedRead(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.MessagesRead.Add(float64(n))
}

// Push counts one push attempt.
func (m *Metrics) Push(event, result string) {
	if m == nil {
		return
	}
	m.Pushes.WithLabelValues(event, result).Inc()
}

// SetOnline records the size of the online set.
func (m *Metrics) SetOnline(n int) {
	if m == nil {
		return
	}
	m.OnlineConns.Set(float64(n))
}

// ObserveStore records the latency of a message log operation started at start.
func (m *Metrics) ObserveStore(op string, start time.Time) {
	if m == nil {
		return
	}
	m.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Middleware records HTTP request metrics.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		m.httpRequests.WithLabelValues(c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
