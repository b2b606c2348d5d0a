package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total number of HTTP requests processed by chatd.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_active_connections",
			Help: "Number of active chat socket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_events_total",
			Help: "Total number of socket lifecycle events.",
		},
		[]string{"event"},
	)
	clientConnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_connects_total",
			Help: "Client connection attempts by outcome.",
		},
		[]string{"outcome"},
	)
	clientQueuedSendsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_client_queued_sends_total",
			Help: "Messages appended to the offline outbox.",
		},
	)
	clientOutboxDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_client_outbox_depth",
			Help: "Messages currently waiting in the offline outbox.",
		},
	)
	clientDroppedFramesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_client_dropped_frames_total",
			Help: "Inbound frames dropped as malformed or unknown.",
		},
	)
	clientDroppedEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_client_dropped_events_total",
			Help: "Decoded events shed because the event buffer was full.",
		},
	)
	clientReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_client_reconnects_total",
			Help: "Reconnection attempts scheduled after a disconnect.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		clientConnectsTotal,
		clientQueuedSendsTotal,
		clientOutboxDepth,
		clientDroppedFramesTotal,
		clientDroppedEventsTotal,
		clientReconnectsTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func IncSocketConnect(outcome string) {
	clientConnectsTotal.WithLabelValues(outcome).Inc()
}

func IncQueuedSend() {
	clientQueuedSendsTotal.Inc()
}

func SetOutboxDepth(depth int) {
	clientOutboxDepth.Set(float64(depth))
}

func IncDroppedFrame() {
	clientDroppedFramesTotal.Inc()
}

func IncDroppedEvent() {
	clientDroppedEventsTotal.Inc()
}

func IncReconnectScheduled() {
	clientReconnectsTotal.Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
