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
			Name: "clubcode_http_requests_total",
			Help: "Total number of HTTP requests processed.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clubcode_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clubcode_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
		[]string{"kind"},
	)
	signalsRelayedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clubcode_signals_relayed_total",
			Help: "Total number of WebRTC signals relayed, by kind.",
		},
		[]string{"kind"},
	)
	docEditsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clubcode_document_edits_total",
			Help: "Total number of shared document overwrites.",
		},
	)
	battlesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clubcode_battles_active",
			Help: "Number of battles currently in the active state.",
		},
	)
	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clubcode_battle_submissions_total",
			Help: "Total number of battle submissions, by heuristic verdict.",
		},
		[]string{"correct"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		signalsRelayedTotal,
		docEditsTotal,
		battlesActive,
		submissionsTotal,
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

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncSignalRelayed(kind string) {
	signalsRelayedTotal.WithLabelValues(kind).Inc()
}

func IncDocEdit() {
	docEditsTotal.Inc()
}

func IncBattlesActive() {
	battlesActive.Inc()
}

func DecBattlesActive() {
	battlesActive.Dec()
}

func IncSubmission(correct bool) {
	submissionsTotal.WithLabelValues(strconv.FormatBool(correct)).Inc()
}
