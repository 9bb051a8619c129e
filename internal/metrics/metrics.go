package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pairlive"

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "path", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	QueueJoins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queue_joins_total",
		Help:      "Queue join attempts by outcome code",
	}, []string{"outcome"})

	Matches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "matches_total",
		Help:      "Pairs claimed from the waiting pool",
	})

	ClaimConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "match_claim_conflicts_total",
		Help:      "Claims lost to another coordinator",
	})

	SessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_ended_total",
		Help:      "Sessions reaching a terminal status",
	}, []string{"status"})

	Gifts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gifts_total",
		Help:      "Gift attempts by outcome code",
	}, []string{"outcome"})

	TrustAdjustments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trust_adjustments_total",
		Help:      "Trust score changes by direction",
	}, []string{"direction"})

	Suspensions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trust_suspensions_total",
		Help:      "Transitions into the SUSPENDED category",
	})

	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "realtime_connected_clients",
		Help:      "Realtime connections registered with this instance",
	})
)

// Outcome turns an error code into a label value; "" becomes "ok".
func Outcome(code string) string {
	if code == "" {
		return "ok"
	}
	return code
}

// Middleware records request count and latency. Paths use the route
// template so label cardinality stays bounded.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		httpRequests.WithLabelValues(c.Request.Method, path, status).Inc()
		httpLatency.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the default Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
