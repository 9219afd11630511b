// Package metrics provides Prometheus instrumentation for the platform.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediplex",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mediplex",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// RegistrationsTotal counts organization registration attempts by result.
	RegistrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediplex",
			Name:      "registrations_total",
			Help:      "Total organization registrations by result (created, conflict, error).",
		},
		[]string{"result"},
	)

	// TenantViolationsTotal counts rejected cross-tenant requests.
	TenantViolationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mediplex",
		Name:      "tenant_violations_total",
		Help:      "Total requests rejected for naming a different organization than the token.",
	})

	// AuthorizationDenialsTotal counts failed permission checks.
	AuthorizationDenialsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mediplex",
		Name:      "authorization_denials_total",
		Help:      "Total requests denied by the permission subset test.",
	})

	// QuotaDenialsTotal counts feature-limit rejections by feature key.
	QuotaDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediplex",
			Name:      "quota_denials_total",
			Help:      "Total quota-bounded operations denied, by feature key and reason.",
		},
		[]string{"feature", "reason"},
	)

	// UsageIncrementsTotal counts usage counter increments by feature key.
	UsageIncrementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediplex",
			Name:      "usage_increments_total",
			Help:      "Total usage counter increments by feature key.",
		},
		[]string{"feature"},
	)

	// SubscriptionsExpiredTotal counts trial subscriptions expired by the sweep.
	SubscriptionsExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mediplex",
		Name:      "subscriptions_expired_total",
		Help:      "Total trial subscriptions moved to EXPIRED by the lifecycle sweep.",
	})

	// SweepRunsTotal counts lifecycle sweep executions by result.
	SweepRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediplex",
			Name:      "sweep_runs_total",
			Help:      "Total lifecycle sweep runs by result.",
		},
		[]string{"result"},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mediplex", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mediplex", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mediplex", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mediplex", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		RegistrationsTotal,
		TenantViolationsTotal,
		AuthorizationDenialsTotal,
		QuotaDenialsTotal,
		UsageIncrementsTotal,
		SubscriptionsExpiredTotal,
		SweepRunsTotal,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
