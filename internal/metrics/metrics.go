package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renkioo_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "renkioo_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	QuotaChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renkioo_quota_checks_total",
			Help: "Quota admission decisions by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	RateLimitRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renkioo_ratelimit_rejections_total",
			Help: "Requests rejected by the rate limiter, by bucket.",
		},
		[]string{"bucket"},
	)

	RateLimitLockTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "renkioo_ratelimit_lock_timeouts_total",
			Help: "Bounded lock waits that expired before acquisition.",
		},
	)

	CreationsRecordedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renkioo_creations_recorded_total",
			Help: "Creations recorded (and tokens debited), by kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		QuotaChecksTotal,
		RateLimitRejectionsTotal,
		RateLimitLockTimeoutsTotal,
		CreationsRecordedTotal,
	)
}
