package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PoolSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_connections",
			Help: "Live database client handles per pool",
		},
		[]string{"pool"},
	)

	PoolInUse = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_connections_in_use",
			Help: "Database client handles currently checked out",
		},
		[]string{"pool"},
	)

	PoolWaiting = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_waiting",
			Help: "Callers blocked waiting for a database client handle",
		},
		[]string{"pool"},
	)

	PoolAcquireSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_pool_acquire_seconds",
			Help:    "Time spent acquiring a database client handle",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pool", "result"},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"method", "route", "code"},
	)

	TasksCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_created_total",
			Help: "Tasks inserted per tenant",
		},
		[]string{"tenant"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Current RabbitMQ task event queue depth per tenant",
		},
		[]string{"tenant"},
	)
)

// Init registers metrics with Prometheus
func Init() {
	prometheus.MustRegister(PoolSize)
	prometheus.MustRegister(PoolInUse)
	prometheus.MustRegister(PoolWaiting)
	prometheus.MustRegister(PoolAcquireSeconds)
	prometheus.MustRegister(HTTPRequests)
	prometheus.MustRegister(TasksCreated)
	prometheus.MustRegister(QueueDepth)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
