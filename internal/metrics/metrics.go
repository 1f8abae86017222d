package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RowsProcessed  *prometheus.CounterVec
	APIErrors      prometheus.Counter
	CacheHits      prometheus.Counter
	RequestSeconds *prometheus.HistogramVec
	ActiveWorkers  prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RowsProcessed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "geoclient_rows_processed_total",
			Help: "Total number of processed input rows.",
		}, []string{"status"}),
		APIErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "geoclient_api_errors_total",
			Help: "Total number of errors received from the Geoclient API.",
		}),
		CacheHits: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "geoclient_cache_hits_total",
			Help: "Total number of lookups served from the response cache.",
		}),
		RequestSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "geoclient_request_duration_seconds",
			Help:    "Duration of requests to the Geoclient API.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		ActiveWorkers: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "geoclient_active_workers",
			Help: "Current number of active workers processing rows.",
		}),
	}
}
