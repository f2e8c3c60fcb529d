package server

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type httpMetrics struct {
	duration *prometheus.HistogramVec
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	return &httpMetrics{
		duration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authrelay_http_request_duration_seconds",
			Help:    "Latency of HTTP requests by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

func (m *httpMetrics) observe(route string, status int, d time.Duration) {
	m.duration.WithLabelValues(route, strconv.Itoa(status)).Observe(d.Seconds())
}
