package catalog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal counts Douban requests.
	// Labels:
	//   - endpoint: "recommend", "suggest"
	//   - outcome: "success", "error"
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinesense_catalog_requests_total",
			Help: "Total number of catalog requests",
		},
		[]string{"endpoint", "outcome"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cinesense_catalog_request_duration_seconds",
			Help:    "Duration of catalog requests in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint"},
	)
)
