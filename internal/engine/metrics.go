package engine

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal counts generation calls.
	// Labels:
	//   - provider: "ollama", "openrouter"
	//   - outcome: "success", "error"
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinesense_engine_requests_total",
			Help: "Total number of text generation requests",
		},
		[]string{"provider", "outcome"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cinesense_engine_request_duration_seconds",
			Help:    "Duration of text generation requests in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"provider"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cinesense_engine_breaker_state",
			Help: "Circuit breaker state per provider (0=closed, 1=half-open, 2=open)",
		},
		[]string{"provider"},
	)
)

// instrumented records request counts and latency for a backend.
type instrumented struct {
	provider string
	gen      Generator
}

// Instrument wraps gen with request metrics labeled by provider.
func Instrument(provider string, gen Generator) Generator {
	return &instrumented{provider: provider, gen: gen}
}

func (i *instrumented) Generate(ctx context.Context, prompt string, expectJSON bool) (string, error) {
	start := time.Now()
	out, err := i.gen.Generate(ctx, prompt, expectJSON)
	requestDuration.WithLabelValues(i.provider).Observe(time.Since(start).Seconds())
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	requestsTotal.WithLabelValues(i.provider, outcome).Inc()
	return out, err
}
