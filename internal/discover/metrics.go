package discover

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes recorded by requestsTotal.
const (
	outcomeCacheHit      = "cache_hit"
	outcomeFallback      = "fallback"
	outcomeNotConfigured = "not_configured"
	outcomeNoCriteria    = "no_criteria"
	outcomeNoCandidates  = "no_candidates"
	outcomeRanked        = "ranked"
	outcomeError         = "error"
)

var requestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cinesense_discover_requests_total",
		Help: "Total number of discovery pipeline runs by outcome",
	},
	[]string{"outcome"},
)
