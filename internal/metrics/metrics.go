// Package metrics holds the prometheus collectors of the oracle.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vault_oracle"

// Collectors groups all oracle collectors. A nil *Collectors records nothing.
type Collectors struct {
	AggregationDuration prometheus.Histogram
	AggregationFailures prometheus.Counter
	SigningOutcomes     *prometheus.CounterVec
}

// New registers the oracle collectors on reg.
func New(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)

	return &Collectors{
		AggregationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregation_duration_seconds",
			Help:      "Duration of one multi-chain balance aggregation round.",
			Buckets:   prometheus.DefBuckets,
		}),
		AggregationFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregation_failures_total",
			Help:      "Aggregation rounds aborted because a chain or vault query failed.",
		}),
		SigningOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signing_requests_total",
			Help:      "Snapshot signing requests by terminal state.",
		}, []string{"state"}),
	}
}

// ObserveAggregation records one aggregation round.
func (c *Collectors) ObserveAggregation(started time.Time, err error) {
	if c == nil {
		return
	}

	c.AggregationDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		c.AggregationFailures.Inc()
	}
}

// ObserveSigning records the terminal state of one signing request.
func (c *Collectors) ObserveSigning(state string) {
	if c == nil {
		return
	}

	c.SigningOutcomes.WithLabelValues(state).Inc()
}
