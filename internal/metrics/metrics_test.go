package metrics_test

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github/chapool/vault-oracle/internal/metrics"
)

func TestCollectors(t *testing.T) {
	c := metrics.New(prometheus.NewRegistry())

	c.ObserveAggregation(time.Now(), nil)
	c.ObserveAggregation(time.Now(), errors.New("boom"))
	c.ObserveSigning("verified")
	c.ObserveSigning("failed")
	c.ObserveSigning("failed")

	assert.InDelta(t, 1, testutil.ToFloat64(c.AggregationFailures), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.SigningOutcomes.WithLabelValues("verified")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(c.SigningOutcomes.WithLabelValues("failed")), 0)
}

func TestNilCollectorsAreNoop(t *testing.T) {
	var c *metrics.Collectors
	c.ObserveAggregation(time.Now(), nil)
	c.ObserveSigning("verified")
}
