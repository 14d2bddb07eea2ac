package metrics

import (
	"context"

	"github.com/soillink/soillink/internal/logger"
)

// Source is anything that can refresh its own gauges. The cache manager,
// the session tracker and the user/sample store implement it.
type Source interface {
	MetricsName() string
	CollectMetrics(ctx context.Context) error
}

// Collector refreshes Prometheus gauges from a set of sources. The scheduler
// drives it on a fixed interval.
type Collector struct {
	sources []Source
}

// NewCollector creates a new metrics collector
func NewCollector(sources ...Source) *Collector {
	return &Collector{sources: sources}
}

// Add registers another source.
func (c *Collector) Add(s Source) {
	c.sources = append(c.sources, s)
}

// Collect runs every source once. A failing source is logged and counted;
// the others still run. It returns the number of failed sources.
func (c *Collector) Collect(ctx context.Context) int {
	failed := 0
	for _, s := range c.sources {
		if ctx.Err() != nil {
			return failed
		}
		if err := s.CollectMetrics(ctx); err != nil {
			failed++
			MetricsCollectionErrors.WithLabelValues(s.MetricsName()).Inc()
			logger.WarnContext(ctx, "metrics collection failed", "collector", s.MetricsName(), "error", err)
		}
	}
	return failed
}
