package store

import (
	"context"

	"github.com/soillink/soillink/internal/metrics"
)

// TotalsSource publishes user and sample totals as gauges.
type TotalsSource struct{ Store Store }

func (TotalsSource) MetricsName() string { return "store" }

func (t TotalsSource) CollectMetrics(ctx context.Context) error {
	users, samples, err := t.Store.Totals(ctx)
	if err != nil {
		return err
	}
	metrics.UsersTotal.Set(float64(users))
	metrics.SoilSamplesTotal.Set(float64(samples))
	return nil
}
