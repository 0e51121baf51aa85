package instrumentation

import (
	"context"
	"fmt"
	"sort"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Sample is the process-wide total of one instrument.
type Sample struct {
	Name string
	Unit string
	// Value is the counter total, or the histogram sum.
	Value float64
	// Count is the number of histogram observations; 0 for counters.
	Count uint64
}

// Collector reads the instruments of a Metrics created by NewCollected.
type Collector struct {
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
}

// NewCollected returns instruments backed by an in-process SDK provider and
// a Collector to read them back. It is used by --show-metrics.
func NewCollected() (*Metrics, *Collector, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := New(provider)
	if err != nil {
		return nil, nil, err
	}
	return m, &Collector{reader: reader, provider: provider}, nil
}

// Samples collects the current totals, sorted by name. Instruments that
// were never recorded are absent.
func (c *Collector) Samples(ctx context.Context) ([]Sample, error) {
	var rm metricdata.ResourceMetrics
	if err := c.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("failed to collect metrics: %w", err)
	}

	var samples []Sample
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			s := Sample{Name: m.Name, Unit: m.Unit}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					s.Value += float64(dp.Value)
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					s.Value += dp.Sum
					s.Count += dp.Count
				}
			default:
				continue
			}
			samples = append(samples, s)
		}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Name < samples[j].Name })
	return samples, nil
}

// Shutdown releases the provider.
func (c *Collector) Shutdown(ctx context.Context) error {
	return c.provider.Shutdown(ctx)
}
