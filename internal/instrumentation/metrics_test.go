package instrumentation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"dayai/pkg/oauth"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := New(provider)
	require.NoError(t, err)
	return m, reader
}

// sumFor returns the summed value of the named counter for data points that
// carry the given attribute.
func sumFor(t *testing.T, reader *sdkmetric.ManualReader, name string, attr attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != name {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(attr.Key); ok && v == attr.Value {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestRecordFlow(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFlow(ctx, "day-ai", nil)
	m.RecordFlow(ctx, "day-ai", &oauth.CsrfError{})
	m.RecordFlow(ctx, "day-ai", fmt.Errorf("wrapped: %w", &oauth.FlowTimeoutError{After: time.Minute}))

	assert.Equal(t, int64(1), sumFor(t, reader, "dayai.oauth.flow.completed", attribute.String("server", "day-ai")))
	assert.Equal(t, int64(1), sumFor(t, reader, "dayai.oauth.flow.failed", attribute.String("reason", "csrf")))
	assert.Equal(t, int64(1), sumFor(t, reader, "dayai.oauth.flow.failed", attribute.String("reason", "timeout")))
}

func TestRecordRefresh(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRefresh(ctx, "day-ai", true, nil)
	m.RecordRefresh(ctx, "day-ai", false, nil)
	m.RecordRefresh(ctx, "day-ai", false, &oauth.RefreshError{Reason: oauth.RefreshRejected})

	assert.Equal(t, int64(2), sumFor(t, reader, "dayai.oauth.token.refreshed", attribute.String("server", "day-ai")))
	assert.Equal(t, int64(1), sumFor(t, reader, "dayai.oauth.token.refreshed", attribute.Bool("rotated", true)))
	assert.Equal(t, int64(1), sumFor(t, reader, "dayai.oauth.token.refresh_failed", attribute.String("reason", "rejected")))
}

func TestRecordToolCallAndRetry(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordToolCall(ctx, "day-ai", "search", 12*time.Millisecond, nil)
	m.RecordToolCall(ctx, "day-ai", "search", 3*time.Millisecond, errors.New("boom"))
	m.RecordAuthRetry(ctx, "day-ai")

	assert.Equal(t, int64(1), sumFor(t, reader, "dayai.mcp.tool.calls", attribute.String("result", "success")))
	assert.Equal(t, int64(1), sumFor(t, reader, "dayai.mcp.tool.calls", attribute.String("result", "error")))
	assert.Equal(t, int64(1), sumFor(t, reader, "dayai.mcp.auth.retries", attribute.String("server", "day-ai")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordFlow(ctx, "s", nil)
		m.RecordRefresh(ctx, "s", false, nil)
		m.RecordToolCall(ctx, "s", "t", time.Second, nil)
		m.RecordAuthRetry(ctx, "s")
	})
}

func TestNewNoop(t *testing.T) {
	m := NewNoop()
	require.NotNil(t, m)
	assert.NotPanics(t, func() { m.RecordFlow(context.Background(), "s", nil) })
}

func TestFlowFailureReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&oauth.AuthorizationError{Code: "access_denied"}, "denied"},
		{&oauth.CsrfError{}, "csrf"},
		{&oauth.FlowTimeoutError{}, "timeout"},
		{&oauth.TokenExchangeError{}, "exchange"},
		{oauth.ErrFlowInProgress, "busy"},
		{&oauth.PortInUseError{Addr: "127.0.0.1:31338"}, "busy"},
		{context.Canceled, "cancelled"},
		{errors.New("other"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FlowFailureReason(tt.err), "error %v", tt.err)
	}
}
