package instrumentation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"dayai/pkg/oauth"
)

const meterName = "dayai"

// Metrics holds the metric instruments of the OAuth flow, the token
// refresher and the MCP session manager. A nil *Metrics records nothing.
type Metrics struct {
	FlowsCompleted  metric.Int64Counter
	FlowsFailed     metric.Int64Counter
	TokensRefreshed metric.Int64Counter
	RefreshFailures metric.Int64Counter
	ToolCalls       metric.Int64Counter
	AuthRetries     metric.Int64Counter
	ToolDuration    metric.Float64Histogram
}

// New creates all instruments on the given provider. A nil provider means
// the global one registered with otel.SetMeterProvider.
func New(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	m := &Metrics{}
	var err error

	if m.FlowsCompleted, err = meter.Int64Counter("dayai.oauth.flow.completed",
		metric.WithDescription("Authorization code flows that produced tokens"),
		metric.WithUnit("{flow}")); err != nil {
		return nil, fmt.Errorf("failed to create flow.completed counter: %w", err)
	}
	if m.FlowsFailed, err = meter.Int64Counter("dayai.oauth.flow.failed",
		metric.WithDescription("Authorization code flows that ended without tokens"),
		metric.WithUnit("{flow}")); err != nil {
		return nil, fmt.Errorf("failed to create flow.failed counter: %w", err)
	}
	if m.TokensRefreshed, err = meter.Int64Counter("dayai.oauth.token.refreshed",
		metric.WithDescription("Successful refresh grants"),
		metric.WithUnit("{refresh}")); err != nil {
		return nil, fmt.Errorf("failed to create token.refreshed counter: %w", err)
	}
	if m.RefreshFailures, err = meter.Int64Counter("dayai.oauth.token.refresh_failed",
		metric.WithDescription("Failed refresh grants"),
		metric.WithUnit("{refresh}")); err != nil {
		return nil, fmt.Errorf("failed to create token.refresh_failed counter: %w", err)
	}
	if m.ToolCalls, err = meter.Int64Counter("dayai.mcp.tool.calls",
		metric.WithDescription("MCP tools/call invocations"),
		metric.WithUnit("{call}")); err != nil {
		return nil, fmt.Errorf("failed to create tool.calls counter: %w", err)
	}
	if m.AuthRetries, err = meter.Int64Counter("dayai.mcp.auth.retries",
		metric.WithDescription("Tool calls retried after an authentication failure"),
		metric.WithUnit("{retry}")); err != nil {
		return nil, fmt.Errorf("failed to create auth.retries counter: %w", err)
	}
	if m.ToolDuration, err = meter.Float64Histogram("dayai.mcp.tool.duration",
		metric.WithDescription("MCP tool call duration in milliseconds"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("failed to create tool.duration histogram: %w", err)
	}

	return m, nil
}

// NewNoop returns instruments backed by the noop provider.
func NewNoop() *Metrics {
	m, err := New(noop.NewMeterProvider())
	if err != nil {
		// the noop provider never fails
		panic(err)
	}
	return m
}

// RecordFlow records the outcome of an authorization code flow.
func (m *Metrics) RecordFlow(ctx context.Context, serverID string, err error) {
	if m == nil {
		return
	}
	if err == nil {
		m.FlowsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("server", serverID)))
		return
	}
	m.FlowsFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("server", serverID),
		attribute.String("reason", FlowFailureReason(err)),
	))
}

// RecordRefresh records the outcome of a refresh grant.
func (m *Metrics) RecordRefresh(ctx context.Context, serverID string, rotated bool, err error) {
	if m == nil {
		return
	}
	if err == nil {
		m.TokensRefreshed.Add(ctx, 1, metric.WithAttributes(
			attribute.String("server", serverID),
			attribute.Bool("rotated", rotated),
		))
		return
	}
	reason := "error"
	var rErr *oauth.RefreshError
	if errors.As(err, &rErr) {
		reason = rErr.Reason.String()
	}
	m.RefreshFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("server", serverID),
		attribute.String("reason", reason),
	))
}

// RecordToolCall records one tools/call round trip.
func (m *Metrics) RecordToolCall(ctx context.Context, serverID, tool string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("server", serverID),
		attribute.String("tool", tool),
		attribute.String("result", result),
	)
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolDuration.Record(ctx, float64(d.Microseconds())/1000, attrs)
}

// RecordAuthRetry records a retry triggered by an authentication failure.
func (m *Metrics) RecordAuthRetry(ctx context.Context, serverID string) {
	if m == nil {
		return
	}
	m.AuthRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("server", serverID)))
}

// FlowFailureReason maps flow errors to a low cardinality label.
func FlowFailureReason(err error) string {
	var (
		authErr     *oauth.AuthorizationError
		csrfErr     *oauth.CsrfError
		timeoutErr  *oauth.FlowTimeoutError
		exchangeErr *oauth.TokenExchangeError
		portErr     *oauth.PortInUseError
	)
	switch {
	case errors.As(err, &csrfErr):
		return "csrf"
	case errors.As(err, &authErr):
		return "denied"
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &exchangeErr):
		return "exchange"
	case errors.As(err, &portErr), errors.Is(err, oauth.ErrFlowInProgress):
		return "busy"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}
