package instrumentation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Samples(t *testing.T) {
	m, collector, err := NewCollected()
	require.NoError(t, err)
	t.Cleanup(func() { _ = collector.Shutdown(context.Background()) })

	ctx := context.Background()
	samples, err := collector.Samples(ctx)
	require.NoError(t, err)
	assert.Empty(t, samples)

	m.RecordToolCall(ctx, "day-ai", "search", 20*time.Millisecond, nil)
	m.RecordToolCall(ctx, "day-ai", "search", 30*time.Millisecond, errors.New("boom"))
	m.RecordFlow(ctx, "day-ai", nil)

	samples, err = collector.Samples(ctx)
	require.NoError(t, err)

	byName := map[string]Sample{}
	for _, s := range samples {
		byName[s.Name] = s
	}
	assert.Len(t, samples, 3)
	assert.Equal(t, 2.0, byName["dayai.mcp.tool.calls"].Value)
	assert.Equal(t, 1.0, byName["dayai.oauth.flow.completed"].Value)

	duration := byName["dayai.mcp.tool.duration"]
	assert.Equal(t, uint64(2), duration.Count)
	assert.InDelta(t, 50.0, duration.Value, 0.001)
	assert.Equal(t, "ms", duration.Unit)

	assert.Equal(t, "dayai.mcp.tool.calls", samples[0].Name, "samples are sorted by name")
}
