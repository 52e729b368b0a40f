package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RequestLifecycle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewCollector(clock)

	c.StartRequest("req-1", "POST", "/", "test-agent", "https://claude.ai")
	clock.Advance(120 * time.Millisecond)
	c.EndRequest("req-1", 200)

	rec, ok := c.RequestRecord("req-1")
	require.True(t, ok)
	assert.Equal(t, "POST", rec.Method)
	assert.Equal(t, 200, rec.StatusCode)
	assert.Equal(t, 120*time.Millisecond, rec.Duration)

	summary := c.Summary()
	assert.Equal(t, 1, summary.TotalRequests)
	assert.Equal(t, int64(120), summary.AverageResponseTimeMillis)
	assert.Equal(t, 0.0, summary.ErrorRate)
	assert.Equal(t, 0, summary.Connections.ActiveConnections)
	assert.Equal(t, 1, summary.Connections.TotalConnections)
}

func TestCollector_RunningAverage(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewCollector(clock)

	durations := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}
	for i, d := range durations {
		id := fmt.Sprintf("req-%d", i)
		c.StartRequest(id, "POST", "/", "", "")
		clock.Advance(d)
		c.EndRequest(id, 200)
	}

	assert.Equal(t, int64(200), c.Summary().AverageResponseTimeMillis)
}

func TestCollector_ErrorRate(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewCollector(clock)

	// The rate is recomputed when an error is recorded, so the failing
	// request comes last.
	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("req-%d", i)
		c.StartRequest(id, "POST", "/", "", "")
		status := 200
		if i == 3 {
			status = 500
		}
		c.EndRequest(id, status)
	}

	summary := c.Summary()
	assert.Equal(t, 0.25, summary.ErrorRate)
	assert.Equal(t, 1, summary.Errors["http_500"])
}

func TestCollector_HistoryEviction(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewCollector(clock)

	for i := 0; i < 105; i++ {
		id := fmt.Sprintf("req-%d", i)
		c.StartRequest(id, "GET", "/health", "", "")
		c.EndRequest(id, 200)
	}

	// Aggregates survive eviction; only the per-record history is bounded.
	summary := c.Summary()
	assert.Equal(t, 105, summary.TotalRequests)

	_, ok := c.RequestRecord("req-0")
	assert.False(t, ok)
	_, ok = c.RequestRecord("req-104")
	assert.True(t, ok)
}

func TestCollector_ToolExecution(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewCollector(clock)

	c.StartToolExecution("get_balance", "req-1", 25)
	clock.Advance(40 * time.Millisecond)
	c.EndToolExecution("get_balance", "req-1", true, 512)

	rec, ok := c.ToolRecord("get_balance", "req-1")
	require.True(t, ok)
	assert.True(t, rec.Success)
	assert.Equal(t, 25, rec.ArgumentsSize)
	assert.Equal(t, 512, rec.ResponseSize)
	assert.Equal(t, 40*time.Millisecond, rec.Duration)

	summary := c.Summary()
	assert.Equal(t, 1, summary.TotalToolExecutions)
	assert.Equal(t, int64(40), summary.AverageToolExecutionMillis)
}

func TestCollector_FailedToolCountsError(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewCollector(clock)

	c.StartRequest("req-1", "POST", "/", "", "")
	c.StartToolExecution("process_payment", "req-1", 0)
	c.EndToolExecution("process_payment", "req-1", false, 0)

	summary := c.Summary()
	assert.Equal(t, 1, summary.Errors["tool_process_payment_error"])
	assert.Equal(t, 1.0, summary.ErrorRate)
}

func TestCollector_EndUnknownToolIsNoop(t *testing.T) {
	c := NewCollector(clockwork.NewFakeClock())
	c.EndToolExecution("get_balance", "missing", true, 0)
	assert.Equal(t, 0, c.Summary().TotalToolExecutions)
}

func TestCollector_Reset(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewCollector(clock)

	c.StartRequest("req-1", "POST", "/", "", "")
	c.EndRequest("req-1", 500)
	c.IncrementErrorCount("custom")
	c.Reset()

	summary := c.Summary()
	assert.Equal(t, 0, summary.TotalRequests)
	assert.Equal(t, 0.0, summary.ErrorRate)
	assert.Empty(t, summary.Errors)
}
