// Package metrics implements an in-memory collector for request and tool
// execution metrics, surfaced through the health endpoint.
package metrics

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// historyCapacity bounds the per-record history kept for point lookups.
// Aggregate counters are independent and never shrink.
const historyCapacity = 100

// RequestRecord holds timing data for a single HTTP request.
type RequestRecord struct {
	RequestID  string
	Method     string
	Path       string
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	StatusCode int
	UserAgent  string
	Origin     string
}

// ToolRecord holds timing data for a single tool invocation.
type ToolRecord struct {
	ToolName      string
	RequestID     string
	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
	Success       bool
	ArgumentsSize int
	ResponseSize  int
}

// ConnectionStats tracks connection counters.
type ConnectionStats struct {
	ActiveConnections int `json:"active_connections"`
	TotalConnections  int `json:"total_connections"`
	SSEConnections    int `json:"sse_connections"`
	HTTPConnections   int `json:"http_connections"`
}

// Summary is the aggregate snapshot exposed on /health.
type Summary struct {
	TotalRequests              int             `json:"total_requests"`
	AverageResponseTimeMillis  int64           `json:"average_response_time_ms"`
	ErrorRate                  float64         `json:"error_rate"`
	TotalToolExecutions        int             `json:"total_tool_executions"`
	AverageToolExecutionMillis int64           `json:"average_tool_execution_time_ms"`
	Connections                ConnectionStats `json:"connections"`
	Errors                     map[string]int  `json:"errors"`
}

// Collector accumulates process-wide request and tool metrics. All state is
// guarded by a single mutex; the running-average formula requires exactly one
// new sample per update, which the lock guarantees.
type Collector struct {
	mu    sync.Mutex
	clock clockwork.Clock

	requests     map[string]*RequestRecord
	requestOrder []string
	tools        map[string]*ToolRecord
	toolOrder    []string

	connections ConnectionStats
	errorCounts map[string]int

	totalRequests        int
	totalToolExecutions  int
	avgResponseTime      float64
	avgToolExecutionTime float64
	errorRate            float64
}

// NewCollector creates a Collector using the given clock.
func NewCollector(clock clockwork.Clock) *Collector {
	return &Collector{
		clock:       clock,
		requests:    make(map[string]*RequestRecord),
		tools:       make(map[string]*ToolRecord),
		errorCounts: make(map[string]int),
	}
}

// StartRequest records the start of an HTTP request.
func (c *Collector) StartRequest(requestID, method, path, userAgent, origin string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests[requestID] = &RequestRecord{
		RequestID: requestID,
		Method:    method,
		Path:      path,
		StartTime: c.clock.Now(),
		UserAgent: userAgent,
		Origin:    origin,
	}
	c.requestOrder = append(c.requestOrder, requestID)
	c.totalRequests++
	c.connections.ActiveConnections++
	c.connections.TotalConnections++
	c.connections.HTTPConnections++
}

// EndRequest records the completion of an HTTP request.
func (c *Collector) EndRequest(requestID string, statusCode int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec, ok := c.requests[requestID]; ok {
		rec.EndTime = c.clock.Now()
		rec.Duration = rec.EndTime.Sub(rec.StartTime)
		rec.StatusCode = statusCode

		c.avgResponseTime = updateAverage(c.avgResponseTime, float64(rec.Duration.Milliseconds()), c.totalRequests)

		if statusCode >= 400 {
			c.incrementErrorLocked(fmt.Sprintf("http_%d", statusCode))
		}

		// Keep only the last 100 requests.
		for len(c.requestOrder) > historyCapacity {
			oldest := c.requestOrder[0]
			c.requestOrder = c.requestOrder[1:]
			delete(c.requests, oldest)
		}
	}
	if c.connections.ActiveConnections > 0 {
		c.connections.ActiveConnections--
	}
}

// StartToolExecution records the start of a tool invocation.
func (c *Collector) StartToolExecution(toolName, requestID string, argumentsSize int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := toolKey(requestID, toolName)
	c.tools[key] = &ToolRecord{
		ToolName:      toolName,
		RequestID:     requestID,
		StartTime:     c.clock.Now(),
		ArgumentsSize: argumentsSize,
	}
	c.toolOrder = append(c.toolOrder, key)
	c.totalToolExecutions++
}

// EndToolExecution records the completion of a tool invocation.
func (c *Collector) EndToolExecution(toolName, requestID string, success bool, responseSize int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := toolKey(requestID, toolName)
	rec, ok := c.tools[key]
	if !ok {
		return
	}
	rec.EndTime = c.clock.Now()
	rec.Duration = rec.EndTime.Sub(rec.StartTime)
	rec.Success = success
	rec.ResponseSize = responseSize

	c.avgToolExecutionTime = updateAverage(c.avgToolExecutionTime, float64(rec.Duration.Milliseconds()), c.totalToolExecutions)

	if !success {
		c.incrementErrorLocked(fmt.Sprintf("tool_%s_error", toolName))
	}

	// Keep only the last 100 tool executions.
	for len(c.toolOrder) > historyCapacity {
		oldest := c.toolOrder[0]
		c.toolOrder = c.toolOrder[1:]
		delete(c.tools, oldest)
	}
}

// IncrementErrorCount bumps the counter for an error type and recomputes the
// error rate.
func (c *Collector) IncrementErrorCount(errorType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.incrementErrorLocked(errorType)
}

func (c *Collector) incrementErrorLocked(errorType string) {
	c.errorCounts[errorType]++

	total := 0
	for _, n := range c.errorCounts {
		total += n
	}
	if c.totalRequests > 0 {
		c.errorRate = float64(total) / float64(c.totalRequests)
	}
}

// RequestRecord returns a copy of the record for a request id, if still held.
func (c *Collector) RequestRecord(requestID string) (RequestRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec, ok := c.requests[requestID]; ok {
		return *rec, true
	}
	return RequestRecord{}, false
}

// ToolRecord returns a copy of the record for a tool invocation, if still held.
func (c *Collector) ToolRecord(toolName, requestID string) (ToolRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec, ok := c.tools[toolKey(requestID, toolName)]; ok {
		return *rec, true
	}
	return ToolRecord{}, false
}

// Summary returns an aggregate snapshot for health checks.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	errs := make(map[string]int, len(c.errorCounts))
	for k, v := range c.errorCounts {
		errs[k] = v
	}

	return Summary{
		TotalRequests:              c.totalRequests,
		AverageResponseTimeMillis:  int64(math.Round(c.avgResponseTime)),
		ErrorRate:                  math.Round(c.errorRate*100) / 100,
		TotalToolExecutions:        c.totalToolExecutions,
		AverageToolExecutionMillis: int64(math.Round(c.avgToolExecutionTime)),
		Connections:                c.connections,
		Errors:                     errs,
	}
}

// Reset clears all collected state. Useful for tests.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests = make(map[string]*RequestRecord)
	c.requestOrder = nil
	c.tools = make(map[string]*ToolRecord)
	c.toolOrder = nil
	c.connections = ConnectionStats{}
	c.errorCounts = make(map[string]int)
	c.totalRequests = 0
	c.totalToolExecutions = 0
	c.avgResponseTime = 0
	c.avgToolExecutionTime = 0
	c.errorRate = 0
}

// updateAverage folds one new sample into a running arithmetic mean where n
// is the post-increment sample count.
func updateAverage(avg, sample float64, n int) float64 {
	if n <= 0 {
		return sample
	}
	return (avg*float64(n-1) + sample) / float64(n)
}

func toolKey(requestID, toolName string) string {
	return requestID + "_" + toolName
}
