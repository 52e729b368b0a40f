// Package server implements the MCP protocol dispatcher and its HTTP
// transport for the Penguin Bank demo.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"

	"github.com/dudgeon/penguin-bank-cloud/internal/domain"
	"github.com/dudgeon/penguin-bank-cloud/internal/domain/shared"
	"github.com/dudgeon/penguin-bank-cloud/internal/infrastructure/logging"
	"github.com/dudgeon/penguin-bank-cloud/internal/infrastructure/metrics"
)

const (
	// MCP protocol version advertised on initialize.
	protocolVersion = "2025-06-18"

	// toolCallTimeout caps a single tools/call; it must stay below the 30s
	// limit typical hosting platforms impose on the whole request.
	toolCallTimeout = 25 * time.Second

	// timeoutText is returned as a successful tool result when a call runs
	// past toolCallTimeout. Timeouts are user-facing content here, not
	// protocol failures.
	timeoutText = "Error: Tool execution timed out. Please try again with a simpler request."
)

// ToolService is the collaborator the dispatcher routes tools/list and
// tools/call to.
type ToolService interface {
	Tools() []domain.Tool
	Call(ctx context.Context, name string, args map[string]interface{}) (*domain.ToolResult, error)
}

// Dispatcher decodes JSON-RPC envelopes and routes them to the fixed set of
// MCP method handlers.
type Dispatcher struct {
	serverName    string
	serverVersion string
	tools         ToolService
	metrics       *metrics.Collector
	logger        *logging.Logger
	clock         clockwork.Clock
	timeout       time.Duration
}

// DispatcherConfig carries the dependencies for NewDispatcher.
type DispatcherConfig struct {
	ServerName    string
	ServerVersion string
	Tools         ToolService
	Metrics       *metrics.Collector
	Logger        *logging.Logger
	Clock         clockwork.Clock
	Timeout       time.Duration
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = toolCallTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	return &Dispatcher{
		serverName:    cfg.ServerName,
		serverVersion: cfg.ServerVersion,
		tools:         cfg.Tools,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		clock:         cfg.Clock,
		timeout:       cfg.Timeout,
	}
}

// DispatchRaw decodes a single JSON-RPC envelope and dispatches it. A nil
// response means the message was a notification.
func (d *Dispatcher) DispatchRaw(ctx context.Context, raw json.RawMessage) *shared.JSONRPCResponse {
	var req shared.JSONRPCRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return shared.NewErrorResponse(nil, shared.ParseError, shared.ErrorMessage(shared.ParseError), nil)
	}
	return d.Dispatch(ctx, req)
}

// Dispatch routes a decoded request to its method handler. Notifications
// return nil.
func (d *Dispatcher) Dispatch(ctx context.Context, req shared.JSONRPCRequest) *shared.JSONRPCResponse {
	if req.IsNotification() {
		d.logger.Debug("Notification received", logging.Fields{"method": req.Method})
		return nil
	}

	if req.JSONRPC != shared.JSONRPCVersion {
		return shared.NewErrorResponse(req.ID, shared.InvalidRequest, shared.ErrorMessage(shared.InvalidRequest), nil)
	}

	switch req.Method {
	case "initialize":
		return d.handleInitialize(req)
	case "tools/list":
		return shared.NewResponse(req.ID, map[string]interface{}{
			"tools": d.tools.Tools(),
		})
	case "tools/call":
		return d.handleToolCall(ctx, req)
	case "resources/list":
		return shared.NewResponse(req.ID, map[string]interface{}{
			"resources": []interface{}{},
		})
	case "prompts/list":
		return shared.NewResponse(req.ID, map[string]interface{}{
			"prompts": []interface{}{},
		})
	default:
		return shared.NewErrorResponse(req.ID, shared.MethodNotFound,
			fmt.Sprintf("Method not found: %s", req.Method), nil)
	}
}

func (d *Dispatcher) handleInitialize(req shared.JSONRPCRequest) *shared.JSONRPCResponse {
	return shared.NewResponse(req.ID, map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{},
		},
		"serverInfo": map[string]interface{}{
			"name":    d.serverName,
			"version": d.serverVersion,
		},
	})
}

type toolOutcome struct {
	result *domain.ToolResult
	err    error
}

func (d *Dispatcher) handleToolCall(ctx context.Context, req shared.JSONRPCRequest) *shared.JSONRPCResponse {
	var params struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return shared.NewErrorResponse(req.ID, shared.InvalidParams,
			"Missing or invalid 'name' parameter", nil)
	}

	requestID := RequestIDFromContext(ctx)
	start := d.clock.Now()
	if d.metrics != nil {
		d.metrics.StartToolExecution(params.Name, requestID, len(req.Params))
	}

	outcomeCh := make(chan toolOutcome, 1)
	go func() {
		result, err := d.tools.Call(ctx, params.Name, params.Arguments)
		outcomeCh <- toolOutcome{result: result, err: err}
	}()

	// Race the call against the timeout. The losing goroutine is abandoned,
	// not cancelled: an in-flight store write keeps going.
	select {
	case out := <-outcomeCh:
		return d.finishToolCall(req, params.Name, requestID, start, out)
	case <-d.clock.After(d.timeout):
		if d.metrics != nil {
			d.metrics.EndToolExecution(params.Name, requestID, false, 0)
		}
		d.logger.Warn("Tool execution timed out", logging.Fields{
			"toolName":  params.Name,
			"requestId": requestID,
		})
		return shared.NewResponse(req.ID, domain.ErrorResult(timeoutText))
	}
}

func (d *Dispatcher) finishToolCall(req shared.JSONRPCRequest, toolName, requestID string, start time.Time, out toolOutcome) *shared.JSONRPCResponse {
	duration := d.clock.Now().Sub(start).Milliseconds()

	if out.err != nil {
		var toolErr *domain.ToolError
		if errors.As(out.err, &toolErr) {
			// Business-rule violations surface as user-readable text in a
			// success envelope, never as protocol errors.
			if d.metrics != nil {
				d.metrics.EndToolExecution(toolName, requestID, false, 0)
			}
			d.logger.LogToolExecution(toolName, requestID, duration, false)
			return shared.NewResponse(req.ID, domain.ErrorResult("Error: "+toolErr.Message))
		}

		if d.metrics != nil {
			d.metrics.EndToolExecution(toolName, requestID, false, 0)
		}
		d.logger.LogToolExecution(toolName, requestID, duration, false)

		var unknown *domain.UnknownToolError
		if errors.As(out.err, &unknown) {
			return shared.NewErrorResponse(req.ID, shared.InternalError, unknown.Error(), nil)
		}
		return shared.NewErrorResponse(req.ID, shared.InternalError,
			shared.ErrorMessage(shared.InternalError), out.err.Error())
	}

	responseSize := 0
	for _, c := range out.result.Content {
		responseSize += len(c.Text)
	}
	if d.metrics != nil {
		d.metrics.EndToolExecution(toolName, requestID, true, responseSize)
	}
	d.logger.LogToolExecution(toolName, requestID, duration, true)
	return shared.NewResponse(req.ID, out.result)
}
