package server

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudgeon/penguin-bank-cloud/internal/domain"
	"github.com/dudgeon/penguin-bank-cloud/internal/domain/shared"
)

// stubToolService returns canned results keyed by tool name.
type stubToolService struct {
	tools   []domain.Tool
	results map[string]*domain.ToolResult
	errs    map[string]error
	block   chan struct{}
}

func (s *stubToolService) Tools() []domain.Tool {
	return s.tools
}

func (s *stubToolService) Call(ctx context.Context, name string, args map[string]interface{}) (*domain.ToolResult, error) {
	if s.block != nil {
		<-s.block
	}
	if err, ok := s.errs[name]; ok {
		return nil, err
	}
	if result, ok := s.results[name]; ok {
		return result, nil
	}
	return nil, &domain.UnknownToolError{Name: name}
}

func newTestDispatcher(tools ToolService) *Dispatcher {
	return NewDispatcher(DispatcherConfig{
		ServerName:    "penguin-bank",
		ServerVersion: "1.0.0",
		Tools:         tools,
	})
}

func request(id interface{}, method, params string) shared.JSONRPCRequest {
	req := shared.JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method}
	if params != "" {
		req.Params = json.RawMessage(params)
	}
	return req
}

func TestDispatch_Initialize(t *testing.T) {
	d := newTestDispatcher(&stubToolService{})

	resp := d.Dispatch(context.Background(), request(1, "initialize", ""))
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)
	assert.Equal(t, 1, resp.ID)

	result, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "2025-06-18", result["protocolVersion"])

	info, ok := result["serverInfo"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "penguin-bank", info["name"])
	assert.Equal(t, "1.0.0", info["version"])

	caps, ok := result["capabilities"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, caps, "tools")
}

func TestDispatch_ToolsList(t *testing.T) {
	svc := &stubToolService{tools: []domain.Tool{{Name: "hello_penguin"}}}
	d := newTestDispatcher(svc)

	resp := d.Dispatch(context.Background(), request(2, "tools/list", ""))
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	result := resp.Result.(map[string]interface{})
	tools := result["tools"].([]domain.Tool)
	require.Len(t, tools, 1)
	assert.Equal(t, "hello_penguin", tools[0].Name)
}

func TestDispatch_EmptyListings(t *testing.T) {
	d := newTestDispatcher(&stubToolService{})

	for _, method := range []string{"resources/list", "prompts/list"} {
		resp := d.Dispatch(context.Background(), request(1, method, ""))
		require.NotNil(t, resp, method)
		require.Nil(t, resp.Error, method)

		data, err := json.Marshal(resp.Result)
		require.NoError(t, err)
		assert.Contains(t, string(data), "[]", method)
	}
}

func TestDispatch_MethodNotFound(t *testing.T) {
	d := newTestDispatcher(&stubToolService{})

	resp := d.Dispatch(context.Background(), request(3, "bogus/method", ""))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, int(shared.MethodNotFound), resp.Error.Code)
	assert.Equal(t, "Method not found: bogus/method", resp.Error.Message)
}

func TestDispatch_NotificationsProduceNoResponse(t *testing.T) {
	d := newTestDispatcher(&stubToolService{})

	// No id.
	assert.Nil(t, d.Dispatch(context.Background(), request(nil, "tools/list", "")))
	// notifications/ prefix, even with an id.
	assert.Nil(t, d.Dispatch(context.Background(), request(5, "notifications/initialized", "")))
}

func TestDispatch_InvalidVersion(t *testing.T) {
	d := newTestDispatcher(&stubToolService{})

	resp := d.Dispatch(context.Background(), shared.JSONRPCRequest{JSONRPC: "1.0", ID: 1, Method: "initialize"})
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, int(shared.InvalidRequest), resp.Error.Code)
}

func TestDispatchRaw_ParseError(t *testing.T) {
	d := newTestDispatcher(&stubToolService{})

	resp := d.DispatchRaw(context.Background(), json.RawMessage(`{"jsonrpc":`))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, int(shared.ParseError), resp.Error.Code)
	assert.Nil(t, resp.ID)
}

func TestToolCall_Success(t *testing.T) {
	svc := &stubToolService{
		results: map[string]*domain.ToolResult{
			"hello_penguin": domain.TextResult("hello"),
		},
	}
	d := newTestDispatcher(svc)

	resp := d.Dispatch(context.Background(), request(1, "tools/call", `{"name":"hello_penguin"}`))
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(*domain.ToolResult)
	require.True(t, ok)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "hello", result.Content[0].Text)
	assert.False(t, result.IsError)
}

func TestToolCall_MissingName(t *testing.T) {
	d := newTestDispatcher(&stubToolService{})

	resp := d.Dispatch(context.Background(), request(1, "tools/call", `{}`))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, int(shared.InvalidParams), resp.Error.Code)
}

func TestToolCall_UnknownTool(t *testing.T) {
	d := newTestDispatcher(&stubToolService{})

	resp := d.Dispatch(context.Background(), request(1, "tools/call", `{"name":"nope"}`))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, int(shared.InternalError), resp.Error.Code)
	assert.Equal(t, "Unknown tool: nope", resp.Error.Message)
}

func TestToolCall_DomainErrorBecomesResult(t *testing.T) {
	svc := &stubToolService{
		errs: map[string]error{
			"process_payment": domain.NewToolError("Insufficient funds. Available balance: $10.00"),
		},
	}
	d := newTestDispatcher(svc)

	resp := d.Dispatch(context.Background(), request(1, "tools/call", `{"name":"process_payment"}`))
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(*domain.ToolResult)
	require.True(t, ok)
	assert.True(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "Error: Insufficient funds. Available balance: $10.00", result.Content[0].Text)
}

func TestToolCall_InternalError(t *testing.T) {
	svc := &stubToolService{
		errs: map[string]error{
			"get_balance": errors.New("connection refused"),
		},
	}
	d := newTestDispatcher(svc)

	resp := d.Dispatch(context.Background(), request(1, "tools/call", `{"name":"get_balance"}`))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, int(shared.InternalError), resp.Error.Code)
	assert.Equal(t, "Internal error", resp.Error.Message)
	assert.Equal(t, "connection refused", resp.Error.Data)
}

func TestToolCall_Timeout(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := &stubToolService{block: make(chan struct{})}
	d := NewDispatcher(DispatcherConfig{
		ServerName:    "penguin-bank",
		ServerVersion: "1.0.0",
		Tools:         svc,
		Clock:         clock,
	})

	respCh := make(chan *shared.JSONRPCResponse, 1)
	go func() {
		respCh <- d.Dispatch(context.Background(), request(9, "tools/call", `{"name":"hello_penguin"}`))
	}()

	// Wait until the dispatcher is parked on the timeout timer, then fire it.
	clock.BlockUntil(1)
	clock.Advance(26 * time.Second)

	select {
	case resp := <-respCh:
		require.NotNil(t, resp)
		require.Nil(t, resp.Error)

		result, ok := resp.Result.(*domain.ToolResult)
		require.True(t, ok)
		assert.True(t, result.IsError)
		require.Len(t, result.Content, 1)
		assert.Equal(t, "Error: Tool execution timed out. Please try again with a simpler request.", result.Content[0].Text)
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch did not return after the timeout fired")
	}

	close(svc.block)
}
