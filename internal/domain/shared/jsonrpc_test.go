package shared

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsNotification(t *testing.T) {
	// No id means no response is expected.
	req := JSONRPCRequest{JSONRPC: "2.0", Method: "tools/list"}
	assert.True(t, req.IsNotification())

	// An explicit null id decodes to nil and counts as a notification.
	var decoded JSONRPCRequest
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":null,"method":"tools/list"}`), &decoded))
	assert.True(t, decoded.IsNotification())

	// notifications/-prefixed methods are notifications even with an id.
	req = JSONRPCRequest{JSONRPC: "2.0", ID: 1, Method: "notifications/initialized"}
	assert.True(t, req.IsNotification())

	req = JSONRPCRequest{JSONRPC: "2.0", ID: 1, Method: "tools/list"}
	assert.False(t, req.IsNotification())
}

func TestRequestIDTypes(t *testing.T) {
	var req JSONRPCRequest
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":"abc","method":"initialize"}`), &req))
	assert.Equal(t, "abc", req.ID)

	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":42,"method":"initialize"}`), &req))
	assert.Equal(t, float64(42), req.ID)
}

func TestNewResponse(t *testing.T) {
	resp := NewResponse(7, map[string]string{"ok": "yes"})
	assert.Equal(t, JSONRPCVersion, resp.JSONRPC)
	assert.Equal(t, 7, resp.ID)
	assert.NotNil(t, resp.Result)
	assert.Nil(t, resp.Error)
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse("abc", MethodNotFound, "Method not found: nope", nil)
	assert.Equal(t, "abc", resp.ID)
	require.NotNil(t, resp.Error)
	assert.Equal(t, int(MethodNotFound), resp.Error.Code)
	assert.Equal(t, "Method not found: nope", resp.Error.Message)
	assert.Nil(t, resp.Result)
}

func TestResponseAlwaysEmitsID(t *testing.T) {
	// A parse error response carries id null, not an omitted field.
	resp := NewErrorResponse(nil, ParseError, ErrorMessage(ParseError), nil)
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id":null`)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "Parse error", ErrorMessage(ParseError))
	assert.Equal(t, "Invalid request", ErrorMessage(InvalidRequest))
	assert.Equal(t, "Method not found", ErrorMessage(MethodNotFound))
	assert.Equal(t, "Invalid params", ErrorMessage(InvalidParams))
	assert.Equal(t, "Internal error", ErrorMessage(InternalError))
	assert.Equal(t, "Unknown error", ErrorMessage(ErrorCode(-1)))
}
