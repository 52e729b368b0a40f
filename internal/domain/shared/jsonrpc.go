// Package shared holds the JSON-RPC envelope types used by the MCP protocol.
package shared

import (
	"encoding/json"
	"strings"
)

// JSONRPCVersion is the version of JSON-RPC to use
const JSONRPCVersion = "2.0"

// ErrorCode represents a JSON-RPC error code
type ErrorCode int

// Standard JSON-RPC error codes
const (
	ParseError     ErrorCode = -32700
	InvalidRequest ErrorCode = -32600
	MethodNotFound ErrorCode = -32601
	InvalidParams  ErrorCode = -32602
	InternalError  ErrorCode = -32603
)

// NotificationPrefix marks methods that never receive a response body.
const NotificationPrefix = "notifications/"

// JSONRPCRequest represents a JSON-RPC request. ID is nil for notifications
// (absent or explicit null); otherwise it is a string or a number and is
// echoed back verbatim in the response.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request expects no response: either the
// id is absent/null or the method carries the notifications/ prefix.
func (r JSONRPCRequest) IsNotification() bool {
	return r.ID == nil || strings.HasPrefix(r.Method, NotificationPrefix)
}

// JSONRPCResponse represents a JSON-RPC response. Exactly one of Result and
// Error is set. The id field is always emitted, as null when the request id
// could not be resolved (parse errors).
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      interface{}   `json:"id"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC error
type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewResponse creates a success response echoing the given id.
func NewResponse(id interface{}, result interface{}) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  result,
	}
}

// NewErrorResponse creates an error response echoing the given id.
func NewErrorResponse(id interface{}, code ErrorCode, message string, data interface{}) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error: &JSONRPCError{
			Code:    int(code),
			Message: message,
			Data:    data,
		},
	}
}

// ErrorMessage returns a standard error message for a given error code
func ErrorMessage(code ErrorCode) string {
	switch code {
	case ParseError:
		return "Parse error"
	case InvalidRequest:
		return "Invalid request"
	case MethodNotFound:
		return "Method not found"
	case InvalidParams:
		return "Invalid params"
	case InternalError:
		return "Internal error"
	default:
		return "Unknown error"
	}
}
