package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Store implementations.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrBillNotFound    = errors.New("bill not found")
)

// ToolError is a user-facing business-rule violation. The dispatcher converts
// it into a successful tool result carrying the message as text, rather than
// a JSON-RPC error.
type ToolError struct {
	Message string
}

// Error returns the error message.
func (e *ToolError) Error() string {
	return e.Message
}

// NewToolError creates a ToolError with a formatted message.
func NewToolError(format string, args ...interface{}) *ToolError {
	return &ToolError{Message: fmt.Sprintf(format, args...)}
}

// UnknownToolError indicates that a tools/call request named a tool that is
// not registered.
type UnknownToolError struct {
	Name string
}

// Error returns the error message.
func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("Unknown tool: %s", e.Name)
}
