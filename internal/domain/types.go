// Package domain defines the core business entities for the Penguin Bank MCP server.
package domain

import "time"

// AccountType identifies one of the two demo account kinds.
type AccountType string

// Supported account types. The names are part of the tool schema and must not change.
const (
	AccountTypeChecking AccountType = "checking"
	AccountTypeSavings  AccountType = "savings"
)

// Valid reports whether t is one of the supported account types.
func (t AccountType) Valid() bool {
	return t == AccountTypeChecking || t == AccountTypeSavings
}

// Account represents a bank account row.
type Account struct {
	ID               string
	UserID           string
	AccountType      AccountType
	AccountNumber    string
	Balance          float64
	AvailableBalance float64
}

// Transaction represents a single ledger entry on an account.
type Transaction struct {
	ID              string
	AccountID       string
	TransactionType string
	Amount          float64
	Merchant        string
	Category        string
	Description     string
	BalanceAfter    float64
	ReferenceNumber string
	CreatedAt       time.Time
}

// Bill represents a payable bill for a user.
type Bill struct {
	ID               string
	UserID           string
	Payee            string
	StatementBalance float64
	MinimumPayment   float64
	DueDate          time.Time
	IsPaid           bool
	IsAutopay        bool
	AccountNumber    string
	Category         string
}

// Payment records a completed bill payment.
type Payment struct {
	BillID             string
	AccountID          string
	Amount             float64
	PaymentType        string
	ConfirmationNumber string
	Status             string
}

// Tool describes a callable tool exposed to MCP clients. Tools are immutable
// and defined at startup; Name is unique within the server.
type Tool struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	InputSchema ToolSchema `json:"inputSchema"`
}

// ToolSchema is the JSON-Schema-shaped description of a tool's arguments.
type ToolSchema struct {
	Type       string                  `json:"type"`
	Properties map[string]ToolProperty `json:"properties"`
	Required   []string                `json:"required,omitempty"`
}

// ToolProperty describes a single tool argument.
type ToolProperty struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty"`
}

// ToolContent is a single content block inside a tool result.
type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResult is the value returned from a tool invocation. Business-rule
// violations are reported here as text with IsError set, never as protocol
// errors.
type ToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// TextResult builds a ToolResult holding a single text block.
func TextResult(text string) *ToolResult {
	return &ToolResult{Content: []ToolContent{{Type: "text", Text: text}}}
}

// ErrorResult builds a ToolResult describing a domain-level failure.
func ErrorResult(text string) *ToolResult {
	r := TextResult(text)
	r.IsError = true
	return r
}
