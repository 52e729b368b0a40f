// Package banking implements the Penguin Bank tool handlers over a
// domain.Store collaborator.
package banking

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/dudgeon/penguin-bank-cloud/internal/domain"
	"github.com/dudgeon/penguin-bank-cloud/internal/infrastructure/logging"
)

// DemoUserID is the fixed user every query is scoped to in the reference
// deployment.
const DemoUserID = "550e8400-e29b-41d4-a716-446655440001"

// Transaction listing bounds, mirrored in the tool schema.
const (
	defaultTransactionLimit = 10
	minTransactionLimit     = 1
	maxTransactionLimit     = 50
)

const welcomeMessage = "🐧 Welcome to Penguin Bank! I'm your AI banking assistant. I can help you:\n\n" +
	"• Check account balances\n" +
	"• View recent transactions\n" +
	"• Show bill details\n" +
	"• Process bill payments\n\n" +
	"How can I help you today?"

// Service exposes the banking tool catalog and dispatches calls to the
// individual handlers.
type Service struct {
	store  domain.Store
	userID string
	logger *logging.Logger
}

// NewService creates a Service bound to a store and user. An empty userID
// falls back to the demo user.
func NewService(store domain.Store, userID string, logger *logging.Logger) *Service {
	if userID == "" {
		userID = DemoUserID
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{store: store, userID: userID, logger: logger}
}

// Tools returns the static tool catalog. Names, argument fields, and enum
// values are part of the client contract and must not change.
func (s *Service) Tools() []domain.Tool {
	minAmount := 0.01
	minLimit := float64(minTransactionLimit)
	maxLimit := float64(maxTransactionLimit)

	return []domain.Tool{
		{
			Name:        "hello_penguin",
			Description: "Welcome message for Penguin Bank",
			InputSchema: domain.ToolSchema{
				Type:       "object",
				Properties: map[string]domain.ToolProperty{},
			},
		},
		{
			Name:        "get_balance",
			Description: "Get account balances for checking and savings accounts",
			InputSchema: domain.ToolSchema{
				Type:       "object",
				Properties: map[string]domain.ToolProperty{},
			},
		},
		{
			Name:        "get_recent_transactions",
			Description: "Get recent transactions for an account",
			InputSchema: domain.ToolSchema{
				Type: "object",
				Properties: map[string]domain.ToolProperty{
					"account_type": {
						Type:        "string",
						Enum:        []string{"checking", "savings"},
						Description: "Type of account to get transactions for",
					},
					"limit": {
						Type:        "number",
						Description: "Number of transactions to retrieve (default: 10)",
						Minimum:     &minLimit,
						Maximum:     &maxLimit,
					},
				},
			},
		},
		{
			Name:        "show_bill",
			Description: "Display details for a specific bill",
			InputSchema: domain.ToolSchema{
				Type: "object",
				Properties: map[string]domain.ToolProperty{
					"payee": {
						Type:        "string",
						Description: "Name of the payee to show bill details for",
					},
				},
				Required: []string{"payee"},
			},
		},
		{
			Name:        "process_payment",
			Description: "Process a bill payment",
			InputSchema: domain.ToolSchema{
				Type: "object",
				Properties: map[string]domain.ToolProperty{
					"payee": {
						Type:        "string",
						Description: "Name of the payee to pay",
					},
					"amount": {
						Type:        "number",
						Description: "Amount to pay",
						Minimum:     &minAmount,
					},
					"account_type": {
						Type:        "string",
						Enum:        []string{"checking", "savings"},
						Description: "Account to pay from",
					},
				},
				Required: []string{"payee", "amount", "account_type"},
			},
		},
	}
}

// Call runs the named tool with the given arguments. Business-rule violations
// come back as domain.ToolError; an unregistered name comes back as
// domain.UnknownToolError.
func (s *Service) Call(ctx context.Context, name string, args map[string]interface{}) (*domain.ToolResult, error) {
	switch name {
	case "hello_penguin":
		return domain.TextResult(welcomeMessage), nil
	case "get_balance":
		return s.getBalance(ctx)
	case "get_recent_transactions":
		return s.getRecentTransactions(ctx, args)
	case "show_bill":
		return s.showBill(ctx, args)
	case "process_payment":
		return s.processPayment(ctx, args)
	default:
		return nil, &domain.UnknownToolError{Name: name}
	}
}

type accountView struct {
	Type             string `json:"type"`
	AccountNumber    string `json:"account_number"`
	Balance          string `json:"balance"`
	AvailableBalance string `json:"available_balance"`
}

func (s *Service) getBalance(ctx context.Context) (*domain.ToolResult, error) {
	accounts, err := s.store.ListAccounts(ctx, s.userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch balances")
	}
	if len(accounts) == 0 {
		return nil, domain.NewToolError("No accounts found")
	}

	views := make([]accountView, len(accounts))
	for i, a := range accounts {
		views[i] = accountView{
			Type:             string(a.AccountType),
			AccountNumber:    a.AccountNumber,
			Balance:          dollars(a.Balance),
			AvailableBalance: dollars(a.AvailableBalance),
		}
	}

	return jsonResult(struct {
		Accounts []accountView `json:"accounts"`
	}{Accounts: views})
}

type transactionView struct {
	Date         string `json:"date"`
	Type         string `json:"type"`
	Amount       string `json:"amount"`
	Merchant     string `json:"merchant"`
	Category     string `json:"category"`
	Description  string `json:"description"`
	BalanceAfter string `json:"balance_after"`
}

func (s *Service) getRecentTransactions(ctx context.Context, args map[string]interface{}) (*domain.ToolResult, error) {
	accountType, err := accountTypeArg(args, domain.AccountTypeChecking)
	if err != nil {
		return nil, err
	}
	limit := clampLimit(intArg(args, "limit", defaultTransactionLimit))

	account, err := s.store.GetAccount(ctx, s.userID, accountType)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.NewToolError("Failed to find %s account", accountType)
		}
		return nil, err
	}

	txs, err := s.store.ListTransactions(ctx, account.ID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch transactions")
	}

	views := make([]transactionView, len(txs))
	for i, tx := range txs {
		views[i] = transactionView{
			Date:         tx.CreatedAt.Format("2006-01-02"),
			Type:         tx.TransactionType,
			Amount:       dollars(tx.Amount),
			Merchant:     orNA(tx.Merchant),
			Category:     orDefault(tx.Category, "other"),
			Description:  tx.Description,
			BalanceAfter: dollars(tx.BalanceAfter),
		}
	}

	return jsonResult(struct {
		AccountType  string            `json:"account_type"`
		Transactions []transactionView `json:"transactions"`
	}{AccountType: string(accountType), Transactions: views})
}

type billView struct {
	Payee            string `json:"payee"`
	StatementBalance string `json:"statement_balance"`
	MinimumPayment   string `json:"minimum_payment"`
	DueDate          string `json:"due_date"`
	Category         string `json:"category"`
	AccountNumber    string `json:"account_number"`
	IsPaid           bool   `json:"is_paid"`
	IsAutopay        bool   `json:"is_autopay"`
}

func (s *Service) showBill(ctx context.Context, args map[string]interface{}) (*domain.ToolResult, error) {
	payee := stringArg(args, "payee")
	if payee == "" {
		return nil, domain.NewToolError("Missing required argument: payee")
	}

	bills, err := s.store.FindBills(ctx, s.userID, payee)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch bills")
	}
	if len(bills) == 0 {
		payees, err := s.store.ListPayees(ctx, s.userID)
		if err != nil || len(payees) == 0 {
			return nil, domain.NewToolError("No bills found for %q. Available payees: none", payee)
		}
		return nil, domain.NewToolError("No bills found for %q. Available payees: %s", payee, strings.Join(payees, ", "))
	}

	views := make([]billView, len(bills))
	for i, b := range bills {
		views[i] = billView{
			Payee:            b.Payee,
			StatementBalance: dollars(b.StatementBalance),
			MinimumPayment:   dollars(b.MinimumPayment),
			DueDate:          b.DueDate.Format("2006-01-02"),
			Category:         b.Category,
			AccountNumber:    orNA(b.AccountNumber),
			IsPaid:           b.IsPaid,
			IsAutopay:        b.IsAutopay,
		}
	}

	return jsonResult(struct {
		Bills []billView `json:"bills"`
	}{Bills: views})
}

type paymentReceipt struct {
	Success            bool   `json:"success"`
	ConfirmationNumber string `json:"confirmation_number"`
	AmountPaid         string `json:"amount_paid"`
	Payee              string `json:"payee"`
	AccountType        string `json:"account_type"`
	NewBalance         string `json:"new_balance"`
	PaymentDate        string `json:"payment_date"`
}

// processPayment validates the request and then performs three discrete
// writes: a payment-history insert, the balance update, and a transaction
// insert. The writes are not atomic; a failure partway through is reported
// but not rolled back.
func (s *Service) processPayment(ctx context.Context, args map[string]interface{}) (*domain.ToolResult, error) {
	payee := stringArg(args, "payee")
	if payee == "" {
		return nil, domain.NewToolError("Missing required argument: payee")
	}
	amount, ok := floatArg(args, "amount")
	if !ok || amount <= 0 {
		return nil, domain.NewToolError("Payment amount must be a positive number")
	}
	accountType, err := accountTypeArg(args, "")
	if err != nil {
		return nil, err
	}

	account, err := s.store.GetAccount(ctx, s.userID, accountType)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.NewToolError("Failed to find %s account", accountType)
		}
		return nil, err
	}

	if account.Balance < amount {
		return nil, domain.NewToolError("Insufficient funds. Available balance: %s", dollars(account.Balance))
	}

	bill, err := s.store.FindBill(ctx, s.userID, payee)
	if err != nil {
		if errors.Is(err, domain.ErrBillNotFound) {
			return nil, domain.NewToolError("Bill not found for payee: %s", payee)
		}
		return nil, err
	}

	if amount > bill.StatementBalance {
		return nil, domain.NewToolError("Payment amount %s exceeds statement balance %s",
			dollars(amount), dollars(bill.StatementBalance))
	}
	if amount < bill.MinimumPayment {
		return nil, domain.NewToolError("Payment amount %s is less than minimum payment %s",
			dollars(amount), dollars(bill.MinimumPayment))
	}

	confirmation := newConfirmationNumber()
	newBalance := account.Balance - amount

	if err := s.store.InsertPayment(ctx, domain.Payment{
		BillID:             bill.ID,
		AccountID:          account.ID,
		Amount:             amount,
		PaymentType:        "one_time",
		ConfirmationNumber: confirmation,
		Status:             "completed",
	}); err != nil {
		return nil, errors.Wrap(err, "failed to record payment")
	}

	if err := s.store.UpdateAccountBalance(ctx, account.ID, newBalance); err != nil {
		return nil, errors.Wrap(err, "failed to update balance")
	}

	if err := s.store.InsertTransaction(ctx, domain.Transaction{
		AccountID:       account.ID,
		TransactionType: "debit",
		Amount:          amount,
		Merchant:        payee,
		Category:        "bill_payment",
		Description:     fmt.Sprintf("Bill payment to %s", payee),
		BalanceAfter:    newBalance,
		ReferenceNumber: confirmation,
	}); err != nil {
		return nil, errors.Wrap(err, "failed to record transaction")
	}

	s.logger.Info("Payment processed", logging.Fields{
		"payee":        payee,
		"amount":       amount,
		"confirmation": confirmation,
	})

	return jsonResult(paymentReceipt{
		Success:            true,
		ConfirmationNumber: confirmation,
		AmountPaid:         dollars(amount),
		Payee:              payee,
		AccountType:        string(accountType),
		NewBalance:         dollars(newBalance),
		PaymentDate:        time.Now().UTC().Format(time.RFC3339),
	})
}

// newConfirmationNumber builds a "PB"-prefixed confirmation code from a UUID.
// Unique in practice, not by guarantee.
func newConfirmationNumber() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "PB" + strings.ToUpper(raw[:12])
}

func jsonResult(v interface{}) (*domain.ToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode tool result")
	}
	return domain.TextResult(string(data)), nil
}

func dollars(amount float64) string {
	return fmt.Sprintf("$%.2f", amount)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func stringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func floatArg(args map[string]interface{}, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func intArg(args map[string]interface{}, key string, fallback int) int {
	if f, ok := floatArg(args, key); ok {
		return int(f)
	}
	return fallback
}

func accountTypeArg(args map[string]interface{}, fallback domain.AccountType) (domain.AccountType, error) {
	raw := stringArg(args, "account_type")
	if raw == "" {
		if fallback == "" {
			return "", domain.NewToolError("Missing required argument: account_type")
		}
		return fallback, nil
	}
	t := domain.AccountType(raw)
	if !t.Valid() {
		return "", domain.NewToolError("Invalid account_type %q: must be \"checking\" or \"savings\"", raw)
	}
	return t, nil
}

func clampLimit(limit int) int {
	if limit < minTransactionLimit {
		return minTransactionLimit
	}
	if limit > maxTransactionLimit {
		return maxTransactionLimit
	}
	return limit
}
