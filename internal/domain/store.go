package domain

import "context"

// Store defines the data-store collaborator backing the banking tools.
// Implementations are expected to filter reads by the given user identifier.
//
// Note that a bill payment is three discrete writes (InsertPayment,
// UpdateAccountBalance, InsertTransaction) with no atomicity guarantee across
// them; a failure mid-sequence leaves earlier writes in place.
type Store interface {
	// ListAccounts returns all accounts belonging to a user.
	ListAccounts(ctx context.Context, userID string) ([]Account, error)

	// GetAccount returns a user's account of the given type, or
	// ErrAccountNotFound.
	GetAccount(ctx context.Context, userID string, accountType AccountType) (*Account, error)

	// ListTransactions returns up to limit transactions for an account,
	// newest first.
	ListTransactions(ctx context.Context, accountID string, limit int) ([]Transaction, error)

	// FindBills returns a user's bills whose payee matches the given
	// fragment, case-insensitively.
	FindBills(ctx context.Context, userID, payee string) ([]Bill, error)

	// FindBill returns a single bill matching the payee fragment, or
	// ErrBillNotFound.
	FindBill(ctx context.Context, userID, payee string) (*Bill, error)

	// ListPayees returns the payee names of all bills for a user.
	ListPayees(ctx context.Context, userID string) ([]string, error)

	// InsertPayment records a completed payment in the payment history.
	InsertPayment(ctx context.Context, payment Payment) error

	// UpdateAccountBalance sets an account's balance and available balance.
	UpdateAccountBalance(ctx context.Context, accountID string, balance float64) error

	// InsertTransaction appends a ledger entry for an account.
	InsertTransaction(ctx context.Context, tx Transaction) error
}
