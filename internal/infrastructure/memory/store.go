// Package memory implements the banking Store in process memory. It backs
// local development and tests when no database is configured.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dudgeon/penguin-bank-cloud/internal/domain"
)

// Store is a mutex-guarded in-memory domain.Store.
type Store struct {
	mu           sync.Mutex
	accounts     []domain.Account
	transactions []domain.Transaction
	bills        []domain.Bill
	payments     []domain.Payment
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// NewSeededStore creates a Store pre-populated with demo data for the given
// user: a checking and a savings account, a short transaction history, and a
// few payable bills.
func NewSeededStore(userID string) *Store {
	s := NewStore()
	now := time.Now().UTC()

	checking := domain.Account{
		ID:               uuid.NewString(),
		UserID:           userID,
		AccountType:      domain.AccountTypeChecking,
		AccountNumber:    "****1234",
		Balance:          2847.52,
		AvailableBalance: 2847.52,
	}
	savings := domain.Account{
		ID:               uuid.NewString(),
		UserID:           userID,
		AccountType:      domain.AccountTypeSavings,
		AccountNumber:    "****5678",
		Balance:          15230.00,
		AvailableBalance: 15230.00,
	}
	s.accounts = append(s.accounts, checking, savings)

	seedTxs := []struct {
		txType   string
		amount   float64
		merchant string
		category string
		desc     string
		after    float64
		age      time.Duration
	}{
		{"debit", 45.67, "Fresh Fish Market", "groceries", "Grocery purchase", 2847.52, 24 * time.Hour},
		{"debit", 12.50, "Iceberg Cafe", "dining", "Coffee and pastry", 2893.19, 48 * time.Hour},
		{"credit", 2500.00, "Arctic Research Co", "income", "Salary deposit", 2905.69, 72 * time.Hour},
		{"debit", 89.99, "South Pole Utilities", "utilities", "Electric bill autopay", 405.69, 96 * time.Hour},
	}
	for _, t := range seedTxs {
		s.transactions = append(s.transactions, domain.Transaction{
			ID:              uuid.NewString(),
			AccountID:       checking.ID,
			TransactionType: t.txType,
			Amount:          t.amount,
			Merchant:        t.merchant,
			Category:        t.category,
			Description:     t.desc,
			BalanceAfter:    t.after,
			CreatedAt:       now.Add(-t.age),
		})
	}

	s.bills = append(s.bills,
		domain.Bill{
			ID:               uuid.NewString(),
			UserID:           userID,
			Payee:            "Glacier Electric",
			StatementBalance: 124.56,
			MinimumPayment:   25.00,
			DueDate:          now.Add(12 * 24 * time.Hour),
			AccountNumber:    "****9012",
			Category:         "utilities",
		},
		domain.Bill{
			ID:               uuid.NewString(),
			UserID:           userID,
			Payee:            "Penguin Wireless",
			StatementBalance: 65.00,
			MinimumPayment:   65.00,
			DueDate:          now.Add(18 * 24 * time.Hour),
			AccountNumber:    "****3456",
			Category:         "phone",
		},
		domain.Bill{
			ID:               uuid.NewString(),
			UserID:           userID,
			Payee:            "Igloo Insurance",
			StatementBalance: 210.40,
			MinimumPayment:   50.00,
			DueDate:          now.Add(25 * 24 * time.Hour),
			AccountNumber:    "****7890",
			Category:         "insurance",
			IsAutopay:        true,
		},
	)
	return s
}

// AddAccount inserts an account. Useful for tests.
func (s *Store) AddAccount(a domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = append(s.accounts, a)
}

// AddBill inserts a bill. Useful for tests.
func (s *Store) AddBill(b domain.Bill) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bills = append(s.bills, b)
}

// AddTransaction inserts a transaction. Useful for tests.
func (s *Store) AddTransaction(t domain.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = append(s.transactions, t)
}

// ListAccounts returns all accounts belonging to a user.
func (s *Store) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var accounts []domain.Account
	for _, a := range s.accounts {
		if a.UserID == userID {
			accounts = append(accounts, a)
		}
	}
	return accounts, nil
}

// GetAccount returns a user's account of the given type.
func (s *Store) GetAccount(ctx context.Context, userID string, accountType domain.AccountType) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if a.UserID == userID && a.AccountType == accountType {
			account := a
			return &account, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

// ListTransactions returns up to limit transactions for an account, newest first.
func (s *Store) ListTransactions(ctx context.Context, accountID string, limit int) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var txs []domain.Transaction
	for _, t := range s.transactions {
		if t.AccountID == accountID {
			txs = append(txs, t)
		}
	}
	sort.Slice(txs, func(i, j int) bool {
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

// FindBills returns a user's bills whose payee matches the fragment,
// case-insensitively.
func (s *Store) FindBills(ctx context.Context, userID, payee string) ([]domain.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchBillsLocked(userID, payee), nil
}

// FindBill returns a single bill matching the payee fragment.
func (s *Store) FindBill(ctx context.Context, userID, payee string) (*domain.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := s.matchBillsLocked(userID, payee)
	if len(matches) == 0 {
		return nil, domain.ErrBillNotFound
	}
	bill := matches[0]
	return &bill, nil
}

// ListPayees returns the payee names of all bills for a user.
func (s *Store) ListPayees(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payees []string
	for _, b := range s.bills {
		if b.UserID == userID {
			payees = append(payees, b.Payee)
		}
	}
	return payees, nil
}

// InsertPayment records a completed payment in the payment history.
func (s *Store) InsertPayment(ctx context.Context, payment domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments = append(s.payments, payment)
	return nil
}

// Payments returns all recorded payments. Useful for tests.
func (s *Store) Payments() []domain.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Payment(nil), s.payments...)
}

// UpdateAccountBalance sets an account's balance and available balance.
func (s *Store) UpdateAccountBalance(ctx context.Context, accountID string, balance float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.accounts {
		if s.accounts[i].ID == accountID {
			s.accounts[i].Balance = balance
			s.accounts[i].AvailableBalance = balance
			return nil
		}
	}
	return domain.ErrAccountNotFound
}

// InsertTransaction appends a ledger entry for an account.
func (s *Store) InsertTransaction(ctx context.Context, tx domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	s.transactions = append(s.transactions, tx)
	return nil
}

func (s *Store) matchBillsLocked(userID, payee string) []domain.Bill {
	needle := strings.ToLower(payee)
	var matches []domain.Bill
	for _, b := range s.bills {
		if b.UserID == userID && strings.Contains(strings.ToLower(b.Payee), needle) {
			matches = append(matches, b)
		}
	}
	return matches
}
