// Package postgres implements the banking Store on a PostgreSQL database.
package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"

	"github.com/dudgeon/penguin-bank-cloud/internal/domain"
)

// Store is a domain.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to the database at the given URL and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}
	return &Store{db: db}, nil
}

// NewStore wraps an existing database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// ListAccounts returns all accounts belonging to a user.
func (s *Store) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, account_type, account_number, balance, available_balance
		 FROM accounts
		 WHERE user_id = $1
		 ORDER BY account_type`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch accounts")
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.UserID, &a.AccountType, &a.AccountNumber, &a.Balance, &a.AvailableBalance); err != nil {
			return nil, errors.Wrap(err, "failed to scan account")
		}
		accounts = append(accounts, a)
	}
	return accounts, errors.Wrap(rows.Err(), "failed to iterate accounts")
}

// GetAccount returns a user's account of the given type.
func (s *Store) GetAccount(ctx context.Context, userID string, accountType domain.AccountType) (*domain.Account, error) {
	var a domain.Account
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, account_type, account_number, balance, available_balance
		 FROM accounts
		 WHERE user_id = $1 AND account_type = $2`, userID, string(accountType)).
		Scan(&a.ID, &a.UserID, &a.AccountType, &a.AccountNumber, &a.Balance, &a.AvailableBalance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch account")
	}
	return &a, nil
}

// ListTransactions returns up to limit transactions for an account, newest first.
func (s *Store) ListTransactions(ctx context.Context, accountID string, limit int) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, transaction_type, amount,
		        COALESCE(merchant, ''), COALESCE(category, ''), COALESCE(description, ''),
		        balance_after, COALESCE(reference_number, ''), created_at
		 FROM transactions
		 WHERE account_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch transactions")
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.TransactionType, &t.Amount,
			&t.Merchant, &t.Category, &t.Description,
			&t.BalanceAfter, &t.ReferenceNumber, &t.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan transaction")
		}
		txs = append(txs, t)
	}
	return txs, errors.Wrap(rows.Err(), "failed to iterate transactions")
}

// FindBills returns a user's bills whose payee matches the fragment,
// case-insensitively.
func (s *Store) FindBills(ctx context.Context, userID, payee string) ([]domain.Bill, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, payee, statement_balance, minimum_payment, due_date,
		        is_paid, is_autopay, COALESCE(account_number, ''), COALESCE(category, '')
		 FROM bills
		 WHERE user_id = $1 AND payee ILIKE '%' || $2 || '%'
		 ORDER BY due_date`, userID, payee)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch bills")
	}
	defer rows.Close()

	var bills []domain.Bill
	for rows.Next() {
		var b domain.Bill
		if err := rows.Scan(&b.ID, &b.UserID, &b.Payee, &b.StatementBalance, &b.MinimumPayment,
			&b.DueDate, &b.IsPaid, &b.IsAutopay, &b.AccountNumber, &b.Category); err != nil {
			return nil, errors.Wrap(err, "failed to scan bill")
		}
		bills = append(bills, b)
	}
	return bills, errors.Wrap(rows.Err(), "failed to iterate bills")
}

// FindBill returns a single bill matching the payee fragment.
func (s *Store) FindBill(ctx context.Context, userID, payee string) (*domain.Bill, error) {
	var b domain.Bill
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, payee, statement_balance, minimum_payment, due_date,
		        is_paid, is_autopay, COALESCE(account_number, ''), COALESCE(category, '')
		 FROM bills
		 WHERE user_id = $1 AND payee ILIKE '%' || $2 || '%'
		 LIMIT 1`, userID, payee).
		Scan(&b.ID, &b.UserID, &b.Payee, &b.StatementBalance, &b.MinimumPayment,
			&b.DueDate, &b.IsPaid, &b.IsAutopay, &b.AccountNumber, &b.Category)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBillNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch bill")
	}
	return &b, nil
}

// ListPayees returns the payee names of all bills for a user.
func (s *Store) ListPayees(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payee FROM bills WHERE user_id = $1 ORDER BY payee`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch payees")
	}
	defer rows.Close()

	var payees []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, errors.Wrap(err, "failed to scan payee")
		}
		payees = append(payees, p)
	}
	return payees, errors.Wrap(rows.Err(), "failed to iterate payees")
}

// InsertPayment records a completed payment in the payment history.
func (s *Store) InsertPayment(ctx context.Context, payment domain.Payment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payment_history (bill_id, account_id, amount, payment_type, confirmation_number, status)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		payment.BillID, payment.AccountID, payment.Amount,
		payment.PaymentType, payment.ConfirmationNumber, payment.Status)
	return errors.Wrap(err, "failed to record payment")
}

// UpdateAccountBalance sets an account's balance and available balance.
func (s *Store) UpdateAccountBalance(ctx context.Context, accountID string, balance float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET balance = $1, available_balance = $1 WHERE id = $2`,
		balance, accountID)
	return errors.Wrap(err, "failed to update balance")
}

// InsertTransaction appends a ledger entry for an account.
func (s *Store) InsertTransaction(ctx context.Context, tx domain.Transaction) error {
	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (account_id, transaction_type, amount, merchant, category, description, balance_after, reference_number, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		tx.AccountID, tx.TransactionType, tx.Amount, tx.Merchant, tx.Category,
		tx.Description, tx.BalanceAfter, tx.ReferenceNumber, createdAt)
	return errors.Wrap(err, "failed to record transaction")
}
