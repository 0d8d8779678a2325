/*
Package sqlite provides a SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  Persists clients, accounts and transactions in a single SQLite file.
  In production, the same patterns apply to PostgreSQL (see
  store/postgres) with only minor SQL dialect differences.

KEY TABLES:
  clients:      account holders, unique by cpf
  accounts:     balances, unique by number, owned by one client
  transactions: append-only log of deposits and withdrawals

FOREIGN KEYS:
  accounts.client_id      -> clients.id   ON DELETE RESTRICT
  transactions.account_id -> accounts.id  ON DELETE CASCADE

  Deleting a client that still owns accounts fails in the database even
  if the ledger check was skipped.

INDEXES:
  - idx_accounts_client:             list accounts of a client
  - idx_transactions_account_time:   period queries and today's withdrawals

STORAGE FORMATS:
  Money is stored as TEXT (decimal string) so no precision is lost.
  Timestamps are TEXT in UTC with a fixed-width layout so that string
  comparison in SQL matches time order.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, and transactions are opened with
  BEGIN IMMEDIATE (_txlock=immediate) so a WithTx holds SQLite's write
  lock from its first statement.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := ledger.NewEngine(store, ledger.DefaultPolicy(), nil)

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
  - store/postgres: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/conta-online/ledger"
)

// timeLayout is fixed-width so TEXT comparison orders like time.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const dateLayout = "2006-01-02"

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to ":memory:" is its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS clients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cpf TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		birth_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		number TEXT NOT NULL UNIQUE,
		branch TEXT NOT NULL,
		balance TEXT NOT NULL,
		daily_limit TEXT NOT NULL,
		blocked BOOLEAN NOT NULL DEFAULT 0,
		client_id INTEGER NOT NULL REFERENCES clients(id) ON DELETE RESTRICT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_client
		ON accounts(client_id);

	-- Append-only: rows are inserted, and removed only by cascade
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		amount TEXT NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('DEPOSIT', 'WITHDRAWAL')),
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_account_time
		ON transactions(account_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CLIENTS
// =============================================================================

func (s *Store) CreateClient(ctx context.Context, c *ledger.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createClient(ctx, s.db, c)
}

func (s *Store) GetClient(ctx context.Context, id ledger.ClientID) (*ledger.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getClient(ctx, s.db, "id = ?", int64(id))
}

func (s *Store) GetClientByCPF(ctx context.Context, cpf string) (*ledger.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getClient(ctx, s.db, "cpf = ?", cpf)
}

func (s *Store) DeleteClient(ctx context.Context, id ledger.ClientID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteClient(ctx, s.db, id)
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (s *Store) CreateAccount(ctx context.Context, a *ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createAccount(ctx, s.db, a)
}

func (s *Store) GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAccount(ctx, s.db, id)
}

// GetAccountForUpdate outside WithTx is a plain read.
func (s *Store) GetAccountForUpdate(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	return s.GetAccount(ctx, id)
}

func (s *Store) AccountNumberExists(ctx context.Context, number string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return accountNumberExists(ctx, s.db, number)
}

func (s *Store) UpdateAccount(ctx context.Context, a ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateAccount(ctx, s.db, a)
}

func (s *Store) DeleteAccount(ctx context.Context, id ledger.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteAccount(ctx, s.db, id)
}

func (s *Store) ListAccountsByClient(ctx context.Context, clientID ledger.ClientID) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAccountsByClient(ctx, s.db, clientID)
}

func (s *Store) CountAccountsByClient(ctx context.Context, clientID ledger.ClientID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return count(ctx, s.db, "SELECT COUNT(*) FROM accounts WHERE client_id = ?", int64(clientID))
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (s *Store) AppendTransaction(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendTransaction(ctx, s.db, tx)
}

func (s *Store) TransactionsInRange(ctx context.Context, accountID ledger.AccountID, from, to time.Time) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionsInRange(ctx, s.db, accountID, from, to)
}

func (s *Store) CountTransactions(ctx context.Context, accountID ledger.AccountID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return count(ctx, s.db, "SELECT COUNT(*) FROM transactions WHERE account_id = ?", int64(accountID))
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore runs every query on the open transaction. The parent lock is
// already held, so it must not call back into Store.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) CreateClient(ctx context.Context, c *ledger.Client) error {
	return createClient(ctx, ts.tx, c)
}

func (ts *txStore) GetClient(ctx context.Context, id ledger.ClientID) (*ledger.Client, error) {
	return getClient(ctx, ts.tx, "id = ?", int64(id))
}

func (ts *txStore) GetClientByCPF(ctx context.Context, cpf string) (*ledger.Client, error) {
	return getClient(ctx, ts.tx, "cpf = ?", cpf)
}

func (ts *txStore) DeleteClient(ctx context.Context, id ledger.ClientID) error {
	return deleteClient(ctx, ts.tx, id)
}

func (ts *txStore) CreateAccount(ctx context.Context, a *ledger.Account) error {
	return createAccount(ctx, ts.tx, a)
}

func (ts *txStore) GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	return getAccount(ctx, ts.tx, id)
}

// GetAccountForUpdate needs no row lock: the IMMEDIATE transaction already
// holds the database write lock.
func (ts *txStore) GetAccountForUpdate(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	return getAccount(ctx, ts.tx, id)
}

func (ts *txStore) AccountNumberExists(ctx context.Context, number string) (bool, error) {
	return accountNumberExists(ctx, ts.tx, number)
}

func (ts *txStore) UpdateAccount(ctx context.Context, a ledger.Account) error {
	return updateAccount(ctx, ts.tx, a)
}

func (ts *txStore) DeleteAccount(ctx context.Context, id ledger.AccountID) error {
	return deleteAccount(ctx, ts.tx, id)
}

func (ts *txStore) ListAccountsByClient(ctx context.Context, clientID ledger.ClientID) ([]ledger.Account, error) {
	return listAccountsByClient(ctx, ts.tx, clientID)
}

func (ts *txStore) CountAccountsByClient(ctx context.Context, clientID ledger.ClientID) (int, error) {
	return count(ctx, ts.tx, "SELECT COUNT(*) FROM accounts WHERE client_id = ?", int64(clientID))
}

func (ts *txStore) AppendTransaction(ctx context.Context, tx ledger.Transaction) error {
	return appendTransaction(ctx, ts.tx, tx)
}

func (ts *txStore) TransactionsInRange(ctx context.Context, accountID ledger.AccountID, from, to time.Time) ([]ledger.Transaction, error) {
	return transactionsInRange(ctx, ts.tx, accountID, from, to)
}

func (ts *txStore) CountTransactions(ctx context.Context, accountID ledger.AccountID) (int, error) {
	return count(ctx, ts.tx, "SELECT COUNT(*) FROM transactions WHERE account_id = ?", int64(accountID))
}

// =============================================================================
// QUERIES - shared by Store and txStore
// =============================================================================

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func createClient(ctx context.Context, q queryer, c *ledger.Client) error {
	res, err := q.ExecContext(ctx,
		`INSERT INTO clients (cpf, name, birth_date, created_at) VALUES (?, ?, ?, ?)`,
		c.CPF,
		c.Name,
		c.BirthDate.Format(dateLayout),
		formatTime(c.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateCPF
		}
		return fmt.Errorf("failed to insert client: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read client id: %w", err)
	}
	c.ID = ledger.ClientID(id)
	return nil
}

func getClient(ctx context.Context, q queryer, where string, arg any) (*ledger.Client, error) {
	var (
		c         ledger.Client
		birthDate string
		createdAt string
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, cpf, name, birth_date, created_at FROM clients WHERE `+where, arg,
	).Scan(&c.ID, &c.CPF, &c.Name, &birthDate, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	if c.BirthDate, err = time.Parse(dateLayout, birthDate); err != nil {
		return nil, fmt.Errorf("invalid birth date %q: %w", birthDate, err)
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func deleteClient(ctx context.Context, q queryer, id ledger.ClientID) error {
	_, err := q.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, int64(id))
	if err != nil {
		if isForeignKeyError(err) {
			return ledger.ErrClientHasAccounts
		}
		return fmt.Errorf("failed to delete client: %w", err)
	}
	return nil
}

func createAccount(ctx context.Context, q queryer, a *ledger.Account) error {
	res, err := q.ExecContext(ctx, `
		INSERT INTO accounts
		(number, branch, balance, daily_limit, blocked, client_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		a.Number,
		a.Branch,
		a.Balance.String(),
		a.DailyLimit.String(),
		a.Blocked,
		int64(a.ClientID),
		formatTime(a.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateAccountNumber
		}
		if isForeignKeyError(err) {
			return ledger.ErrClientNotFound
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read account id: %w", err)
	}
	a.ID = ledger.AccountID(id)
	return nil
}

const accountColumns = `id, number, branch, balance, daily_limit, blocked, client_id, created_at`

func getAccount(ctx context.Context, q queryer, id ledger.AccountID) (*ledger.Account, error) {
	row := q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, int64(id))
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func accountNumberExists(ctx context.Context, q queryer, number string) (bool, error) {
	n, err := count(ctx, q, `SELECT COUNT(*) FROM accounts WHERE number = ?`, number)
	return n > 0, err
}

func updateAccount(ctx context.Context, q queryer, a ledger.Account) error {
	res, err := q.ExecContext(ctx,
		`UPDATE accounts SET balance = ?, daily_limit = ?, blocked = ? WHERE id = ?`,
		a.Balance.String(),
		a.DailyLimit.String(),
		a.Blocked,
		int64(a.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

func deleteAccount(ctx context.Context, q queryer, id ledger.AccountID) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, int64(id)); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}

func listAccountsByClient(ctx context.Context, q queryer, clientID ledger.ClientID) ([]ledger.Account, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE client_id = ? ORDER BY id`, int64(clientID))
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (ledger.Account, error) {
	var (
		a          ledger.Account
		balance    string
		dailyLimit string
		createdAt  string
	)
	err := row.Scan(&a.ID, &a.Number, &a.Branch, &balance, &dailyLimit, &a.Blocked, &a.ClientID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return a, err
	}
	if err != nil {
		return a, fmt.Errorf("failed to scan account: %w", err)
	}

	if a.Balance, err = parseDecimal(balance); err != nil {
		return a, err
	}
	if a.DailyLimit, err = parseDecimal(dailyLimit); err != nil {
		return a, err
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return a, err
	}
	return a, nil
}

func appendTransaction(ctx context.Context, q queryer, tx ledger.Transaction) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO transactions (id, account_id, amount, kind, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(tx.ID),
		int64(tx.AccountID),
		tx.Amount.String(),
		string(tx.Kind),
		formatTime(tx.Timestamp),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return ledger.ErrAccountNotFound
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func transactionsInRange(ctx context.Context, q queryer, accountID ledger.AccountID, from, to time.Time) ([]ledger.Transaction, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, account_id, amount, kind, created_at
		FROM transactions
		WHERE account_id = ? AND created_at >= ? AND created_at <= ?
		ORDER BY created_at, rowid
	`, int64(accountID), formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []ledger.Transaction
	for rows.Next() {
		var (
			tx        ledger.Transaction
			amount    string
			kind      string
			createdAt string
		)
		if err := rows.Scan(&tx.ID, &tx.AccountID, &amount, &kind, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.Kind = ledger.Kind(kind)
		if tx.Amount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		if tx.Timestamp, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

func count(ctx context.Context, q queryer, query string, args ...any) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return n, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo) and restarts id sequences.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"transactions", "accounts", "clients"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM sqlite_sequence WHERE name IN ('accounts', 'clients')")
	return err
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d, nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

// isForeignKeyError reports a foreign key violation. SQLite raises ON DELETE
// RESTRICT through an internal trigger, so it carries ErrConstraintTrigger
// instead of ErrConstraintForeignKey.
func isForeignKeyError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintTrigger)
}
