/*
Package postgres provides a PostgreSQL-backed implementation of ledger.TxStore.

PURPOSE:
  Production storage. Same tables and semantics as store/sqlite, but
  concurrency is handled by the database instead of a process mutex, so
  several server instances can share one database.

CONCURRENCY:
  GetAccountForUpdate issues SELECT ... FOR UPDATE. Inside WithTx this
  holds the account row until commit, so concurrent withdrawals on one
  account run one after the other while different accounts proceed in
  parallel. Under READ COMMITTED the second writer sees the first one's
  committed transaction when it sums today's withdrawals.

  Unique violations (23505) are mapped to ErrDuplicateCPF and
  ErrDuplicateAccountNumber by constraint name; the ledger retries the
  latter with a fresh number.

MIGRATIONS:
  Versioned SQL files in migrations/ are embedded and applied with goose
  on New(). They can also be run with the goose CLI.

STORAGE FORMATS:
  Money is NUMERIC and crosses the wire as text so no precision is lost.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - store/sqlite: single-file implementation
*/
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"github.com/warp/conta-online/ledger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgreSQL error codes.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Store implements ledger.TxStore using a pgx connection pool.
type Store struct {
	conn
	pool *pgxpool.Pool
}

// New connects to dsn and applies pending migrations.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{conn: conn{q: pool}, pool: pool}, nil
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Reset clears all data (for testing/demo) and restarts id sequences.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE transactions, accounts, clients RESTART IDENTITY CASCADE`)
	return err
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&conn{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// =============================================================================
// QUERIES - shared by the pool and open transactions
// =============================================================================

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// conn implements ledger.Store on top of a querier.
type conn struct {
	q querier
}

// =============================================================================
// CLIENTS
// =============================================================================

func (c *conn) CreateClient(ctx context.Context, client *ledger.Client) error {
	var id int64
	err := c.q.QueryRow(ctx, `
		INSERT INTO clients (cpf, name, birth_date, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, client.CPF, client.Name, client.BirthDate, client.CreatedAt).Scan(&id)
	if err != nil {
		if constraint, ok := violation(err, uniqueViolation); ok && constraint == "clients_cpf_key" {
			return ledger.ErrDuplicateCPF
		}
		return fmt.Errorf("failed to insert client: %w", err)
	}
	client.ID = ledger.ClientID(id)
	return nil
}

func (c *conn) GetClient(ctx context.Context, id ledger.ClientID) (*ledger.Client, error) {
	return c.getClient(ctx, "id = $1", int64(id))
}

func (c *conn) GetClientByCPF(ctx context.Context, cpf string) (*ledger.Client, error) {
	return c.getClient(ctx, "cpf = $1", cpf)
}

func (c *conn) getClient(ctx context.Context, where string, arg any) (*ledger.Client, error) {
	var (
		client ledger.Client
		id     int64
	)
	err := c.q.QueryRow(ctx,
		`SELECT id, cpf, name, birth_date, created_at FROM clients WHERE `+where, arg,
	).Scan(&id, &client.CPF, &client.Name, &client.BirthDate, &client.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	client.ID = ledger.ClientID(id)
	return &client, nil
}

func (c *conn) DeleteClient(ctx context.Context, id ledger.ClientID) error {
	_, err := c.q.Exec(ctx, `DELETE FROM clients WHERE id = $1`, int64(id))
	if err != nil {
		if _, ok := violation(err, foreignKeyViolation); ok {
			return ledger.ErrClientHasAccounts
		}
		return fmt.Errorf("failed to delete client: %w", err)
	}
	return nil
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (c *conn) CreateAccount(ctx context.Context, a *ledger.Account) error {
	var id int64
	err := c.q.QueryRow(ctx, `
		INSERT INTO accounts (number, branch, balance, daily_limit, blocked, client_id, created_at)
		VALUES ($1, $2, $3::text::numeric, $4::text::numeric, $5, $6, $7)
		RETURNING id
	`,
		a.Number,
		a.Branch,
		a.Balance.String(),
		a.DailyLimit.String(),
		a.Blocked,
		int64(a.ClientID),
		a.CreatedAt,
	).Scan(&id)
	if err != nil {
		if constraint, ok := violation(err, uniqueViolation); ok && constraint == "accounts_number_key" {
			return ledger.ErrDuplicateAccountNumber
		}
		if _, ok := violation(err, foreignKeyViolation); ok {
			return ledger.ErrClientNotFound
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	a.ID = ledger.AccountID(id)
	return nil
}

const accountColumns = `id, number, branch, balance::text, daily_limit::text, blocked, client_id, created_at`

func (c *conn) GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	return c.getAccount(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

// GetAccountForUpdate locks the row until the enclosing transaction ends.
func (c *conn) GetAccountForUpdate(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	return c.getAccount(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
}

func (c *conn) getAccount(ctx context.Context, query string, id ledger.AccountID) (*ledger.Account, error) {
	a, err := scanAccount(c.q.QueryRow(ctx, query, int64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *conn) AccountNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := c.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE number = $1)`, number).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check account number: %w", err)
	}
	return exists, nil
}

func (c *conn) UpdateAccount(ctx context.Context, a ledger.Account) error {
	tag, err := c.q.Exec(ctx, `
		UPDATE accounts
		SET balance = $1::text::numeric, daily_limit = $2::text::numeric, blocked = $3
		WHERE id = $4
	`, a.Balance.String(), a.DailyLimit.String(), a.Blocked, int64(a.ID))
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

func (c *conn) DeleteAccount(ctx context.Context, id ledger.AccountID) error {
	if _, err := c.q.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, int64(id)); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}

func (c *conn) ListAccountsByClient(ctx context.Context, clientID ledger.ClientID) ([]ledger.Account, error) {
	rows, err := c.q.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE client_id = $1 ORDER BY id`, int64(clientID))
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

func (c *conn) CountAccountsByClient(ctx context.Context, clientID ledger.ClientID) (int, error) {
	return c.count(ctx, `SELECT COUNT(*) FROM accounts WHERE client_id = $1`, int64(clientID))
}

func scanAccount(row pgx.Row) (ledger.Account, error) {
	var (
		a          ledger.Account
		id         int64
		clientID   int64
		balance    string
		dailyLimit string
	)
	err := row.Scan(&id, &a.Number, &a.Branch, &balance, &dailyLimit, &a.Blocked, &clientID, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return a, err
	}
	if err != nil {
		return a, fmt.Errorf("failed to scan account: %w", err)
	}
	a.ID = ledger.AccountID(id)
	a.ClientID = ledger.ClientID(clientID)

	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return a, fmt.Errorf("invalid balance %q: %w", balance, err)
	}
	if a.DailyLimit, err = decimal.NewFromString(dailyLimit); err != nil {
		return a, fmt.Errorf("invalid daily limit %q: %w", dailyLimit, err)
	}
	return a, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (c *conn) AppendTransaction(ctx context.Context, tx ledger.Transaction) error {
	_, err := c.q.Exec(ctx, `
		INSERT INTO transactions (id, account_id, amount, kind, created_at)
		VALUES ($1::text::uuid, $2, $3::text::numeric, $4, $5)
	`, string(tx.ID), int64(tx.AccountID), tx.Amount.String(), string(tx.Kind), tx.Timestamp)
	if err != nil {
		if _, ok := violation(err, foreignKeyViolation); ok {
			return ledger.ErrAccountNotFound
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func (c *conn) TransactionsInRange(ctx context.Context, accountID ledger.AccountID, from, to time.Time) ([]ledger.Transaction, error) {
	rows, err := c.q.Query(ctx, `
		SELECT id::text, account_id, amount::text, kind, created_at
		FROM transactions
		WHERE account_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at, seq
	`, int64(accountID), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []ledger.Transaction
	for rows.Next() {
		var (
			tx        ledger.Transaction
			id        string
			accountID int64
			amount    string
			kind      string
		)
		if err := rows.Scan(&id, &accountID, &amount, &kind, &tx.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.ID = ledger.TransactionID(id)
		tx.AccountID = ledger.AccountID(accountID)
		tx.Kind = ledger.Kind(kind)
		if tx.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

func (c *conn) CountTransactions(ctx context.Context, accountID ledger.AccountID) (int, error) {
	return c.count(ctx, `SELECT COUNT(*) FROM transactions WHERE account_id = $1`, int64(accountID))
}

func (c *conn) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int64
	if err := c.q.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return int(n), nil
}

// violation reports whether err is a PostgreSQL error with the given code,
// and returns the violated constraint name.
func violation(err error, code string) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == code {
		return pgErr.ConstraintName, true
	}
	return "", false
}
