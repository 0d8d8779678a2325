/*
store.go - Persistence interfaces for clients, accounts and transactions

PURPOSE:
  Defines the boundary between ledger rules and the database. The ledger
  never talks SQL; it only finds, saves, deletes and range-queries through
  these interfaces.

KEY INTERFACES:
  ClientStore:      client rows, lookup by id and CPF
  AccountStore:     account rows, lookup by id and number, row locking
  TransactionStore: append-only transaction log with time range queries
  Store:            all of the above
  TxStore:          Store plus WithTx for atomic multi-row writes

NOT FOUND CONVENTION:
  Get* methods return (nil, nil) when the row does not exist. The ledger
  converts that into ErrClientNotFound / ErrAccountNotFound.

ATOMICITY AND LOCKING:
  Every balance change runs inside WithTx. Inside the callback the account
  is loaded with GetAccountForUpdate, which must serialize concurrent
  writers of the same account until the transaction ends:
  - memory store: WithTx holds the store write lock
  - sqlite:       BEGIN IMMEDIATE (single writer)
  - postgres:     SELECT ... FOR UPDATE

IMPLEMENTATIONS:
  - ledger/store/memory.go: in-memory, for tests and local runs
  - store/sqlite/sqlite.go: SQLite
  - store/postgres/postgres.go: PostgreSQL

SEE ALSO:
  - engine.go, accounts.go, clients.go: users of these interfaces
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// CLIENTS
// =============================================================================

// ClientStore persists clients.
type ClientStore interface {
	// CreateClient inserts c and assigns c.ID. Returns ErrDuplicateCPF on
	// a uniqueness violation.
	CreateClient(ctx context.Context, c *Client) error

	GetClient(ctx context.Context, id ClientID) (*Client, error)
	GetClientByCPF(ctx context.Context, cpf string) (*Client, error)
	DeleteClient(ctx context.Context, id ClientID) error
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// AccountStore persists accounts.
type AccountStore interface {
	// CreateAccount inserts a and assigns a.ID. Returns
	// ErrDuplicateAccountNumber on a uniqueness violation.
	CreateAccount(ctx context.Context, a *Account) error

	GetAccount(ctx context.Context, id AccountID) (*Account, error)

	// GetAccountForUpdate loads an account and locks it for the rest of
	// the enclosing WithTx.
	GetAccountForUpdate(ctx context.Context, id AccountID) (*Account, error)

	AccountNumberExists(ctx context.Context, number string) (bool, error)

	// UpdateAccount writes balance, daily limit and blocked flag.
	// Number, branch and owner are immutable.
	UpdateAccount(ctx context.Context, a Account) error

	// DeleteAccount removes the account and cascades its transactions.
	DeleteAccount(ctx context.Context, id AccountID) error

	ListAccountsByClient(ctx context.Context, clientID ClientID) ([]Account, error)
	CountAccountsByClient(ctx context.Context, clientID ClientID) (int, error)
}

// =============================================================================
// TRANSACTIONS - append-only
// =============================================================================

// TransactionStore persists transactions. There is no update.
type TransactionStore interface {
	AppendTransaction(ctx context.Context, tx Transaction) error

	// TransactionsInRange returns the account's transactions with
	// from <= Timestamp <= to, ordered by timestamp.
	TransactionsInRange(ctx context.Context, accountID AccountID, from, to time.Time) ([]Transaction, error)

	CountTransactions(ctx context.Context, accountID AccountID) (int, error)
}

// =============================================================================
// COMBINED
// =============================================================================

// Store is everything the ledger reads and writes.
type Store interface {
	ClientStore
	AccountStore
	TransactionStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
