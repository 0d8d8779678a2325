/*
Package ledger provides the core banking ledger: clients, accounts and the
transactions that move money in and out of them.

PURPOSE:
  Enforces the account/transaction consistency rules synchronously within a
  single call: a balance change is always recorded by exactly one immutable
  transaction, both written in the same store transaction.

KEY CONCEPTS IN THIS FILE (types.go):
  - Client: the natural person who owns accounts (identified by CPF)
  - Account: a single balance owned by exactly one client
  - Transaction: an immutable DEPOSIT or WITHDRAWAL against one account

DESIGN PRINCIPLES:
  1. Precision: money is decimal.Decimal, never float64
  2. One-directional ownership: Account.ClientID and Transaction.AccountID
     reference their owner; there are no object cycles
  3. Immutability: transactions are appended, never edited

SEE ALSO:
  - engine.go: deposits, withdrawals and period queries
  - accounts.go: account creation, blocking and deletion
  - clients.go: client registration and removal
  - store.go: persistence interfaces
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ClientID int64
type AccountID int64
type TransactionID string

// =============================================================================
// CLIENT
// =============================================================================

// Client is the account holder.
type Client struct {
	ID        ClientID
	CPF       string
	Name      string
	BirthDate time.Time
	CreatedAt time.Time
}

// NewClient carries the fields required to register a client.
type NewClient struct {
	CPF       string
	Name      string
	BirthDate time.Time
}

// =============================================================================
// ACCOUNT
// =============================================================================

// Account is a single ledger balance owned by one client.
// Balance is only ever changed together with a Transaction.
type Account struct {
	ID         AccountID
	Number     string
	Branch     string
	Balance    decimal.Decimal
	DailyLimit decimal.Decimal
	Blocked    bool
	ClientID   ClientID
	CreatedAt  time.Time
}

// =============================================================================
// TRANSACTION
// =============================================================================

// Kind distinguishes deposits from withdrawals.
type Kind string

const (
	KindDeposit    Kind = "DEPOSIT"
	KindWithdrawal Kind = "WITHDRAWAL"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindDeposit || k == KindWithdrawal
}

// Transaction is an immutable record of one balance change.
type Transaction struct {
	ID        TransactionID
	AccountID AccountID
	Amount    decimal.Decimal
	Kind      Kind
	Timestamp time.Time
}

// Signed returns the amount with the sign it applies to the balance.
func (t Transaction) Signed() decimal.Decimal {
	if t.Kind == KindWithdrawal {
		return t.Amount.Neg()
	}
	return t.Amount
}

// SumSigned replays txs from zero. For any account this equals its balance.
func SumSigned(txs []Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Signed())
	}
	return total
}

// SumKind adds the amounts of all transactions of the given kind.
func SumKind(txs []Transaction, kind Kind) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		if tx.Kind == kind {
			total = total.Add(tx.Amount)
		}
	}
	return total
}
