/*
engine.go - Deposits, withdrawals and transaction history

PURPOSE:
  The Engine is the only code that moves money. Each operation loads the
  account, checks the rules in memory, appends one transaction and writes
  the new balance, all inside a single store transaction.

CRITICAL INVARIANTS:
  1. balance == sum(deposits) - sum(withdrawals), always
  2. blocked accounts accept no transactions
  3. today's withdrawals (local midnight to midnight) never exceed the limit
  4. balance never goes negative

CHECK ORDER (first failure wins):
  Deposit:  not found -> blocked -> amount <= 0
  Withdraw: not found -> blocked -> amount <= 0 -> balance -> daily limit

CONCURRENCY:
  The account is read with GetAccountForUpdate inside WithTx, so two
  withdrawals on the same account are serialized and the second one sees
  the first one's balance and transaction.

SEE ALSO:
  - policy.go: LimitMode
  - store.go: TxStore contract
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Engine applies deposits and withdrawals.
type Engine struct {
	store  TxStore
	policy Policy
	clock  Clock
}

// NewEngine creates an engine. A nil clock means SystemClock.
func NewEngine(store TxStore, policy Policy, clock Clock) *Engine {
	if clock == nil {
		clock = SystemClock
	}
	return &Engine{store: store, policy: policy, clock: clock}
}

// Deposit adds amount to the account and records a DEPOSIT transaction.
// It returns the refreshed account and the new transaction.
func (e *Engine) Deposit(ctx context.Context, accountID AccountID, amount decimal.Decimal) (*Account, *Transaction, error) {
	return e.apply(ctx, accountID, amount, KindDeposit)
}

// Withdraw subtracts amount from the account and records a WITHDRAWAL.
func (e *Engine) Withdraw(ctx context.Context, accountID AccountID, amount decimal.Decimal) (*Account, *Transaction, error) {
	return e.apply(ctx, accountID, amount, KindWithdrawal)
}

func (e *Engine) apply(ctx context.Context, accountID AccountID, amount decimal.Decimal, kind Kind) (*Account, *Transaction, error) {
	var (
		account *Account
		tx      Transaction
	)

	err := e.store.WithTx(ctx, func(s Store) error {
		acct, err := s.GetAccountForUpdate(ctx, accountID)
		if err != nil {
			return fmt.Errorf("loading account %d: %w", accountID, err)
		}
		if acct == nil {
			return ErrAccountNotFound
		}
		if acct.Blocked {
			return ErrAccountBlocked
		}
		if !amount.IsPositive() {
			return ErrInvalidAmount
		}

		now := e.clock().Truncate(timestampPrecision)

		if kind == KindWithdrawal {
			if err := e.checkWithdrawal(ctx, s, acct, amount, now); err != nil {
				return err
			}
		}

		tx = Transaction{
			ID:        TransactionID(uuid.NewString()),
			AccountID: acct.ID,
			Amount:    amount,
			Kind:      kind,
			Timestamp: now,
		}
		if err := s.AppendTransaction(ctx, tx); err != nil {
			return fmt.Errorf("recording transaction: %w", err)
		}

		acct.Balance = acct.Balance.Add(tx.Signed())
		if err := s.UpdateAccount(ctx, *acct); err != nil {
			return fmt.Errorf("updating balance: %w", err)
		}

		account, err = s.GetAccount(ctx, acct.ID)
		if err != nil {
			return fmt.Errorf("reloading account %d: %w", acct.ID, err)
		}
		if account == nil {
			return ErrAccountNotFound
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return account, &tx, nil
}

// checkWithdrawal enforces balance sufficiency and the daily limit.
func (e *Engine) checkWithdrawal(ctx context.Context, s Store, acct *Account, amount decimal.Decimal, now time.Time) error {
	if acct.Balance.LessThan(amount) {
		return &InsufficientBalanceError{
			AccountID: acct.ID,
			Available: acct.Balance,
			Requested: amount,
		}
	}

	withdrawn, err := withdrawnOn(ctx, s, acct.ID, now)
	if err != nil {
		return err
	}
	if e.policy.exceedsLimit(acct.DailyLimit, withdrawn, amount) {
		return &WithdrawalLimitError{
			AccountID:      acct.ID,
			Limit:          acct.DailyLimit,
			WithdrawnToday: withdrawn,
			Requested:      amount,
		}
	}
	return nil
}

// withdrawnOn sums WITHDRAWAL amounts within the calendar day of t.
func withdrawnOn(ctx context.Context, s TransactionStore, accountID AccountID, t time.Time) (decimal.Decimal, error) {
	start, end := DayBounds(t)
	txs, err := s.TransactionsInRange(ctx, accountID, start, end)
	if err != nil {
		return decimal.Zero, fmt.Errorf("loading today's transactions: %w", err)
	}
	return SumKind(txs, KindWithdrawal), nil
}

// TransactionsByPeriod returns the account's transactions with start <= timestamp <= end.
func (e *Engine) TransactionsByPeriod(ctx context.Context, accountID AccountID, start, end time.Time) ([]Transaction, error) {
	acct, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("loading account %d: %w", accountID, err)
	}
	if acct == nil {
		return nil, ErrAccountNotFound
	}
	if start.After(end) {
		return nil, ErrInvalidPeriod
	}

	txs, err := e.store.TransactionsInRange(ctx, accountID, start, end)
	if err != nil {
		return nil, fmt.Errorf("loading transactions: %w", err)
	}
	if txs == nil {
		txs = []Transaction{}
	}
	return txs, nil
}

// WithdrawnToday returns today's withdrawal total for an account.
func (e *Engine) WithdrawnToday(ctx context.Context, accountID AccountID) (decimal.Decimal, error) {
	acct, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("loading account %d: %w", accountID, err)
	}
	if acct == nil {
		return decimal.Zero, ErrAccountNotFound
	}
	return withdrawnOn(ctx, e.store, accountID, e.clock())
}
