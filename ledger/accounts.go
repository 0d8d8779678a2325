/*
accounts.go - Account lifecycle

PURPOSE:
  Opens accounts for existing clients, blocks and unblocks them, and
  deletes them when the guards allow it.

STATE MACHINE:
  Active  --block-->   Blocked
  Blocked --unblock--> Active
  Active permits deposit/withdraw; Blocked permits neither.

  Delete is refused while Blocked, and (unless AllowDeleteWithHistory)
  while the account has any transaction.

SEE ALSO:
  - accountnumber.go: unique account number generation
  - policy.go: RejectRepeatedBlock, AllowDeleteWithHistory
*/
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// AccountLifecycle creates, blocks, unblocks and deletes accounts.
type AccountLifecycle struct {
	store   TxStore
	policy  Policy
	numbers *AccountNumberGenerator
	clock   Clock
}

// NewAccountLifecycle wires the lifecycle. A nil generator gets a default one
// capped by policy.AccountNumberMaxAttempts; a nil clock means SystemClock.
func NewAccountLifecycle(store TxStore, policy Policy, numbers *AccountNumberGenerator, clock Clock) *AccountLifecycle {
	if numbers == nil {
		numbers = NewAccountNumberGenerator(nil)
		numbers.MaxAttempts = policy.AccountNumberMaxAttempts
	}
	if clock == nil {
		clock = SystemClock
	}
	return &AccountLifecycle{store: store, policy: policy, numbers: numbers, clock: clock}
}

// CreateAccount opens an account for the client identified by cpf.
func (l *AccountLifecycle) CreateAccount(ctx context.Context, cpf string) (*Account, error) {
	for {
		account, err := l.createAccount(ctx, cpf)
		// Another writer took the number between the check and the insert.
		if errors.Is(err, ErrDuplicateAccountNumber) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		return account, err
	}
}

func (l *AccountLifecycle) createAccount(ctx context.Context, cpf string) (*Account, error) {
	var account Account
	err := l.store.WithTx(ctx, func(s Store) error {
		client, err := s.GetClientByCPF(ctx, cpf)
		if err != nil {
			return fmt.Errorf("looking up client: %w", err)
		}
		if client == nil {
			return ErrClientNotFound
		}

		number, err := l.numbers.Generate(ctx, s.AccountNumberExists)
		if err != nil {
			return err
		}

		account = Account{
			Number:     number,
			Branch:     l.policy.Branch,
			Balance:    decimal.Zero,
			DailyLimit: l.policy.DefaultDailyLimit,
			Blocked:    false,
			ClientID:   client.ID,
			CreatedAt:  l.clock().Truncate(timestampPrecision),
		}
		return s.CreateAccount(ctx, &account)
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccount returns an account by id.
func (l *AccountLifecycle) GetAccount(ctx context.Context, id AccountID) (*Account, error) {
	acct, err := l.store.GetAccount(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading account %d: %w", id, err)
	}
	if acct == nil {
		return nil, ErrAccountNotFound
	}
	return acct, nil
}

// Balance returns the current balance of an account.
func (l *AccountLifecycle) Balance(ctx context.Context, id AccountID) (decimal.Decimal, error) {
	acct, err := l.GetAccount(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.Balance, nil
}

// ListClientAccounts returns every account owned by a client.
func (l *AccountLifecycle) ListClientAccounts(ctx context.Context, clientID ClientID) ([]Account, error) {
	client, err := l.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("loading client %d: %w", clientID, err)
	}
	if client == nil {
		return nil, ErrClientNotFound
	}
	accounts, err := l.store.ListAccountsByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	if accounts == nil {
		accounts = []Account{}
	}
	return accounts, nil
}

// BlockAccount forbids further transactions on the account.
func (l *AccountLifecycle) BlockAccount(ctx context.Context, id AccountID) error {
	return l.setBlocked(ctx, id, true)
}

// UnblockAccount allows transactions again.
func (l *AccountLifecycle) UnblockAccount(ctx context.Context, id AccountID) error {
	return l.setBlocked(ctx, id, false)
}

func (l *AccountLifecycle) setBlocked(ctx context.Context, id AccountID, blocked bool) error {
	return l.store.WithTx(ctx, func(s Store) error {
		acct, err := s.GetAccountForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("loading account %d: %w", id, err)
		}
		if acct == nil {
			return ErrAccountNotFound
		}

		if acct.Blocked == blocked {
			if !l.policy.RejectRepeatedBlock {
				return nil
			}
			if blocked {
				return ErrAccountAlreadyBlocked
			}
			return ErrAccountNotBlocked
		}

		acct.Blocked = blocked
		return s.UpdateAccount(ctx, *acct)
	})
}

// DeleteAccount removes an account that is not blocked and, under the
// strict policy, has no transactions.
func (l *AccountLifecycle) DeleteAccount(ctx context.Context, id AccountID) error {
	return l.store.WithTx(ctx, func(s Store) error {
		acct, err := s.GetAccountForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("loading account %d: %w", id, err)
		}
		if acct == nil {
			return ErrAccountNotFound
		}
		if acct.Blocked {
			return ErrAccountBlocked
		}

		if !l.policy.AllowDeleteWithHistory {
			n, err := s.CountTransactions(ctx, id)
			if err != nil {
				return fmt.Errorf("counting transactions: %w", err)
			}
			if n > 0 {
				return ErrAccountHasTransactions
			}
		}

		return s.DeleteAccount(ctx, id)
	})
}
