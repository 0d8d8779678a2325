/*
policy.go - Business rule switches for the ledger

PURPOSE:
  The rules of this ledger evolved over time and the older variants are
  still useful in some deployments. Rather than guess, each divergence is a
  Policy field. DefaultPolicy() is the strict, later behavior.

VARIANTS:
  LimitMode:
    cumulative      today's withdrawals + this one must stay <= limit (default)
    per_withdrawal  only this withdrawal is compared against the limit

  RejectRepeatedBlock:
    true   blocking a blocked account is a conflict (default)
    false  it is a no-op (same for unblocking an active account)

  AllowDeleteWithHistory:
    false  accounts with transactions cannot be deleted (default)
    true   deleting cascades the account's transactions

  AccountNumberMaxAttempts:
    0      retry account number generation without bound (default)
    n > 0  give up after n collisions

SEE ALSO:
  - factory/policy.go: loading a Policy from JSON
*/
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LimitMode selects how the daily withdrawal limit is applied.
type LimitMode string

const (
	LimitCumulative    LimitMode = "cumulative"
	LimitPerWithdrawal LimitMode = "per_withdrawal"
)

const (
	// DefaultBranch is the branch code assigned to every new account.
	DefaultBranch = "1234"
)

// DefaultDailyLimit is the withdrawal limit assigned to new accounts.
var DefaultDailyLimit = decimal.NewFromInt(1000)

// Policy configures the ledger's business rules.
type Policy struct {
	Branch                   string
	DefaultDailyLimit        decimal.Decimal
	LimitMode                LimitMode
	RejectRepeatedBlock      bool
	AllowDeleteWithHistory   bool
	AccountNumberMaxAttempts int
}

// DefaultPolicy returns the strict rule set.
func DefaultPolicy() Policy {
	return Policy{
		Branch:              DefaultBranch,
		DefaultDailyLimit:   DefaultDailyLimit,
		LimitMode:           LimitCumulative,
		RejectRepeatedBlock: true,
	}
}

// Validate checks that the policy is usable.
func (p Policy) Validate() error {
	if p.Branch == "" {
		return fmt.Errorf("%w: branch is required", ErrInvalidPolicy)
	}
	if p.DefaultDailyLimit.IsNegative() {
		return fmt.Errorf("%w: default daily limit must not be negative", ErrInvalidPolicy)
	}
	switch p.LimitMode {
	case LimitCumulative, LimitPerWithdrawal:
	default:
		return fmt.Errorf("%w: unknown limit mode %q", ErrInvalidPolicy, p.LimitMode)
	}
	if p.AccountNumberMaxAttempts < 0 {
		return fmt.Errorf("%w: account number max attempts must not be negative", ErrInvalidPolicy)
	}
	return nil
}

// exceedsLimit applies the limit mode to a prospective withdrawal.
func (p Policy) exceedsLimit(limit, withdrawnToday, amount decimal.Decimal) bool {
	if p.LimitMode == LimitPerWithdrawal {
		return amount.GreaterThan(limit)
	}
	return withdrawnToday.Add(amount).GreaterThan(limit)
}
