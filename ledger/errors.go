/*
errors.go - Centralized error types for the ledger

PURPOSE:
  All error types in one place for consistency and discoverability.
  The API layer maps each category to a fixed HTTP status.

ERROR CATEGORIES:
  1. Not found   - client or account does not exist
  2. Conflict    - duplicate CPF, entity still has dependents, repeated block
  3. Forbidden   - operation on a blocked account
  4. Bad request - invalid CPF/name/birth date/amount/period, balance or limit

USAGE:
  if errors.Is(err, ledger.ErrAccountBlocked) { ... }

  var limitErr *ledger.WithdrawalLimitError
  if errors.As(err, &limitErr) {
      fmt.Println(limitErr.WithdrawnToday)
  }

SEE ALSO:
  - api/errors.go: error to HTTP status translation
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// Not found.
	ErrClientNotFound  = errors.New("client not found")
	ErrAccountNotFound = errors.New("account not found")

	// Conflict.
	ErrDuplicateCPF           = errors.New("cpf already registered")
	ErrDuplicateAccountNumber = errors.New("account number already in use")
	ErrClientHasAccounts      = errors.New("client has accounts and cannot be removed")
	ErrAccountHasTransactions = errors.New("account has transactions and cannot be deleted")
	ErrAccountAlreadyBlocked  = errors.New("account is already blocked")
	ErrAccountNotBlocked      = errors.New("account is not blocked")

	// Forbidden.
	ErrAccountBlocked = errors.New("account is blocked")

	// Bad request.
	ErrInvalidCPF              = errors.New("invalid cpf")
	ErrInvalidName             = errors.New("name must not be blank")
	ErrInvalidBirthDate        = errors.New("birth date is required")
	ErrInvalidAmount           = errors.New("amount must be greater than zero")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrWithdrawalLimitExceeded = errors.New("daily withdrawal limit exceeded")
	ErrInvalidPeriod           = errors.New("invalid period: start after end")

	// ErrAccountNumberExhausted is returned when a capped generator runs out of attempts.
	ErrAccountNumberExhausted = errors.New("could not generate a unique account number")

	// ErrInvalidPolicy is returned when a Policy fails validation.
	ErrInvalidPolicy = errors.New("invalid policy")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// CPFError explains which validation rule a CPF failed.
type CPFError struct {
	CPF    string
	Reason string
}

func (e *CPFError) Error() string {
	return fmt.Sprintf("invalid cpf: %s", e.Reason)
}

func (e *CPFError) Unwrap() error {
	return ErrInvalidCPF
}

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	AccountID AccountID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s",
		e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// WithdrawalLimitError reports how a withdrawal would break the daily limit.
type WithdrawalLimitError struct {
	AccountID      AccountID
	Limit          decimal.Decimal
	WithdrawnToday decimal.Decimal
	Requested      decimal.Decimal
}

func (e *WithdrawalLimitError) Error() string {
	return fmt.Sprintf("daily withdrawal limit exceeded: limit %s, withdrawn today %s, requested %s",
		e.Limit, e.WithdrawnToday, e.Requested)
}

func (e *WithdrawalLimitError) Unwrap() error {
	return ErrWithdrawalLimitExceeded
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing client or account.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrAccountNotFound)
}

// IsConflict returns true if the error is a state conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateCPF) ||
		errors.Is(err, ErrDuplicateAccountNumber) ||
		errors.Is(err, ErrClientHasAccounts) ||
		errors.Is(err, ErrAccountHasTransactions) ||
		errors.Is(err, ErrAccountAlreadyBlocked) ||
		errors.Is(err, ErrAccountNotBlocked)
}

// IsForbidden returns true if the operation is not allowed in the account's state.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrAccountBlocked)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidCPF) ||
		errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrInvalidBirthDate) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrWithdrawalLimitExceeded) ||
		errors.Is(err, ErrInvalidPeriod)
}
