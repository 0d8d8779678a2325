package ledger

import (
	"context"
	"fmt"
	"math/rand/v2"
)

// accountNumberSpace is the exclusive upper bound of account numbers (8 digits).
const accountNumberSpace = 100_000_000

// RandomSource yields integers in [0, n). *rand.Rand from math/rand/v2
// satisfies it; tests inject fixed sequences.
type RandomSource interface {
	IntN(n int) int
}

// NumberExists reports whether an account number is already taken.
type NumberExists func(ctx context.Context, number string) (bool, error)

// AccountNumberGenerator draws random 8-digit account numbers until one is free.
//
// MaxAttempts == 0 retries without bound. The chance of a collision is low
// enough that the loop normally ends on the first draw; a positive value
// caps the loop and returns ErrAccountNumberExhausted instead.
type AccountNumberGenerator struct {
	Random      RandomSource
	MaxAttempts int
}

// sharedRandom draws from the math/rand/v2 global source, which is safe
// for concurrent use.
type sharedRandom struct{}

func (sharedRandom) IntN(n int) int { return rand.IntN(n) }

// NewAccountNumberGenerator uses r, or the shared global source when r is nil.
// A non-nil r must be safe for concurrent use if the generator is shared.
func NewAccountNumberGenerator(r RandomSource) *AccountNumberGenerator {
	if r == nil {
		r = sharedRandom{}
	}
	return &AccountNumberGenerator{Random: r}
}

// Generate returns a zero-padded number for which exists reported false.
func (g *AccountNumberGenerator) Generate(ctx context.Context, exists NumberExists) (string, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		candidate := fmt.Sprintf("%08d", g.Random.IntN(accountNumberSpace))
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("checking account number: %w", err)
		}
		if !taken {
			return candidate, nil
		}

		if g.MaxAttempts > 0 && attempt >= g.MaxAttempts {
			return "", fmt.Errorf("%w after %d attempts", ErrAccountNumberExhausted, attempt)
		}
	}
}
