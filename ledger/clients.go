package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ClientRegistry registers and removes clients.
type ClientRegistry struct {
	store TxStore
	clock Clock
}

// NewClientRegistry creates a registry. A nil clock means SystemClock.
func NewClientRegistry(store TxStore, clock Clock) *ClientRegistry {
	if clock == nil {
		clock = SystemClock
	}
	return &ClientRegistry{store: store, clock: clock}
}

// CreateClient validates and stores a new client. The CPF must be valid and
// not yet registered, the name non-blank and the birth date present.
func (r *ClientRegistry) CreateClient(ctx context.Context, in NewClient) (*Client, error) {
	if err := ValidateCPF(in.CPF); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, ErrInvalidName
	}
	if in.BirthDate.IsZero() {
		return nil, ErrInvalidBirthDate
	}

	client := Client{
		CPF:       in.CPF,
		Name:      in.Name,
		BirthDate: dateOnly(in.BirthDate),
		CreatedAt: r.clock().Truncate(timestampPrecision),
	}

	err := r.store.WithTx(ctx, func(s Store) error {
		existing, err := s.GetClientByCPF(ctx, in.CPF)
		if err != nil {
			return fmt.Errorf("looking up cpf: %w", err)
		}
		if existing != nil {
			return ErrDuplicateCPF
		}
		return s.CreateClient(ctx, &client)
	})
	if err != nil {
		return nil, err
	}
	return &client, nil
}

// GetClient returns a client by id.
func (r *ClientRegistry) GetClient(ctx context.Context, id ClientID) (*Client, error) {
	c, err := r.store.GetClient(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading client %d: %w", id, err)
	}
	if c == nil {
		return nil, ErrClientNotFound
	}
	return c, nil
}

// RemoveClient deletes a client that owns no accounts.
func (r *ClientRegistry) RemoveClient(ctx context.Context, id ClientID) error {
	return r.store.WithTx(ctx, func(s Store) error {
		c, err := s.GetClient(ctx, id)
		if err != nil {
			return fmt.Errorf("loading client %d: %w", id, err)
		}
		if c == nil {
			return ErrClientNotFound
		}

		n, err := s.CountAccountsByClient(ctx, id)
		if err != nil {
			return fmt.Errorf("counting accounts: %w", err)
		}
		if n > 0 {
			return ErrClientHasAccounts
		}
		return s.DeleteClient(ctx, id)
	})
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
