// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/conta-online/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements ledger.TxStore in process memory.
// WithTx holds the write lock for the whole callback, so every transaction
// is serialized and rolled back from a snapshot on error.
type Memory struct {
	mu    sync.RWMutex
	state memoryState
}

type memoryState struct {
	clients       map[ledger.ClientID]ledger.Client
	accounts      map[ledger.AccountID]ledger.Account
	transactions  map[ledger.AccountID][]ledger.Transaction
	nextClientID  ledger.ClientID
	nextAccountID ledger.AccountID
}

func NewMemory() *Memory {
	return &Memory{state: newMemoryState()}
}

func newMemoryState() memoryState {
	return memoryState{
		clients:      make(map[ledger.ClientID]ledger.Client),
		accounts:     make(map[ledger.AccountID]ledger.Account),
		transactions: make(map[ledger.AccountID][]ledger.Transaction),
	}
}

// Reset clears all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = newMemoryState()
	return nil
}

// Ping always succeeds.
func (m *Memory) Ping(_ context.Context) error { return nil }

// =============================================================================
// CLIENTS
// =============================================================================

func (m *Memory) CreateClient(_ context.Context, c *ledger.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.createClient(c)
}

func (m *Memory) GetClient(_ context.Context, id ledger.ClientID) (*ledger.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getClient(id), nil
}

func (m *Memory) GetClientByCPF(_ context.Context, cpf string) (*ledger.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getClientByCPF(cpf), nil
}

func (m *Memory) DeleteClient(_ context.Context, id ledger.ClientID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.deleteClient(id)
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (m *Memory) CreateAccount(_ context.Context, a *ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.createAccount(a)
}

func (m *Memory) GetAccount(_ context.Context, id ledger.AccountID) (*ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getAccount(id), nil
}

// GetAccountForUpdate outside WithTx is a plain read.
func (m *Memory) GetAccountForUpdate(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	return m.GetAccount(ctx, id)
}

func (m *Memory) AccountNumberExists(_ context.Context, number string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.accountNumberExists(number), nil
}

func (m *Memory) UpdateAccount(_ context.Context, a ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.updateAccount(a)
}

func (m *Memory) DeleteAccount(_ context.Context, id ledger.AccountID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.deleteAccount(id)
}

func (m *Memory) ListAccountsByClient(_ context.Context, clientID ledger.ClientID) ([]ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.listAccountsByClient(clientID), nil
}

func (m *Memory) CountAccountsByClient(_ context.Context, clientID ledger.ClientID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.state.listAccountsByClient(clientID)), nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (m *Memory) AppendTransaction(_ context.Context, tx ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.appendTransaction(tx)
}

func (m *Memory) TransactionsInRange(_ context.Context, accountID ledger.AccountID, from, to time.Time) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.transactionsInRange(accountID, from, to), nil
}

func (m *Memory) CountTransactions(_ context.Context, accountID ledger.AccountID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.state.transactions[accountID]), nil
}

// =============================================================================
// TRANSACTIONAL VIEW
// =============================================================================

// WithTx executes fn within a transaction.
// Simulated with a snapshot, restored when fn fails or panics.
func (m *Memory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	defer func() {
		if p := recover(); p != nil {
			m.state = snapshot
			panic(p)
		}
	}()

	if err := fn(&txMemoryView{state: &m.state}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

// txMemoryView runs on state while the parent's write lock is held.
type txMemoryView struct {
	state *memoryState
}

func (v *txMemoryView) CreateClient(_ context.Context, c *ledger.Client) error {
	return v.state.createClient(c)
}

func (v *txMemoryView) GetClient(_ context.Context, id ledger.ClientID) (*ledger.Client, error) {
	return v.state.getClient(id), nil
}

func (v *txMemoryView) GetClientByCPF(_ context.Context, cpf string) (*ledger.Client, error) {
	return v.state.getClientByCPF(cpf), nil
}

func (v *txMemoryView) DeleteClient(_ context.Context, id ledger.ClientID) error {
	return v.state.deleteClient(id)
}

func (v *txMemoryView) CreateAccount(_ context.Context, a *ledger.Account) error {
	return v.state.createAccount(a)
}

func (v *txMemoryView) GetAccount(_ context.Context, id ledger.AccountID) (*ledger.Account, error) {
	return v.state.getAccount(id), nil
}

func (v *txMemoryView) GetAccountForUpdate(_ context.Context, id ledger.AccountID) (*ledger.Account, error) {
	return v.state.getAccount(id), nil
}

func (v *txMemoryView) AccountNumberExists(_ context.Context, number string) (bool, error) {
	return v.state.accountNumberExists(number), nil
}

func (v *txMemoryView) UpdateAccount(_ context.Context, a ledger.Account) error {
	return v.state.updateAccount(a)
}

func (v *txMemoryView) DeleteAccount(_ context.Context, id ledger.AccountID) error {
	return v.state.deleteAccount(id)
}

func (v *txMemoryView) ListAccountsByClient(_ context.Context, clientID ledger.ClientID) ([]ledger.Account, error) {
	return v.state.listAccountsByClient(clientID), nil
}

func (v *txMemoryView) CountAccountsByClient(_ context.Context, clientID ledger.ClientID) (int, error) {
	return len(v.state.listAccountsByClient(clientID)), nil
}

func (v *txMemoryView) AppendTransaction(_ context.Context, tx ledger.Transaction) error {
	return v.state.appendTransaction(tx)
}

func (v *txMemoryView) TransactionsInRange(_ context.Context, accountID ledger.AccountID, from, to time.Time) ([]ledger.Transaction, error) {
	return v.state.transactionsInRange(accountID, from, to), nil
}

func (v *txMemoryView) CountTransactions(_ context.Context, accountID ledger.AccountID) (int, error) {
	return len(v.state.transactions[accountID]), nil
}

// =============================================================================
// STATE (callers hold the lock)
// =============================================================================

func (s *memoryState) clone() memoryState {
	c := memoryState{
		clients:       make(map[ledger.ClientID]ledger.Client, len(s.clients)),
		accounts:      make(map[ledger.AccountID]ledger.Account, len(s.accounts)),
		transactions:  make(map[ledger.AccountID][]ledger.Transaction, len(s.transactions)),
		nextClientID:  s.nextClientID,
		nextAccountID: s.nextAccountID,
	}
	for k, v := range s.clients {
		c.clients[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = append([]ledger.Transaction{}, v...)
	}
	return c
}

func (s *memoryState) createClient(c *ledger.Client) error {
	if s.getClientByCPF(c.CPF) != nil {
		return ledger.ErrDuplicateCPF
	}
	s.nextClientID++
	c.ID = s.nextClientID
	s.clients[c.ID] = *c
	return nil
}

func (s *memoryState) getClient(id ledger.ClientID) *ledger.Client {
	c, ok := s.clients[id]
	if !ok {
		return nil
	}
	return &c
}

func (s *memoryState) getClientByCPF(cpf string) *ledger.Client {
	for _, c := range s.clients {
		if c.CPF == cpf {
			return &c
		}
	}
	return nil
}

func (s *memoryState) deleteClient(id ledger.ClientID) error {
	if len(s.listAccountsByClient(id)) > 0 {
		return ledger.ErrClientHasAccounts
	}
	delete(s.clients, id)
	return nil
}

func (s *memoryState) createAccount(a *ledger.Account) error {
	if _, ok := s.clients[a.ClientID]; !ok {
		return ledger.ErrClientNotFound
	}
	if s.accountNumberExists(a.Number) {
		return ledger.ErrDuplicateAccountNumber
	}
	s.nextAccountID++
	a.ID = s.nextAccountID
	s.accounts[a.ID] = *a
	return nil
}

func (s *memoryState) getAccount(id ledger.AccountID) *ledger.Account {
	a, ok := s.accounts[id]
	if !ok {
		return nil
	}
	return &a
}

func (s *memoryState) accountNumberExists(number string) bool {
	for _, a := range s.accounts {
		if a.Number == number {
			return true
		}
	}
	return false
}

func (s *memoryState) updateAccount(a ledger.Account) error {
	existing, ok := s.accounts[a.ID]
	if !ok {
		return ledger.ErrAccountNotFound
	}
	existing.Balance = a.Balance
	existing.DailyLimit = a.DailyLimit
	existing.Blocked = a.Blocked
	s.accounts[a.ID] = existing
	return nil
}

func (s *memoryState) deleteAccount(id ledger.AccountID) error {
	delete(s.accounts, id)
	delete(s.transactions, id)
	return nil
}

func (s *memoryState) listAccountsByClient(clientID ledger.ClientID) []ledger.Account {
	var result []ledger.Account
	for _, a := range s.accounts {
		if a.ClientID == clientID {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (s *memoryState) appendTransaction(tx ledger.Transaction) error {
	if _, ok := s.accounts[tx.AccountID]; !ok {
		return ledger.ErrAccountNotFound
	}
	txs := s.transactions[tx.AccountID]

	// Keep chronological order; equal timestamps stay in insertion order.
	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].Timestamp.After(tx.Timestamp)
	})
	txs = append(txs, ledger.Transaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	s.transactions[tx.AccountID] = txs
	return nil
}

func (s *memoryState) transactionsInRange(accountID ledger.AccountID, from, to time.Time) []ledger.Transaction {
	var result []ledger.Transaction
	for _, tx := range s.transactions[accountID] {
		if !tx.Timestamp.Before(from) && !tx.Timestamp.After(to) {
			result = append(result, tx)
		}
	}
	return result
}
