/*
handlers.go - HTTP API handlers for the online banking ledger

PURPOSE:
  Exposes the ledger via REST API. Handles HTTP request/response, JSON
  serialization and validation, and delegates to the ledger services.

ENDPOINTS:
  Clients:
    POST   /api/clients                     Register client
    GET    /api/clients/{id}                Client details
    GET    /api/clients/{id}/accounts       Accounts owned by client
    DELETE /api/clients/{id}                Remove client (no accounts)

  Accounts:
    POST   /api/accounts                    Open account ({cpf} or ?cpf=)
    GET    /api/accounts/{id}               Account details
    GET    /api/accounts/{id}/balance       Current balance
    PUT    /api/accounts/{id}/deposit       Deposit {amount} (POST too)
    PUT    /api/accounts/{id}/withdraw      Withdraw {amount} (POST too)
    GET    /api/accounts/{id}/transactions  History in [start, end]
    POST   /api/accounts/{id}/block         Block
    POST   /api/accounts/{id}/unblock       Unblock
    DELETE /api/accounts/{id}               Delete

  Transactions:
    POST   /api/transactions/{accountId}/deposit?amount=
    POST   /api/transactions/{accountId}/withdraw?amount=
    GET    /api/transactions/{accountId}/period?start=&end=

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: persistence, also used for health checks and scenario resets
  - Clients, Accounts, Engine: the ledger services built on Store

REQUEST FLOW:
  1. Parse path and query parameters
  2. Decode and validate the body
  3. Call the ledger
  4. Serialize response
  5. Map errors (errors.go)

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Error to status mapping
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/conta-online/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the persistence the API needs: the ledger's TxStore plus
// maintenance operations.
type Store interface {
	ledger.TxStore
	Reset(ctx context.Context) error
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    Store
	Policy   ledger.Policy
	Clients  *ledger.ClientRegistry
	Accounts *ledger.AccountLifecycle
	Engine   *ledger.Engine
	Logger   *slog.Logger

	validate *validator.Validate

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the ledger services on store. A nil logger discards logs.
func NewHandler(store Store, policy ledger.Policy, logger *slog.Logger) *Handler {
	return NewHandlerWithClock(store, policy, logger, nil)
}

// NewHandlerWithClock is NewHandler with an injected clock.
func NewHandlerWithClock(store Store, policy ledger.Policy, logger *slog.Logger, clock ledger.Clock) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		Store:    store,
		Policy:   policy,
		Clients:  ledger.NewClientRegistry(store, clock),
		Accounts: ledger.NewAccountLifecycle(store, policy, nil, clock),
		Engine:   ledger.NewEngine(store, policy, clock),
		Logger:   logger,
		validate: newValidator(),
	}
}

// =============================================================================
// CLIENT HANDLERS
// =============================================================================

// CreateClient registers a client.
// POST /api/clients
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if !h.decode(w, r, &req) {
		return
	}

	birthDate, err := time.Parse(dateLayout, req.BirthDate)
	if err != nil {
		writeValidationError(w, map[string]string{"dataNascimento": "must be a date in YYYY-MM-DD format"})
		return
	}

	client, err := h.Clients.CreateClient(r.Context(), ledger.NewClient{
		CPF:       req.CPF,
		Name:      req.Name,
		BirthDate: birthDate,
	})
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	h.Logger.InfoContext(r.Context(), "client created", "client_id", client.ID)
	writeJSON(w, http.StatusCreated, toClientDTO(client))
}

// GetClient returns a client.
// GET /api/clients/{id}
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	client, err := h.Clients.GetClient(r.Context(), ledger.ClientID(id))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(client))
}

// ListClientAccounts returns the accounts of a client.
// GET /api/clients/{id}/accounts
func (h *Handler) ListClientAccounts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()

	accounts, err := h.Accounts.ListClientAccounts(ctx, ledger.ClientID(id))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	client, err := h.Clients.GetClient(ctx, ledger.ClientID(id))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	dtos := make([]AccountDTO, len(accounts))
	for i := range accounts {
		dtos[i] = toAccountDTO(&accounts[i], client)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// DeleteClient removes a client that owns no accounts.
// DELETE /api/clients/{id}
func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.Clients.RemoveClient(r.Context(), ledger.ClientID(id)); err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	h.Logger.InfoContext(r.Context(), "client removed", "client_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// CreateAccount opens an account for the client with the given CPF.
// POST /api/accounts
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if cpf := r.URL.Query().Get("cpf"); cpf != "" {
		req.CPF = cpf
		if err := h.validate.Struct(req); err != nil {
			writeValidationError(w, validationFields(err))
			return
		}
	} else if !h.decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	account, err := h.Accounts.CreateAccount(ctx, req.CPF)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	h.Logger.InfoContext(ctx, "account created", "account_id", account.ID, "number", account.Number)
	h.writeAccount(w, r, http.StatusCreated, account)
}

// GetAccount returns an account with its owner.
// GET /api/accounts/{id}
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	account, err := h.Accounts.GetAccount(r.Context(), ledger.AccountID(id))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	h.writeAccount(w, r, http.StatusOK, account)
}

// GetBalance returns the balance as a bare decimal.
// GET /api/accounts/{id}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	balance, err := h.Accounts.Balance(r.Context(), ledger.AccountID(id))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// Deposit adds {amount} to the account and returns the updated account.
// PUT|POST /api/accounts/{id}/deposit
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.moveMoney(w, r, h.Engine.Deposit)
}

// Withdraw subtracts {amount} from the account and returns the updated account.
// PUT|POST /api/accounts/{id}/withdraw
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.moveMoney(w, r, h.Engine.Withdraw)
}

type moneyOp func(ctx context.Context, id ledger.AccountID, amount decimal.Decimal) (*ledger.Account, *ledger.Transaction, error)

func (h *Handler) moveMoney(w http.ResponseWriter, r *http.Request, op moneyOp) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req AmountRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	account, tx, err := op(ctx, ledger.AccountID(id), *req.Amount)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	h.Logger.InfoContext(ctx, "transaction recorded",
		"account_id", account.ID, "kind", tx.Kind, "amount", tx.Amount.String())
	h.writeAccount(w, r, http.StatusOK, account)
}

// GetTransactions lists the account's transactions within [start, end].
// GET /api/accounts/{id}/transactions?start=&end=
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	h.listTransactions(w, r, "id")
}

// BlockAccount blocks an account.
// POST /api/accounts/{id}/block
func (h *Handler) BlockAccount(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, h.Accounts.BlockAccount)
}

// UnblockAccount unblocks an account.
// POST /api/accounts/{id}/unblock
func (h *Handler) UnblockAccount(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, h.Accounts.UnblockAccount)
}

func (h *Handler) setBlocked(w http.ResponseWriter, r *http.Request, op func(context.Context, ledger.AccountID) error) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := op(r.Context(), ledger.AccountID(id)); err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAccount deletes an account.
// DELETE /api/accounts/{id}
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.Accounts.DeleteAccount(r.Context(), ledger.AccountID(id)); err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	h.Logger.InfoContext(r.Context(), "account deleted", "account_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// DepositQuery deposits ?amount= and returns the new transaction.
// POST /api/transactions/{accountId}/deposit
func (h *Handler) DepositQuery(w http.ResponseWriter, r *http.Request) {
	h.moveMoneyQuery(w, r, h.Engine.Deposit)
}

// WithdrawQuery withdraws ?amount= and returns the new transaction.
// POST /api/transactions/{accountId}/withdraw
func (h *Handler) WithdrawQuery(w http.ResponseWriter, r *http.Request) {
	h.moveMoneyQuery(w, r, h.Engine.Withdraw)
}

func (h *Handler) moveMoneyQuery(w http.ResponseWriter, r *http.Request, op moneyOp) {
	id, ok := pathID(w, r, "accountId")
	if !ok {
		return
	}

	raw := r.URL.Query().Get("amount")
	if raw == "" {
		writeValidationError(w, map[string]string{"amount": "is required"})
		return
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		writeValidationError(w, map[string]string{"amount": "must be a decimal number"})
		return
	}

	_, tx, err := op(r.Context(), ledger.AccountID(id), amount)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(*tx))
}

// GetTransactionsByPeriod is the /api/transactions form of GetTransactions.
// GET /api/transactions/{accountId}/period?start=&end=
func (h *Handler) GetTransactionsByPeriod(w http.ResponseWriter, r *http.Request) {
	h.listTransactions(w, r, "accountId")
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request, param string) {
	id, ok := pathID(w, r, param)
	if !ok {
		return
	}

	q := r.URL.Query()
	fields := map[string]string{}
	start, err := parseInstant(q.Get("start"), false)
	if err != nil {
		fields["start"] = err.Error()
	}
	end, err := parseInstant(q.Get("end"), true)
	if err != nil {
		fields["end"] = err.Error()
	}
	if len(fields) > 0 {
		writeValidationError(w, fields)
		return
	}

	txs, err := h.Engine.TransactionsByPeriod(r.Context(), ledger.AccountID(id), start, end)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports whether the store is reachable.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		h.Logger.ErrorContext(r.Context(), "health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, HealthDTO{Status: "unavailable", Store: "down"})
		return
	}
	writeJSON(w, http.StatusOK, HealthDTO{Status: "ok", Store: "up"})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a JSON body into dst and validates it. On failure the
// response is written and false returned.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		if fields := validationFields(err); fields != nil {
			writeValidationError(w, fields)
			return false
		}
		h.writeLedgerError(w, r, err)
		return false
	}
	return true
}

// writeAccount writes an account together with its owner. The account has
// already been committed, so a failed owner lookup only drops "cliente".
func (h *Handler) writeAccount(w http.ResponseWriter, r *http.Request, status int, account *ledger.Account) {
	client, err := h.Clients.GetClient(r.Context(), account.ClientID)
	if err != nil {
		h.Logger.WarnContext(r.Context(), "owner lookup failed",
			"account_id", account.ID,
			"client_id", account.ClientID,
			"error", err,
			"request_id", middleware.GetReqID(r.Context()),
		)
		client = nil
	}
	writeJSON(w, status, toAccountDTO(account, client))
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid "+param, fmt.Errorf("%q is not a positive integer", raw))
		return 0, false
	}
	return id, true
}

// instantLayouts are tried in order. Layouts without an offset are read in
// the server's local time zone.
var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
}

// parseInstant parses an ISO-8601 timestamp. A bare date means the start
// of that day, or its last instant when endOfDay is set.
func parseInstant(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("is required")
	}
	for _, layout := range instantLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, nil
		}
	}
	if d, err := time.ParseInLocation(dateLayout, raw, time.Local); err == nil {
		start, end := ledger.DayBounds(d)
		if endOfDay {
			return end, nil
		}
		return start, nil
	}
	return time.Time{}, errors.New("must be an ISO-8601 timestamp")
}
