/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract. Field names on
  the wire keep the Portuguese names existing clients already send and
  read (nome, dataNascimento, numeroConta, saldo, ...).

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Client:
    ClientDTO, CreateClientRequest

  Account:
    AccountDTO, CreateAccountRequest, AmountRequest

  Transactions:
    TransactionDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest, LoadScenarioResponse

VALIDATION:
  Request types carry go-playground/validator tags. Handler.decode runs
  them and reports every failing field at once, keyed by JSON name.
  Business rules (CPF check digits, positive amounts) stay in the ledger.

MONEY:
  decimal.Decimal marshals as a JSON string ("1000.5") and unmarshals from
  either a string or a number, so amounts are never rounded by float64.

SEE ALSO:
  - handlers.go: Uses these types
  - errors.go: ErrorResponse
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/conta-online/ledger"
)

// dateLayout is the wire format of dataNascimento.
const dateLayout = "2006-01-02"

// =============================================================================
// CLIENTS
// =============================================================================

// CreateClientRequest is the body of POST /api/clients.
type CreateClientRequest struct {
	CPF       string `json:"cpf" validate:"required,len=11,number"`
	Name      string `json:"nome" validate:"required"`
	BirthDate string `json:"dataNascimento" validate:"required,datetime=2006-01-02"`
}

// ClientDTO represents a client in API responses.
type ClientDTO struct {
	ID        int64  `json:"id"`
	CPF       string `json:"cpf"`
	Name      string `json:"nome"`
	BirthDate string `json:"dataNascimento"`
}

func toClientDTO(c *ledger.Client) ClientDTO {
	return ClientDTO{
		ID:        int64(c.ID),
		CPF:       c.CPF,
		Name:      c.Name,
		BirthDate: c.BirthDate.Format(dateLayout),
	}
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// CreateAccountRequest is the body of POST /api/accounts. The CPF may
// also be given as ?cpf=.
type CreateAccountRequest struct {
	CPF string `json:"cpf" validate:"required,len=11,number"`
}

// AmountRequest is the body of deposit and withdraw calls.
type AmountRequest struct {
	Amount *decimal.Decimal `json:"amount" validate:"required"`
}

// AccountDTO represents an account in API responses.
type AccountDTO struct {
	ID         int64           `json:"id"`
	Number     string          `json:"numeroConta"`
	Branch     string          `json:"agencia"`
	Balance    decimal.Decimal `json:"saldo"`
	DailyLimit decimal.Decimal `json:"limiteDiarioSaque"`
	Blocked    bool            `json:"bloqueada"`
	Client     *ClientDTO      `json:"cliente,omitempty"`
}

func toAccountDTO(a *ledger.Account, c *ledger.Client) AccountDTO {
	dto := AccountDTO{
		ID:         int64(a.ID),
		Number:     a.Number,
		Branch:     a.Branch,
		Balance:    a.Balance,
		DailyLimit: a.DailyLimit,
		Blocked:    a.Blocked,
	}
	if c != nil {
		client := toClientDTO(c)
		dto.Client = &client
	}
	return dto
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// TransactionDTO represents a transaction in API responses. dataHora is
// always UTC.
type TransactionDTO struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"valor"`
	Kind      string          `json:"tipo"`
	Timestamp time.Time       `json:"dataHora"`
}

func toTransactionDTO(tx ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:        string(tx.ID),
		Amount:    tx.Amount,
		Kind:      string(tx.Kind),
		Timestamp: tx.Timestamp.UTC(),
	}
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	return dtos
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// LoadScenarioResponse lists what a scenario created.
type LoadScenarioResponse struct {
	Scenario ScenarioDTO  `json:"scenario"`
	Clients  []ClientDTO  `json:"clients"`
	Accounts []AccountDTO `json:"accounts"`
}

// HealthDTO is returned by GET /healthz.
type HealthDTO struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}
