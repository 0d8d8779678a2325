/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	data for demos and manual testing. Every scenario is built through the
	ledger services, so the data obeys the same rules as real traffic.

AVAILABLE SCENARIOS:

	basic:           One client, one funded account
	limit-reached:   Account that already withdrew its whole daily limit today
	blocked-account: Funded account that is blocked
	multi-account:   Two clients, one of them with two accounts

HOW SCENARIOS WORK:
 1. Reset store (clear all data)
 2. Register clients
 3. Open accounts
 4. Deposit and withdraw
 5. Optionally block accounts

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "limit-reached"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add it to scenarioLoaders

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler and its ledger services
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/conta-online/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "basic",
		Name:        "Basic",
		Description: "One client with a single account holding 1000.00",
	},
	{
		ID:          "limit-reached",
		Name:        "Daily Limit Reached",
		Description: "Account that already withdrew its full daily limit today",
	},
	{
		ID:          "blocked-account",
		Name:        "Blocked Account",
		Description: "Funded account that rejects deposits and withdrawals",
	},
	{
		ID:          "multi-account",
		Name:        "Multiple Accounts",
		Description: "Two clients, the first owning two accounts",
	},
}

// scenarioResult collects what a loader created.
type scenarioResult struct {
	clients  []*ledger.Client
	accounts []*ledger.Account
}

type scenarioLoader func(h *Handler, ctx context.Context) (*scenarioResult, error)

var scenarioLoaders = map[string]scenarioLoader{
	"basic":           (*Handler).loadBasicScenario,
	"limit-reached":   (*Handler).loadLimitReachedScenario,
	"blocked-account": (*Handler).loadBlockedAccountScenario,
	"multi-account":   (*Handler).loadMultiAccountScenario,
}

func findScenario(id string) (ScenarioDTO, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return ScenarioDTO{}, false
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	s, _ := findScenario(current)
	writeJSON(w, http.StatusOK, s)
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	scenario, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q does not exist", req.ScenarioID))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		h.writeLedgerError(w, r, fmt.Errorf("resetting store: %w", err))
		return
	}
	h.currentScenario = ""

	result, err := scenarioLoaders[scenario.ID](h, ctx)
	if err != nil {
		h.writeLedgerError(w, r, fmt.Errorf("loading scenario %s: %w", scenario.ID, err))
		return
	}
	h.currentScenario = scenario.ID
	h.Logger.InfoContext(ctx, "scenario loaded", "scenario", scenario.ID,
		"clients", len(result.clients), "accounts", len(result.accounts))

	resp := LoadScenarioResponse{
		Scenario: scenario,
		Clients:  make([]ClientDTO, 0, len(result.clients)),
		Accounts: make([]AccountDTO, 0, len(result.accounts)),
	}
	owners := make(map[ledger.ClientID]*ledger.Client, len(result.clients))
	for _, c := range result.clients {
		owners[c.ID] = c
		resp.Clients = append(resp.Clients, toClientDTO(c))
	}
	for _, a := range result.accounts {
		resp.Accounts = append(resp.Accounts, toAccountDTO(a, owners[a.ClientID]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		h.writeLedgerError(w, r, fmt.Errorf("resetting store: %w", err))
		return
	}
	h.currentScenario = ""

	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadBasicScenario(ctx context.Context) (*scenarioResult, error) {
	var res scenarioResult
	maria, err := res.client(ctx, h, "52998224725", "Maria Souza", 1990, time.May, 14)
	if err != nil {
		return nil, err
	}
	if _, err := res.fundedAccount(ctx, h, maria, decimal.NewFromInt(1000)); err != nil {
		return nil, err
	}
	return &res, nil
}

func (h *Handler) loadLimitReachedScenario(ctx context.Context) (*scenarioResult, error) {
	var res scenarioResult
	joao, err := res.client(ctx, h, "11144477735", "Joao Pereira", 1985, time.November, 2)
	if err != nil {
		return nil, err
	}
	acct, err := res.fundedAccount(ctx, h, joao, h.Policy.DefaultDailyLimit.Mul(decimal.NewFromInt(2)))
	if err != nil {
		return nil, err
	}
	updated, _, err := h.Engine.Withdraw(ctx, acct.ID, acct.DailyLimit)
	if err != nil {
		return nil, fmt.Errorf("withdrawing daily limit: %w", err)
	}
	*acct = *updated
	return &res, nil
}

func (h *Handler) loadBlockedAccountScenario(ctx context.Context) (*scenarioResult, error) {
	var res scenarioResult
	ana, err := res.client(ctx, h, "12345678909", "Ana Lima", 1978, time.February, 28)
	if err != nil {
		return nil, err
	}
	acct, err := res.fundedAccount(ctx, h, ana, decimal.NewFromInt(500))
	if err != nil {
		return nil, err
	}
	if err := h.Accounts.BlockAccount(ctx, acct.ID); err != nil {
		return nil, fmt.Errorf("blocking account: %w", err)
	}
	acct.Blocked = true
	return &res, nil
}

func (h *Handler) loadMultiAccountScenario(ctx context.Context) (*scenarioResult, error) {
	var res scenarioResult
	maria, err := res.client(ctx, h, "52998224725", "Maria Souza", 1990, time.May, 14)
	if err != nil {
		return nil, err
	}
	carlos, err := res.client(ctx, h, "11144477735", "Carlos Santos", 2001, time.July, 9)
	if err != nil {
		return nil, err
	}

	savings, err := res.fundedAccount(ctx, h, maria, decimal.RequireFromString("2500.75"))
	if err != nil {
		return nil, err
	}
	updated, _, err := h.Engine.Withdraw(ctx, savings.ID, decimal.RequireFromString("120.25"))
	if err != nil {
		return nil, fmt.Errorf("withdrawing: %w", err)
	}
	*savings = *updated

	if _, err := res.fundedAccount(ctx, h, maria, decimal.NewFromInt(300)); err != nil {
		return nil, err
	}
	if _, err := res.fundedAccount(ctx, h, carlos, decimal.RequireFromString("49.90")); err != nil {
		return nil, err
	}
	return &res, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (res *scenarioResult) client(ctx context.Context, h *Handler, cpf, name string, year int, month time.Month, day int) (*ledger.Client, error) {
	c, err := h.Clients.CreateClient(ctx, ledger.NewClient{
		CPF:       cpf,
		Name:      name,
		BirthDate: time.Date(year, month, day, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		return nil, fmt.Errorf("creating client %s: %w", name, err)
	}
	res.clients = append(res.clients, c)
	return c, nil
}

func (res *scenarioResult) fundedAccount(ctx context.Context, h *Handler, owner *ledger.Client, amount decimal.Decimal) (*ledger.Account, error) {
	acct, err := h.Accounts.CreateAccount(ctx, owner.CPF)
	if err != nil {
		return nil, fmt.Errorf("opening account for %s: %w", owner.Name, err)
	}
	if amount.IsPositive() {
		funded, _, err := h.Engine.Deposit(ctx, acct.ID, amount)
		if err != nil {
			return nil, fmt.Errorf("funding account %s: %w", acct.Number, err)
		}
		acct = funded
	}
	res.accounts = append(res.accounts, acct)
	return acct, nil
}
