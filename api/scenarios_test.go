/*
scenarios_test.go - Tests for demo scenarios

PURPOSE:
	Tests that each scenario sets up the expected state through the API:
	- Clients and accounts are created
	- Balances and flags match the description
	- Loading resets whatever was there before
*/
package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/conta-online/ledger"
)

func loadScenario(t *testing.T, api *testAPI, id string) LoadScenarioResponse {
	t.Helper()
	rec := api.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[LoadScenarioResponse](t, rec)
}

func TestListScenarios(t *testing.T) {
	api := newTestAPI(t, ledger.DefaultPolicy())

	rec := api.do(t, http.MethodGet, "/api/scenarios", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	listed := decodeBody[[]ScenarioDTO](t, rec)
	require.Len(t, listed, len(scenarios))
	for _, s := range listed {
		assert.Contains(t, scenarioLoaders, s.ID, "scenario %s has no loader", s.ID)
	}
}

func TestScenario_Basic(t *testing.T) {
	// GIVEN: The basic scenario
	api := newTestAPI(t, ledger.DefaultPolicy())

	// WHEN: Loading it
	resp := loadScenario(t, api, "basic")

	// THEN: One client with one account holding 1000
	assert.Equal(t, "basic", resp.Scenario.ID)
	require.Len(t, resp.Clients, 1)
	require.Len(t, resp.Accounts, 1)
	assertDecimal(t, "1000", resp.Accounts[0].Balance)
	require.NotNil(t, resp.Accounts[0].Client)
	assert.Equal(t, resp.Clients[0].ID, resp.Accounts[0].Client.ID)

	rec := api.do(t, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "basic", decodeBody[ScenarioDTO](t, rec).ID)
}

func TestScenario_LimitReached(t *testing.T) {
	api := newTestAPI(t, ledger.DefaultPolicy())

	resp := loadScenario(t, api, "limit-reached")

	require.Len(t, resp.Accounts, 1)
	acct := resp.Accounts[0]
	assertDecimal(t, "1000", acct.Balance)

	// Any further withdrawal today breaks the limit.
	rec := api.do(t, http.MethodPut, accountPath(acct.ID, "/withdraw"), `{"amount": 0.01}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Details, "daily withdrawal limit exceeded")
}

func TestScenario_BlockedAccount(t *testing.T) {
	api := newTestAPI(t, ledger.DefaultPolicy())

	resp := loadScenario(t, api, "blocked-account")

	require.Len(t, resp.Accounts, 1)
	acct := resp.Accounts[0]
	assert.True(t, acct.Blocked)
	assertDecimal(t, "500", acct.Balance)
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodPut, accountPath(acct.ID, "/deposit"), `{"amount": 1}`).Code)
}

func TestScenario_MultiAccount(t *testing.T) {
	api := newTestAPI(t, ledger.DefaultPolicy())

	resp := loadScenario(t, api, "multi-account")

	require.Len(t, resp.Clients, 2)
	require.Len(t, resp.Accounts, 3)
	assertDecimal(t, "2380.50", resp.Accounts[0].Balance)
	assertDecimal(t, "300", resp.Accounts[1].Balance)
	assertDecimal(t, "49.90", resp.Accounts[2].Balance)

	rec := api.do(t, http.MethodGet, "/api/clients/"+itoa(resp.Clients[0].ID)+"/accounts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]AccountDTO](t, rec), 2)
}

func TestScenario_LoadReplacesPreviousData(t *testing.T) {
	// GIVEN: A loaded scenario plus an extra client
	api := newTestAPI(t, ledger.DefaultPolicy())
	loadScenario(t, api, "multi-account")
	extra := api.createClient(t, "12345678909")

	// WHEN: Loading another scenario
	resp := loadScenario(t, api, "basic")

	// THEN: Only the new scenario's data exists
	require.Len(t, resp.Clients, 1)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/clients/"+itoa(extra.ID), nil).Code)
}

func TestScenario_UnknownAndReset(t *testing.T) {
	api := newTestAPI(t, ledger.DefaultPolicy())

	rec := api.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/scenarios/load", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	resp := loadScenario(t, api, "basic")
	rec = api.do(t, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, accountPath(resp.Accounts[0].ID, ""), nil).Code)
	rec = api.do(t, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null\n", rec.Body.String())
}
