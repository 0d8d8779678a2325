/*
handlers_test.go - HTTP handler tests

PURPOSE:
	Exercises every route through the chi router against a real SQLite
	store, checking status codes, bodies and the error contract:
	- 400 for validation and business rule failures
	- 403 for blocked accounts
	- 404 for unknown ids
	- 409 for conflicts
	- 500 with a fixed message for anything unexpected
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/conta-online/ledger"
	"github.com/warp/conta-online/ledger/store"
	"github.com/warp/conta-online/store/sqlite"
)

var testNow = time.Date(2025, time.March, 10, 13, 0, 0, 0, time.UTC)

type testAPI struct {
	h      *Handler
	router http.Handler
}

func newTestAPI(t *testing.T, policy ledger.Policy) *testAPI {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return newTestAPIWithStore(s, policy)
}

func newTestAPIWithStore(s Store, policy ledger.Policy) *testAPI {
	h := NewHandlerWithClock(s, policy, nil, func() time.Time { return testNow })
	return &testAPI{h: h, router: NewRouter(h, nil)}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (a *testAPI) createClient(t *testing.T, cpf string) ClientDTO {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/clients", CreateClientRequest{
		CPF: cpf, Name: "Maria Souza", BirthDate: "1990-05-14",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[ClientDTO](t, rec)
}

func (a *testAPI) openAccount(t *testing.T, cpf string) AccountDTO {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/accounts", CreateAccountRequest{CPF: cpf})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[AccountDTO](t, rec)
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func accountPath(id int64, suffix string) string {
	return "/api/accounts/" + itoa(id) + suffix
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(expected).Equal(actual), "expected %s, got %s", expected, actual)
}

// =============================================================================
// CLIENTS
// =============================================================================

func TestCreateClient_Success(t *testing.T) {
	// GIVEN: An empty ledger
	api := newTestAPI(t, ledger.DefaultPolicy())

	// WHEN: Registering a client with a valid CPF
	rec := api.do(t, http.MethodPost, "/api/clients",
		`{"cpf":"52998224725","nome":"Maria Souza","dataNascimento":"1990-05-14"}`)

	// THEN: The client is returned with an id
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	client := decodeBody[ClientDTO](t, rec)
	assert.Positive(t, client.ID)
	assert.Equal(t, "52998224725", client.CPF)
	assert.Equal(t, "Maria Souza", client.Name)
	assert.Equal(t, "1990-05-14", client.BirthDate)

	rec = api.do(t, http.MethodGet, "/api/clients/"+itoa(client.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, client, decodeBody[ClientDTO](t, rec))
}

func TestCreateClient_ValidationReportsEveryField(t *testing.T) {
	api := newTestAPI(t, ledger.DefaultPolicy())

	rec := api.do(t, http.MethodPost, "/api/clients", `{"cpf":"123","nome":""}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "Validation failed", resp.Error)
	assert.Contains(t, resp.Fields, "cpf")
	assert.Contains(t, resp.Fields, "nome")
	assert.Contains(t, resp.Fields, "dataNascimento")
}

func TestCreateClient_BadRequests(t *testing.T) {
	api := newTestAPI(t, ledger.DefaultPolicy())

	tests := []struct {
		name string
		body string
	}{
		{"check digits", `{"cpf":"12345678900","nome":"Ana","dataNascimento":"1990-01-01"}`},
		{"repeated digits", `{"cpf":"11111111111","nome":"Ana","dataNascimento":"1990-01-01"}`},
		{"letters", `{"cpf":"1234567890a","nome":"Ana","dataNascimento":"1990-01-01"}`},
		{"blank name", `{"cpf":"12345678909","nome":"   ","dataNascimento":"1990-01-01"}`},
		{"bad date", `{"cpf":"12345678909","nome":"Ana","dataNascimento":"01/01/1990"}`},
		{"malformed json", `{"cpf":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/api/clients", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestCreateClient_DuplicateCPF(t *testing.T) {
	api := newTestAPI(t, ledger.DefaultPolicy())
	api.createClient(t, "52998224725")

	rec := api.do(t, http.MethodPost, "/api/clients", CreateClientRequest{
		CPF: "52998224725", Name: "Other", BirthDate: "2000-01-01",
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetClient_NotFoundAndBadID(t *testing.T) {
	api := newTestAPI(t, ledger.DefaultPolicy())

	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/clients/42", nil).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodGet, "/api/clients/abc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodGet, "/api/clients/0", nil).Code)
}

func TestDeleteClient(t *testing.T) {
	// GIVEN: One client with an account and one without
	api := newTestAPI(t, ledger.DefaultPolicy())
	owner := api.createClient(t, "52998224725")
	api.openAccount(t, owner.CPF)
	lonely := api.createClient(t, "11144477735")

	// THEN: The owner cannot be removed, the other can
	rec := api.do(t, http.MethodDelete, "/api/clients/"+itoa(owner.ID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	path := "/api/clients/" + itoa(lonely.ID)
	assert.Equal(t, http.StatusNoContent, api.do(t, http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, path, nil).Code)
}

func TestListClientAccounts(t *testing.T) {
	api := newTestAPI(t, ledger.DefaultPolicy())
	client := api.createClient(t, "52998224725")
	first := api.openAccount(t, client.CPF)
	second := api.openAccount(t, client.CPF)

	rec := api.do(t, http.MethodGet, "/api/clients/"+itoa(client.ID)+"/accounts", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	accounts := decodeBody[[]AccountDTO](t, rec)
	require.Len(t, accounts, 2)
	assert.ElementsMatch(t, []int64{first.ID, second.ID}, []int64{accounts[0].ID, accounts[1].ID})
	assert.NotEqual(t, accounts[0].Number, accounts[1].Number)

	rec = api.do(t, http.MethodGet, "/api/clients/99/accounts", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func TestCreateAccount(t *testing.T) {
	// GIVEN: A registered client
	api := newTestAPI(t, ledger.DefaultPolicy())
	client := api.createClient(t, "52998224725")

	// WHEN: Opening an account
	acct := api.openAccount(t, client.CPF)

	// THEN: It starts empty, unblocked, with the default branch and limit
	assert.Len(t, acct.Number, 8)
	assert.Equal(t, ledger.DefaultBranch, acct.Branch)
	assertDecimal(t, "0", acct.Balance)
	assertDecimal(t, "1000", acct.DailyLimit)
	assert.False(t, acct.Blocked)
	require.NotNil(t, acct.Client)
	assert.Equal(t, client.ID, acct.Client.ID)
}

func TestCreateAccount_QueryParameter(t *testing.T) {
	api := newTestAPI(t, ledger.DefaultPolicy())
	api.createClient(t, "52998224725")

	rec := api.do(t, http.MethodPost, "/api/accounts?cpf=52998224725", nil)

	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestCreateAccount_Errors(t *testing.T) {
	api := newTestAPI(t, ledger.DefaultPolicy())

	rec := api.do(t, http.MethodPost, "/api/accounts", CreateAccountRequest{CPF: "52998224725"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/accounts", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Fields, "cpf")
}

func TestDepositWithdrawBalance(t *testing.T) {
	// GIVEN: An empty account
	api := newTestAPI(t, ledger.DefaultPolicy())
	client := api.createClient(t, "52998224725")
	acct := api.openAccount(t, client.CPF)

	// WHEN: Depositing 1000 and withdrawing 200.50
	rec := api.do(t, http.MethodPut, accountPath(acct.ID, "/deposit"), `{"amount": 1000}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assertDecimal(t, "1000", decodeBody[AccountDTO](t, rec).Balance)

	rec = api.do(t, http.MethodPost, accountPath(acct.ID, "/withdraw"), `{"amount": "200.50"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: The balance is exactly 799.50
	assertDecimal(t, "799.50", decodeBody[AccountDTO](t, rec).Balance)

	rec = api.do(t, http.MethodGet, accountPath(acct.ID, "/balance"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assertDecimal(t, "799.50", decodeBody[decimal.Decimal](t, rec))
}

func TestWithdraw_RuleViolations(t *testing.T) {
	api := newTestAPI(t, ledger.DefaultPolicy())
	client := api.createClient(t, "52998224725")
	acct := api.openAccount(t, client.CPF)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPut, accountPath(acct.ID, "/deposit"), `{"amount": 5000}`).Code)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPut, accountPath(acct.ID, "/withdraw"), `{"amount": 800}`).Code)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"over daily limit", `{"amount": 300}`, http.StatusBadRequest},
		{"zero amount", `{"amount": 0}`, http.StatusBadRequest},
		{"negative amount", `{"amount": -10}`, http.StatusBadRequest},
		{"missing amount", `{}`, http.StatusBadRequest},
		{"within remaining limit", `{"amount": 200}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPut, accountPath(acct.ID, "/withdraw"), tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	rec := api.do(t, http.MethodGet, accountPath(acct.ID, "/balance"), nil)
	assertDecimal(t, "4000", decodeBody[decimal.Decimal](t, rec))
}

func TestWithdraw_InsufficientBalance(t *testing.T) {
	api := newTestAPI(t, ledger.DefaultPolicy())
	client := api.createClient(t, "52998224725")
	acct := api.openAccount(t, client.CPF)

	rec := api.do(t, http.MethodPut, accountPath(acct.ID, "/withdraw"), `{"amount": 10}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Details, "insufficient balance")
}

func TestBlockUnblock(t *testing.T) {
	// GIVEN: A funded account
	api := newTestAPI(t, ledger.DefaultPolicy())
	client := api.createClient(t, "52998224725")
	acct := api.openAccount(t, client.CPF)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPut, accountPath(acct.ID, "/deposit"), `{"amount": 100}`).Code)

	// WHEN: Blocking it
	require.Equal(t, http.StatusNoContent, api.do(t, http.MethodPost, accountPath(acct.ID, "/block"), nil).Code)

	// THEN: Money movement is forbidden and a second block conflicts
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodPut, accountPath(acct.ID, "/deposit"), `{"amount": 1}`).Code)
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodPut, accountPath(acct.ID, "/withdraw"), `{"amount": 1}`).Code)
	assert.Equal(t, http.StatusConflict, api.do(t, http.MethodPost, accountPath(acct.ID, "/block"), nil).Code)

	rec := api.do(t, http.MethodGet, accountPath(acct.ID, ""), nil)
	assert.True(t, decodeBody[AccountDTO](t, rec).Blocked)

	// AND: Unblocking restores it
	require.Equal(t, http.StatusNoContent, api.do(t, http.MethodPost, accountPath(acct.ID, "/unblock"), nil).Code)
	assert.Equal(t, http.StatusConflict, api.do(t, http.MethodPost, accountPath(acct.ID, "/unblock"), nil).Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodPut, accountPath(acct.ID, "/deposit"), `{"amount": 1}`).Code)
}

func TestDeleteAccount(t *testing.T) {
	api := newTestAPI(t, ledger.DefaultPolicy())
	client := api.createClient(t, "52998224725")
	used := api.openAccount(t, client.CPF)
	unused := api.openAccount(t, client.CPF)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPut, accountPath(used.ID, "/deposit"), `{"amount": 1}`).Code)

	assert.Equal(t, http.StatusConflict, api.do(t, http.MethodDelete, accountPath(used.ID, ""), nil).Code)
	assert.Equal(t, http.StatusNoContent, api.do(t, http.MethodDelete, accountPath(unused.ID, ""), nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, accountPath(unused.ID, ""), nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodDelete, accountPath(unused.ID, ""), nil).Code)
}

func TestDeleteAccount_LenientPolicyAllowsHistory(t *testing.T) {
	policy := ledger.DefaultPolicy()
	policy.AllowDeleteWithHistory = true
	api := newTestAPI(t, policy)
	client := api.createClient(t, "52998224725")
	acct := api.openAccount(t, client.CPF)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPut, accountPath(acct.ID, "/deposit"), `{"amount": 1}`).Code)

	assert.Equal(t, http.StatusNoContent, api.do(t, http.MethodDelete, accountPath(acct.ID, ""), nil).Code)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestGetTransactions(t *testing.T) {
	// GIVEN: An account with a deposit and a withdrawal
	api := newTestAPI(t, ledger.DefaultPolicy())
	client := api.createClient(t, "52998224725")
	acct := api.openAccount(t, client.CPF)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPut, accountPath(acct.ID, "/deposit"), `{"amount": 300}`).Code)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPut, accountPath(acct.ID, "/withdraw"), `{"amount": 120.25}`).Code)

	// WHEN: Listing the day
	rec := api.do(t, http.MethodGet,
		accountPath(acct.ID, "/transactions?start=2025-03-10T00:00:00Z&end=2025-03-10T23:59:59Z"), nil)

	// THEN: Both appear in order
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	txs := decodeBody[[]TransactionDTO](t, rec)
	require.Len(t, txs, 2)
	assert.Equal(t, "DEPOSIT", txs[0].Kind)
	assertDecimal(t, "300", txs[0].Amount)
	assert.Equal(t, "WITHDRAWAL", txs[1].Kind)
	assertDecimal(t, "120.25", txs[1].Amount)
	assert.True(t, txs[0].Timestamp.Equal(testNow))
	assert.NotEmpty(t, txs[0].ID)

	// AND: Another day is empty
	rec = api.do(t, http.MethodGet,
		accountPath(acct.ID, "/transactions?start=2025-03-11T00:00:00Z&end=2025-03-11T23:59:59Z"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestGetTransactions_PeriodErrors(t *testing.T) {
	api := newTestAPI(t, ledger.DefaultPolicy())
	client := api.createClient(t, "52998224725")
	acct := api.openAccount(t, client.CPF)

	rec := api.do(t, http.MethodGet, accountPath(acct.ID, "/transactions?end=2025-03-10T00:00:00Z"), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Fields, "start")

	rec = api.do(t, http.MethodGet, accountPath(acct.ID, "/transactions?start=yesterday&end=2025-03-10T00:00:00Z"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet,
		accountPath(acct.ID, "/transactions?start=2025-03-11T00:00:00Z&end=2025-03-10T00:00:00Z"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/accounts/99/transactions?start=2025-03-11T00:00:00Z&end=2025-03-10T00:00:00Z", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransactionRoutes_QueryAmount(t *testing.T) {
	api := newTestAPI(t, ledger.DefaultPolicy())
	client := api.createClient(t, "52998224725")
	acct := api.openAccount(t, client.CPF)
	base := "/api/transactions/" + itoa(acct.ID)

	rec := api.do(t, http.MethodPost, base+"/deposit?amount=50.10", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tx := decodeBody[TransactionDTO](t, rec)
	assert.Equal(t, "DEPOSIT", tx.Kind)
	assertDecimal(t, "50.10", tx.Amount)

	rec = api.do(t, http.MethodPost, base+"/withdraw?amount=0.10", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "WITHDRAWAL", decodeBody[TransactionDTO](t, rec).Kind)

	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPost, base+"/deposit", nil).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPost, base+"/deposit?amount=ten", nil).Code)

	rec = api.do(t, http.MethodGet, base+"/period?start=2025-03-10T00:00:00Z&end=2025-03-10T23:59:59.999Z", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]TransactionDTO](t, rec), 2)

	rec = api.do(t, http.MethodGet, accountPath(acct.ID, "/balance"), nil)
	assertDecimal(t, "50", decodeBody[decimal.Decimal](t, rec))
}

func TestParseInstant(t *testing.T) {
	got, err := parseInstant("2025-03-10T12:30:00-03:00", false)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)))

	got, err = parseInstant("2025-03-10T12:30:00", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 10, 12, 30, 0, 0, time.Local), got)

	start, err := parseInstant("2025-03-10", false)
	require.NoError(t, err)
	end, err := parseInstant("2025-03-10", true)
	require.NoError(t, err)
	wantStart, wantEnd := ledger.DayBounds(time.Date(2025, 3, 10, 0, 0, 0, 0, time.Local))
	assert.Equal(t, wantStart, start)
	assert.Equal(t, wantEnd, end)

	_, err = parseInstant("", false)
	assert.Error(t, err)
	_, err = parseInstant("10/03/2025", false)
	assert.Error(t, err)
}

// =============================================================================
// ERRORS AND HEALTH
// =============================================================================

// brokenStore fails every account read and every ping.
type brokenStore struct {
	*store.Memory
	err error
}

func (b *brokenStore) GetAccount(context.Context, ledger.AccountID) (*ledger.Account, error) {
	return nil, b.err
}

func (b *brokenStore) Ping(context.Context) error { return b.err }

// ownerlessStore fails client lookups by id; everything else works.
type ownerlessStore struct {
	*store.Memory
}

func (ownerlessStore) GetClient(context.Context, ledger.ClientID) (*ledger.Client, error) {
	return nil, errors.New("client table unavailable")
}

func TestDeposit_SucceedsWhenOwnerLookupFails(t *testing.T) {
	// GIVEN: An account whose owner cannot be loaded after the deposit commits
	mem := store.NewMemory()
	ctx := context.Background()
	client := ledger.Client{CPF: "52998224725", Name: "Maria Souza", BirthDate: testNow}
	require.NoError(t, mem.CreateClient(ctx, &client))
	acct := ledger.Account{Number: "00000001", Branch: ledger.DefaultBranch, DailyLimit: ledger.DefaultDailyLimit, ClientID: client.ID}
	require.NoError(t, mem.CreateAccount(ctx, &acct))
	api := newTestAPIWithStore(ownerlessStore{mem}, ledger.DefaultPolicy())

	// WHEN: Depositing
	rec := api.do(t, http.MethodPut, accountPath(int64(acct.ID), "/deposit"), `{"amount": 100}`)

	// THEN: The deposit is reported as successful, without the owner
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dto := decodeBody[AccountDTO](t, rec)
	assertDecimal(t, "100", dto.Balance)
	assert.Nil(t, dto.Client)

	got, err := mem.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assertDecimal(t, "100", got.Balance)
}

func TestTransactionTimestampIsUTC(t *testing.T) {
	// GIVEN: A store that keeps the clock's zone and a clock at UTC-3
	saoPaulo := time.FixedZone("BRT", -3*60*60)
	h := NewHandlerWithClock(store.NewMemory(), ledger.DefaultPolicy(), nil, func() time.Time {
		return testNow.In(saoPaulo)
	})
	api := &testAPI{h: h, router: NewRouter(h, nil)}
	client := api.createClient(t, "52998224725")
	acct := api.openAccount(t, client.CPF)

	// WHEN: Depositing through the transaction route
	rec := api.do(t, http.MethodPost, "/api/transactions/"+itoa(acct.ID)+"/deposit?amount=10", nil)

	// THEN: dataHora is serialized in UTC
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, "2025-03-10T13:00:00Z", raw["dataHora"])
}

func TestUnexpectedErrorIsNotLeaked(t *testing.T) {
	// GIVEN: A store that fails with an internal error
	api := newTestAPIWithStore(&brokenStore{Memory: store.NewMemory(), err: errors.New("disk on fire")}, ledger.DefaultPolicy())

	// WHEN: Reading an account
	rec := api.do(t, http.MethodGet, "/api/accounts/1", nil)

	// THEN: The client sees a generic 500
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, genericErrorMessage, decodeBody[ErrorResponse](t, rec).Error)
	assert.False(t, strings.Contains(rec.Body.String(), "disk"))
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, ledger.DefaultPolicy())
	rec := api.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, HealthDTO{Status: "ok", Store: "up"}, decodeBody[HealthDTO](t, rec))

	broken := newTestAPIWithStore(&brokenStore{Memory: store.NewMemory(), err: errors.New("down")}, ledger.DefaultPolicy())
	rec = broken.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{ledger.ErrAccountNotFound, http.StatusNotFound},
		{ledger.ErrClientNotFound, http.StatusNotFound},
		{ledger.ErrDuplicateCPF, http.StatusConflict},
		{ledger.ErrAccountHasTransactions, http.StatusConflict},
		{ledger.ErrAccountBlocked, http.StatusForbidden},
		{&ledger.CPFError{Reason: "bad"}, http.StatusBadRequest},
		{ledger.ErrInvalidPeriod, http.StatusBadRequest},
		{errors.New("boom"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.status, statusFor(tt.err))
		})
	}
}
