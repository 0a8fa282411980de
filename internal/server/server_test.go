package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/aggregator"
	"github.com/aman-zulfiqar/crosschain-swap/internal/chain"
	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	"github.com/aman-zulfiqar/crosschain-swap/internal/settlement"
	"github.com/aman-zulfiqar/crosschain-swap/internal/storage/memory"
	"github.com/aman-zulfiqar/crosschain-swap/internal/swapengine"
	"github.com/aman-zulfiqar/crosschain-swap/internal/vault"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	polygonUSDC  = "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"
	arbitrumUSDC = "0xaf88d065e77c8cC2239327C5EDb3A432268e5831"
)

type fakeQuotes struct {
	got aggregator.QuoteRequest
	err error
}

func (f *fakeQuotes) Quote(_ context.Context, req aggregator.QuoteRequest) (*models.Quote, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.Quote{ID: "q-1", FromChain: req.FromChain, ToChain: req.ToChain, FromAmount: req.FromAmount, ToAmount: "999000"}, nil
}

type fakeCatalog struct {
	tokens      map[int64][]models.Token
	invalidated []int64
}

func (f *fakeCatalog) List(_ context.Context, chainID int64) ([]models.Token, error) {
	return f.tokens[chainID], nil
}

func (f *fakeCatalog) Find(_ context.Context, chainID int64, ref string) (models.Token, error) {
	for _, t := range f.tokens[chainID] {
		if strings.EqualFold(t.Symbol, ref) || strings.EqualFold(t.Address, ref) {
			return t, nil
		}
	}
	return models.Token{}, assert.AnError
}

func (f *fakeCatalog) Invalidate(chainID int64) { f.invalidated = append(f.invalidated, chainID) }

type fakeEngine struct {
	res *swapengine.ExecuteResult
	err error
	got swapengine.ExecuteRequest
}

func (f *fakeEngine) Execute(_ context.Context, req swapengine.ExecuteRequest) (*swapengine.ExecuteResult, error) {
	f.got = req
	return f.res, f.err
}

func (f *fakeEngine) RiskStatus() swapengine.RiskStatus {
	return swapengine.RiskStatus{DailyLimitUSD: 1000}
}

// pendingSource always reports the swap as in flight.
type pendingSource struct{}

func (pendingSource) Status(context.Context, string, int64, int64) (models.SwapStatus, error) {
	return models.SwapStatus{Status: models.PollPending}, nil
}

type testEnv struct {
	e       *echo.Echo
	h       *Handlers
	quotes  *fakeQuotes
	catalog *fakeCatalog
	engine  *fakeEngine
	ledger  *memory.Ledger
	tracker *settlement.Tracker
}

func newTestEnv(t *testing.T, cfg ServerConfig) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	ledger := memory.NewLedger()
	tracker, err := settlement.New(settlement.Config{
		Source:   pendingSource{},
		Ledger:   ledger,
		Interval: time.Hour,
		Logger:   logger,
	})
	require.NoError(t, err)
	t.Cleanup(tracker.Shutdown)

	env := &testEnv{
		quotes: &fakeQuotes{},
		catalog: &fakeCatalog{tokens: map[int64][]models.Token{
			137:   {{ChainID: 137, Address: polygonUSDC, Symbol: "USDC", Decimals: 6, PriceUSD: 1}},
			42161: {{ChainID: 42161, Address: arbitrumUSDC, Symbol: "USDC", Decimals: 6, PriceUSD: 1}},
		}},
		engine:  &fakeEngine{},
		ledger:  ledger,
		tracker: tracker,
	}
	env.h = &Handlers{
		Chains:  chain.MustDefaultRegistry(),
		Quotes:  env.quotes,
		Tokens:  env.catalog,
		Engine:  env.engine,
		Ledger:  ledger,
		Assets:  memory.NewAssets(),
		Tracker: tracker,
		DevMode: true,
		Logger:  logger,
	}
	env.e = echo.New()
	RegisterRoutes(env.e, env.h, cfg)
	return env
}

func (env *testEnv) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthAndChains(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	rec := env.do(t, http.MethodGet, "/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	health := decode[HealthResponse](t, rec)
	assert.True(t, health.OK)
	assert.Empty(t, health.Tracking)

	rec = env.do(t, http.MethodGet, "/v1/chains", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Items []chain.Chain `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Items)
	assert.NotContains(t, rec.Body.String(), "rpc", "RPC endpoints must not be exposed")

	rec = env.do(t, http.MethodGet, "/v1/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, decode[ErrorResponse](t, rec).Code)
}

func TestTokens_Refresh(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	rec := env.do(t, http.MethodGet, "/v1/tokens/polygon", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), polygonUSDC)
	assert.Empty(t, env.catalog.invalidated)

	rec = env.do(t, http.MethodGet, "/v1/tokens/137?refresh=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{137}, env.catalog.invalidated)

	rec = env.do(t, http.MethodGet, "/v1/tokens/atlantis", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuote_ResolvesSymbolsAndDefaults(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	rec := env.do(t, http.MethodGet,
		"/v1/quote?fromChain=polygon&toChain=42161&fromToken=usdc&toToken="+arbitrumUSDC+
			"&fromAmount=1000000&fromAddress=0xabc", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := env.quotes.got
	assert.Equal(t, int64(137), got.FromChain)
	assert.Equal(t, int64(42161), got.ToChain)
	assert.Equal(t, polygonUSDC, got.FromToken)
	assert.Equal(t, arbitrumUSDC, got.ToToken)
	assert.Equal(t, uint16(50), got.SlippageBps)

	q := decode[models.Quote](t, rec)
	assert.Equal(t, "q-1", q.ID)
}

func TestQuote_Errors(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	base := "/v1/quote?fromChain=137&toChain=42161&fromToken=USDC&toToken=USDC&fromAddress=0xabc"

	tests := []struct {
		name string
		path string
		err  error
		want int
	}{
		{"missing amount", base, nil, http.StatusBadRequest},
		{"slippage above cap", base + "&fromAmount=1&slippageBps=9000", nil, http.StatusBadRequest},
		{"unknown chain", "/v1/quote?fromChain=atlantis&toChain=137", nil, http.StatusBadRequest},
		{"no route", base + "&fromAmount=1", aggregator.ErrNoRoute, http.StatusNotFound},
		{"upstream down", base + "&fromAmount=1", aggregator.ErrUnreachable, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.quotes.err = tt.err
			rec := env.do(t, http.MethodGet, tt.path, "")
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestExecuteSwap(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	body := `{"quote":{"id":"q-1","from_chain":137,"to_chain":42161,"from_amount":"1000000","to_amount":"999000"},"pin":"482913"}`

	env.engine.res = &swapengine.ExecuteResult{
		TxID:   "0xswap",
		Record: &models.SwapRecord{TxID: "0xswap", Status: models.StatusPending},
	}
	rec := env.do(t, http.MethodPost, "/v1/swaps", body)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	out := decode[ExecuteResponse](t, rec)
	assert.Equal(t, "0xswap", out.TxID)
	assert.False(t, out.Tracking)
	assert.Equal(t, "482913", env.engine.got.PIN)
	assert.Equal(t, "q-1", env.engine.got.Quote.ID)
	assert.NotContains(t, rec.Body.String(), "482913")

	env.engine.err = vault.ErrInvalidPin
	rec = env.do(t, http.MethodPost, "/v1/swaps", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Incorrect PIN.", decode[ErrorResponse](t, rec).Error)

	env.engine.err = swapengine.ErrChainPaused
	rec = env.do(t, http.MethodPost, "/v1/swaps", body)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/swaps", `{"quote":{"id":"q-1"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordLifecycle(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	create := `{"tx_id":"0xabc","from_chain":137,"to_chain":42161,"from_amount":"1000000","to_amount":"999000"}`

	rec := env.do(t, http.MethodPost, "/v1/swaps/record", create)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, models.StatusPending, decode[models.SwapRecord](t, rec).Status)

	rec = env.do(t, http.MethodPost, "/v1/swaps/record", create)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/swaps/0xabc", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/swaps/0xmissing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/swaps/0xabc/track", "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, string(settlement.StateTracking), decode[TrackResponse](t, rec).State)
	assert.Equal(t, []string{"0xabc"}, env.tracker.Active())

	rec = env.do(t, http.MethodGet, "/v1/swaps/0xabc/track", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/swaps/0xabc/terminal", `{"status":"PENDING"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/swaps/0xabc/terminal", `{"status":"DONE","substatus":"COMPLETED","receiving_tx_id":"0xdest"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	term := decode[TerminalResponse](t, rec)
	assert.True(t, term.Applied)
	assert.Equal(t, models.StatusDone, term.Record.Status)
	assert.Equal(t, "0xdest", term.Record.ReceivingTxID)
	assert.Empty(t, env.tracker.Active(), "manual settlement stops polling")

	rec = env.do(t, http.MethodPost, "/v1/swaps/0xabc/terminal", `{"status":"DONE"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[TerminalResponse](t, rec).Applied)

	rec = env.do(t, http.MethodPost, "/v1/swaps/0xabc/terminal", `{"status":"FAILED"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/swaps/0xabc/track", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/swaps?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "0xabc")

	rec = env.do(t, http.MethodGet, "/v1/swaps?limit=500", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTracking_StopAndReconcile(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	create := `{"tx_id":"0xpending","from_chain":137,"to_chain":137,"from_amount":"5","to_amount":"4"}`
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/swaps/record", create).Code)

	rec := env.do(t, http.MethodDelete, "/v1/swaps/0xpending/track", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/swaps/reconcile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[ReconcileResponse](t, rec).Resumed)
	assert.Equal(t, []string{"0xpending"}, env.tracker.Active())

	rec = env.do(t, http.MethodDelete, "/v1/swaps/0xpending/track", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, env.tracker.Active())

	stored, err := env.ledger.Get(context.Background(), "0xpending")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestExplainSwap_WithoutAgent(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	ctx := context.Background()
	require.NoError(t, env.ledger.Create(ctx, &models.SwapRecord{TxID: "0xf", FromChain: 137, ToChain: 42161, Status: models.StatusPending}))

	rec := env.do(t, http.MethodGet, "/v1/swaps/0xf/explain", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	_, err := env.ledger.UpdateTerminal(ctx, "0xf", models.StatusFailed, models.TerminalFields{
		Substatus:        "SLIPPAGE_EXCEEDED",
		SubstatusMessage: "Price moved beyond slippage.",
		CompletedAt:      time.Now(),
	})
	require.NoError(t, err)

	rec = env.do(t, http.MethodGet, "/v1/swaps/0xf/explain", "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[ExplainResponse](t, rec)
	assert.False(t, out.Generated)
	assert.Equal(t, "Price moved beyond slippage. Request a new quote to try again.", out.Explanation)
}

func TestAssets(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	body := `{"chain":"arbitrum","address":"` + arbitrumUSDC + `","symbol":"USDC","decimals":6}`

	rec := env.do(t, http.MethodPost, "/v1/assets", body)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = env.do(t, http.MethodPost, "/v1/assets", body)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/assets/42161", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Items []models.KnownAsset `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Items, 1)
	assert.Equal(t, "USDC", out.Items[0].Symbol)

	rec = env.do(t, http.MethodPost, "/v1/assets", `{"chain":"arbitrum"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOptionalSubsystems(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/flags", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/v1/chains/polygon/pause", `{"paused":true}`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/v1/ai/ask", `{"question":"how many?"}`).Code)

	rec := env.do(t, http.MethodGet, "/v1/risk", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1000.0, decode[swapengine.RiskStatus](t, rec).DailyLimitUSD)
}

func TestAPIKey(t *testing.T) {
	env := newTestEnv(t, ServerConfig{APIKey: "s3cret"})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/health", "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/v1/chains", "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/v1/chains", "", "X-API-Key", "wrong").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/chains", "", "X-API-Key", "s3cret").Code)
}

func TestExecutionStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, executionStatus(vault.ErrInvalidPin))
	assert.Equal(t, http.StatusUnprocessableEntity, executionStatus(swapengine.ErrQuoteRejected))
	assert.Equal(t, http.StatusUnprocessableEntity, executionStatus(swapengine.ErrMissingTransactionData))
	assert.Equal(t, http.StatusPaymentRequired, executionStatus(swapengine.ErrInsufficientNative))
	assert.Equal(t, http.StatusInternalServerError, executionStatus(assert.AnError))
}
