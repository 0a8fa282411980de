package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/cache"
	"github.com/aman-zulfiqar/crosschain-swap/internal/chain"
	"github.com/aman-zulfiqar/crosschain-swap/internal/flags"
	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	"github.com/aman-zulfiqar/crosschain-swap/internal/settlement"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const integrationAPIKey = "test-api-key-integration"

type integrationEnv struct {
	url   string
	flags *flags.Store
}

// setupIntegration serves the full router over a real listener with
// Redis-backed flags and ledger. Skipped when Redis is unreachable.
func setupIntegration(t *testing.T) *integrationEnv {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 3})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for integration tests: %v", err)
	}
	require.NoError(t, client.FlushDB(ctx).Err())

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store, err := flags.NewStore(client)
	require.NoError(t, err)
	ledger := cache.NewRedisLedger(client, logger)
	tracker, err := settlement.New(settlement.Config{
		Source:   pendingSource{},
		Ledger:   ledger,
		Interval: time.Hour,
		Logger:   logger,
	})
	require.NoError(t, err)

	srv, err := NewServer(ServerDeps{
		Handlers: &Handlers{
			Chains:  chain.MustDefaultRegistry(),
			Quotes:  &fakeQuotes{},
			Tokens:  &fakeCatalog{},
			Ledger:  ledger,
			Assets:  cache.NewRedisAssets(client),
			Tracker: tracker,
			Flags:   store,
			DevMode: true,
			Logger:  logger,
		},
		Config: ServerConfig{DevMode: true, APIKey: integrationAPIKey},
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		tracker.Shutdown()
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return &integrationEnv{url: ts.URL, flags: store}
}

func (env *integrationEnv) request(t *testing.T, method, path string, body any, want int) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, env.url+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", integrationAPIKey)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	assert.Equal(t, want, resp.StatusCode, "%s %s", method, path)
	return resp
}

func readJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestIntegration_FlagsCRUD(t *testing.T) {
	env := setupIntegration(t)

	resp := env.request(t, http.MethodPost, "/v1/flags", map[string]any{"key": "test.flag", "value": true}, http.StatusOK)
	created := readJSON[flags.Flag](t, resp)
	assert.Equal(t, "test.flag", created.Key)
	assert.True(t, created.Value)
	assert.NotZero(t, created.UpdatedAt)

	resp = env.request(t, http.MethodPut, "/v1/flags/test.flag", map[string]any{"value": false}, http.StatusOK)
	assert.False(t, readJSON[flags.Flag](t, resp).Value)

	resp = env.request(t, http.MethodGet, "/v1/flags", nil, http.StatusOK)
	list := readJSON[struct {
		Items []*flags.Flag `json:"items"`
	}](t, resp)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "test.flag", list.Items[0].Key)

	env.request(t, http.MethodDelete, "/v1/flags/test.flag", nil, http.StatusNoContent)
	env.request(t, http.MethodGet, "/v1/flags/test.flag", nil, http.StatusNotFound)
	env.request(t, http.MethodDelete, "/v1/flags/test.flag", nil, http.StatusNotFound)
}

func TestIntegration_FlagsValidation(t *testing.T) {
	env := setupIntegration(t)

	resp := env.request(t, http.MethodPost, "/v1/flags", map[string]any{"key": "", "value": true}, http.StatusBadRequest)
	assert.Contains(t, readJSON[ErrorResponse](t, resp).Error, "invalid key")

	env.request(t, http.MethodPost, "/v1/flags", map[string]any{"key": "invalid:key", "value": true}, http.StatusBadRequest)
}

func TestIntegration_ChainPause(t *testing.T) {
	env := setupIntegration(t)
	ctx := context.Background()

	resp := env.request(t, http.MethodPost, "/v1/chains/polygon/pause", map[string]any{"paused": true}, http.StatusOK)
	assert.Equal(t, flags.ChainPauseKey("polygon"), readJSON[flags.Flag](t, resp).Key)

	allowed, err := env.flags.Allowed(ctx, "polygon")
	require.NoError(t, err)
	assert.False(t, allowed)
	allowed, err = env.flags.Allowed(ctx, "arbitrum")
	require.NoError(t, err)
	assert.True(t, allowed)

	env.request(t, http.MethodPost, "/v1/chains/137/pause", map[string]any{"paused": false}, http.StatusOK)
	allowed, err = env.flags.Allowed(ctx, "polygon")
	require.NoError(t, err)
	assert.True(t, allowed)

	env.request(t, http.MethodPost, "/v1/chains/nowhere/pause", map[string]any{"paused": true}, http.StatusBadRequest)
}

func TestIntegration_RedisLedger(t *testing.T) {
	env := setupIntegration(t)

	create := map[string]any{"tx_id": "0xint", "from_chain": 137, "to_chain": 42161, "from_amount": "10", "to_amount": "9"}
	env.request(t, http.MethodPost, "/v1/swaps/record", create, http.StatusCreated)
	env.request(t, http.MethodPost, "/v1/swaps/record", create, http.StatusConflict)

	resp := env.request(t, http.MethodGet, "/v1/swaps/0xint", nil, http.StatusOK)
	assert.Equal(t, models.StatusPending, readJSON[models.SwapRecord](t, resp).Status)

	resp = env.request(t, http.MethodPost, "/v1/swaps/reconcile", nil, http.StatusOK)
	assert.Equal(t, 1, readJSON[ReconcileResponse](t, resp).Resumed)

	resp = env.request(t, http.MethodPost, "/v1/swaps/0xint/terminal", map[string]any{"status": "FAILED", "substatus_message": "bridge refunded"}, http.StatusOK)
	term := readJSON[TerminalResponse](t, resp)
	assert.True(t, term.Applied)
	assert.Equal(t, models.StatusFailed, term.Record.Status)

	resp = env.request(t, http.MethodGet, "/v1/swaps/0xint/explain", nil, http.StatusOK)
	assert.Contains(t, readJSON[ExplainResponse](t, resp).Explanation, "bridge refunded")

	resp = env.request(t, http.MethodGet, "/v1/swaps?limit=5", nil, http.StatusOK)
	assert.Contains(t, readJSON[map[string]any](t, resp), "items")
}

func TestIntegration_Authentication(t *testing.T) {
	env := setupIntegration(t)
	client := &http.Client{Timeout: 5 * time.Second}

	for _, key := range []string{"", "invalid-key"} {
		req, err := http.NewRequest(http.MethodGet, env.url+"/v1/swaps", nil)
		require.NoError(t, err)
		if key != "" {
			req.Header.Set("X-API-Key", key)
		}
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "key %q", key)
	}
}

func TestIntegration_NotFoundAndBadJSON(t *testing.T) {
	env := setupIntegration(t)

	resp := env.request(t, http.MethodGet, "/v1/nonexistent", nil, http.StatusNotFound)
	body := readJSON[ErrorResponse](t, resp)
	assert.Equal(t, "not found", body.Error)
	assert.Equal(t, http.StatusNotFound, body.Code)

	req, err := http.NewRequest(http.MethodPost, env.url+"/v1/flags", bytes.NewReader([]byte("invalid json")))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", integrationAPIKey)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestIntegration_ConcurrentRequests(t *testing.T) {
	env := setupIntegration(t)

	const workers, perWorker = 10, 5
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				resp, err := http.Get(env.url + "/v1/health")
				if assert.NoError(t, err) {
					assert.Equal(t, http.StatusOK, resp.StatusCode)
					resp.Body.Close()
				}
			}
		}()
	}
	wg.Wait()
}
