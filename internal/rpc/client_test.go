package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcReq struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func newTestRPC(t *testing.T, h func(req rpcReq) string) (*Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		body, _ := io.ReadAll(r.Body)
		var req rpcReq
		assert.NoError(t, json.Unmarshal(body, &req))
		_, _ = w.Write([]byte(h(req)))
	}))
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{BaseURL: srv.URL, Timeout: 2 * time.Second, MaxRetries: 2, RetryBackoff: time.Millisecond}), &calls
}

func TestClient_GetAccountInfo(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	c, _ := newTestRPC(t, func(req rpcReq) string {
		assert.Equal(t, "getAccountInfo", req.Method)
		var addr string
		_ = json.Unmarshal(req.Params[0], &addr)
		if addr == solana.SystemProgramID.String() {
			return `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":{"owner":"NativeLoader1111111111111111111111111111111","lamports":1,"executable":true,"data":["` + base64.StdEncoding.EncodeToString(data) + `","base64"]}}}`
		}
		return `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":null}}`
	})
	ctx := context.Background()

	info, err := c.GetAccountInfo(ctx, solana.SystemProgramID, "")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, data, info.Data)
	assert.True(t, info.Executable)

	ok, err := c.AccountExists(ctx, solana.TokenProgramID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_GetLatestBlockhash(t *testing.T) {
	want := solana.HashFromBytes(make([]byte, 32))
	c, _ := newTestRPC(t, func(req rpcReq) string {
		return `{"jsonrpc":"2.0","id":1,"result":{"value":{"blockhash":"` + want.String() + `","lastValidBlockHeight":100}}}`
	})

	got, err := c.GetLatestBlockhash(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestClient_SendTransaction_RPCErrorNotRetried(t *testing.T) {
	c, calls := newTestRPC(t, func(req rpcReq) string {
		assert.Equal(t, "sendTransaction", req.Method)
		var cfg map[string]any
		_ = json.Unmarshal(req.Params[1], &cfg)
		assert.Equal(t, false, cfg["skipPreflight"])
		return `{"jsonrpc":"2.0","id":1,"error":{"code":-32002,"message":"Transaction simulation failed: insufficient funds"}}`
	})

	_, err := c.SendTransaction(context.Background(), []byte{1, 2, 3}, nil)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32002, rpcErr.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestClient_RetriesTransportFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"sig"}`))
	}))
	defer srv.Close()
	c := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: time.Second, MaxRetries: 3, RetryBackoff: time.Millisecond})

	sig, err := c.SendTransaction(context.Background(), []byte{1}, nil)
	require.NoError(t, err)
	assert.Equal(t, "sig", sig)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_ExhaustedRetriesIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	c := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: time.Second, MaxRetries: 1, RetryBackoff: time.Millisecond})

	_, err := c.SendTransaction(context.Background(), []byte{1}, nil)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestClient_ClientErrorsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	c := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: time.Second, MaxRetries: 3, RetryBackoff: time.Millisecond})

	_, err := c.GetLatestBlockhash(context.Background(), "")
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_RequestIDsIncrease(t *testing.T) {
	var ids []uint64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID uint64 `json:"id"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		ids = append(ids, req.ID)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":null}}`))
	}))
	defer srv.Close()
	c := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: time.Second})

	for range 3 {
		_, err := c.AccountExists(context.Background(), solana.SystemProgramID)
		require.NoError(t, err)
	}
	assert.Equal(t, []uint64{1, 2, 3}, ids)
}
