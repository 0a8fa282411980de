package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const maxBackoff = 5 * time.Second

// Client is a JSON-RPC 2.0 client for account-model chains. Transport
// failures, 429 and 5xx answers are retried with exponential backoff; a
// JSON-RPC error object is returned as *RPCError on the first attempt.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	maxRetries   int
	retryBackoff time.Duration
	logger       *logrus.Logger
	nextID       atomic.Uint64
}

// ClientConfig holds configuration for the RPC client
type ClientConfig struct {
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	Logger       *logrus.Logger
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 250 * time.Millisecond
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:      cfg.BaseURL,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		logger:       cfg.Logger,
	}
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type response[T any] struct {
	Result T         `json:"result"`
	Error  *RPCError `json:"error"`
}

// statusError is a non-200 HTTP answer. retryAfter is zero unless the node
// sent a Retry-After header in seconds.
type statusError struct {
	code       int
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	if e.code == http.StatusTooManyRequests {
		return "rate limited (429)"
	}
	return fmt.Sprintf("unexpected status code: %d", e.code)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// call sends one request and decodes its result into T.
func call[T any](ctx context.Context, c *Client, method string, params any) (T, error) {
	var zero T
	data, err := json.Marshal(request{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return zero, fmt.Errorf("marshal %s request: %w", method, err)
	}

	body, err := c.post(ctx, method, data)
	if err != nil {
		return zero, err
	}
	var resp response[T]
	if err := json.Unmarshal(body, &resp); err != nil {
		return zero, fmt.Errorf("decode %s response: %w", method, err)
	}
	if resp.Error != nil {
		return zero, resp.Error
	}
	return resp.Result, nil
}

func (c *Client) post(ctx context.Context, method string, data []byte) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := backoff
			if se, ok := lastErr.(*statusError); ok && se.retryAfter > wait {
				wait = se.retryAfter
			}
			c.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"backoff": wait,
				"method":  method,
			}).WithError(lastErr).Debug("retrying RPC call")

			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrTransport, ctx.Err())
			case <-time.After(wait):
			}
			backoff = min(backoff*2, maxBackoff)
		}

		body, err := c.doRequest(ctx, data)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrTransport, err)
		}
		if se, ok := err.(*statusError); ok && !se.retryable() {
			return nil, fmt.Errorf("%w: %s: %w", ErrTransport, method, err)
		}
	}

	return nil, fmt.Errorf("%w: %s: max retries exceeded: %w", ErrTransport, method, lastErr)
}

func (c *Client) doRequest(ctx context.Context, data []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		se := &statusError{code: resp.StatusCode}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			se.retryAfter = min(time.Duration(secs)*time.Second, maxBackoff)
		}
		return nil, se
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}
