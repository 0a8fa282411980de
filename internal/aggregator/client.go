package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/constants"
	"github.com/aman-zulfiqar/crosschain-swap/internal/metrics"
	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	"github.com/sirupsen/logrus"
)

const DefaultBaseURL = "https://li.quest/v1"

// ClientConfig holds configuration for the aggregator client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	// Timeout bounds each request. Defaults to 15s.
	Timeout time.Duration
	Logger  *logrus.Logger
}

// Client talks to a LI.FI-compatible routing API. It is read-only and safe
// for concurrent use.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client

	timeout time.Duration
	logger  *logrus.Logger
	now     func() time.Time
}

func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Client{
		BaseURL: baseURL,
		APIKey:  strings.TrimSpace(cfg.APIKey),
		HTTP:    &http.Client{Timeout: cfg.Timeout},
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		now:     time.Now,
	}
}

// Quote requests a route and normalizes it.
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (*models.Quote, error) {
	if err := validateQuoteRequest(req); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("fromChain", strconv.FormatInt(req.FromChain, 10))
	q.Set("toChain", strconv.FormatInt(req.ToChain, 10))
	q.Set("fromToken", req.FromToken)
	q.Set("toToken", req.ToToken)
	q.Set("fromAmount", req.FromAmount)
	q.Set("fromAddress", req.FromAddress)
	if req.ToAddress != "" {
		q.Set("toAddress", req.ToAddress)
	}
	q.Set("slippage", strconv.FormatFloat(float64(req.SlippageBps)/10000, 'f', -1, 64))
	if req.Order != "" {
		q.Set("order", req.Order)
	}

	start := time.Now()
	body, err := c.get(ctx, "/quote", q)
	metrics.QuoteLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.QuotesTotal.WithLabelValues(outcomeOf(err)).Inc()
		return nil, err
	}

	var rq rawQuote
	if err := json.Unmarshal(body, &rq); err != nil {
		metrics.QuotesTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: decode quote: %v", ErrInvalidResponse, err)
	}

	out, err := normalizeQuote(&rq, req, c.now())
	if err != nil {
		metrics.QuotesTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	metrics.QuotesTotal.WithLabelValues("ok").Inc()

	c.logger.WithFields(logrus.Fields{
		"quote_id":   out.ID,
		"tool":       out.Tool,
		"from_chain": out.FromChain,
		"to_chain":   out.ToChain,
		"to_amount":  out.ToAmount,
	}).Debug("quote received")
	return out, nil
}

// Status fetches the settlement status of a submitted transaction.
func (c *Client) Status(ctx context.Context, txID string, fromChain, toChain int64) (models.SwapStatus, error) {
	if strings.TrimSpace(txID) == "" {
		return models.SwapStatus{}, fmt.Errorf("txHash is required")
	}
	q := url.Values{}
	q.Set("txHash", txID)
	if fromChain != 0 {
		q.Set("fromChain", strconv.FormatInt(fromChain, 10))
	}
	if toChain != 0 {
		q.Set("toChain", strconv.FormatInt(toChain, 10))
	}

	body, err := c.get(ctx, "/status", q)
	if err != nil {
		// The status endpoint answers 404 until the source tx is indexed.
		if errors.Is(err, ErrNoRoute) {
			return models.SwapStatus{Status: models.PollNotFound}, nil
		}
		return models.SwapStatus{}, err
	}

	var rs rawStatus
	if err := json.Unmarshal(body, &rs); err != nil {
		return models.SwapStatus{}, fmt.Errorf("%w: decode status: %v", ErrInvalidResponse, err)
	}
	return normalizeStatus(&rs), nil
}

// tokens fetches the raw catalog for one chain.
func (c *Client) tokens(ctx context.Context, chainID int64) ([]models.Token, error) {
	q := url.Values{}
	q.Set("chains", strconv.FormatInt(chainID, 10))

	body, err := c.get(ctx, "/tokens", q)
	if err != nil {
		return nil, err
	}

	var resp rawTokensResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode tokens: %v", ErrInvalidResponse, err)
	}

	raw := resp.Tokens[strconv.FormatInt(chainID, 10)]
	out := make([]models.Token, 0, len(raw))
	for i := range raw {
		out = append(out, normalizeToken(&raw[i], chainID, ""))
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.BaseURL + path + "?" + q.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("accept", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("x-lifi-api-key", c.APIKey)
	}

	res, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnreachable, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, classify(&HTTPError{StatusCode: res.StatusCode, Body: body})
	}
	return body, nil
}

func validateQuoteRequest(req QuoteRequest) error {
	if req.FromChain <= 0 || req.ToChain <= 0 {
		return fmt.Errorf("%w: fromChain and toChain are required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.FromToken) == "" {
		return fmt.Errorf("%w: fromToken is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.ToToken) == "" {
		return fmt.Errorf("%w: toToken is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.FromAddress) == "" {
		return fmt.Errorf("%w: fromAddress is required", ErrInvalidRequest)
	}
	amt, ok := models.ParseAmount(strings.TrimSpace(req.FromAmount))
	if !ok || amt.Sign() <= 0 {
		return fmt.Errorf("%w: fromAmount must be a positive integer in smallest units", ErrInvalidRequest)
	}
	if req.SlippageBps == 0 || req.SlippageBps > constants.MaxSlippageBps {
		return fmt.Errorf("%w: slippageBps must be in (0, 5000]", ErrInvalidRequest)
	}
	return nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrNoRoute):
		return "no_route"
	case errors.Is(err, ErrUnreachable):
		return "unreachable"
	default:
		return "invalid"
	}
}
