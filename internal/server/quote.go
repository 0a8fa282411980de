package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/aggregator"
	"github.com/aman-zulfiqar/crosschain-swap/internal/chain"
	"github.com/aman-zulfiqar/crosschain-swap/internal/constants"
	"github.com/labstack/echo/v4"
)

// resolveToken turns a symbol into an address via the catalog. Unknown
// references pass through untouched; the aggregator has the final say.
func (h *Handlers) resolveToken(c echo.Context, ch chain.Chain, ref string) string {
	if ch.IsNative(ref) || h.Tokens == nil {
		return ref
	}
	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()
	t, err := h.Tokens.Find(ctx, ch.ID, ref)
	if err != nil {
		return ref
	}
	return t.Address
}

// Quote prices a route. Tokens may be given by symbol or address.
func (h *Handlers) Quote(c echo.Context) error {
	fromChain, err := h.Chains.Resolve(c.QueryParam("fromChain"))
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid fromChain", map[string]any{"fromChain": err.Error()})
	}
	toChain, err := h.Chains.Resolve(c.QueryParam("toChain"))
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid toChain", map[string]any{"toChain": err.Error()})
	}

	fromToken := strings.TrimSpace(c.QueryParam("fromToken"))
	toToken := strings.TrimSpace(c.QueryParam("toToken"))
	amount := strings.TrimSpace(c.QueryParam("fromAmount"))
	fromAddress := strings.TrimSpace(c.QueryParam("fromAddress"))

	if fromToken == "" {
		return h.err(c, http.StatusBadRequest, "invalid fromToken", map[string]any{"fromToken": "required"})
	}
	if toToken == "" {
		return h.err(c, http.StatusBadRequest, "invalid toToken", map[string]any{"toToken": "required"})
	}
	if amount == "" {
		return h.err(c, http.StatusBadRequest, "invalid fromAmount", map[string]any{"fromAmount": "required"})
	}
	if fromAddress == "" {
		return h.err(c, http.StatusBadRequest, "invalid fromAddress", map[string]any{"fromAddress": "required"})
	}

	slippage := h.DefaultSlippageBps
	if slippage == 0 {
		slippage = constants.DefaultSlippageBps
	}
	if v := strings.TrimSpace(c.QueryParam("slippageBps")); v != "" {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil || n == 0 || n > constants.MaxSlippageBps {
			return h.err(c, http.StatusBadRequest, "invalid slippageBps", map[string]any{"slippageBps": "must be 1..5000"})
		}
		slippage = uint16(n)
	}

	order := strings.ToUpper(strings.TrimSpace(c.QueryParam("order")))
	if order != "" && order != "FASTEST" && order != "CHEAPEST" {
		return h.err(c, http.StatusBadRequest, "invalid order", map[string]any{"order": "must be FASTEST or CHEAPEST"})
	}

	req := aggregator.QuoteRequest{
		FromChain:   fromChain.ID,
		ToChain:     toChain.ID,
		FromToken:   h.resolveToken(c, fromChain, fromToken),
		ToToken:     h.resolveToken(c, toChain, toToken),
		FromAmount:  amount,
		FromAddress: fromAddress,
		ToAddress:   strings.TrimSpace(c.QueryParam("toAddress")),
		SlippageBps: slippage,
		Order:       order,
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 20*time.Second)
	defer cancel()

	q, err := h.Quotes.Quote(ctx, req)
	if err != nil {
		return h.err(c, quoteStatus(err), "quote failed", map[string]any{"err": err.Error()})
	}
	return c.JSON(http.StatusOK, q)
}
