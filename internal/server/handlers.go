package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/aggregator"
	"github.com/aman-zulfiqar/crosschain-swap/internal/ai"
	"github.com/aman-zulfiqar/crosschain-swap/internal/chain"
	"github.com/aman-zulfiqar/crosschain-swap/internal/flags"
	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	"github.com/aman-zulfiqar/crosschain-swap/internal/settlement"
	"github.com/aman-zulfiqar/crosschain-swap/internal/storage"
	"github.com/aman-zulfiqar/crosschain-swap/internal/swapengine"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// QuoteSource prices a route.
type QuoteSource interface {
	Quote(ctx context.Context, req aggregator.QuoteRequest) (*models.Quote, error)
}

// TokenCatalog lists priced tokens per chain.
type TokenCatalog interface {
	List(ctx context.Context, chainID int64) ([]models.Token, error)
	Find(ctx context.Context, chainID int64, symbolOrAddress string) (models.Token, error)
	Invalidate(chainID int64)
}

// SwapExecutor runs the sign-and-broadcast path.
type SwapExecutor interface {
	Execute(ctx context.Context, req swapengine.ExecuteRequest) (*swapengine.ExecuteResult, error)
	RiskStatus() swapengine.RiskStatus
}

// SettlementTracker drives polling loops.
type SettlementTracker interface {
	Track(ctx context.Context, rec *models.SwapRecord) *settlement.Handle
	Cancel(txID string) bool
	Handle(txID string) (*settlement.Handle, bool)
	Active() []string
	Reconcile(ctx context.Context) (int, error)
}

// Handlers contains all dependencies for API endpoint handlers.
// Engine, Flags and AI are optional; their routes answer 400 when unset.
type Handlers struct {
	Chains       *chain.Registry
	Quotes       QuoteSource
	Tokens       TokenCatalog
	Engine       SwapExecutor
	Ledger       storage.SwapLedger
	Assets       storage.AssetRegistry
	Tracker      SettlementTracker
	Flags        *flags.Store
	AI           *ai.Agent
	AIBaseConfig ai.AgentConfig

	DefaultSlippageBps uint16
	DevMode            bool
	Logger             *logrus.Logger
}

// err returns a standardized JSON error response
// In dev mode, includes additional error details for debugging
func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

// withTimeout creates a context with timeout, defaulting to 10 seconds if duration <= 0
func (h *Handlers) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

func (h *Handlers) chainParam(c echo.Context, name string) (chain.Chain, error) {
	ref := strings.TrimSpace(c.Param(name))
	if ref == "" {
		ref = strings.TrimSpace(c.QueryParam(name))
	}
	return h.Chains.Resolve(ref)
}

// Health reports liveness and the transaction ids currently being polled.
func (h *Handlers) Health(c echo.Context) error {
	active := h.Tracker.Active()
	if active == nil {
		active = []string{}
	}
	return c.JSON(http.StatusOK, HealthResponse{OK: true, Tracking: active})
}

// ListChains lists supported networks ordered by id.
func (h *Handlers) ListChains(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"items": h.Chains.All()})
}

// ListTokens returns the priced token list for a chain.
// ?refresh=true drops the cached list first.
func (h *Handlers) ListTokens(c echo.Context) error {
	ch, err := h.chainParam(c, "chain")
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid chain", map[string]any{"chain": err.Error()})
	}
	if refresh, _ := strconv.ParseBool(c.QueryParam("refresh")); refresh {
		h.Tokens.Invalidate(ch.ID)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	items, err := h.Tokens.List(ctx, ch.ID)
	if err != nil {
		return h.err(c, quoteStatus(err), "failed to list tokens", map[string]any{"err": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"chain": ch.Key, "items": items})
}

// RiskStatus reports the current daily usage against configured limits.
func (h *Handlers) RiskStatus(c echo.Context) error {
	if h.Engine == nil {
		return h.err(c, http.StatusBadRequest, "execution is not configured", nil)
	}
	return c.JSON(http.StatusOK, h.Engine.RiskStatus())
}
